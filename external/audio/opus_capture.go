//go:build opus

package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/hraban/opus"
	"github.com/lingora-app/lingora/internal/audio"
)

const (
	captureSampleRate = 48000
	captureChannels   = 1
	captureFrameMs    = 20
	captureFrameSize  = captureSampleRate * captureFrameMs * captureChannels / 1000
	maxOpusFrameBytes = 1275
)

// OpusCaptureSource reads raw s16le PCM from a capture command's stdout and
// encodes it into 20ms opus frames.
type OpusCaptureSource struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	encoder *opus.Encoder
	pcmBuf  []byte
	closed  bool
}

func NewOpusCaptureSource(command string) audio.CaptureSource {
	src := &OpusCaptureSource{}
	if command == "" {
		return src
	}
	cmd := exec.Command("sh", "-c", command)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		slog.Error("failed to open capture command stdout", "error", err)
		return src
	}
	if err := cmd.Start(); err != nil {
		slog.Error("failed to start capture command", "error", err, "command", command)
		return src
	}
	encoder, err := opus.NewEncoder(captureSampleRate, captureChannels, opus.AppVoIP)
	if err != nil {
		slog.Error("failed to create opus encoder", "error", err)
		_ = cmd.Process.Kill()
		return src
	}
	src.cmd = cmd
	src.stdout = stdout
	src.encoder = encoder
	src.pcmBuf = make([]byte, captureFrameSize*2)
	return src
}

func (s *OpusCaptureSource) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encoder != nil && !s.closed
}

func (s *OpusCaptureSource) ReadFrame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.encoder == nil || s.closed {
		return nil, fmt.Errorf("capture source is not available")
	}
	if _, err := io.ReadFull(s.stdout, s.pcmBuf); err != nil {
		return nil, err
	}
	pcm := make([]int16, captureFrameSize)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(s.pcmBuf[i*2:]))
	}
	frame := make([]byte, maxOpusFrameBytes)
	n, err := s.encoder.Encode(pcm, frame)
	if err != nil {
		return nil, err
	}
	return frame[:n], nil
}

func (s *OpusCaptureSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.stdout != nil {
		_ = s.stdout.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
}
