//go:build opus

package audio

import (
	"encoding/binary"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/hraban/opus"
	"github.com/lingora-app/lingora/internal/audio"
)

const (
	playbackSampleRate = 48000
	playbackChannels   = 2
	maxFrameSamples    = playbackSampleRate * 120 / 1000 * playbackChannels
)

// OpusPlaybackSink decodes attached remote tracks and pipes interleaved
// s16le PCM into a playback command's stdin.
type OpusPlaybackSink struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	tracks map[string]chan struct{}
	closed bool
}

func NewOpusPlaybackSink(command string) audio.PlaybackSink {
	sink := &OpusPlaybackSink{tracks: make(map[string]chan struct{})}
	if command == "" {
		return sink
	}
	cmd := exec.Command("sh", "-c", command)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		slog.Error("failed to open playback command stdin", "error", err)
		return sink
	}
	if err := cmd.Start(); err != nil {
		slog.Error("failed to start playback command", "error", err, "command", command)
		return sink
	}
	sink.cmd = cmd
	sink.stdin = stdin
	return sink
}

func (s *OpusPlaybackSink) Attach(track audio.Track) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, exists := s.tracks[track.ID()]; exists {
		s.mu.Unlock()
		return
	}
	done := make(chan struct{})
	s.tracks[track.ID()] = done
	s.mu.Unlock()

	go s.playTrack(track, done)
}

func (s *OpusPlaybackSink) playTrack(track audio.Track, done chan struct{}) {
	decoder, err := opus.NewDecoder(playbackSampleRate, playbackChannels)
	if err != nil {
		slog.Error("failed to create opus decoder", "error", err, "track_id", track.ID())
		return
	}
	pcm := make([]int16, maxFrameSamples)
	out := make([]byte, maxFrameSamples*2)
	for {
		select {
		case <-done:
			return
		default:
		}
		payload, err := track.ReadPayload()
		if err != nil {
			slog.Debug("remote track read ended", "error", err, "track_id", track.ID())
			return
		}
		if len(payload) == 0 {
			continue
		}
		n, err := decoder.Decode(payload, pcm)
		if err != nil {
			slog.Warn("failed to decode opus payload", "error", err, "track_id", track.ID())
			continue
		}
		samples := n * playbackChannels
		for i := 0; i < samples; i++ {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(pcm[i]))
		}
		s.writePCM(out[:samples*2])
	}
}

func (s *OpusPlaybackSink) writePCM(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.stdin == nil {
		return
	}
	if _, err := s.stdin.Write(b); err != nil {
		slog.Warn("failed to write pcm to playback command", "error", err)
	}
}

func (s *OpusPlaybackSink) Detach(trackID string) {
	s.mu.Lock()
	done, ok := s.tracks[trackID]
	if ok {
		delete(s.tracks, trackID)
	}
	s.mu.Unlock()
	if ok {
		close(done)
	}
}

func (s *OpusPlaybackSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, done := range s.tracks {
		close(done)
		delete(s.tracks, id)
	}
	stdin := s.stdin
	cmd := s.cmd
	s.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}
