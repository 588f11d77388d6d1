//go:build !opus

package audio

import (
	"time"

	"github.com/lingora-app/lingora/internal/audio"
)

// opusSilenceFrame is a minimal opus DTX frame, published so the agent still
// sees a live microphone track in builds without the opus codec.
var opusSilenceFrame = []byte{0xf8, 0xff, 0xfe}

type noopCaptureSource struct{}

func NewOpusCaptureSource(_ string) audio.CaptureSource {
	return &noopCaptureSource{}
}

func (s *noopCaptureSource) Available() bool { return true }

func (s *noopCaptureSource) ReadFrame() ([]byte, error) {
	time.Sleep(20 * time.Millisecond)
	return opusSilenceFrame, nil
}

func (s *noopCaptureSource) Close() {}

type noopPlaybackSink struct{}

func NewOpusPlaybackSink(_ string) audio.PlaybackSink {
	return &noopPlaybackSink{}
}

func (s *noopPlaybackSink) Attach(track audio.Track) {
	go func() {
		for {
			if _, err := track.ReadPayload(); err != nil {
				return
			}
		}
	}()
}

func (s *noopPlaybackSink) Detach(_ string) {}

func (s *noopPlaybackSink) Close() {}
