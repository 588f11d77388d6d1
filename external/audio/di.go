package audio

import (
	"github.com/lingora-app/lingora/internal/audio"
	"github.com/lingora-app/lingora/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (audio.CaptureFactory, error) {
		c := do.MustInvoke[*config.Config](i)
		return func() audio.CaptureSource {
			return NewOpusCaptureSource(c.AudioCaptureCommand)
		}, nil
	})
	do.Provide(injector, func(i do.Injector) (audio.SinkFactory, error) {
		c := do.MustInvoke[*config.Config](i)
		return func() audio.PlaybackSink {
			return NewOpusPlaybackSink(c.AudioPlaybackCommand)
		}, nil
	})
}
