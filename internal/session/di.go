package session

import (
	"github.com/lingora-app/lingora/internal/audio"
	"github.com/lingora-app/lingora/internal/config"
	"github.com/lingora-app/lingora/internal/repository"
	"github.com/lingora-app/lingora/internal/rtc"
	"github.com/lingora-app/lingora/internal/token"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Factory, error) {
		return NewFactory(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[token.Issuer](i),
			do.MustInvoke[rtc.Connector](i),
			do.MustInvoke[audio.CaptureFactory](i),
			do.MustInvoke[audio.SinkFactory](i),
		), nil
	})
}
