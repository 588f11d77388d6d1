package gateway

import (
	"github.com/lingora-app/lingora/internal/config"
	"github.com/lingora-app/lingora/internal/identity"
	"github.com/lingora-app/lingora/internal/repository"
	"github.com/lingora-app/lingora/internal/session"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		return NewServer(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[identity.Verifier](i),
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[*session.Factory](i),
		), nil
	})
}
