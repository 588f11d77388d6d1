package identity

import (
	"github.com/lingora-app/lingora/internal/config"
	identitypkg "github.com/lingora-app/lingora/internal/identity"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (identitypkg.Verifier, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewJWTVerifier(c.IdentityJWTSecret), nil
	})
}
