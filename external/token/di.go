package token

import (
	"github.com/lingora-app/lingora/internal/config"
	tokenpkg "github.com/lingora-app/lingora/internal/token"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (tokenpkg.Issuer, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.SelfIssueTokens() {
			return NewLocalIssuer(c.LiveKitAPIKey, c.LiveKitAPISecret), nil
		}
		return NewHTTPIssuer(c.TokenIssuerURL), nil
	})
}
