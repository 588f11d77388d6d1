package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lingora-app/lingora/internal/identity"
)

type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) identity.Verifier {
	return &JWTVerifier{secret: []byte(secret)}
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (v *JWTVerifier) Verify(_ context.Context, bearerToken string) (identity.Identity, error) {
	if bearerToken == "" {
		return identity.Identity{}, identity.ErrUnauthenticated
	}
	var c claims
	token, err := jwt.ParseWithClaims(bearerToken, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return identity.Identity{}, fmt.Errorf("%w: %v", identity.ErrUnauthenticated, err)
	}
	if c.Subject == "" {
		return identity.Identity{}, fmt.Errorf("%w: token has no subject", identity.ErrUnauthenticated)
	}
	return identity.Identity{UserID: c.Subject, Email: c.Email}, nil
}
