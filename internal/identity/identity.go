package identity

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned when a bearer token is missing, expired or
// fails verification.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

type Identity struct {
	UserID string
	Email  string
}

type Verifier interface {
	Verify(ctx context.Context, bearerToken string) (Identity, error)
}
