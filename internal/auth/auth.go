// Package auth resolves bearer tokens to user identities.
package auth

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnauthorized is the cause of every authentication failure.
var ErrUnauthorized = eris.New("auth: unauthorized")

// Identity is an authenticated caller.
type Identity struct {
	UserID string
	Email  string
}

// Authenticator verifies a bearer token.
type Authenticator interface {
	// Authenticate returns the identity behind token. Any failure wraps
	// ErrUnauthorized.
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", eris.Wrap(ErrUnauthorized, "missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", eris.Wrap(ErrUnauthorized, "authorization header is not a bearer token")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", eris.Wrap(ErrUnauthorized, "empty bearer token")
	}
	return token, nil
}
