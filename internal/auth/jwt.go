package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// JWTAuthenticator verifies HS256 tokens signed with a shared secret.
type JWTAuthenticator struct {
	secret []byte
	opts   []jwt.ParserOption
}

// JWTOption configures a JWTAuthenticator.
type JWTOption func(*JWTAuthenticator)

// WithAudience requires the aud claim to contain aud.
func WithAudience(aud string) JWTOption {
	return func(a *JWTAuthenticator) {
		if aud != "" {
			a.opts = append(a.opts, jwt.WithAudience(aud))
		}
	}
}

// WithIssuer requires the iss claim to equal iss.
func WithIssuer(iss string) JWTOption {
	return func(a *JWTAuthenticator) {
		if iss != "" {
			a.opts = append(a.opts, jwt.WithIssuer(iss))
		}
	}
}

// WithLeeway tolerates clock skew when checking exp and nbf.
func WithLeeway(d time.Duration) JWTOption {
	return func(a *JWTAuthenticator) {
		a.opts = append(a.opts, jwt.WithLeeway(d))
	}
}

// NewJWTAuthenticator creates a JWTAuthenticator.
func NewJWTAuthenticator(secret string, opts ...JWTOption) *JWTAuthenticator {
	a := &JWTAuthenticator{
		secret: []byte(secret),
		opts: []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Claims are the token claims read by the authenticator.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Authenticate validates the signature, expiry and optional audience and
// issuer of token.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, a.opts...)
	if err != nil {
		return Identity{}, eris.Wrapf(ErrUnauthorized, "invalid token: %v", err)
	}
	if claims.Subject == "" {
		return Identity{}, eris.Wrap(ErrUnauthorized, "token has no subject")
	}
	return Identity{UserID: claims.Subject, Email: claims.Email}, nil
}
