package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// RemoteAuthenticator asks the identity provider's user endpoint who owns a
// token.
type RemoteAuthenticator struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// RemoteOption configures a RemoteAuthenticator.
type RemoteOption func(*RemoteAuthenticator)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(a *RemoteAuthenticator) {
		a.http = hc
	}
}

// NewRemoteAuthenticator creates a RemoteAuthenticator for the provider at
// baseURL. apiKey is sent as the project api key header.
func NewRemoteAuthenticator(baseURL, apiKey string, opts ...RemoteOption) *RemoteAuthenticator {
	a := &RemoteAuthenticator{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type remoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticate resolves token with GET {baseURL}/auth/v1/user.
func (a *RemoteAuthenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return Identity{}, eris.Wrap(err, "auth: create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("apikey", a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return Identity{}, eris.Wrapf(ErrUnauthorized, "identity provider unreachable: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Identity{}, eris.Wrapf(ErrUnauthorized, "read identity response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Identity{}, eris.Wrapf(ErrUnauthorized, "identity provider status %d", resp.StatusCode)
	}

	var user remoteUser
	if err := json.Unmarshal(body, &user); err != nil {
		return Identity{}, eris.Wrapf(ErrUnauthorized, "decode identity response: %v", err)
	}
	if user.ID == "" {
		return Identity{}, eris.Wrap(ErrUnauthorized, "identity response has no user id")
	}
	return Identity{UserID: user.ID, Email: user.Email}, nil
}
