// Package insightclient calls the insight API and implements the caller
// side of its response contract.
package insightclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Request is the body of POST /v1/insights.
type Request struct {
	Type             string `json:"type"`
	Data             any    `json:"data"`
	Tone             string `json:"tone,omitempty"`
	CustomTonePrompt string `json:"customTonePrompt,omitempty"`
}

// Response is the uniform envelope returned by the API.
type Response struct {
	OK        bool    `json:"ok"`
	Text      string  `json:"text,omitempty"`
	RequestID string  `json:"requestId"`
	Error     *Failed `json:"error,omitempty"`
}

// Failed is the error object of an unsuccessful Response. It also
// implements error.
type Failed struct {
	Stage     string `json:"stage"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Remaining *int   `json:"remaining,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Tier      string `json:"tier,omitempty"`
	RequestID string `json:"-"`
}

func (f *Failed) Error() string {
	return fmt.Sprintf("insight: %s (%d): %s", f.Stage, f.Status, f.Message)
}

// HTTPStatus returns the status carried in the envelope.
func (f *Failed) HTTPStatus() int { return f.Status }

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithPath overrides the insight route, for deployments that mount the
// handler at the root.
func WithPath(path string) Option {
	return func(c *Client) {
		c.path = path
	}
}

// Client posts insight requests on behalf of one signed-in user.
type Client struct {
	baseURL string
	path    string
	http    *http.Client
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    "/v1/insights",
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate sends req with the user's bearer token. A failure envelope is
// returned as a *Failed error; transport problems are returned as they are.
func (c *Client) Generate(ctx context.Context, token string, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "insightclient: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "insightclient: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "insightclient: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "insightclient: read response")
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrapf(err, "insightclient: decode response (status %d)", resp.StatusCode)
	}
	if !out.OK {
		if out.Error == nil {
			out.Error = &Failed{Stage: "unknown", Status: resp.StatusCode}
		}
		out.Error.RequestID = out.RequestID
		return &out, out.Error
	}
	return &out, nil
}
