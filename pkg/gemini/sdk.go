package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// SDKOption configures the genai-backed client.
type SDKOption func(*genai.ClientConfig)

// WithSDKBaseURL points the SDK at a different endpoint.
func WithSDKBaseURL(url string) SDKOption {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPOptions.BaseURL = url
	}
}

// WithSDKHTTPClient overrides the SDK's http.Client.
func WithSDKHTTPClient(hc *http.Client) SDKOption {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPClient = hc
	}
}

type sdkClient struct {
	client *genai.Client
}

// NewSDKClient creates a Client backed by the official genai SDK.
func NewSDKClient(ctx context.Context, apiKey string, opts ...SDKOption) (Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create genai client")
	}
	return &sdkClient{client: client}, nil
}

func (c *sdkClient) GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		return nil, eris.New("gemini: model is required")
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxOutputTokens) //nolint:gosec
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, sdkError(err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: marshal genai response")
	}
	out := &GenerateResponse{Raw: raw}
	_ = json.Unmarshal(raw, out)
	return out, nil
}

// sdkError maps genai API errors onto APIError so callers see one error
// type for both clients.
func sdkError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &APIError{StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return eris.Wrap(err, "gemini: generate content")
}
