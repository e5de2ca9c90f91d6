package insight

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/moodjournal/insight-api/pkg/anthropic"
	"github.com/moodjournal/insight-api/pkg/gemini"
)

// Generation is one prompt sent to a model.
type Generation struct {
	Prompt          string
	Temperature     float64
	MaxOutputTokens int
}

// ModelClient performs a single text generation and returns the provider's
// raw response payload.
type ModelClient interface {
	Generate(ctx context.Context, g Generation) ([]byte, error)
	// Model names the configured model, used when the payload omits it.
	Model() string
}

// GeminiModel adapts a gemini.Client (REST or genai SDK).
type GeminiModel struct {
	client gemini.Client
	model  string
}

// NewGeminiModel creates a ModelClient that calls model through client.
func NewGeminiModel(client gemini.Client, model string) *GeminiModel {
	return &GeminiModel{client: client, model: model}
}

// Generate implements ModelClient.
func (m *GeminiModel) Generate(ctx context.Context, g Generation) ([]byte, error) {
	temp := g.Temperature
	resp, err := m.client.GenerateContent(ctx, gemini.GenerateRequest{
		Model:           m.model,
		Prompt:          g.Prompt,
		Temperature:     &temp,
		MaxOutputTokens: g.MaxOutputTokens,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, eris.New("insight: empty gemini response")
	}
	return resp.Raw, nil
}

// Model implements ModelClient.
func (m *GeminiModel) Model() string { return m.model }

// defaultAnthropicMaxTokens applies when no output ceiling is configured;
// the Messages API requires one.
const defaultAnthropicMaxTokens = 512

// AnthropicModel adapts an anthropic.Client.
type AnthropicModel struct {
	client anthropic.Client
	model  string
}

// NewAnthropicModel creates a ModelClient that calls model through client.
func NewAnthropicModel(client anthropic.Client, model string) *AnthropicModel {
	return &AnthropicModel{client: client, model: model}
}

// Generate implements ModelClient.
func (m *AnthropicModel) Generate(ctx context.Context, g Generation) ([]byte, error) {
	maxTokens := int64(g.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	temp := g.Temperature
	resp, err := m.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       m.model,
		MaxTokens:   maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: g.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, eris.New("insight: empty anthropic response")
	}
	return resp.Raw, nil
}

// Model implements ModelClient.
func (m *AnthropicModel) Model() string { return m.model }
