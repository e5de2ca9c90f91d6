// Package cost attributes token usage and spend to model calls.
package cost

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Rates holds per-model pricing. Model ids contain dots, so rates are a
// list rather than a map keyed by id.
type Rates struct {
	Models []ModelRate `yaml:"models" mapstructure:"models"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	ID           string  `yaml:"id" mapstructure:"id"`
	Input        float64 `yaml:"input" mapstructure:"input"`
	Output       float64 `yaml:"output" mapstructure:"output"`
	CacheReadMul float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Usage is the token accounting reported by one model call.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CachedTokens int
}

// Calculator computes costs for model usage.
type Calculator struct {
	rates map[string]ModelRate
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	c := &Calculator{rates: make(map[string]ModelRate, len(rates.Models))}
	for _, r := range rates.Models {
		c.rates[r.ID] = r
	}
	return c
}

// Cost returns the USD cost of u. Unknown models cost 0. Cached input
// tokens are billed at CacheReadMul of the input rate.
func (c *Calculator) Cost(u Usage) float64 {
	rate, ok := c.lookup(u.Model)
	if !ok {
		return 0
	}
	cached := u.CachedTokens
	if cached > u.InputTokens {
		cached = u.InputTokens
	}
	fresh := u.InputTokens - cached

	inCost := (float64(fresh) / 1e6) * rate.Input
	crCost := (float64(cached) / 1e6) * rate.Input * rate.CacheReadMul
	outCost := (float64(u.OutputTokens) / 1e6) * rate.Output
	return inCost + crCost + outCost
}

// lookup matches exact ids first, then the longest configured prefix, so
// "gemini-2.5-flash" prices "gemini-2.5-flash-001".
func (c *Calculator) lookup(model string) (ModelRate, bool) {
	if rate, ok := c.rates[model]; ok {
		return rate, true
	}
	var best string
	for id := range c.rates {
		if strings.HasPrefix(model, id) && len(id) > len(best) {
			best = id
		}
	}
	if best == "" {
		return ModelRate{}, false
	}
	return c.rates[best], true
}

// UsageFromPayload reads token usage from a raw provider response. Gemini
// REST and genai payloads carry usageMetadata; Anthropic messages carry
// usage. fallbackModel is used when the payload does not name its model.
func UsageFromPayload(raw []byte, fallbackModel string) (Usage, bool) {
	if !gjson.ValidBytes(raw) {
		return Usage{}, false
	}
	doc := gjson.ParseBytes(raw)

	if meta := doc.Get("usageMetadata"); meta.Exists() {
		return Usage{
			Model:        firstString(doc.Get("modelVersion").String(), fallbackModel),
			InputTokens:  int(meta.Get("promptTokenCount").Int()),
			OutputTokens: int(meta.Get("candidatesTokenCount").Int() + meta.Get("thoughtsTokenCount").Int()),
			CachedTokens: int(meta.Get("cachedContentTokenCount").Int()),
		}, true
	}

	if usage := doc.Get("usage"); usage.Exists() {
		cached := usage.Get("cache_read_input_tokens").Int()
		return Usage{
			Model:        firstString(doc.Get("model").String(), fallbackModel),
			InputTokens:  int(usage.Get("input_tokens").Int() + cached),
			OutputTokens: int(usage.Get("output_tokens").Int()),
			CachedTokens: int(cached),
		}, true
	}

	return Usage{}, false
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: []ModelRate{
			{ID: "gemini-2.5-flash", Input: 0.30, Output: 2.50, CacheReadMul: 0.25},
			{ID: "gemini-2.5-flash-lite", Input: 0.10, Output: 0.40, CacheReadMul: 0.25},
			{ID: "gemini-2.5-pro", Input: 1.25, Output: 10.00, CacheReadMul: 0.25},
			{ID: "claude-haiku-4-5-20251001", Input: 1.00, Output: 5.00, CacheReadMul: 0.1},
			{ID: "claude-sonnet-4-5-20250929", Input: 3.00, Output: 15.00, CacheReadMul: 0.1},
		},
	}
}
