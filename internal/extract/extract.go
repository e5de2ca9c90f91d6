// Package extract pulls narrative text out of a raw model payload. Model
// output is unreliable: it may arrive inside a provider envelope, wrapped in
// markdown fences, as a JSON object, or as bare prose. Extract tries each
// shape in order and never fails.
package extract

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Source names the step that produced the extracted text.
type Source string

const (
	SourceJSON     Source = "json"
	SourceFragment Source = "fragment"
	SourceRaw      Source = "raw"
	SourceEmpty    Source = "empty"
)

// Result is the outcome of Extract.
type Result struct {
	Text   string
	Source Source
}

// envelopePaths locate text fragments in known provider response shapes.
var envelopePaths = []string{
	"candidates.0.content.parts.#.text", // Gemini
	"content.#.text",                     // Anthropic messages
	"choices.0.message.content",          // OpenAI-style chat
}

// narrativePaths are the JSON fields a model tends to put its answer in.
var narrativePaths = []string{
	"narrative.text",
	"narrative",
	"insight",
	"text",
	"reflection",
	"summary",
}

// Extract returns the best narrative candidate in raw.
func Extract(raw []byte) Result {
	payload := strings.TrimSpace(string(raw))
	if payload == "" {
		return Result{Source: SourceEmpty}
	}

	fragment, ok := envelopeText(payload)
	if !ok {
		fragment = payload
	}

	cleaned := stripFences(fragment)
	if text, ok := narrativeField(cleaned); ok {
		return Result{Text: text, Source: SourceJSON}
	}
	// Structured output without a narrative is not an answer.
	if structured(cleaned) {
		return Result{Source: SourceEmpty}
	}
	if cleaned != "" && (ok || cleaned != payload) {
		return Result{Text: cleaned, Source: SourceFragment}
	}
	return Result{Text: payload, Source: SourceRaw}
}

// envelopeText joins the text parts of a provider envelope.
func envelopeText(payload string) (string, bool) {
	if !gjson.Valid(payload) {
		return "", false
	}
	for _, path := range envelopePaths {
		res := gjson.Get(payload, path)
		if !res.Exists() {
			continue
		}
		var parts []string
		if res.IsArray() {
			for _, p := range res.Array() {
				if p.Type == gjson.String {
					parts = append(parts, p.Str)
				}
			}
		} else if res.Type == gjson.String {
			parts = append(parts, res.Str)
		}
		if text := strings.TrimSpace(strings.Join(parts, "")); text != "" {
			return text, true
		}
	}
	return "", false
}

// stripFences removes a surrounding markdown code fence and its language
// tag.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.ContainsAny(text[:nl], " {\"") {
		text = text[nl+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// narrativeField reads a known narrative field from a JSON object, or the
// value of a JSON string literal.
func narrativeField(text string) (string, bool) {
	if !gjson.Valid(text) {
		if obj := objectSpan(text); obj != "" && gjson.Valid(obj) {
			text = obj
		} else {
			return "", false
		}
	}

	doc := gjson.Parse(text)
	if doc.Type == gjson.String {
		s := strings.TrimSpace(doc.Str)
		return s, s != ""
	}
	if !doc.IsObject() {
		return "", false
	}
	for _, path := range narrativePaths {
		res := doc.Get(path)
		if res.Type != gjson.String {
			continue
		}
		if s := strings.TrimSpace(res.Str); s != "" {
			return s, true
		}
	}
	return "", false
}

// structured reports whether text is a JSON object or array.
func structured(text string) bool {
	if !gjson.Valid(text) {
		return false
	}
	doc := gjson.Parse(text)
	return doc.IsObject() || doc.IsArray()
}

// objectSpan returns the outermost {...} span in text, if any.
func objectSpan(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
