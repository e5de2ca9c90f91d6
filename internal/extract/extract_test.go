package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		text   string
		source Source
	}{
		{
			name:   "gemini envelope with prose",
			raw:    `{"candidates":[{"content":{"parts":[{"text":"The morning was calm."}]}}]}`,
			text:   "The morning was calm.",
			source: SourceFragment,
		},
		{
			name:   "gemini envelope joins parts",
			raw:    `{"candidates":[{"content":{"parts":[{"text":"The morning "},{"text":"was calm."}]}}]}`,
			text:   "The morning was calm.",
			source: SourceFragment,
		},
		{
			name:   "gemini envelope with fenced json",
			raw:    `{"candidates":[{"content":{"parts":[{"text":"` + "```json\\n{\\\"narrative\\\":{\\\"text\\\":\\\"The day softened.\\\"}}\\n```" + `"}]}}]}`,
			text:   "The day softened.",
			source: SourceJSON,
		},
		{
			name:   "anthropic envelope",
			raw:    `{"id":"msg_1","type":"message","content":[{"type":"text","text":"{\"insight\":\"Each evening felt lighter.\"}"}]}`,
			text:   "Each evening felt lighter.",
			source: SourceJSON,
		},
		{
			name:   "openai style envelope",
			raw:    `{"choices":[{"message":{"role":"assistant","content":"This week held steady."}}]}`,
			text:   "This week held steady.",
			source: SourceFragment,
		},
		{
			name:   "bare json object",
			raw:    `{"reflection":"  The afternoon drifted.  "}`,
			text:   "The afternoon drifted.",
			source: SourceJSON,
		},
		{
			name:   "json field priority",
			raw:    `{"summary":"second","narrative":"first"}`,
			text:   "first",
			source: SourceJSON,
		},
		{
			name:   "json string literal",
			raw:    `"The night was quiet."`,
			text:   "The night was quiet.",
			source: SourceJSON,
		},
		{
			name:   "object embedded in chatter",
			raw:    `Here it is: {"text":"A slow Sunday."} hope that helps`,
			text:   "A slow Sunday.",
			source: SourceJSON,
		},
		{
			name:   "fenced prose",
			raw:    "```\nThe morning was calm.\n```",
			text:   "The morning was calm.",
			source: SourceFragment,
		},
		{
			name:   "plain prose falls back to raw",
			raw:    "  The morning was calm.\n",
			text:   "The morning was calm.",
			source: SourceRaw,
		},
		{
			name:   "json without known fields is empty",
			raw:    `{"mood":"calm"}`,
			text:   "",
			source: SourceEmpty,
		},
		{
			name:   "envelope json without known fields is empty",
			raw:    `{"candidates":[{"content":{"parts":[{"text":"{\"foo\":\"bar\"}"}]}}]}`,
			text:   "",
			source: SourceEmpty,
		},
		{
			name:   "fenced json array is empty",
			raw:    "```json\n[\"calm\",\"tired\"]\n```",
			text:   "",
			source: SourceEmpty,
		},
		{
			name:   "empty envelope text is empty",
			raw:    `{"candidates":[{"content":{"parts":[{"text":"   "}]}}]}`,
			text:   "",
			source: SourceEmpty,
		},
		{
			name:   "chatter around unknown object stays prose",
			raw:    `Sorry: {"foo":1} is all I have`,
			text:   `Sorry: {"foo":1} is all I have`,
			source: SourceRaw,
		},
		{
			name:   "empty payload",
			raw:    "   ",
			text:   "",
			source: SourceEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract([]byte(tt.raw))
			assert.Equal(t, tt.text, got.Text)
			assert.Equal(t, tt.source, got.Source)
		})
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```{\"a\":1}```"))
	assert.Equal(t, "plain", stripFences("  plain  "))
}
