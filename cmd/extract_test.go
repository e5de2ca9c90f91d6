package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExtract_GeminiEnvelope(t *testing.T) {
	raw := []byte(`{"candidates":[{"content":{"parts":[{"text":"The week moved slowly -- then settled."}]}}]}`)

	var out bytes.Buffer
	require.NoError(t, runExtract(&out, raw))
	assert.Contains(t, out.String(), "The week moved slowly, then settled.")
	assert.NotContains(t, out.String(), "# source: raw")
}

func TestRunExtract_PlainText(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runExtract(&out, []byte("A gentle morning.")))
	assert.Contains(t, out.String(), "# source: raw")
	assert.Contains(t, out.String(), "A gentle morning.")
}

func TestRunExtract_EmptyPayload(t *testing.T) {
	var out bytes.Buffer
	err := runExtract(&out, []byte("   "))
	require.Error(t, err)
	assert.Contains(t, out.String(), "# source: empty")
}
