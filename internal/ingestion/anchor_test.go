package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeAnchorsCapturesContext(t *testing.T) {
	full := "The quick brown fox jumps over the lazy dog near the riverbank at dawn."
	window := "jumps over the lazy dog"
	start := 20
	end := start + len(window)

	a := ComputeAnchors(full, window, start, end)
	assert.Equal(t, window, a.Quote)
	assert.Equal(t, start, a.OffsetStart)
	assert.Equal(t, end, a.OffsetEnd)
	assert.NotEmpty(t, a.QuotePrefix)
	assert.NotEmpty(t, a.QuoteSuffix)
}

func TestLocateByOffsetWhenUnchanged(t *testing.T) {
	full := "alpha beta gamma delta"
	a := ComputeAnchors(full, "beta gamma", 6, 16)

	start, end, ok := Locate(a, full)
	assert.True(t, ok)
	assert.Equal(t, "beta gamma", full[start:end])
}

func TestLocateFallsBackToExactQuoteSearch(t *testing.T) {
	full := "alpha beta gamma delta"
	a := ComputeAnchors(full, "beta gamma", 6, 16)

	shifted := "prefix inserted here. " + full
	start, end, ok := Locate(a, shifted)
	require := assert.New(t)
	require.True(ok)
	require.Equal("beta gamma", shifted[start:end])
}

func TestLocateFailsWhenQuoteGone(t *testing.T) {
	a := ComputeAnchors("alpha beta gamma", "beta", 6, 10)
	_, _, ok := Locate(a, "completely different text")
	assert.False(t, ok)
}
