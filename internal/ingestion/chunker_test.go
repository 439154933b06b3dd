package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortTextReturnsSingleWindow(t *testing.T) {
	windows := Split("short text", DefaultChunkerConfig())
	require.Len(t, windows, 1)
	assert.Equal(t, "short text", windows[0])
}

func TestSplitEmptyTextReturnsNil(t *testing.T) {
	assert.Nil(t, Split("   ", DefaultChunkerConfig()))
}

func TestSplitLongTextOverlaps(t *testing.T) {
	text := strings.Repeat("a", 3000)
	windows := Split(text, ChunkerConfig{MaxChars: 1000, Overlap: 100})
	require.Greater(t, len(windows), 1)
	for _, w := range windows {
		assert.LessOrEqual(t, len(w), 1000)
	}
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	para1 := strings.Repeat("x", 900)
	para2 := strings.Repeat("y", 900)
	text := para1 + "\n\n" + para2
	windows := Split(text, ChunkerConfig{MaxChars: 1000, Overlap: 50})
	require.GreaterOrEqual(t, len(windows), 1)
	assert.True(t, strings.HasSuffix(windows[0], "x") || strings.Contains(windows[0], "\n\n"))
}

func TestBuildChunksOrdinalsAndAnchors(t *testing.T) {
	text := "First sentence here. Second sentence follows."
	chunks := BuildChunks("case_1", "av_1", text, DefaultChunkerConfig())
	require.Len(t, chunks, 1)
	c := chunks[0]
	assert.Equal(t, 0, c.Ordinal)
	assert.Equal(t, "case_1", c.CaseUID)
	assert.Equal(t, "av_1", c.ArtifactVersionUID)
	assert.True(t, c.AnchorHealth.OffsetRangeOK)
	assert.Equal(t, text, c.Anchors.Quote)
}

func TestBuildChunksMultipleWindowsHaveIncreasingOrdinals(t *testing.T) {
	text := strings.Repeat("sentence. ", 500)
	chunks := BuildChunks("case_1", "av_1", text, ChunkerConfig{MaxChars: 500, Overlap: 50})
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
	}
}
