// Package ingestion turns a fetched ArtifactVersion into Chunks and
// SourceClaims: parsing raw bytes by MIME type, splitting normalized text
// into overlapping windows, computing relocatable anchors for each
// resulting Chunk, and emitting vector embeddings in batches.
package ingestion

import (
	"strings"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// ChunkerConfig bounds the sliding-window splitter.
type ChunkerConfig struct {
	MaxChars int // default 2000
	Overlap  int // default 200
}

// DefaultChunkerConfig matches the Evidence Model Store's default ingestion
// settings (EVIDENTIA_CHUNK_MAX_CHARS / EVIDENTIA_CHUNK_OVERLAP).
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{MaxChars: 2000, Overlap: 200}
}

// Split breaks normalized text into overlapping windows. Windows prefer to
// break on a paragraph or sentence boundary within the last 20% of the
// window so anchors land on natural text-quote boundaries; if none is
// found, it breaks at MaxChars.
func Split(text string, cfg ChunkerConfig) []string {
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkerConfig()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= cfg.MaxChars {
		return []string{text}
	}

	var windows []string
	pos := 0
	for pos < len(text) {
		end := pos + cfg.MaxChars
		if end >= len(text) {
			windows = append(windows, strings.TrimSpace(text[pos:]))
			break
		}
		end = preferBoundary(text, pos, end, cfg.MaxChars)
		windows = append(windows, strings.TrimSpace(text[pos:end]))

		next := end - cfg.Overlap
		if next <= pos {
			next = end
		}
		pos = next
	}
	return windows
}

// preferBoundary looks backward from end (within the last 20% of the
// window) for a paragraph break, then a sentence break, falling back to
// the hard MaxChars cut.
func preferBoundary(text string, start, end, maxChars int) int {
	searchFrom := end - maxChars/5
	if searchFrom < start {
		searchFrom = start
	}

	if idx := strings.LastIndex(text[searchFrom:end], "\n\n"); idx >= 0 {
		return searchFrom + idx + 2
	}
	for _, sep := range []string{". ", "? ", "! "} {
		if idx := strings.LastIndex(text[searchFrom:end], sep); idx >= 0 {
			return searchFrom + idx + len(sep)
		}
	}
	return end
}

// BuildChunks splits text and constructs Chunk models with ordinals and
// text-quote anchors already computed against the same text (anchors
// computed here always locate since they're built from the exact offsets
// used to slice the window).
func BuildChunks(caseUID, artifactVersionUID, text string, cfg ChunkerConfig) []model.Chunk {
	windows := Split(text, cfg)
	chunks := make([]model.Chunk, 0, len(windows))

	searchPos := 0
	for i, w := range windows {
		offset := strings.Index(text[searchPos:], w)
		var start, end int
		if offset >= 0 {
			start = searchPos + offset
			end = start + len(w)
			searchPos = start + 1
		}

		anchors := ComputeAnchors(text, w, start, end)
		chunk := model.NewChunk(caseUID, artifactVersionUID, i, w, anchors)
		chunk.AnchorHealth.OffsetRangeOK = offset >= 0
		chunks = append(chunks, chunk)
	}
	return chunks
}
