package model

import "time"

// AnchorStrategy names a technique for relocating a Chunk's span after the
// underlying artifact has been re-fetched.
type AnchorStrategy string

const (
	AnchorTextQuote    AnchorStrategy = "text_quote"    // exact-text match, W3C TextQuoteSelector style
	AnchorOffsetRange  AnchorStrategy = "offset_range"   // normalized character offsets
	AnchorStructural   AnchorStrategy = "structural_hint" // DOM/structural path hint
)

// AnchorSet describes how to relocate a Chunk's span within its
// ArtifactVersion, or within a re-fetched successor version.
type AnchorSet struct {
	Quote           string `json:"quote"`
	QuotePrefix     string `json:"quote_prefix,omitempty"`
	QuoteSuffix     string `json:"quote_suffix,omitempty"`
	OffsetStart     int    `json:"offset_start"`
	OffsetEnd       int    `json:"offset_end"`
	StructuralHint  string `json:"structural_hint,omitempty"`
}

// AnchorHealth records which anchor strategies currently succeed at
// relocating a chunk, most recently checked at CheckedAt.
type AnchorHealth struct {
	TextQuoteOK   bool      `json:"text_quote_ok"`
	OffsetRangeOK bool      `json:"offset_range_ok"`
	StructuralOK  bool      `json:"structural_ok"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Located reports whether at least one anchor strategy currently locates
// the chunk. Used to compute the anchor_locate_rate regression metric.
func (h AnchorHealth) Located() bool {
	return h.TextQuoteOK || h.OffsetRangeOK || h.StructuralOK
}

// Chunk is an ordered span of text within an ArtifactVersion.
// Invariant: (ArtifactVersionUID, Ordinal) is unique.
type Chunk struct {
	UID               string       `json:"uid"`
	CaseUID           string       `json:"case_uid"`
	ArtifactVersionUID string      `json:"artifact_version_uid"`
	Ordinal           int          `json:"ordinal"`
	Text              string       `json:"text"`
	Anchors           AnchorSet    `json:"anchors"`
	AnchorHealth      AnchorHealth `json:"anchor_health"`
	EmbeddingSynced   bool         `json:"embedding_synced"`
	CreatedAt         time.Time    `json:"created_at"`
}

// NewChunk constructs a Chunk with a freshly minted identifier.
func NewChunk(caseUID, artifactVersionUID string, ordinal int, text string, anchors AnchorSet) Chunk {
	now := time.Now().UTC()
	return Chunk{
		UID:                NewID(KindChunk),
		CaseUID:            caseUID,
		ArtifactVersionUID: artifactVersionUID,
		Ordinal:            ordinal,
		Text:               text,
		Anchors:            anchors,
		AnchorHealth: AnchorHealth{
			TextQuoteOK:   true,
			OffsetRangeOK: true,
			CheckedAt:     now,
		},
		CreatedAt: now,
	}
}
