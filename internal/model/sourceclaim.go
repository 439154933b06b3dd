package model

import (
	"strings"
	"time"
)

// Modality enumerates the media type a SourceClaim's span belongs to.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
	ModalityAudio Modality = "audio"
)

// Selector is a W3C Web Annotation style selector identifying an exact span.
// Mirrors the TextQuoteSelector / TextPositionSelector shapes.
type Selector struct {
	Type   string `json:"type"` // "TextQuoteSelector", "TextPositionSelector", ...
	Exact  string `json:"exact,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Suffix string `json:"suffix,omitempty"`
	Start  *int   `json:"start,omitempty"`
	End    *int   `json:"end,omitempty"`
}

// MediaTimeRange locates a span within an audio/video artifact.
type MediaTimeRange struct {
	StartMS int64 `json:"start_ms"`
	EndMS   int64 `json:"end_ms"`
}

// SourceClaim is a verbatim quote plus selectors identifying its exact span.
// Invariant: for Modality == ModalityText, Quote must be a substring of the
// text of the referenced Chunk.
type SourceClaim struct {
	UID               string          `json:"uid"`
	CaseUID           string          `json:"case_uid"`
	ChunkUID          string          `json:"chunk_uid"`
	EvidenceUID       string          `json:"evidence_uid"`
	Quote             string          `json:"quote"`
	Selectors         []Selector      `json:"selectors"`
	OriginalLanguage  string          `json:"original_language,omitempty"`
	Translation       string          `json:"translation,omitempty"`
	Modality          Modality        `json:"modality"`
	SegmentRef        string          `json:"segment_ref,omitempty"`
	MediaTimeRange    *MediaTimeRange `json:"media_time_range,omitempty"`
	AttributedTo      string          `json:"attributed_to,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// IsGrounded reports whether the claim's quote is actually present in
// chunkText. Only meaningful for text modality; non-text modalities are
// considered grounded by construction (their span is the segment/time
// range itself, not a substring check).
func (sc SourceClaim) IsGrounded(chunkText string) bool {
	if sc.Modality != ModalityText && sc.Modality != "" {
		return true
	}
	return strings.Contains(chunkText, sc.Quote)
}

// NewSourceClaim constructs a text-modality SourceClaim. Callers for other
// modalities should set Modality/SegmentRef/MediaTimeRange afterward.
func NewSourceClaim(caseUID, chunkUID, evidenceUID, quote string, selectors []Selector) SourceClaim {
	return SourceClaim{
		UID:         NewID(KindSourceClaim),
		CaseUID:     caseUID,
		ChunkUID:    chunkUID,
		EvidenceUID: evidenceUID,
		Quote:       quote,
		Selectors:   selectors,
		Modality:    ModalityText,
		CreatedAt:   time.Now().UTC(),
	}
}
