package ingestion

import (
	"strings"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// anchorContextChars is how many characters of surrounding text to keep as
// QuotePrefix/QuoteSuffix, giving Locate a fallback when the exact offset
// has drifted after a re-fetch but the quote is still present nearby.
const anchorContextChars = 32

// ComputeAnchors builds a W3C-TextQuoteSelector-style anchor for a chunk's
// text window, recording its offsets within the parent text and a small
// amount of surrounding context for fuzzy relocation.
func ComputeAnchors(fullText, window string, start, end int) model.AnchorSet {
	prefix := ""
	if start > 0 {
		from := start - anchorContextChars
		if from < 0 {
			from = 0
		}
		prefix = fullText[from:start]
	}
	suffix := ""
	if end > 0 && end < len(fullText) {
		to := end + anchorContextChars
		if to > len(fullText) {
			to = len(fullText)
		}
		suffix = fullText[end:to]
	}

	return model.AnchorSet{
		Quote:       window,
		QuotePrefix: prefix,
		QuoteSuffix: suffix,
		OffsetStart: start,
		OffsetEnd:   end,
	}
}

// Locate attempts to relocate an AnchorSet's quote within newText, trying
// the recorded offset range first, then an exact-quote search, then a
// prefix+suffix-bounded search. Returns the located (start, end) and
// whether relocation succeeded.
func Locate(a model.AnchorSet, newText string) (start, end int, ok bool) {
	if a.OffsetEnd <= len(newText) && a.OffsetStart >= 0 && a.OffsetStart < a.OffsetEnd {
		if newText[a.OffsetStart:a.OffsetEnd] == a.Quote {
			return a.OffsetStart, a.OffsetEnd, true
		}
	}

	if idx := strings.Index(newText, a.Quote); idx >= 0 {
		return idx, idx + len(a.Quote), true
	}

	if a.QuotePrefix != "" || a.QuoteSuffix != "" {
		needle := a.QuotePrefix + a.Quote + a.QuoteSuffix
		if idx := strings.Index(newText, needle); idx >= 0 {
			qStart := idx + len(a.QuotePrefix)
			return qStart, qStart + len(a.Quote), true
		}
	}

	return 0, 0, false
}
