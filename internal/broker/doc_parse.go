package broker

import (
	"context"
	"errors"
)

// ErrNoParser signals that no doc_parse backend is configured.
var ErrNoParser = errors.New("broker: no parser configured")

// DocParser extracts normalized plain text from raw bytes of a given MIME
// type, the same contract as ingestion.Parser but named at the broker
// boundary so callers don't need to import internal/ingestion just to
// satisfy this interface.
type DocParser interface {
	Parse(content []byte, mimeType string) (text string, parseErr string)
}

// DocParse implements the doc_parse operation: evaluate policy against the
// artifact's source URL when one is given (doc_parse of an already-fetched
// upload has no URL to gate), parse synchronously, and record the
// Action/ToolTrace pair. Parse failures are reported via parseErr, not a Go
// error: a parser always returns *something*, even if degraded to an empty
// string, matching Ingestion's "parser errors produce a plaintext fallback
// rather than aborting" failure semantics.
func (b *Broker) DocParse(ctx context.Context, caseUID, actorID, artifactVersionUID, sourceURL, mimeType string, content []byte) (string, string, error) {
	call := b.newCall(ctx, caseUID, actorID, "doc_parse", "", map[string]any{
		"artifact_version_uid": artifactVersionUID,
		"mime_type":            mimeType,
		"bytes":                len(content),
	})

	decision := allowedDecision()
	if sourceURL != "" {
		decision = b.policy.EvaluateOutboundURL(ctx, "doc_parse", sourceURL)
		if !decision.Allowed {
			return "", "", b.finish(ctx, call, "doc_parse", decision, nil, nil)
		}
	}

	if b.parser == nil {
		return "", "", b.finish(ctx, call, "doc_parse", decision, nil, ErrNoParser)
	}

	text, parseErr := b.parser.Parse(content, mimeType)
	response := map[string]any{"text_length": len(text), "parse_error": parseErr}

	if err := b.finish(ctx, call, "doc_parse", decision, response, nil); err != nil {
		return "", "", err
	}
	return text, parseErr, nil
}
