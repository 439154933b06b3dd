package broker

import (
	"context"
	"errors"

	"github.com/pgvector/pgvector-go"
)

// ErrNoEmbedder signals that no embed backend is configured.
var ErrNoEmbedder = errors.New("broker: no embedder configured")

// Embedder generates vector embeddings for a batch of texts, the same
// contract as ingestion.EmbeddingProvider.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error)
}

// Embed implements the embed operation. Embedding calls are not
// host-scoped, so no URL policy check applies, and no per-case token/cost
// budget is checked before the call.
func (b *Broker) Embed(ctx context.Context, caseUID, actorID string, texts []string) ([]pgvector.Vector, error) {
	call := b.newCall(ctx, caseUID, actorID, "embed", "", map[string]any{"text_count": len(texts)})

	decision := allowedDecision()
	if b.embedder == nil {
		return nil, b.finish(ctx, call, "embed", decision, nil, ErrNoEmbedder)
	}

	llmCtx, cancel := context.WithTimeout(ctx, b.llmTimeout)
	defer cancel()

	vecs, err := b.embedder.EmbedBatch(llmCtx, texts)
	response := map[string]any{}
	if err == nil {
		response["vector_count"] = len(vecs)
	}

	if finishErr := b.finish(ctx, call, "embed", decision, response, err); finishErr != nil {
		return nil, finishErr
	}
	return vecs, nil
}
