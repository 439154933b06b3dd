package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pgvector/pgvector-go"

	"github.com/evidentia-ai/evidentia/internal/artifactstore"
	"github.com/evidentia-ai/evidentia/internal/model"
)

// Result summarizes one ingestion run over an ArtifactVersion. Embeddings is
// aligned index-for-index with Chunks; every entry is the zero Vector when no
// embedding provider is configured or when embedding any batch fails.
type Result struct {
	ArtifactVersion model.ArtifactVersion
	Chunks          []model.Chunk
	Embeddings      []pgvector.Vector
	Evidence        []model.Evidence
	SourceClaims    []model.SourceClaim
	ParseError      string
}

// Pipeline turns raw retrieved bytes into the Evidence Model Store's
// Chunk/Evidence/SourceClaim triad. It never writes to the database
// directly; callers persist the returned Result inside a single
// transaction alongside the paired Action audit record.
type Pipeline struct {
	store     artifactstore.Store
	embedder  EmbeddingProvider
	chunkCfg  ChunkerConfig
	embedSize int
	logger    *slog.Logger
}

// NewPipeline constructs an ingestion Pipeline. embedder may be nil, in
// which case chunks are stored without embeddings and remain searchable
// only by full-text query.
func NewPipeline(store artifactstore.Store, embedder EmbeddingProvider, chunkCfg ChunkerConfig, embedBatchSize int, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, embedder: embedder, chunkCfg: chunkCfg, embedSize: embedBatchSize, logger: logger}
}

// Ingest stores raw content, parses it by MIME type, chunks the resulting
// text, embeds each chunk (if a provider is configured), and emits one
// Evidence/SourceClaim pair per chunk whose full text is itself the claim's
// quote. Per-chunk claim emission here is deliberately conservative: callers
// that need finer-grained claims (a specific sentence within a chunk) build
// additional SourceClaims with model.NewSourceClaim directly, reusing the
// Evidence this call creates.
func (p *Pipeline) Ingest(ctx context.Context, caseUID, identityUID string, kind model.ArtifactKind, mimeType string, content []byte, license string, pii bool, retention model.RetentionPolicy) (Result, error) {
	storageRef, sha256Hex, err := p.store.Put(ctx, content)
	if err != nil {
		return Result{}, fmt.Errorf("ingestion: store content: %w", err)
	}

	av := model.NewArtifactVersion(caseUID, identityUID, kind, mimeType, sha256Hex, storageRef)

	parser := ParserFor(mimeType)
	text, parseErr := parser.Parse(content)
	av.SourceMeta.ParseError = parseErr
	if parseErr != "" {
		p.logger.Warn("ingestion parse error", "artifact_version_uid", av.UID, "error", parseErr)
	}

	chunks := BuildChunks(caseUID, av.UID, text, p.chunkCfg)
	embeddings := make([]pgvector.Vector, len(chunks))

	if p.embedder != nil && len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, embedErr := BatchEmbed(ctx, p.embedder, texts, p.embedSize)
		if embedErr != nil {
			p.logger.Warn("ingestion embedding failed, continuing without vectors", "artifact_version_uid", av.UID, "error", embedErr)
		} else {
			for i := range chunks {
				if i < len(vecs) {
					embeddings[i] = vecs[i]
					chunks[i].EmbeddingSynced = true
				}
			}
		}
	}

	evidence := make([]model.Evidence, 0, len(chunks))
	claims := make([]model.SourceClaim, 0, len(chunks))
	for _, c := range chunks {
		ev := model.NewEvidence(caseUID, c.UID, license, pii, retention)
		evidence = append(evidence, ev)

		claim := model.NewSourceClaim(caseUID, c.UID, ev.UID, c.Text, []model.Selector{
			{Type: "TextQuoteSelector", Exact: c.Anchors.Quote, Prefix: c.Anchors.QuotePrefix, Suffix: c.Anchors.QuoteSuffix},
			{Type: "TextPositionSelector", Start: intPtr(c.Anchors.OffsetStart), End: intPtr(c.Anchors.OffsetEnd)},
		})
		if !claim.IsGrounded(c.Text) {
			p.logger.Error("ingestion produced an ungrounded source claim, dropping", "chunk_uid", c.UID)
			continue
		}
		claims = append(claims, claim)
	}

	return Result{
		ArtifactVersion: av,
		Chunks:          chunks,
		Embeddings:      embeddings,
		Evidence:        evidence,
		SourceClaims:    claims,
		ParseError:      parseErr,
	}, nil
}

func intPtr(i int) *int { return &i }
