package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// CreateChunksBatch bulk-inserts chunks for one ArtifactVersion via COPY,
// the efficient path the ingestion pipeline uses after chunking+anchoring
// a freshly parsed document. (ArtifactVersionUID, Ordinal) must be unique;
// a duplicate ordinal for the same version indicates a re-ingestion bug
// and is left for the database's unique constraint to reject.
func (db *DB) CreateChunksBatch(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	columns := []string{"uid", "case_uid", "artifact_version_uid", "ordinal", "text",
		"anchors", "anchor_health", "embedding_synced", "created_at"}

	rows := make([][]any, len(chunks))
	for i, c := range chunks {
		anchorsJSON, err := json.Marshal(c.Anchors)
		if err != nil {
			return fmt.Errorf("storage: marshal chunk anchors: %w", err)
		}
		healthJSON, err := json.Marshal(c.AnchorHealth)
		if err != nil {
			return fmt.Errorf("storage: marshal chunk anchor health: %w", err)
		}
		rows[i] = []any{c.UID, c.CaseUID, c.ArtifactVersionUID, c.Ordinal, c.Text,
			anchorsJSON, healthJSON, c.EmbeddingSynced, c.CreatedAt}
	}

	_, err := db.pool.CopyFrom(ctx,
		pgx.Identifier{"chunks"}, columns, pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("storage: copy chunks: %w", err)
	}
	return nil
}

// GetChunk retrieves a single chunk by UID.
func (db *DB) GetChunk(ctx context.Context, uid string) (model.Chunk, error) {
	var c model.Chunk
	var anchorsJSON, healthJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT uid, case_uid, artifact_version_uid, ordinal, text, anchors, anchor_health,
		        embedding_synced, created_at
		 FROM chunks WHERE uid = $1`, uid,
	).Scan(&c.UID, &c.CaseUID, &c.ArtifactVersionUID, &c.Ordinal, &c.Text, &anchorsJSON, &healthJSON,
		&c.EmbeddingSynced, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Chunk{}, ErrNotFound
		}
		return model.Chunk{}, fmt.Errorf("storage: get chunk: %w", err)
	}
	_ = json.Unmarshal(anchorsJSON, &c.Anchors)
	_ = json.Unmarshal(healthJSON, &c.AnchorHealth)
	return c, nil
}

// ListChunksByArtifactVersion returns all chunks for a version, ordered by
// ordinal.
func (db *DB) ListChunksByArtifactVersion(ctx context.Context, artifactVersionUID string) ([]model.Chunk, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, artifact_version_uid, ordinal, text, anchors, anchor_health,
		        embedding_synced, created_at
		 FROM chunks WHERE artifact_version_uid = $1 ORDER BY ordinal`, artifactVersionUID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list chunks: %w", err)
	}
	defer rows.Close()

	var out []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var anchorsJSON, healthJSON []byte
		if err := rows.Scan(&c.UID, &c.CaseUID, &c.ArtifactVersionUID, &c.Ordinal, &c.Text, &anchorsJSON, &healthJSON,
			&c.EmbeddingSynced, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan chunk: %w", err)
		}
		_ = json.Unmarshal(anchorsJSON, &c.Anchors)
		_ = json.Unmarshal(healthJSON, &c.AnchorHealth)
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateChunkEmbedding writes the embedding vector for a chunk and marks it
// synced. Stored separately from ListChunksByArtifactVersion's projection
// since embeddings are large and rarely needed by callers that only read
// chunk text.
func (db *DB) UpdateChunkEmbedding(ctx context.Context, uid string, embedding pgvector.Vector) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE chunks SET embedding = $2, embedding_synced = true WHERE uid = $1`,
		uid, embedding,
	)
	if err != nil {
		return fmt.Errorf("storage: update chunk embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchChunksByEmbedding performs cosine-similarity nearest-neighbor
// search over chunks within a case, using pgvector's <=> operator.
func (db *DB) SearchChunksByEmbedding(ctx context.Context, caseUID string, embedding pgvector.Vector, limit int) ([]model.Chunk, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, artifact_version_uid, ordinal, text, anchors, anchor_health,
		        embedding_synced, created_at
		 FROM chunks
		 WHERE case_uid = $1 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $2
		 LIMIT $3`, caseUID, embedding, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: search chunks: %w", err)
	}
	defer rows.Close()

	var out []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var anchorsJSON, healthJSON []byte
		if err := rows.Scan(&c.UID, &c.CaseUID, &c.ArtifactVersionUID, &c.Ordinal, &c.Text, &anchorsJSON, &healthJSON,
			&c.EmbeddingSynced, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan chunk search result: %w", err)
		}
		_ = json.Unmarshal(anchorsJSON, &c.Anchors)
		_ = json.Unmarshal(healthJSON, &c.AnchorHealth)
		out = append(out, c)
	}
	return out, rows.Err()
}
