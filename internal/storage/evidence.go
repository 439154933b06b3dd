package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// CreateEvidence inserts a single Evidence row, the wrapper that binds a
// Chunk into the case's evidentiary set with a license and retention
// policy.
func (db *DB) CreateEvidence(ctx context.Context, ev model.Evidence) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO evidence (uid, case_uid, chunk_uid, license, pii, retention, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.UID, ev.CaseUID, ev.ChunkUID, ev.License, ev.PII, ev.Retention, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert evidence: %w", err)
	}
	return nil
}

// GetEvidence retrieves a single Evidence row by UID.
func (db *DB) GetEvidence(ctx context.Context, uid string) (model.Evidence, error) {
	var e model.Evidence
	err := db.pool.QueryRow(ctx,
		`SELECT uid, case_uid, chunk_uid, license, pii, retention, created_at
		 FROM evidence WHERE uid = $1`, uid,
	).Scan(&e.UID, &e.CaseUID, &e.ChunkUID, &e.License, &e.PII, &e.Retention, &e.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Evidence{}, ErrNotFound
		}
		return model.Evidence{}, fmt.Errorf("storage: get evidence: %w", err)
	}
	return e, nil
}

// ListEvidenceByCase returns all Evidence rows for a case.
func (db *DB) ListEvidenceByCase(ctx context.Context, caseUID string, limit, offset int) ([]model.Evidence, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, chunk_uid, license, pii, retention, created_at
		 FROM evidence WHERE case_uid = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		caseUID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list evidence: %w", err)
	}
	defer rows.Close()

	var out []model.Evidence
	for rows.Next() {
		var e model.Evidence
		if err := rows.Scan(&e.UID, &e.CaseUID, &e.ChunkUID, &e.License, &e.PII, &e.Retention, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan evidence: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateSourceClaimTx inserts a SourceClaim within an existing transaction.
// Callers MUST have already verified model.SourceClaim.IsGrounded against
// the parent chunk's text before calling this — the storage layer does not
// re-fetch the chunk to re-check groundedness on every insert, to avoid an
// extra round trip on the hot ingestion path.
func CreateSourceClaimTx(ctx context.Context, tx pgx.Tx, sc model.SourceClaim) error {
	selectorsJSON, err := json.Marshal(sc.Selectors)
	if err != nil {
		return fmt.Errorf("storage: marshal selectors: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO source_claims (
			uid, case_uid, chunk_uid, evidence_uid, quote, selectors,
			original_language, translation, modality, segment_ref,
			media_time_range_start_ms, media_time_range_end_ms, attributed_to, created_at
		) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sc.UID, sc.CaseUID, sc.ChunkUID, sc.EvidenceUID, sc.Quote, selectorsJSON,
		sc.OriginalLanguage, sc.Translation, sc.Modality, sc.SegmentRef,
		mediaTimeField(sc, true), mediaTimeField(sc, false), sc.AttributedTo, sc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert source claim: %w", err)
	}
	return nil
}

func mediaTimeField(sc model.SourceClaim, start bool) *int64 {
	if sc.MediaTimeRange == nil {
		return nil
	}
	if start {
		return &sc.MediaTimeRange.StartMS
	}
	return &sc.MediaTimeRange.EndMS
}

// GetSourceClaim retrieves a single SourceClaim by UID.
func (db *DB) GetSourceClaim(ctx context.Context, uid string) (model.SourceClaim, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, chunk_uid, evidence_uid, quote, selectors,
		        original_language, translation, modality, segment_ref,
		        media_time_range_start_ms, media_time_range_end_ms, attributed_to, created_at
		 FROM source_claims WHERE uid = $1`, uid,
	)
	if err != nil {
		return model.SourceClaim{}, fmt.Errorf("storage: get source claim: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return model.SourceClaim{}, ErrNotFound
	}
	return scanSourceClaim(rows)
}

// ListSourceClaimsByChunk returns all SourceClaims anchored to a chunk.
func (db *DB) ListSourceClaimsByChunk(ctx context.Context, chunkUID string) ([]model.SourceClaim, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, chunk_uid, evidence_uid, quote, selectors,
		        original_language, translation, modality, segment_ref,
		        media_time_range_start_ms, media_time_range_end_ms, attributed_to, created_at
		 FROM source_claims WHERE chunk_uid = $1 ORDER BY created_at`, chunkUID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list source claims: %w", err)
	}
	defer rows.Close()

	var out []model.SourceClaim
	for rows.Next() {
		sc, err := scanSourceClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ListSourceClaimsByCase returns all SourceClaims for a case, used by
// assertion fusion stages that need the full evidentiary pool.
func (db *DB) ListSourceClaimsByCase(ctx context.Context, caseUID string, limit, offset int) ([]model.SourceClaim, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, chunk_uid, evidence_uid, quote, selectors,
		        original_language, translation, modality, segment_ref,
		        media_time_range_start_ms, media_time_range_end_ms, attributed_to, created_at
		 FROM source_claims WHERE case_uid = $1 ORDER BY created_at LIMIT $2 OFFSET $3`,
		caseUID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list source claims by case: %w", err)
	}
	defer rows.Close()

	var out []model.SourceClaim
	for rows.Next() {
		sc, err := scanSourceClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func scanSourceClaim(rows pgx.Rows) (model.SourceClaim, error) {
	var sc model.SourceClaim
	var selectorsJSON []byte
	var startMS, endMS *int64
	if err := rows.Scan(&sc.UID, &sc.CaseUID, &sc.ChunkUID, &sc.EvidenceUID, &sc.Quote, &selectorsJSON,
		&sc.OriginalLanguage, &sc.Translation, &sc.Modality, &sc.SegmentRef,
		&startMS, &endMS, &sc.AttributedTo, &sc.CreatedAt); err != nil {
		return model.SourceClaim{}, fmt.Errorf("storage: scan source claim: %w", err)
	}
	_ = json.Unmarshal(selectorsJSON, &sc.Selectors)
	if startMS != nil && endMS != nil {
		sc.MediaTimeRange = &model.MediaTimeRange{StartMS: *startMS, EndMS: *endMS}
	}
	return sc, nil
}
