package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// UpsertArtifactIdentity inserts an ArtifactIdentity, or returns the
// existing row for the same CanonicalURL (identities are deduped by URL so
// repeated fetches of the same page accumulate versions rather than
// identities).
func (db *DB) UpsertArtifactIdentity(ctx context.Context, ai model.ArtifactIdentity) (model.ArtifactIdentity, error) {
	var out model.ArtifactIdentity
	err := db.pool.QueryRow(ctx,
		`INSERT INTO artifact_identities (uid, canonical_url, kind, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (canonical_url) DO UPDATE SET canonical_url = EXCLUDED.canonical_url
		 RETURNING uid, canonical_url, kind, created_at`,
		ai.UID, ai.CanonicalURL, ai.Kind, ai.CreatedAt,
	).Scan(&out.UID, &out.CanonicalURL, &out.Kind, &out.CreatedAt)
	if err != nil {
		return model.ArtifactIdentity{}, fmt.Errorf("storage: upsert artifact identity: %w", err)
	}
	return out, nil
}

// CreateArtifactVersionTx inserts an ArtifactVersion within an existing
// transaction, paired with the Action recording the fetch.
func CreateArtifactVersionTx(ctx context.Context, tx pgx.Tx, av model.ArtifactVersion) error {
	sourceMetaJSON, err := json.Marshal(av.SourceMeta)
	if err != nil {
		return fmt.Errorf("storage: marshal source meta: %w", err)
	}
	metaJSON, err := json.Marshal(av.Metadata)
	if err != nil {
		return fmt.Errorf("storage: marshal artifact version metadata: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO artifact_versions (
			uid, case_uid, artifact_identity_uid, kind, mime_type, content_sha256,
			storage_ref, retrieved_at, source_meta, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11)`,
		av.UID, av.CaseUID, av.ArtifactIdentityUID, av.Kind, av.MimeType, av.ContentSHA256,
		av.StorageRef, av.RetrievedAt, sourceMetaJSON, metaJSON, av.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert artifact version: %w", err)
	}
	return nil
}

// GetArtifactVersion retrieves a single ArtifactVersion by UID.
func (db *DB) GetArtifactVersion(ctx context.Context, uid string) (model.ArtifactVersion, error) {
	var av model.ArtifactVersion
	var sourceMetaJSON, metaJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT uid, case_uid, artifact_identity_uid, kind, mime_type, content_sha256,
		        storage_ref, retrieved_at, source_meta, metadata, created_at
		 FROM artifact_versions WHERE uid = $1`, uid,
	).Scan(&av.UID, &av.CaseUID, &av.ArtifactIdentityUID, &av.Kind, &av.MimeType, &av.ContentSHA256,
		&av.StorageRef, &av.RetrievedAt, &sourceMetaJSON, &metaJSON, &av.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.ArtifactVersion{}, ErrNotFound
		}
		return model.ArtifactVersion{}, fmt.Errorf("storage: get artifact version: %w", err)
	}
	if len(sourceMetaJSON) > 0 {
		_ = json.Unmarshal(sourceMetaJSON, &av.SourceMeta)
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &av.Metadata)
	}
	return av, nil
}

// ListArtifactVersionsByCase returns every ArtifactVersion for a case,
// newest first.
func (db *DB) ListArtifactVersionsByCase(ctx context.Context, caseUID string, limit, offset int) ([]model.ArtifactVersion, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, artifact_identity_uid, kind, mime_type, content_sha256,
		        storage_ref, retrieved_at, source_meta, metadata, created_at
		 FROM artifact_versions WHERE case_uid = $1
		 ORDER BY retrieved_at DESC LIMIT $2 OFFSET $3`, caseUID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list artifact versions: %w", err)
	}
	defer rows.Close()

	var out []model.ArtifactVersion
	for rows.Next() {
		var av model.ArtifactVersion
		var sourceMetaJSON, metaJSON []byte
		if err := rows.Scan(&av.UID, &av.CaseUID, &av.ArtifactIdentityUID, &av.Kind, &av.MimeType, &av.ContentSHA256,
			&av.StorageRef, &av.RetrievedAt, &sourceMetaJSON, &metaJSON, &av.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan artifact version: %w", err)
		}
		if len(sourceMetaJSON) > 0 {
			_ = json.Unmarshal(sourceMetaJSON, &av.SourceMeta)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &av.Metadata)
		}
		out = append(out, av)
	}
	return out, rows.Err()
}
