package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// CreateCaseTx inserts a Case within an existing transaction, so it can be
// paired atomically with the Action that authorized its creation.
func CreateCaseTx(ctx context.Context, tx pgx.Tx, c model.Case) error {
	metaJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("storage: marshal case metadata: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO cases (uid, title, actor_id, rationale, status, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`,
		c.UID, c.Title, c.ActorID, c.Rationale, c.Status, metaJSON, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert case: %w", err)
	}
	return nil
}

// GetCase retrieves a Case by UID.
func (db *DB) GetCase(ctx context.Context, uid string) (model.Case, error) {
	var c model.Case
	var metaJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT uid, title, actor_id, rationale, status, metadata, created_at, updated_at
		 FROM cases WHERE uid = $1`, uid,
	).Scan(&c.UID, &c.Title, &c.ActorID, &c.Rationale, &c.Status, &metaJSON, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Case{}, ErrNotFound
		}
		return model.Case{}, fmt.Errorf("storage: get case: %w", err)
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return model.Case{}, fmt.Errorf("storage: unmarshal case metadata: %w", err)
		}
	}
	return c, nil
}

// ListCasesParams bounds a paginated case listing.
type ListCasesParams struct {
	Status model.CaseStatus // "" = any
	Limit  int
	Offset int
}

// ListCases returns cases ordered by most recently updated first.
func (db *DB) ListCases(ctx context.Context, p ListCasesParams) ([]model.Case, error) {
	limit := p.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if p.Status != "" {
		rows, err = db.pool.Query(ctx,
			`SELECT uid, title, actor_id, rationale, status, metadata, created_at, updated_at
			 FROM cases WHERE status = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`,
			p.Status, limit, p.Offset)
	} else {
		rows, err = db.pool.Query(ctx,
			`SELECT uid, title, actor_id, rationale, status, metadata, created_at, updated_at
			 FROM cases ORDER BY updated_at DESC LIMIT $1 OFFSET $2`,
			limit, p.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: list cases: %w", err)
	}
	defer rows.Close()

	var out []model.Case
	for rows.Next() {
		var c model.Case
		var metaJSON []byte
		if err := rows.Scan(&c.UID, &c.Title, &c.ActorID, &c.Rationale, &c.Status, &metaJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan case: %w", err)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &c.Metadata)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCaseStatus transitions a case's status (e.g. open -> archived).
func (db *DB) UpdateCaseStatus(ctx context.Context, uid string, status model.CaseStatus) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE cases SET status = $2, updated_at = $3 WHERE uid = $1`,
		uid, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: update case status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
