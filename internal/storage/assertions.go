package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// CreateAssertionTx inserts an Assertion within an existing transaction.
// Callers must have already run model.Assertion.Validate (non-empty
// citations, confidence in [0,1]) — the insert does not re-validate.
func CreateAssertionTx(ctx context.Context, tx pgx.Tx, a model.Assertion) error {
	valueJSON, err := json.Marshal(a.Value)
	if err != nil {
		return fmt.Errorf("storage: marshal assertion value: %w", err)
	}
	citationsJSON, err := json.Marshal(a.SourceClaimUIDs)
	if err != nil {
		return fmt.Errorf("storage: marshal assertion citations: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO assertions (uid, case_uid, kind, value, confidence, source_claim_uids, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6::jsonb, $7, $8)`,
		a.UID, a.CaseUID, a.Kind, valueJSON, a.Confidence, citationsJSON, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert assertion: %w", err)
	}
	return nil
}

// ListAssertionsByCase returns all assertions for a case.
func (db *DB) ListAssertionsByCase(ctx context.Context, caseUID string, limit, offset int) ([]model.Assertion, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, kind, value, confidence, source_claim_uids, created_at, updated_at
		 FROM assertions WHERE case_uid = $1 ORDER BY created_at LIMIT $2 OFFSET $3`,
		caseUID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list assertions: %w", err)
	}
	defer rows.Close()

	var out []model.Assertion
	for rows.Next() {
		var a model.Assertion
		var valueJSON, citationsJSON []byte
		if err := rows.Scan(&a.UID, &a.CaseUID, &a.Kind, &valueJSON, &a.Confidence, &citationsJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan assertion: %w", err)
		}
		_ = json.Unmarshal(valueJSON, &a.Value)
		_ = json.Unmarshal(citationsJSON, &a.SourceClaimUIDs)
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAssertion retrieves a single Assertion by UID.
func (db *DB) GetAssertion(ctx context.Context, uid string) (model.Assertion, error) {
	var a model.Assertion
	var valueJSON, citationsJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT uid, case_uid, kind, value, confidence, source_claim_uids, created_at, updated_at
		 FROM assertions WHERE uid = $1`, uid,
	).Scan(&a.UID, &a.CaseUID, &a.Kind, &valueJSON, &a.Confidence, &citationsJSON, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Assertion{}, ErrNotFound
		}
		return model.Assertion{}, fmt.Errorf("storage: get assertion: %w", err)
	}
	_ = json.Unmarshal(valueJSON, &a.Value)
	_ = json.Unmarshal(citationsJSON, &a.SourceClaimUIDs)
	return a, nil
}

// GetAssertionsByUIDs batch-fetches assertions referenced by a Hypothesis's
// supporting/contradicting lists.
func (db *DB) GetAssertionsByUIDs(ctx context.Context, uids []string) ([]model.Assertion, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, kind, value, confidence, source_claim_uids, created_at, updated_at
		 FROM assertions WHERE uid = ANY($1)`, uids,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get assertions by uids: %w", err)
	}
	defer rows.Close()

	var out []model.Assertion
	for rows.Next() {
		var a model.Assertion
		var valueJSON, citationsJSON []byte
		if err := rows.Scan(&a.UID, &a.CaseUID, &a.Kind, &valueJSON, &a.Confidence, &citationsJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan assertion: %w", err)
		}
		_ = json.Unmarshal(valueJSON, &a.Value)
		_ = json.Unmarshal(citationsJSON, &a.SourceClaimUIDs)
		out = append(out, a)
	}
	return out, rows.Err()
}
