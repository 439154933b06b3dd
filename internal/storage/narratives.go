package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// CreateNarrative inserts a Narrative (a time-windowed thematic summary
// built from a set of SourceClaims, by the pipeline's narrative_build
// stage).
func (db *DB) CreateNarrative(ctx context.Context, n model.Narrative) error {
	citationsJSON, err := json.Marshal(n.SourceClaimUIDs)
	if err != nil {
		return fmt.Errorf("storage: marshal narrative citations: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO narratives (uid, case_uid, theme, summary, source_claim_uids, window_start, window_end, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8)`,
		n.UID, n.CaseUID, n.Theme, n.Summary, citationsJSON, n.WindowStart, n.WindowEnd, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert narrative: %w", err)
	}
	return nil
}

// ListNarrativesByCase returns all narratives for a case, ordered by
// window start.
func (db *DB) ListNarrativesByCase(ctx context.Context, caseUID string) ([]model.Narrative, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, theme, summary, source_claim_uids, window_start, window_end, created_at
		 FROM narratives WHERE case_uid = $1 ORDER BY window_start`, caseUID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list narratives: %w", err)
	}
	defer rows.Close()

	var out []model.Narrative
	for rows.Next() {
		var n model.Narrative
		var citationsJSON []byte
		if err := rows.Scan(&n.UID, &n.CaseUID, &n.Theme, &n.Summary, &citationsJSON, &n.WindowStart, &n.WindowEnd, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan narrative: %w", err)
		}
		_ = json.Unmarshal(citationsJSON, &n.SourceClaimUIDs)
		out = append(out, n)
	}
	return out, rows.Err()
}

// CreateJudgmentTx inserts a Judgment — the pipeline's final report_generate
// output — within an existing transaction, paired with the Action that
// produced it.
func CreateJudgmentTx(ctx context.Context, tx pgx.Tx, j model.Judgment) error {
	citationsJSON, err := json.Marshal(j.AssertionUIDs)
	if err != nil {
		return fmt.Errorf("storage: marshal judgment citations: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO judgments (uid, case_uid, title, body, assertion_uids, hypothesis_uid, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`,
		j.UID, j.CaseUID, j.Title, j.Body, citationsJSON, j.HypothesisUID, j.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert judgment: %w", err)
	}
	return nil
}

// GetJudgment retrieves a single Judgment by UID.
func (db *DB) GetJudgment(ctx context.Context, uid string) (model.Judgment, error) {
	var j model.Judgment
	var citationsJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT uid, case_uid, title, body, assertion_uids, hypothesis_uid, created_at
		 FROM judgments WHERE uid = $1`, uid,
	).Scan(&j.UID, &j.CaseUID, &j.Title, &j.Body, &citationsJSON, &j.HypothesisUID, &j.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Judgment{}, ErrNotFound
		}
		return model.Judgment{}, fmt.Errorf("storage: get judgment: %w", err)
	}
	_ = json.Unmarshal(citationsJSON, &j.AssertionUIDs)
	return j, nil
}

// ListJudgmentsByCase returns all judgments for a case.
func (db *DB) ListJudgmentsByCase(ctx context.Context, caseUID string) ([]model.Judgment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, title, body, assertion_uids, hypothesis_uid, created_at
		 FROM judgments WHERE case_uid = $1 ORDER BY created_at DESC`, caseUID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list judgments: %w", err)
	}
	defer rows.Close()

	var out []model.Judgment
	for rows.Next() {
		var j model.Judgment
		var citationsJSON []byte
		if err := rows.Scan(&j.UID, &j.CaseUID, &j.Title, &j.Body, &citationsJSON, &j.HypothesisUID, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan judgment: %w", err)
		}
		_ = json.Unmarshal(citationsJSON, &j.AssertionUIDs)
		out = append(out, j)
	}
	return out, rows.Err()
}
