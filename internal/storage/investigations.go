package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// CreateInvestigation inserts a new Investigation Loop run in
// InvestigationRunning status.
func (db *DB) CreateInvestigation(ctx context.Context, inv model.Investigation) error {
	configJSON, err := json.Marshal(inv.Config)
	if err != nil {
		return fmt.Errorf("storage: marshal investigation config: %w", err)
	}
	roundsJSON, err := json.Marshal(inv.Rounds)
	if err != nil {
		return fmt.Errorf("storage: marshal investigation rounds: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO investigations (uid, case_uid, trigger_event, config, rounds, status, gap_resolved, cancelled_by, started_at, completed_at, cancelled_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, NULLIF($8, ''), $9, $10, $11)`,
		inv.UID, inv.CaseUID, inv.TriggerEvent, configJSON, roundsJSON, inv.Status, inv.GapResolved, inv.CancelledBy, inv.StartedAt, inv.CompletedAt, inv.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert investigation: %w", err)
	}
	return nil
}

// UpdateInvestigation overwrites the mutable fields of an Investigation
// (rounds, status, completion) after a round completes or the run
// terminates. Investigations are otherwise append-only at the round
// level: callers pass the full accumulated Rounds slice each call.
func (db *DB) UpdateInvestigation(ctx context.Context, inv model.Investigation) error {
	roundsJSON, err := json.Marshal(inv.Rounds)
	if err != nil {
		return fmt.Errorf("storage: marshal investigation rounds: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`UPDATE investigations
		 SET rounds = $2::jsonb, status = $3, gap_resolved = $4, cancelled_by = NULLIF($5, ''), completed_at = $6, cancelled_at = $7
		 WHERE uid = $1`,
		inv.UID, roundsJSON, inv.Status, inv.GapResolved, inv.CancelledBy, inv.CompletedAt, inv.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("storage: update investigation: %w", err)
	}
	return nil
}

// GetInvestigation loads one Investigation by uid.
func (db *DB) GetInvestigation(ctx context.Context, uid string) (model.Investigation, error) {
	var inv model.Investigation
	var configJSON, roundsJSON []byte
	var cancelledBy *string

	err := db.pool.QueryRow(ctx,
		`SELECT uid, case_uid, trigger_event, config, rounds, status, gap_resolved, cancelled_by, started_at, completed_at, cancelled_at
		 FROM investigations WHERE uid = $1`, uid,
	).Scan(&inv.UID, &inv.CaseUID, &inv.TriggerEvent, &configJSON, &roundsJSON, &inv.Status, &inv.GapResolved, &cancelledBy, &inv.StartedAt, &inv.CompletedAt, &inv.CancelledAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Investigation{}, ErrNotFound
		}
		return model.Investigation{}, fmt.Errorf("storage: get investigation: %w", err)
	}
	_ = json.Unmarshal(configJSON, &inv.Config)
	_ = json.Unmarshal(roundsJSON, &inv.Rounds)
	if cancelledBy != nil {
		inv.CancelledBy = *cancelledBy
	}
	return inv, nil
}

// ListInvestigationsByCase returns all investigation runs for a case,
// newest first.
func (db *DB) ListInvestigationsByCase(ctx context.Context, caseUID string) ([]model.Investigation, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, trigger_event, config, rounds, status, gap_resolved, cancelled_by, started_at, completed_at, cancelled_at
		 FROM investigations WHERE case_uid = $1 ORDER BY started_at DESC`, caseUID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list investigations: %w", err)
	}
	defer rows.Close()

	var out []model.Investigation
	for rows.Next() {
		var inv model.Investigation
		var configJSON, roundsJSON []byte
		var cancelledBy *string
		if err := rows.Scan(&inv.UID, &inv.CaseUID, &inv.TriggerEvent, &configJSON, &roundsJSON, &inv.Status, &inv.GapResolved, &cancelledBy, &inv.StartedAt, &inv.CompletedAt, &inv.CancelledAt); err != nil {
			return nil, fmt.Errorf("storage: scan investigation: %w", err)
		}
		_ = json.Unmarshal(configJSON, &inv.Config)
		_ = json.Unmarshal(roundsJSON, &inv.Rounds)
		if cancelledBy != nil {
			inv.CancelledBy = *cancelledBy
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
