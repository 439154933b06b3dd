package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// CreateCheckpoint persists one pipeline Checkpoint. Checkpoints are
// append-only: a run's history is the full chain reachable by following
// ParentCheckpointID back from the latest row for its ThreadID.
func (db *DB) CreateCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	stateJSON, err := json.Marshal(cp.StateJSON)
	if err != nil {
		return fmt.Errorf("storage: marshal checkpoint state: %w", err)
	}
	metaJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("storage: marshal checkpoint metadata: %w", err)
	}

	var parentID *string
	if cp.ParentCheckpointID != "" {
		parentID = &cp.ParentCheckpointID
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO checkpoints (uid, thread_id, step, state_json, parent_checkpoint_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6::jsonb, $7)`,
		cp.UID, cp.ThreadID, cp.Step, stateJSON, parentID, metaJSON, cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert checkpoint: %w", err)
	}
	return nil
}

// GetLatestCheckpoint returns the most recently written Checkpoint for a
// thread (run), or ErrNotFound if the run has no checkpoints yet.
func (db *DB) GetLatestCheckpoint(ctx context.Context, threadID string) (model.Checkpoint, error) {
	var cp model.Checkpoint
	var stateJSON, metaJSON []byte
	var parentID *string

	err := db.pool.QueryRow(ctx,
		`SELECT uid, thread_id, step, state_json, parent_checkpoint_id, metadata, created_at
		 FROM checkpoints WHERE thread_id = $1 ORDER BY created_at DESC LIMIT 1`, threadID,
	).Scan(&cp.UID, &cp.ThreadID, &cp.Step, &stateJSON, &parentID, &metaJSON, &cp.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Checkpoint{}, ErrNotFound
		}
		return model.Checkpoint{}, fmt.Errorf("storage: get latest checkpoint: %w", err)
	}
	_ = json.Unmarshal(stateJSON, &cp.StateJSON)
	_ = json.Unmarshal(metaJSON, &cp.Metadata)
	if parentID != nil {
		cp.ParentCheckpointID = *parentID
	}
	return cp, nil
}

// ListCheckpointsByThread returns every checkpoint for a run, oldest
// first, for replay or audit display.
func (db *DB) ListCheckpointsByThread(ctx context.Context, threadID string) ([]model.Checkpoint, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, thread_id, step, state_json, parent_checkpoint_id, metadata, created_at
		 FROM checkpoints WHERE thread_id = $1 ORDER BY created_at ASC`, threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []model.Checkpoint
	for rows.Next() {
		var cp model.Checkpoint
		var stateJSON, metaJSON []byte
		var parentID *string
		if err := rows.Scan(&cp.UID, &cp.ThreadID, &cp.Step, &stateJSON, &parentID, &metaJSON, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan checkpoint: %w", err)
		}
		_ = json.Unmarshal(stateJSON, &cp.StateJSON)
		_ = json.Unmarshal(metaJSON, &cp.Metadata)
		if parentID != nil {
			cp.ParentCheckpointID = *parentID
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// CreateForecast inserts a Forecast produced by the pipeline's
// forecast_generate stage.
func (db *DB) CreateForecast(ctx context.Context, f model.Forecast) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO forecasts (uid, case_uid, hypothesis_uid, statement, probability, horizon_days, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.UID, f.CaseUID, f.HypothesisUID, f.Statement, f.Probability, f.HorizonDays, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert forecast: %w", err)
	}
	return nil
}

// ListForecastsByCase returns all forecasts for a case, newest first.
func (db *DB) ListForecastsByCase(ctx context.Context, caseUID string) ([]model.Forecast, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, hypothesis_uid, statement, probability, horizon_days, created_at
		 FROM forecasts WHERE case_uid = $1 ORDER BY created_at DESC`, caseUID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list forecasts: %w", err)
	}
	defer rows.Close()

	var out []model.Forecast
	for rows.Next() {
		var f model.Forecast
		if err := rows.Scan(&f.UID, &f.CaseUID, &f.HypothesisUID, &f.Statement, &f.Probability, &f.HorizonDays, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan forecast: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
