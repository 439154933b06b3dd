package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// ListActionsByCase returns the audit trail for a case, newest first. Read
// path for the HTTP projection endpoints; writes always go through
// auditledger.Ledger, never directly through this package.
func (db *DB) ListActionsByCase(ctx context.Context, caseUID string, limit, offset int) ([]model.Action, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT uid, case_uid, action_type, actor_id, rationale, inputs, outputs, trace_id, span_id, created_at
		 FROM actions WHERE case_uid = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		caseUID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list actions: %w", err)
	}
	defer rows.Close()

	var out []model.Action
	for rows.Next() {
		var a model.Action
		var inputsJSON, outputsJSON []byte
		if err := rows.Scan(&a.UID, &a.CaseUID, &a.ActionType, &a.ActorID, &a.Rationale, &inputsJSON, &outputsJSON, &a.TraceID, &a.SpanID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan action: %w", err)
		}
		_ = json.Unmarshal(inputsJSON, &a.Inputs)
		_ = json.Unmarshal(outputsJSON, &a.Outputs)
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetToolTrace retrieves a single ToolTrace by UID.
func (db *DB) GetToolTrace(ctx context.Context, uid string) (model.ToolTrace, error) {
	var t model.ToolTrace
	var reqJSON, respJSON, policyJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT uid, action_uid, tool_name, request, response, status, duration_ms, error, policy, created_at
		 FROM tool_traces WHERE uid = $1`, uid,
	).Scan(&t.UID, &t.ActionUID, &t.ToolName, &reqJSON, &respJSON, &t.Status, &t.DurationMS, &t.Error, &policyJSON, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.ToolTrace{}, ErrNotFound
		}
		return model.ToolTrace{}, fmt.Errorf("storage: get tool trace: %w", err)
	}
	_ = json.Unmarshal(reqJSON, &t.Request)
	_ = json.Unmarshal(respJSON, &t.Response)
	_ = json.Unmarshal(policyJSON, &t.Policy)
	return t, nil
}

// ListToolTracesByAction returns all tool traces recorded for an Action.
func (db *DB) ListToolTracesByAction(ctx context.Context, actionUID string) ([]model.ToolTrace, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, action_uid, tool_name, request, response, status, duration_ms, error, policy, created_at
		 FROM tool_traces WHERE action_uid = $1 ORDER BY created_at`, actionUID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list tool traces: %w", err)
	}
	defer rows.Close()

	var out []model.ToolTrace
	for rows.Next() {
		var t model.ToolTrace
		var reqJSON, respJSON, policyJSON []byte
		if err := rows.Scan(&t.UID, &t.ActionUID, &t.ToolName, &reqJSON, &respJSON, &t.Status, &t.DurationMS, &t.Error, &policyJSON, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan tool trace: %w", err)
		}
		_ = json.Unmarshal(reqJSON, &t.Request)
		_ = json.Unmarshal(respJSON, &t.Response)
		_ = json.Unmarshal(policyJSON, &t.Policy)
		out = append(out, t)
	}
	return out, rows.Err()
}
