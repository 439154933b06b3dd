package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// CreateAssertionFeedback inserts one analyst's review of an Assertion.
// The unique (user_id, assertion_uid) constraint means a second review by
// the same user of the same Assertion is a conflict, not a second row —
// callers update the existing feedback instead.
func (db *DB) CreateAssertionFeedback(ctx context.Context, f model.AssertionFeedback) error {
	suggestedJSON, err := json.Marshal(f.SuggestedValue)
	if err != nil {
		return fmt.Errorf("storage: marshal feedback suggested_value: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO assertion_feedback (uid, assertion_uid, case_uid, user_id, verdict, confidence_override, comment, suggested_value, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8::jsonb, $9)`,
		f.UID, f.AssertionUID, f.CaseUID, f.UserID, f.Verdict, f.ConfidenceOverride, f.Comment, suggestedJSON, f.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIntegrityConflict
		}
		return fmt.Errorf("storage: insert assertion feedback: %w", err)
	}
	return nil
}

// UpdateAssertionFeedback overwrites the verdict/override/comment/suggestion
// of an existing feedback row, keyed by its own uid — the path a changed
// mind takes instead of a second CreateAssertionFeedback.
func (db *DB) UpdateAssertionFeedback(ctx context.Context, f model.AssertionFeedback) error {
	suggestedJSON, err := json.Marshal(f.SuggestedValue)
	if err != nil {
		return fmt.Errorf("storage: marshal feedback suggested_value: %w", err)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE assertion_feedback
		 SET verdict = $2, confidence_override = $3, comment = NULLIF($4, ''), suggested_value = $5::jsonb
		 WHERE uid = $1`,
		f.UID, f.Verdict, f.ConfidenceOverride, f.Comment, suggestedJSON,
	)
	if err != nil {
		return fmt.Errorf("storage: update assertion feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAssertionFeedback retrieves a single AssertionFeedback by uid.
func (db *DB) GetAssertionFeedback(ctx context.Context, uid string) (model.AssertionFeedback, error) {
	var f model.AssertionFeedback
	var suggestedJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT uid, assertion_uid, case_uid, user_id, verdict, confidence_override, comment, suggested_value, created_at
		 FROM assertion_feedback WHERE uid = $1`, uid,
	).Scan(&f.UID, &f.AssertionUID, &f.CaseUID, &f.UserID, &f.Verdict, &f.ConfidenceOverride, &f.Comment, &suggestedJSON, &f.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.AssertionFeedback{}, ErrNotFound
		}
		return model.AssertionFeedback{}, fmt.Errorf("storage: get assertion feedback: %w", err)
	}
	_ = json.Unmarshal(suggestedJSON, &f.SuggestedValue)
	return f, nil
}

// GetAssertionFeedbackByUser returns the single feedback row a user has
// left on an assertion, if any, enforcing the same (user_id, assertion_uid)
// uniqueness the table's constraint guarantees.
func (db *DB) GetAssertionFeedbackByUser(ctx context.Context, assertionUID, userID string) (model.AssertionFeedback, error) {
	var f model.AssertionFeedback
	var suggestedJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT uid, assertion_uid, case_uid, user_id, verdict, confidence_override, comment, suggested_value, created_at
		 FROM assertion_feedback WHERE assertion_uid = $1 AND user_id = $2`, assertionUID, userID,
	).Scan(&f.UID, &f.AssertionUID, &f.CaseUID, &f.UserID, &f.Verdict, &f.ConfidenceOverride, &f.Comment, &suggestedJSON, &f.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.AssertionFeedback{}, ErrNotFound
		}
		return model.AssertionFeedback{}, fmt.Errorf("storage: get assertion feedback by user: %w", err)
	}
	_ = json.Unmarshal(suggestedJSON, &f.SuggestedValue)
	return f, nil
}

// ListAssertionFeedbackByAssertion returns every analyst's feedback on a
// single Assertion, newest first.
func (db *DB) ListAssertionFeedbackByAssertion(ctx context.Context, assertionUID string) ([]model.AssertionFeedback, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, assertion_uid, case_uid, user_id, verdict, confidence_override, comment, suggested_value, created_at
		 FROM assertion_feedback WHERE assertion_uid = $1 ORDER BY created_at DESC`, assertionUID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list assertion feedback by assertion: %w", err)
	}
	defer rows.Close()

	var out []model.AssertionFeedback
	for rows.Next() {
		var f model.AssertionFeedback
		var suggestedJSON []byte
		if err := rows.Scan(&f.UID, &f.AssertionUID, &f.CaseUID, &f.UserID, &f.Verdict, &f.ConfidenceOverride, &f.Comment, &suggestedJSON, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan assertion feedback: %w", err)
		}
		_ = json.Unmarshal(suggestedJSON, &f.SuggestedValue)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListAssertionFeedbackByCase returns every feedback row recorded against
// any Assertion in a case, newest first.
func (db *DB) ListAssertionFeedbackByCase(ctx context.Context, caseUID string) ([]model.AssertionFeedback, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, assertion_uid, case_uid, user_id, verdict, confidence_override, comment, suggested_value, created_at
		 FROM assertion_feedback WHERE case_uid = $1 ORDER BY created_at DESC`, caseUID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list assertion feedback by case: %w", err)
	}
	defer rows.Close()

	var out []model.AssertionFeedback
	for rows.Next() {
		var f model.AssertionFeedback
		var suggestedJSON []byte
		if err := rows.Scan(&f.UID, &f.AssertionUID, &f.CaseUID, &f.UserID, &f.Verdict, &f.ConfidenceOverride, &f.Comment, &suggestedJSON, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan assertion feedback: %w", err)
		}
		_ = json.Unmarshal(suggestedJSON, &f.SuggestedValue)
		out = append(out, f)
	}
	return out, rows.Err()
}
