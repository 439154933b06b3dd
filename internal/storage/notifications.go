package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// CreatePushLog appends one notification delivery attempt to the audit
// trail. Satisfies internal/notify.Ledger.
func (db *DB) CreatePushLog(ctx context.Context, log model.PushLog) error {
	payloadJSON, err := json.Marshal(log.Payload)
	if err != nil {
		return fmt.Errorf("storage: marshal push log payload: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO push_logs (uid, user_id, kind, payload, delivered, error, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)`,
		log.UID, log.UserID, log.Kind, payloadJSON, log.Delivered, log.Error, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert push log: %w", err)
	}
	return nil
}

// ListPushLogsByUser returns a user's notification delivery history,
// newest first.
func (db *DB) ListPushLogsByUser(ctx context.Context, userID string, limit int) ([]model.PushLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT uid, user_id, kind, payload, delivered, error, created_at
		 FROM push_logs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list push logs: %w", err)
	}
	defer rows.Close()

	var out []model.PushLog
	for rows.Next() {
		var p model.PushLog
		var payloadJSON []byte
		if err := rows.Scan(&p.UID, &p.UserID, &p.Kind, &payloadJSON, &p.Delivered, &p.Error, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan push log: %w", err)
		}
		if len(payloadJSON) > 0 {
			_ = json.Unmarshal(payloadJSON, &p.Payload)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateSubscription inserts a user's interest rule, matched against
// incoming events by the notification dispatch path.
func (db *DB) CreateSubscription(ctx context.Context, s model.Subscription) error {
	ruleJSON, err := json.Marshal(s.MatchRule)
	if err != nil {
		return fmt.Errorf("storage: marshal subscription match rule: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO subscriptions (uid, user_id, case_uid, match_rule, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4::jsonb, $5)`,
		s.UID, s.UserID, s.CaseUID, ruleJSON, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert subscription: %w", err)
	}
	return nil
}

// ListSubscriptionsByUser returns every subscription a user has registered.
func (db *DB) ListSubscriptionsByUser(ctx context.Context, userID string) ([]model.Subscription, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, user_id, COALESCE(case_uid, ''), match_rule, created_at
		 FROM subscriptions WHERE user_id = $1 ORDER BY created_at`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []model.Subscription
	for rows.Next() {
		var s model.Subscription
		var ruleJSON []byte
		if err := rows.Scan(&s.UID, &s.UserID, &s.CaseUID, &ruleJSON, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan subscription: %w", err)
		}
		_ = json.Unmarshal(ruleJSON, &s.MatchRule)
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSubscription removes a user's subscription by uid.
func (db *DB) DeleteSubscription(ctx context.Context, uid string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM subscriptions WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("storage: delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateEventLog records a canonicalized incoming event, deduped on
// SourceEventUID so a redelivered event is a no-op rather than a second
// row.
func (db *DB) CreateEventLog(ctx context.Context, e model.EventLog) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("storage: marshal event log payload: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO event_logs (uid, source_event_uid, event_type, payload, occurred_at, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		 ON CONFLICT (source_event_uid) DO NOTHING`,
		e.UID, e.SourceEventUID, e.EventType, payloadJSON, e.OccurredAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert event log: %w", err)
	}
	return nil
}

// GetEventLogBySourceUID looks up a previously recorded event by its
// source-assigned id, used to detect redelivery before reprocessing.
func (db *DB) GetEventLogBySourceUID(ctx context.Context, sourceEventUID string) (model.EventLog, error) {
	var e model.EventLog
	var payloadJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT uid, source_event_uid, event_type, payload, occurred_at, created_at
		 FROM event_logs WHERE source_event_uid = $1`, sourceEventUID,
	).Scan(&e.UID, &e.SourceEventUID, &e.EventType, &payloadJSON, &e.OccurredAt, &e.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.EventLog{}, ErrNotFound
		}
		return model.EventLog{}, fmt.Errorf("storage: get event log: %w", err)
	}
	_ = json.Unmarshal(payloadJSON, &e.Payload)
	return e, nil
}
