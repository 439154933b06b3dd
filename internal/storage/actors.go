package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/evidentia-ai/evidentia/internal/model"
)

// CreateActor inserts a new registered Actor.
func (db *DB) CreateActor(ctx context.Context, a model.Actor) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO actors (uid, actor_id, name, role, api_key_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.UID, a.ActorID, a.Name, a.Role, a.APIKeyHash, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert actor: %w", err)
	}
	return nil
}

// GetActorByActorID looks up an Actor by its public actor_id.
func (db *DB) GetActorByActorID(ctx context.Context, actorID string) (model.Actor, error) {
	var a model.Actor
	err := db.pool.QueryRow(ctx,
		`SELECT uid, actor_id, name, role, api_key_hash, created_at, updated_at
		 FROM actors WHERE actor_id = $1`, actorID,
	).Scan(&a.UID, &a.ActorID, &a.Name, &a.Role, &a.APIKeyHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Actor{}, ErrNotFound
		}
		return model.Actor{}, fmt.Errorf("storage: get actor: %w", err)
	}
	return a, nil
}

// CreateAPIKey inserts an API key record (prefix + hash only; the raw key
// is never persisted).
func (db *DB) CreateAPIKey(ctx context.Context, k model.APIKey) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO api_keys (uid, prefix, key_hash, actor_id, label, created_at, last_used_at, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		k.UID, k.Prefix, k.KeyHash, k.ActorID, k.Label, k.CreatedAt, k.LastUsedAt, k.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert api key: %w", err)
	}
	return nil
}

// GetAPIKeysByPrefix returns every non-revoked key sharing a lookup
// prefix. Most prefixes resolve to exactly one row; callers verify the raw
// key against each candidate's hash until one matches.
func (db *DB) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]model.APIKey, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uid, prefix, key_hash, actor_id, label, created_at, last_used_at, revoked_at
		 FROM api_keys WHERE prefix = $1 AND revoked_at IS NULL`, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get api keys by prefix: %w", err)
	}
	defer rows.Close()

	var out []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.UID, &k.Prefix, &k.KeyHash, &k.ActorID, &k.Label, &k.CreatedAt, &k.LastUsedAt, &k.RevokedAt); err != nil {
			return nil, fmt.Errorf("storage: scan api key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// TouchAPIKeyLastUsed records the current time as an API key's last-used
// timestamp, best-effort: callers should not fail an authenticated request
// solely because this write fails.
func (db *DB) TouchAPIKeyLastUsed(ctx context.Context, uid string) error {
	_, err := db.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("storage: touch api key: %w", err)
	}
	return nil
}

// RevokeAPIKey marks an API key as revoked, so GetAPIKeysByPrefix stops
// returning it.
func (db *DB) RevokeAPIKey(ctx context.Context, uid string) error {
	tag, err := db.pool.Exec(ctx, `UPDATE api_keys SET revoked_at = now() WHERE uid = $1 AND revoked_at IS NULL`, uid)
	if err != nil {
		return fmt.Errorf("storage: revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
