package reconciliation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pendingUsersSchema = `
CREATE TABLE IF NOT EXISTS gateway_pending_users (
    id          UUID PRIMARY KEY,
    user_id     TEXT NOT NULL,
    username    TEXT NOT NULL,
    role        TEXT NOT NULL,
    stage       TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool
func NewPostgresStore(db *pgxpool.Pool) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the pending users table if it does not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, pendingUsersSchema); err != nil {
		return fmt.Errorf("failed to create gateway_pending_users: %w", err)
	}
	return nil
}

// Save upserts a pending user
func (s *PostgresStore) Save(ctx context.Context, p PendingUser) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO gateway_pending_users (id, user_id, username, role, stage, detail, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    user_id = EXCLUDED.user_id,
    username = EXCLUDED.username,
    role = EXCLUDED.role,
    stage = EXCLUDED.stage,
    detail = EXCLUDED.detail`,
		p.ID, p.UserID, p.Username, p.Role, p.Stage, p.Detail, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save pending user: %w", err)
	}
	return nil
}

// List returns every pending user, oldest first
func (s *PostgresStore) List(ctx context.Context) ([]PendingUser, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, username, role, stage, detail, created_at
FROM gateway_pending_users
ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending users: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (PendingUser, error) {
		var p PendingUser
		err := row.Scan(&p.ID, &p.UserID, &p.Username, &p.Role, &p.Stage, &p.Detail, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending users: %w", err)
	}
	return records, nil
}

// Delete removes a pending user
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM gateway_pending_users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pending user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
