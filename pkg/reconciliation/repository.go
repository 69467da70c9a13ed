package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a pending record does not exist.
var ErrNotFound = errors.New("pending user not found")

// PendingUser is a provider user that was created but never received its
// realm role.
type PendingUser struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Stage     string    `json:"stage"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPendingUser fills in the id and creation time.
func NewPendingUser(userID, username, role, stage, detail string) PendingUser {
	return PendingUser{
		ID:        uuid.New(),
		UserID:    userID,
		Username:  username,
		Role:      role,
		Stage:     stage,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}

// Store persists pending users. Implementations are safe for concurrent use.
type Store interface {
	// Save inserts or replaces the record with the same ID.
	Save(ctx context.Context, p PendingUser) error
	// List returns all records, oldest first.
	List(ctx context.Context) ([]PendingUser, error)
	// Delete removes the record; ErrNotFound when it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}
