package repository

import (
	"context"
	"time"

	"ihire-proctoring/backend/internal/proctoring/domain"
)

// Filter narrows List. Empty fields are ignored; CreatedFrom/CreatedTo bound created_at inclusively.
type Filter struct {
	SessionID   string
	MockID      string
	UserEmail   string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Repository defines persistence for proctoring sessions.
type Repository interface {
	// Get returns the session for (sessionID, mockID), or nil if not found.
	// It returns an error only for storage failures, not for missing rows.
	Get(ctx context.Context, sessionID, mockID string) (*domain.Session, error)
	// Create inserts s with version 1. Returns domain.ErrDuplicate if the key already exists.
	Create(ctx context.Context, s *domain.Session) error
	// Save overwrites the stored session only if its version still equals expectedVersion,
	// then sets s.Version to the new version. Returns domain.ErrVersionConflict otherwise.
	Save(ctx context.Context, s *domain.Session, expectedVersion int64) error
	// List returns sessions matching f ordered by creation time.
	List(ctx context.Context, f Filter) ([]*domain.Session, error)
}
