package repository

import (
	"context"

	"ihire-proctoring/backend/internal/audit/domain"
)

// Repository persists the audit trail of the proctoring API.
type Repository interface {
	// Create appends a. The entry must have ID set.
	Create(ctx context.Context, a *domain.AuditLog) error
	// List returns the newest entries matching f, newest first.
	List(ctx context.Context, f domain.Filter) ([]*domain.AuditLog, error)
}
