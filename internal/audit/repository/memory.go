package repository

import (
	"context"
	"sort"
	"sync"

	"ihire-proctoring/backend/internal/audit/domain"
)

// MemoryRepository keeps audit logs in process. Used with DATABASE_DRIVER=memory and in tests.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

// NewMemoryRepository returns an empty in-memory audit repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// List returns copies of the newest matching entries.
func (r *MemoryRepository) List(ctx context.Context, f domain.Filter) ([]*domain.AuditLog, error) {
	r.mu.Lock()
	out := make([]*domain.AuditLog, 0, len(r.entries))
	for _, e := range r.entries {
		if f.Matches(e) {
			c := *e
			out = append(out, &c)
		}
	}
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Create appends a copy of a.
func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	r.entries = append(r.entries, &c)
	return nil
}
