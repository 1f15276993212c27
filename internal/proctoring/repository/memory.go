package repository

import (
	"context"
	"sort"
	"sync"

	"ihire-proctoring/backend/internal/proctoring/domain"
)

type memoryKey struct {
	sessionID string
	mockID    string
}

// MemoryRepository is an in-process Repository. Intended for development and tests; data is lost on exit.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[memoryKey]*domain.Session
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[memoryKey]*domain.Session)}
}

// Get returns a copy of the stored session, or nil if not found.
func (r *MemoryRepository) Get(ctx context.Context, sessionID, mockID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[memoryKey{sessionID, mockID}]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

// Create stores a copy of s with version 1.
func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := memoryKey{s.SessionID, s.MockID}
	if _, ok := r.m[k]; ok {
		return domain.ErrDuplicate
	}
	s.Version = 1
	r.m[k] = s.Clone()
	return nil
}

// Save replaces the stored session when expectedVersion matches.
func (r *MemoryRepository) Save(ctx context.Context, s *domain.Session, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := memoryKey{s.SessionID, s.MockID}
	cur, ok := r.m[k]
	if !ok || cur.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	s.Version = expectedVersion + 1
	r.m[k] = s.Clone()
	return nil
}

// List returns copies of matching sessions ordered by creation time.
func (r *MemoryRepository) List(ctx context.Context, f Filter) ([]*domain.Session, error) {
	r.mu.RLock()
	out := make([]*domain.Session, 0, len(r.m))
	for _, s := range r.m {
		if matches(s, f) {
			out = append(out, s.Clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func matches(s *domain.Session, f Filter) bool {
	if f.SessionID != "" && s.SessionID != f.SessionID {
		return false
	}
	if f.MockID != "" && s.MockID != f.MockID {
		return false
	}
	if f.UserEmail != "" && s.UserEmail != f.UserEmail {
		return false
	}
	if f.CreatedFrom != nil && s.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && s.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}
