package store

import (
	"context"
	"sync"

	"github.com/gabepages/botkit/internal/models"
)

// MemoryStore is an in-process SlotStore for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[models.Identity]*models.Profile
	saves    *keyLock
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[models.Identity]*models.Profile),
		saves:    newKeyLock(),
	}
}

// Get retrieves a profile copy, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id models.Identity) (*models.Profile, error) {
	s.mu.RLock()
	p, ok := s.profiles[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Save upserts the full profile record.
func (s *MemoryStore) Save(ctx context.Context, profile *models.Profile) (models.Identity, error) {
	if profile == nil || profile.ID == "" {
		return "", ErrMissingIdentity
	}

	s.saves.Lock(profile.ID)
	defer s.saves.Unlock(profile.ID)

	s.mu.Lock()
	s.profiles[profile.ID] = profile.Clone()
	s.mu.Unlock()

	return profile.ID, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
