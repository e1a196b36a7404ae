package profile

import (
	"context"
	"sync"

	"othertales/pkg/domain"
	dErrors "othertales/pkg/domain-errors"
)

// MemoryStore is an in-memory Store for tests and dependency-free runs.
// The version compare-and-swap matches the Postgres implementation so
// concurrency behaviour is observable without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[domain.UserID]*Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[domain.UserID]*Profile)}
}

func (s *MemoryStore) Create(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[p.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "profile already exists")
	}
	s.profiles[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id domain.UserID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.profiles[id]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
	}
	return stored.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.profiles[p.ID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "profile not found")
	}
	if stored.Version != p.Version {
		return dErrors.New(dErrors.CodeConflict, "profile version mismatch")
	}
	p.Version++
	s.profiles[p.ID] = p.Clone()
	return nil
}

// SnapshotUser captures one user's profile for transactional rollback. A nil
// snapshot means the profile did not exist yet.
func (s *MemoryStore) SnapshotUser(id domain.UserID) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return (*Profile)(nil)
	}
	return p.Clone()
}

// RestoreUser puts one user's profile back to a snapshot taken earlier.
// Other users' entries are never touched.
func (s *MemoryStore) RestoreUser(id domain.UserID, snapshot any) {
	p, ok := snapshot.(*Profile)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		delete(s.profiles, id)
		return
	}
	s.profiles[id] = p.Clone()
}
