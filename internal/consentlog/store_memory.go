package consentlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"othertales/pkg/domain"
)

// MemoryStore is an in-memory Store for tests and dependency-free runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[domain.UserID][]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[domain.UserID][]Record)}
}

func (s *MemoryStore) Append(_ context.Context, userID domain.UserID, consentType domain.ConsentType, granted bool, ipAddress, userAgent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = append(s.records[userID], Record{
		ID:          uuid.New(),
		UserID:      userID,
		ConsentType: consentType,
		Granted:     granted,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		RecordedAt:  time.Now().UTC(),
	})
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID domain.UserID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.records[userID]
	out := make([]Record, 0, len(stored))
	// Insertion order is oldest first; reverse for most recent first.
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}

// SnapshotUser captures how many records one user has, for transactional
// rollback. The log is append-only, so a length is enough to undo appends.
func (s *MemoryStore) SnapshotUser(id domain.UserID) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[id])
}

// RestoreUser truncates one user's records back to a snapshot taken earlier.
// Other users' entries are never touched.
func (s *MemoryStore) RestoreUser(id domain.UserID, snapshot any) {
	n, ok := snapshot.(int)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if recs := s.records[id]; len(recs) > n {
		s.records[id] = recs[:n]
	}
}
