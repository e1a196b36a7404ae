package audit

import (
	"context"
	"sync"

	"othertales/pkg/domain"
)

// MemoryStore is an in-memory Store for tests and dependency-free runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Detail = cloneDetail(rec.Detail)
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) ListByActor(_ context.Context, userID domain.UserID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.ActorUserID != nil && *rec.ActorUserID == userID {
			rec.Detail = cloneDetail(rec.Detail)
			out = append(out, rec)
		}
	}
	return out, nil
}

// SnapshotUser captures how many records one actor has, for transactional
// rollback. The log is append-only, so a count is enough to undo appends.
func (s *MemoryStore) SnapshotUser(id domain.UserID) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countByActor(id)
}

// RestoreUser removes one actor's records appended since the snapshot,
// newest first. Other actors' entries are never touched.
func (s *MemoryStore) RestoreUser(id domain.UserID, snapshot any) {
	want, ok := snapshot.(int)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	have := s.countByActor(id)
	for i := len(s.records) - 1; i >= 0 && have > want; i-- {
		rec := s.records[i]
		if rec.ActorUserID != nil && *rec.ActorUserID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			have--
		}
	}
}

func (s *MemoryStore) countByActor(id domain.UserID) int {
	n := 0
	for _, rec := range s.records {
		if rec.ActorUserID != nil && *rec.ActorUserID == id {
			n++
		}
	}
	return n
}

func cloneDetail(d Detail) Detail {
	if d == nil {
		return nil
	}
	out := make(Detail, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
