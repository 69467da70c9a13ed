package reconciliation

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore keeps pending users in process memory. Records are lost on
// restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]PendingUser
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[uuid.UUID]PendingUser),
	}
}

func (s *InMemoryStore) Save(_ context.Context, p PendingUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[p.ID] = p
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]PendingUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PendingUser, 0, len(s.records))
	for _, p := range s.records {
		out = append(out, p)
	}
	sortByCreated(out)
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func sortByCreated(records []PendingUser) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID.String() < records[j].ID.String()
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
