package tracking

import (
	"context"
	"sort"
	"sync"

	"medtrace/internal/domain"
)

type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]domain.CustodyEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]domain.CustodyEvent)}
}

func (s *MemoryStore) Append(_ context.Context, event domain.CustodyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.Serial] = append(s.events[event.Serial], event)
	return nil
}

func (s *MemoryStore) History(_ context.Context, serial string) ([]domain.CustodyEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]domain.CustodyEvent, len(s.events[serial]))
	copy(events, s.events[serial])
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events, nil
}

var _ Store = (*MemoryStore)(nil)
