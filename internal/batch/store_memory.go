package batch

import (
	"context"
	"sort"
	"sync"

	"medtrace/internal/domain"
	"medtrace/pkg/sentinel"
)

// MemoryStore keeps batches and units in maps. It backs unit tests and
// single-node development; the postgres store is the production path.
type MemoryStore struct {
	mu       sync.RWMutex
	batches  map[string]domain.Batch
	units    map[string]domain.Unit
	counters map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches:  make(map[string]domain.Batch),
		units:    make(map[string]domain.Unit),
		counters: make(map[string]int),
	}
}

func (s *MemoryStore) NextBatchNumber(_ context.Context, factory string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[factory]++
	return s.counters[factory], nil
}

func (s *MemoryStore) CreateBatch(_ context.Context, batch domain.Batch, units []domain.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, unit := range units {
		if _, exists := s.units[unit.Serial]; exists {
			return sentinel.ErrConflict
		}
	}
	if _, exists := s.batches[batch.ID]; exists {
		return sentinel.ErrConflict
	}
	s.batches[batch.ID] = batch
	for _, unit := range units {
		s.units[unit.Serial] = unit
	}
	return nil
}

func (s *MemoryStore) GetBatch(_ context.Context, batchID string) (domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return domain.Batch{}, sentinel.ErrNotFound
	}
	return batch, nil
}

func (s *MemoryStore) ListBatches(_ context.Context, filter Filter) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Batch
	for _, b := range s.batches {
		if filter.Factory != "" && b.Factory != filter.Factory {
			continue
		}
		if filter.Owner != "" && b.Owner != filter.Owner {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteBatch(_ context.Context, batchID, factory string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok || batch.Factory != factory {
		return sentinel.ErrNotFound
	}
	if batch.Status != domain.BatchPending {
		return sentinel.ErrInvalidState
	}
	delete(s.batches, batchID)
	for serial, unit := range s.units {
		if unit.BatchID == batchID {
			delete(s.units, serial)
		}
	}
	return nil
}

func (s *MemoryStore) UpdateBatchOwnerStatus(_ context.Context, batchID, owner string, status domain.BatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !batch.Status.CanTransition(status) {
		return sentinel.ErrInvalidState
	}
	batch.Owner = owner
	batch.Status = status
	s.batches[batchID] = batch
	return nil
}

func (s *MemoryStore) GetUnit(_ context.Context, serial string) (domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.units[serial]
	if !ok {
		return domain.Unit{}, sentinel.ErrNotFound
	}
	return unit, nil
}

func (s *MemoryStore) UnitsByBatch(_ context.Context, batchID string) ([]domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	units := make([]domain.Unit, 0, len(batch.Serials))
	for _, serial := range batch.Serials {
		if unit, ok := s.units[serial]; ok {
			units = append(units, unit)
		}
	}
	return units, nil
}

func (s *MemoryStore) SerialExists(_ context.Context, serial string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.units[serial]
	return ok, nil
}

func (s *MemoryStore) UpdateUnitOwner(_ context.Context, serial, fromOwner, toOwner, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.units[serial]
	if !ok {
		return sentinel.ErrNotFound
	}
	if unit.Owner != fromOwner || unit.SoldToPatient {
		return sentinel.ErrConflict
	}
	unit.Owner = toOwner
	unit.Location = location
	s.units[serial] = unit
	return nil
}

func (s *MemoryStore) MarkUnitSold(_ context.Context, serial, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.units[serial]
	if !ok {
		return sentinel.ErrNotFound
	}
	if unit.Owner != owner || unit.SoldToPatient {
		return sentinel.ErrConflict
	}
	unit.SoldToPatient = true
	s.units[serial] = unit
	return nil
}

var _ Store = (*MemoryStore)(nil)
