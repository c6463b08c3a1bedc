package trustcontract

import (
	"context"
	"sort"
	"sync"
	"time"

	"medtrace/internal/domain"
	"medtrace/pkg/sentinel"
)

type MemoryStore struct {
	mu        sync.RWMutex
	contracts map[string]domain.Contract
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contracts: make(map[string]domain.Contract)}
}

func (s *MemoryStore) Create(_ context.Context, contract domain.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.contracts {
		if existing.Factory == contract.Factory && existing.Supplier == contract.Supplier &&
			existing.Status != domain.ContractRejected {
			return sentinel.ErrConflict
		}
	}
	s.contracts[contract.ID] = contract
	return nil
}

func (s *MemoryStore) Get(_ context.Context, contractID string) (domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contract, ok := s.contracts[contractID]
	if !ok {
		return domain.Contract{}, sentinel.ErrNotFound
	}
	return contract, nil
}

func (s *MemoryStore) Decide(_ context.Context, contractID string, status domain.ContractStatus, at time.Time) (domain.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contract, ok := s.contracts[contractID]
	if !ok {
		return domain.Contract{}, sentinel.ErrNotFound
	}
	if contract.Status != domain.ContractPending {
		return domain.Contract{}, sentinel.ErrInvalidState
	}
	contract.Status = status
	contract.DecidedAt = &at
	s.contracts[contractID] = contract
	return contract, nil
}

func (s *MemoryStore) Delete(_ context.Context, contractID, factory string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	contract, ok := s.contracts[contractID]
	if !ok || contract.Factory != factory {
		return sentinel.ErrNotFound
	}
	delete(s.contracts, contractID)
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Contract
	for _, c := range s.contracts {
		if filter.Factory != "" && c.Factory != filter.Factory {
			continue
		}
		if filter.Supplier != "" && c.Supplier != filter.Supplier {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) FindAccepted(_ context.Context, factory, supplier string) (domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contracts {
		if c.Factory == factory && c.Supplier == supplier && c.Status == domain.ContractAccepted {
			return c, nil
		}
	}
	return domain.Contract{}, sentinel.ErrNotFound
}

var _ Store = (*MemoryStore)(nil)
