package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"medtrace/internal/domain"
	"medtrace/pkg/sentinel"
)

type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]domain.Order)}
}

func (s *MemoryStore) Create(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.BatchID == order.BatchID && existing.Status == domain.OrderPending {
			return sentinel.ErrConflict
		}
	}
	s.orders[order.ID] = order
	return nil
}

func (s *MemoryStore) Get(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, sentinel.ErrNotFound
	}
	return order, nil
}

func (s *MemoryStore) Decide(_ context.Context, orderID string, status domain.OrderStatus, at time.Time) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, sentinel.ErrNotFound
	}
	if order.Status != domain.OrderPending {
		return domain.Order{}, sentinel.ErrInvalidState
	}
	order.Status = status
	order.DecidedAt = &at
	s.orders[orderID] = order
	return order, nil
}

func (s *MemoryStore) Cancel(_ context.Context, orderID, factory string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok || order.Factory != factory {
		return sentinel.ErrNotFound
	}
	if order.Status != domain.OrderPending {
		return sentinel.ErrInvalidState
	}
	delete(s.orders, orderID)
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, o := range s.orders {
		if filter.Factory != "" && o.Factory != filter.Factory {
			continue
		}
		if filter.Supplier != "" && o.Supplier != filter.Supplier {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) FindAcceptedForBatch(_ context.Context, batchID, supplier string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.BatchID == batchID && o.Supplier == supplier && o.Status == domain.OrderAccepted {
			return o, nil
		}
	}
	return domain.Order{}, sentinel.ErrNotFound
}

var _ Store = (*MemoryStore)(nil)
