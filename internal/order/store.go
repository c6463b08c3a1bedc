package order

import (
	"context"
	"time"

	"medtrace/internal/domain"
)

// Filter scopes order listings. Zero values mean "any".
type Filter struct {
	Factory  string
	Supplier string
	Status   domain.OrderStatus
}

// Store persists orders. Decide is a compare-and-swap from pending
// (sentinel.ErrInvalidState once terminal); Cancel removes a pending order
// owned by the factory.
type Store interface {
	Create(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	Decide(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time) (domain.Order, error)
	Cancel(ctx context.Context, orderID, factory string) error
	List(ctx context.Context, filter Filter) ([]domain.Order, error)
	// FindAcceptedForBatch returns the accepted order shipping batchID to
	// the given supplier; the custody engine re-validates through this at
	// transfer time.
	FindAcceptedForBatch(ctx context.Context, batchID, supplier string) (domain.Order, error)
}
