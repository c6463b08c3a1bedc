package trustcontract

import (
	"context"
	"time"

	"medtrace/internal/domain"
)

// Filter scopes contract listings. Zero values mean "any".
type Filter struct {
	Factory  string
	Supplier string
	Status   domain.ContractStatus
}

// Store persists bilateral trust contracts. Implementations enforce at most
// one active (pending or accepted) contract per (factory, supplier) pair
// (sentinel.ErrConflict) and make Decide a compare-and-swap from pending
// (sentinel.ErrInvalidState when the contract already left pending).
type Store interface {
	Create(ctx context.Context, contract domain.Contract) error
	Get(ctx context.Context, contractID string) (domain.Contract, error)
	Decide(ctx context.Context, contractID string, status domain.ContractStatus, at time.Time) (domain.Contract, error)
	Delete(ctx context.Context, contractID, factory string) error
	List(ctx context.Context, filter Filter) ([]domain.Contract, error)
	// FindAccepted returns the accepted contract between the pair, if any.
	FindAccepted(ctx context.Context, factory, supplier string) (domain.Contract, error)
}
