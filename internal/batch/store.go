package batch

import (
	"context"

	"medtrace/internal/domain"
)

// Filter scopes batch listings. Zero values mean "any".
type Filter struct {
	Factory string
	Owner   string
	Status  domain.BatchStatus
}

// Store persists batches and units. Implementations must guarantee:
//   - NextBatchNumber is serialized per factory (no duplicate numbers under
//     concurrent creation), and numbers are never handed out twice;
//   - unit serials are globally unique (sentinel.ErrConflict on collision);
//   - the owner-changing writes are conditional on the expected current
//     owner (sentinel.ErrConflict on mismatch) so retried transfers cannot
//     double-apply.
type Store interface {
	NextBatchNumber(ctx context.Context, factory string) (int, error)
	CreateBatch(ctx context.Context, batch domain.Batch, units []domain.Unit) error
	GetBatch(ctx context.Context, batchID string) (domain.Batch, error)
	ListBatches(ctx context.Context, filter Filter) ([]domain.Batch, error)
	// DeleteBatch removes a pending batch owned by factory and cascades to
	// its units. sentinel.ErrNotFound when missing or not owned;
	// sentinel.ErrInvalidState when no longer pending.
	DeleteBatch(ctx context.Context, batchID, factory string) error
	UpdateBatchOwnerStatus(ctx context.Context, batchID, owner string, status domain.BatchStatus) error

	GetUnit(ctx context.Context, serial string) (domain.Unit, error)
	UnitsByBatch(ctx context.Context, batchID string) ([]domain.Unit, error)
	SerialExists(ctx context.Context, serial string) (bool, error)
	// UpdateUnitOwner applies the relational half of a custody transfer,
	// conditional on the current owner matching fromOwner.
	UpdateUnitOwner(ctx context.Context, serial, fromOwner, toOwner, location string) error
	// MarkUnitSold flips the terminal sold flag, conditional on owner and
	// on the unit not being sold already.
	MarkUnitSold(ctx context.Context, serial, owner string) error
}
