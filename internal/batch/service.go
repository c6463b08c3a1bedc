package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"medtrace/internal/domain"
	"medtrace/internal/platform/metrics"
	pkgerrors "medtrace/pkg/errors"
	"medtrace/pkg/sentinel"
)

// serialRetries bounds regeneration attempts on a serial collision. UUID
// collisions are practically unreachable; the loop exists so the error path
// is handled rather than assumed away.
const serialRetries = 3

// CreateInput carries the manufacturer-supplied batch details.
type CreateInput struct {
	MedicineName   string
	GenericName    string
	Price          int64
	Quantity       int
	ProductionDate time.Time
	ExpirationDate time.Time
}

// Service is the batch manager: it owns batch and unit creation, deletion
// and queries. Custody mutation goes through the custody engine, never here.
type Service struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store Store, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, metrics: m, logger: logger, now: time.Now}
}

// Create validates the input, allocates the per-factory batch number and the
// unit serials, and persists the batch with all units in one operation.
func (s *Service) Create(ctx context.Context, actor domain.Actor, input CreateInput) (domain.Batch, []domain.Unit, error) {
	if !actor.HasRole(domain.RoleManufacturer) {
		return domain.Batch{}, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only manufacturers create batches")
	}
	if input.MedicineName == "" || input.GenericName == "" {
		return domain.Batch{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "medicine and generic names are required")
	}
	if input.Price <= 0 {
		return domain.Batch{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if input.Quantity < 1 || input.Quantity > domain.MaxBatchQuantity {
		return domain.Batch{}, nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("quantity must be between 1 and %d", domain.MaxBatchQuantity))
	}

	now := s.now().UTC()
	productionDate := input.ProductionDate
	if productionDate.IsZero() {
		productionDate = now
	}
	expirationDate := input.ExpirationDate
	if expirationDate.IsZero() {
		expirationDate = productionDate.AddDate(3, 0, 0)
	}
	if !expirationDate.After(productionDate) {
		return domain.Batch{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "expiration must follow production")
	}

	seq, err := s.store.NextBatchNumber(ctx, actor.ID)
	if err != nil {
		return domain.Batch{}, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "allocate batch number", err)
	}
	if seq > domain.MaxBatchesPerFactory {
		return domain.Batch{}, nil, pkgerrors.New(pkgerrors.CodeCapacityExceeded, "factory batch number space exhausted")
	}

	batch := domain.Batch{
		ID:             uuid.NewString(),
		BatchNumber:    fmt.Sprintf("BA%04d", seq),
		Factory:        actor.ID,
		Owner:          actor.ID,
		MedicineName:   input.MedicineName,
		GenericName:    input.GenericName,
		Price:          input.Price,
		Quantity:       input.Quantity,
		Status:         domain.BatchPending,
		ProductionDate: productionDate,
		ExpirationDate: expirationDate,
		CreatedAt:      now,
	}

	units, err := s.issueUnits(ctx, batch, actor)
	if err != nil {
		return domain.Batch{}, nil, err
	}
	for _, unit := range units {
		batch.Serials = append(batch.Serials, unit.Serial)
	}

	if err := s.store.CreateBatch(ctx, batch, units); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Unique-serial backstop fired despite the pre-check; surface
			// for the caller to retry rather than looping here.
			return domain.Batch{}, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "serial collision on insert", err)
		}
		return domain.Batch{}, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "create batch", err)
	}

	s.metrics.BatchesCreated.Inc()
	s.metrics.UnitsIssued.Add(float64(len(units)))
	s.logger.InfoContext(ctx, "batch created",
		"batch_number", batch.BatchNumber,
		"factory", actor.ID,
		"quantity", batch.Quantity,
	)
	return batch, units, nil
}

func (s *Service) issueUnits(ctx context.Context, batch domain.Batch, actor domain.Actor) ([]domain.Unit, error) {
	units := make([]domain.Unit, 0, batch.Quantity)
	seen := make(map[string]struct{}, batch.Quantity)
	for i := 0; i < batch.Quantity; i++ {
		serial, err := s.uniqueSerial(ctx, seen)
		if err != nil {
			return nil, err
		}
		seen[serial] = struct{}{}
		units = append(units, domain.Unit{
			Serial:         serial,
			BatchID:        batch.ID,
			Factory:        actor.ID,
			MedicineName:   batch.MedicineName,
			GenericName:    batch.GenericName,
			Price:          batch.Price,
			Owner:          actor.ID,
			Location:       actor.Location,
			ProductionDate: batch.ProductionDate,
			ExpirationDate: batch.ExpirationDate,
		})
	}
	return units, nil
}

func (s *Service) uniqueSerial(ctx context.Context, seen map[string]struct{}) (string, error) {
	for attempt := 0; attempt < serialRetries; attempt++ {
		serial := uuid.NewString()
		if _, dup := seen[serial]; dup {
			continue
		}
		exists, err := s.store.SerialExists(ctx, serial)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, "check serial uniqueness", err)
		}
		if !exists {
			return serial, nil
		}
	}
	// Exhausting retries means the serial space is effectively saturated;
	// operator intervention, not silent retry.
	return "", pkgerrors.New(pkgerrors.CodeInternal, "unable to allocate unique serial")
}

// Delete removes a pending batch and all of its units. Only the originating
// factory may delete, and only before any custody transfer happened.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, batchID string) error {
	if !actor.HasRole(domain.RoleManufacturer) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "only manufacturers delete batches")
	}
	err := s.store.DeleteBatch(ctx, batchID, actor.ID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return pkgerrors.New(pkgerrors.CodeInvalidState, "only pending batches can be deleted")
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, "delete batch", err)
	}
	s.logger.InfoContext(ctx, "batch deleted", "batch_id", batchID, "factory", actor.ID)
	return nil
}

// Get returns a batch visible to the actor (its factory or current owner).
func (s *Service) Get(ctx context.Context, actor domain.Actor, batchID string) (domain.Batch, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.Batch{}, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
	}
	if err != nil {
		return domain.Batch{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "get batch", err)
	}
	if batch.Factory != actor.ID && batch.Owner != actor.ID {
		return domain.Batch{}, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
	}
	return batch, nil
}

// List returns batches scoped by the actor's role: manufacturers see what
// they issued, suppliers and pharmacies see what they currently hold.
func (s *Service) List(ctx context.Context, actor domain.Actor, status domain.BatchStatus) ([]domain.Batch, error) {
	filter := Filter{Status: status}
	switch actor.Role {
	case domain.RoleManufacturer:
		filter.Factory = actor.ID
	case domain.RoleSupplier, domain.RolePharmacy:
		filter.Owner = actor.ID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown role")
	}
	batches, err := s.store.ListBatches(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "list batches", err)
	}
	return batches, nil
}

// ListHeldBy returns the factory's batches currently held by one supplier.
func (s *Service) ListHeldBy(ctx context.Context, actor domain.Actor, holderID string) ([]domain.Batch, error) {
	if !actor.HasRole(domain.RoleManufacturer) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only manufacturers query held batches")
	}
	if holderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "holder id is required")
	}
	batches, err := s.store.ListBatches(ctx, Filter{Factory: actor.ID, Owner: holderID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "list held batches", err)
	}
	return batches, nil
}

// Unit returns a unit by serial for provenance lookups.
func (s *Service) Unit(ctx context.Context, serial string) (domain.Unit, error) {
	if serial == "" {
		return domain.Unit{}, pkgerrors.New(pkgerrors.CodeValidation, "serial is required")
	}
	unit, err := s.store.GetUnit(ctx, serial)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.Unit{}, pkgerrors.New(pkgerrors.CodeNotFound, "unit not found")
	}
	if err != nil {
		return domain.Unit{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "get unit", err)
	}
	return unit, nil
}
