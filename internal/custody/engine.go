package custody

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medtrace/internal/domain"
	"medtrace/internal/ledger"
	"medtrace/internal/platform/metrics"
	pkgerrors "medtrace/pkg/errors"
	"medtrace/pkg/sentinel"
)

// TransferResult is the per-unit outcome of a transfer. Err is nil on
// success; TxRef is empty when the unit was already at the target owner and
// no ledger transaction was needed.
type TransferResult struct {
	Serial string
	TxRef  string
	Err    error
}

// Engine moves custody of units and batches. The protocol is ledger-first:
// the relational owner is updated only after the ledger confirmed, so a
// ledger failure leaves the unit at its prior owner and the operation is
// safe to retry.
type Engine struct {
	store   UnitStore
	orders  OrderGate
	ledger  ledger.Client
	tracker Tracker
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func NewEngine(store UnitStore, orders OrderGate, lc ledger.Client, tracker Tracker, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		store:   store,
		orders:  orders,
		ledger:  lc,
		tracker: tracker,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("medtrace/custody"),
		now:     time.Now,
	}
}

// RegisterBatch records genesis custody for freshly issued units: one
// ledger registration and one local event per unit. Registration failures
// are logged and leave the event without a transaction reference; the
// reconciler picks those up later. The batch itself is already durable.
func (e *Engine) RegisterBatch(ctx context.Context, batch domain.Batch, units []domain.Unit) {
	ctx, span := e.tracer.Start(ctx, "custody.RegisterBatch",
		trace.WithAttributes(attribute.String("batch_id", batch.ID)))
	defer span.End()

	for _, unit := range units {
		txRef := ""
		receipt, err := e.callLedger(ctx, "register", func(ctx context.Context) (ledger.Receipt, error) {
			return e.ledger.Register(ctx, ledger.RegisterRequest{
				Serial:       unit.Serial,
				BatchNumber:  batch.BatchNumber,
				MedicineName: unit.MedicineName,
				Factory:      batch.Factory,
				Location:     unit.Location,
			})
		})
		if err != nil {
			e.logger.WarnContext(ctx, "ledger registration failed, event recorded without tx ref",
				"serial", unit.Serial, "error", err)
		} else {
			txRef = receipt.TxRef
		}

		event := domain.CustodyEvent{
			ID:           uuid.NewString(),
			Serial:       unit.Serial,
			ToOwner:      batch.Factory,
			Location:     unit.Location,
			MedicineName: unit.MedicineName,
			LedgerTxRef:  txRef,
			Timestamp:    e.now().UTC(),
		}
		if err := e.tracker.Append(ctx, event); err != nil {
			e.logger.ErrorContext(ctx, "genesis custody event append failed",
				"serial", unit.Serial, "error", err)
		}
	}
}

// TransferUnit moves custody of one unit from the calling owner to toOwner.
func (e *Engine) TransferUnit(ctx context.Context, actor domain.Actor, serial, toOwner, location string) (TransferResult, error) {
	ctx, span := e.tracer.Start(ctx, "custody.TransferUnit",
		trace.WithAttributes(attribute.String("serial", serial)))
	defer span.End()

	unit, err := e.store.GetUnit(ctx, serial)
	if errors.Is(err, sentinel.ErrNotFound) {
		return TransferResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "unit not found")
	}
	if err != nil {
		return TransferResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "get unit", err)
	}

	result := e.transferOne(ctx, unit, actor.ID, toOwner, location)
	if result.Err != nil {
		span.RecordError(result.Err)
	}
	return result, result.Err
}

// transferOne applies the two-step protocol for a single unit. The caller
// has already loaded the unit; from is the identity claiming to hold it.
func (e *Engine) transferOne(ctx context.Context, unit domain.Unit, from, toOwner, location string) TransferResult {
	result := TransferResult{Serial: unit.Serial}
	fail := func(err error) TransferResult {
		result.Err = err
		e.metrics.Transfers.WithLabelValues("failure").Inc()
		return result
	}

	if toOwner == "" || location == "" {
		return fail(pkgerrors.New(pkgerrors.CodeValidation, "recipient and location are required"))
	}
	if unit.SoldToPatient {
		return fail(pkgerrors.New(pkgerrors.CodeAlreadySold, "unit was sold to a patient"))
	}
	if from == toOwner {
		return fail(pkgerrors.New(pkgerrors.CodeSelfTransfer, "cannot transfer a unit to its current owner"))
	}
	if unit.Owner != from {
		// Stale retry or a caller who no longer holds the unit.
		return fail(pkgerrors.New(pkgerrors.CodeUnauthorized, "unit is not held by the caller"))
	}

	receipt, err := e.callLedger(ctx, "transfer", func(ctx context.Context) (ledger.Receipt, error) {
		return e.ledger.Transfer(ctx, ledger.TransferRequest{
			Serial:   unit.Serial,
			From:     from,
			To:       toOwner,
			Location: location,
		})
	})
	switch {
	case errors.Is(err, ledger.ErrRejected):
		return fail(pkgerrors.Wrap(pkgerrors.CodeLedgerRejected, "ledger transfer", err))
	case errors.Is(err, ledger.ErrNotFound):
		// Transferring a serial the chain never saw is a revert, not an
		// outage.
		return fail(pkgerrors.Wrap(pkgerrors.CodeLedgerRejected, "serial not registered on ledger", err))
	case err != nil:
		return fail(pkgerrors.Wrap(pkgerrors.CodeLedgerUnavailable, "ledger transfer", err))
	}

	if err := e.store.UpdateUnitOwner(ctx, unit.Serial, from, toOwner, location); err != nil {
		// The ledger committed but the relational copy did not follow. The
		// unit now needs reconciliation against the on-chain record.
		e.logger.ErrorContext(ctx, "relational update failed after ledger commit",
			"serial", unit.Serial, "tx_ref", receipt.TxRef, "error", err)
		e.metrics.Transfers.WithLabelValues("split").Inc()
		result.Err = pkgerrors.Wrap(pkgerrors.CodeInternal, "owner update after ledger commit, serial needs reconciliation", err)
		return result
	}

	event := domain.CustodyEvent{
		ID:           uuid.NewString(),
		Serial:       unit.Serial,
		FromOwner:    from,
		ToOwner:      toOwner,
		Location:     location,
		MedicineName: unit.MedicineName,
		LedgerTxRef:  receipt.TxRef,
		Timestamp:    e.now().UTC(),
	}
	if err := e.tracker.Append(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "custody event append failed",
			"serial", unit.Serial, "tx_ref", receipt.TxRef, "error", err)
	}

	e.metrics.Transfers.WithLabelValues("success").Inc()
	result.TxRef = receipt.TxRef
	return result
}

// TransferBatch moves every unit of a batch to toOwner, sequentially. A
// failure on one unit does not roll back earlier units; the per-unit result
// list tells the caller which subset to retry. Units already at toOwner are
// skipped, so retrying after a partial failure only touches the remainder.
// Batch owner and status advance only once every unit has moved.
func (e *Engine) TransferBatch(ctx context.Context, actor domain.Actor, batchID, toOwner, location string) ([]TransferResult, error) {
	ctx, span := e.tracer.Start(ctx, "custody.TransferBatch",
		trace.WithAttributes(attribute.String("batch_id", batchID)))
	defer span.End()

	batch, err := e.store.GetBatch(ctx, batchID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "get batch", err)
	}
	if toOwner == actor.ID {
		return nil, pkgerrors.New(pkgerrors.CodeSelfTransfer, "cannot transfer a batch to its current owner")
	}
	if batch.Owner != actor.ID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "batch is not held by the caller")
	}

	var next domain.BatchStatus
	switch batch.Status {
	case domain.BatchPending:
		next = domain.BatchReceived
		// Outbound shipment from the factory needs an accepted order for
		// this exact batch and recipient, checked here rather than trusting
		// the client's claim that one exists.
		if _, err := e.orders.FindAcceptedForBatch(ctx, batchID, toOwner); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNoValidContract, "no accepted order ships this batch to the recipient")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "check order", err)
		}
	case domain.BatchReceived:
		next = domain.BatchDelivered
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "batch custody is already terminal")
	}

	units, err := e.store.UnitsByBatch(ctx, batchID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "list units", err)
	}

	results := make([]TransferResult, 0, len(units))
	moved := 0
	for _, unit := range units {
		if unit.Owner == toOwner {
			// Already transferred by an earlier, partially failed attempt.
			results = append(results, TransferResult{Serial: unit.Serial})
			moved++
			continue
		}
		result := e.transferOne(ctx, unit, actor.ID, toOwner, location)
		if result.Err == nil {
			moved++
		}
		results = append(results, result)
	}

	if moved == len(units) {
		if err := e.store.UpdateBatchOwnerStatus(ctx, batchID, toOwner, next); err != nil {
			e.logger.ErrorContext(ctx, "batch status update failed after full transfer",
				"batch_id", batchID, "error", err)
			return results, pkgerrors.Wrap(pkgerrors.CodeInternal, "update batch status", err)
		}
		e.logger.InfoContext(ctx, "batch transferred",
			"batch_id", batchID, "to_owner", toOwner, "status", string(next))
	} else {
		e.logger.WarnContext(ctx, "batch transfer incomplete",
			"batch_id", batchID, "moved", moved, "total", len(units))
	}
	return results, nil
}

// SellToPatient marks a unit as dispensed. Patients are outside the traced
// entity set, so this is a local terminal transition with no ledger call.
func (e *Engine) SellToPatient(ctx context.Context, actor domain.Actor, serial string) (domain.Unit, error) {
	unit, err := e.store.GetUnit(ctx, serial)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.Unit{}, pkgerrors.New(pkgerrors.CodeNotFound, "unit not found")
	}
	if err != nil {
		return domain.Unit{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "get unit", err)
	}
	if unit.SoldToPatient {
		return domain.Unit{}, pkgerrors.New(pkgerrors.CodeAlreadySold, "unit was already sold")
	}
	if unit.Owner != actor.ID {
		return domain.Unit{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "unit is not held by the caller")
	}

	if err := e.store.MarkUnitSold(ctx, serial, actor.ID); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return domain.Unit{}, pkgerrors.New(pkgerrors.CodeAlreadySold, "unit was already sold")
		}
		return domain.Unit{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "mark unit sold", err)
	}

	event := domain.CustodyEvent{
		ID:           uuid.NewString(),
		Serial:       serial,
		FromOwner:    actor.ID,
		ToOwner:      domain.PatientOwner,
		Location:     unit.Location,
		MedicineName: unit.MedicineName,
		Timestamp:    e.now().UTC(),
	}
	if err := e.tracker.Append(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "sale custody event append failed", "serial", serial, "error", err)
	}

	unit.SoldToPatient = true
	return unit, nil
}

// callLedger instruments one ledger call with latency and outcome metrics.
func (e *Engine) callLedger(ctx context.Context, op string, fn func(context.Context) (ledger.Receipt, error)) (ledger.Receipt, error) {
	start := e.now()
	receipt, err := fn(ctx)
	e.metrics.LedgerLatency.Observe(time.Since(start).Seconds())

	outcome := "ok"
	switch {
	case errors.Is(err, ledger.ErrRejected):
		outcome = "rejected"
	case err != nil:
		outcome = "unavailable"
	}
	e.metrics.LedgerCalls.WithLabelValues(op, outcome).Inc()
	return receipt, err
}
