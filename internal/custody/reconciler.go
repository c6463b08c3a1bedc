package custody

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medtrace/internal/domain"
	"medtrace/internal/ledger"
	pkgerrors "medtrace/pkg/errors"
	"medtrace/pkg/sentinel"
)

// Report describes one reconciliation run for a serial.
type Report struct {
	Serial      string
	LocalOwner  string
	LedgerOwner string
	LedgerTxRef string
	Repaired    bool
}

// Reconcile repairs a unit's dual-write state against the ledger. Two
// divergences are repairable: the chain moved but the relational copy never
// followed (owner is copied back from the chain record), and the chain has
// no record at all because the genesis registration failed (the
// registration is re-submitted). It is idempotent: when the two stores
// already agree it changes nothing.
func (e *Engine) Reconcile(ctx context.Context, serial string) (Report, error) {
	ctx, span := e.tracer.Start(ctx, "custody.Reconcile",
		trace.WithAttributes(attribute.String("serial", serial)))
	defer span.End()

	unit, err := e.store.GetUnit(ctx, serial)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Report{}, pkgerrors.New(pkgerrors.CodeNotFound, "unit not found")
	}
	if err != nil {
		return Report{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "get unit", err)
	}

	record, err := e.ledger.Current(ctx, serial)
	if errors.Is(err, ledger.ErrNotFound) {
		// The genesis registration never reached the chain. Without it every
		// transfer of this serial is rejected, so the registration itself is
		// the thing to repair.
		return e.repairRegistration(ctx, unit)
	}
	if err != nil {
		e.metrics.Reconciliations.WithLabelValues("failed").Inc()
		return Report{}, pkgerrors.Wrap(pkgerrors.CodeLedgerUnavailable, "query ledger record", err)
	}

	report := Report{
		Serial:      serial,
		LocalOwner:  unit.Owner,
		LedgerOwner: record.Owner,
		LedgerTxRef: record.TxRef,
	}
	if unit.Owner == record.Owner {
		e.metrics.Reconciliations.WithLabelValues("consistent").Inc()
		return report, nil
	}

	if err := e.store.UpdateUnitOwner(ctx, serial, unit.Owner, record.Owner, record.Location); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Someone else moved the unit while we were looking. If it now
			// matches the ledger the repair already happened.
			current, getErr := e.store.GetUnit(ctx, serial)
			if getErr == nil && current.Owner == record.Owner {
				e.metrics.Reconciliations.WithLabelValues("consistent").Inc()
				report.LocalOwner = current.Owner
				return report, nil
			}
		}
		e.metrics.Reconciliations.WithLabelValues("failed").Inc()
		return Report{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "repair unit owner", err)
	}

	event := domain.CustodyEvent{
		ID:           uuid.NewString(),
		Serial:       serial,
		FromOwner:    unit.Owner,
		ToOwner:      record.Owner,
		Location:     record.Location,
		MedicineName: unit.MedicineName,
		LedgerTxRef:  record.TxRef,
		Timestamp:    e.now().UTC(),
	}
	if err := e.tracker.Append(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "reconciliation event append failed", "serial", serial, "error", err)
	}

	e.logger.InfoContext(ctx, "unit reconciled against ledger",
		"serial", serial, "from", unit.Owner, "to", record.Owner, "tx_ref", record.TxRef)
	e.metrics.Reconciliations.WithLabelValues("repaired").Inc()
	report.Repaired = true
	return report, nil
}

// repairRegistration re-submits a genesis registration that never reached
// the chain. The local genesis event already exists, only without a tx ref,
// so no event is appended; the chain record is the missing half.
func (e *Engine) repairRegistration(ctx context.Context, unit domain.Unit) (Report, error) {
	batch, err := e.store.GetBatch(ctx, unit.BatchID)
	if err != nil {
		e.metrics.Reconciliations.WithLabelValues("failed").Inc()
		return Report{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "get batch for registration repair", err)
	}

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
		e.metrics.Reconciliations.WithLabelValues("failed").Inc()
		code := pkgerrors.CodeLedgerUnavailable
		if errors.Is(err, ledger.ErrRejected) {
			code = pkgerrors.CodeLedgerRejected
		}
		return Report{}, pkgerrors.Wrap(code, "re-register serial on ledger", err)
	}

	e.logger.InfoContext(ctx, "missing ledger registration repaired",
		"serial", unit.Serial, "tx_ref", receipt.TxRef)
	e.metrics.Reconciliations.WithLabelValues("repaired").Inc()
	return Report{
		Serial:      unit.Serial,
		LocalOwner:  unit.Owner,
		LedgerOwner: batch.Factory,
		LedgerTxRef: receipt.TxRef,
		Repaired:    true,
	}, nil
}
