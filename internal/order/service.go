// Package order implements the contract-gated ordering workflow between
// manufacturers and suppliers. Orders are the precondition for batch
// custody transfers; the custody engine re-validates them at transfer time.
package order

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"medtrace/internal/domain"
	pkgerrors "medtrace/pkg/errors"
	"medtrace/pkg/sentinel"
)

// ContractGate answers whether an accepted trust contract exists for the
// (factory, supplier) pair. Implemented by the contract registry service.
type ContractGate interface {
	HasAccepted(ctx context.Context, factory, supplier string) (bool, error)
}

// BatchReader exposes the batch lookup the workflow needs. Implemented by
// the batch store.
type BatchReader interface {
	GetBatch(ctx context.Context, batchID string) (domain.Batch, error)
}

type Service struct {
	store     Store
	contracts ContractGate
	batches   BatchReader
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store Store, contracts ContractGate, batches BatchReader, logger *slog.Logger) *Service {
	return &Service{store: store, contracts: contracts, batches: batches, logger: logger, now: time.Now}
}

// Create opens a pending order. Requires an accepted contract with the
// supplier and a batch the factory still owns in its initial state.
func (s *Service) Create(ctx context.Context, actor domain.Actor, supplierID, batchID string) (domain.Order, error) {
	if !actor.HasRole(domain.RoleManufacturer) {
		return domain.Order{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "only manufacturers create orders")
	}
	if supplierID == "" || batchID == "" {
		return domain.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "supplier id and batch id are required")
	}

	ok, err := s.contracts.HasAccepted(ctx, actor.ID, supplierID)
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		return domain.Order{}, pkgerrors.New(pkgerrors.CodeNoValidContract, "no accepted contract with this supplier")
	}

	batch, err := s.batches.GetBatch(ctx, batchID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.Order{}, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
	}
	if err != nil {
		return domain.Order{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "get batch", err)
	}
	if batch.Owner != actor.ID {
		return domain.Order{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "batch is not owned by this factory")
	}
	if batch.Status != domain.BatchPending {
		return domain.Order{}, pkgerrors.New(pkgerrors.CodeInvalidState, "batch already left the factory")
	}

	order := domain.Order{
		ID:        uuid.NewString(),
		Factory:   actor.ID,
		Supplier:  supplierID,
		BatchID:   batchID,
		Status:    domain.OrderPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, order); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return domain.Order{}, pkgerrors.New(pkgerrors.CodeInvalidState, "an open order already exists for this batch")
		}
		return domain.Order{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "create order", err)
	}
	s.logger.InfoContext(ctx, "order created", "order_id", order.ID, "batch_id", batchID, "supplier", supplierID)
	return order, nil
}

// Respond lets the named supplier accept or reject a pending order.
func (s *Service) Respond(ctx context.Context, actor domain.Actor, orderID string, decision domain.OrderStatus) (domain.Order, error) {
	if decision != domain.OrderAccepted && decision != domain.OrderRejected {
		return domain.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "decision must be accepted or rejected")
	}
	order, err := s.store.Get(ctx, orderID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.Order{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return domain.Order{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "get order", err)
	}
	if order.Supplier != actor.ID {
		return domain.Order{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the named supplier may respond")
	}

	decided, err := s.store.Decide(ctx, orderID, decision, s.now().UTC())
	switch {
	case errors.Is(err, sentinel.ErrInvalidState):
		return domain.Order{}, pkgerrors.New(pkgerrors.CodeInvalidState, "order is no longer pending")
	case errors.Is(err, sentinel.ErrNotFound):
		return domain.Order{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	case err != nil:
		return domain.Order{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "decide order", err)
	}
	s.logger.InfoContext(ctx, "order decided", "order_id", orderID, "status", string(decision))
	return decided, nil
}

// Cancel withdraws a pending order; only its creator may cancel.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, orderID string) error {
	if !actor.HasRole(domain.RoleManufacturer) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "only manufacturers cancel orders")
	}
	err := s.store.Cancel(ctx, orderID, actor.ID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return pkgerrors.New(pkgerrors.CodeInvalidState, "only pending orders can be cancelled")
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, "cancel order", err)
	}
	return nil
}

// List returns the actor's orders, optionally filtered by status.
func (s *Service) List(ctx context.Context, actor domain.Actor, status domain.OrderStatus) ([]domain.Order, error) {
	filter := Filter{Status: status}
	switch actor.Role {
	case domain.RoleManufacturer:
		filter.Factory = actor.ID
	case domain.RoleSupplier:
		filter.Supplier = actor.ID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown role")
	}
	orders, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "list orders", err)
	}
	return orders, nil
}
