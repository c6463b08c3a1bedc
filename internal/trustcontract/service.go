// Package trustcontract manages the bilateral manufacturer-supplier trust
// relationships that gate order creation.
package trustcontract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"medtrace/internal/directory"
	"medtrace/internal/domain"
	pkgerrors "medtrace/pkg/errors"
	"medtrace/pkg/sentinel"
)

type Service struct {
	store     Store
	directory directory.Directory
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store Store, dir directory.Directory, logger *slog.Logger) *Service {
	return &Service{store: store, directory: dir, logger: logger, now: time.Now}
}

// Propose creates a pending contract from the manufacturer to a supplier.
func (s *Service) Propose(ctx context.Context, actor domain.Actor, supplierID, description string) (domain.Contract, error) {
	if !actor.HasRole(domain.RoleManufacturer) {
		return domain.Contract{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "only manufacturers propose contracts")
	}
	if supplierID == "" {
		return domain.Contract{}, pkgerrors.New(pkgerrors.CodeValidation, "supplier id is required")
	}
	target, err := s.directory.FindByID(ctx, supplierID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.Contract{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown supplier")
	}
	if err != nil {
		return domain.Contract{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "resolve supplier", err)
	}
	if target.Role != domain.RoleSupplier {
		return domain.Contract{}, pkgerrors.New(pkgerrors.CodeValidation, "target account is not a supplier")
	}

	contract := domain.Contract{
		ID:          uuid.NewString(),
		Factory:     actor.ID,
		Supplier:    supplierID,
		Description: description,
		Status:      domain.ContractPending,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, contract); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return domain.Contract{}, pkgerrors.New(pkgerrors.CodeInvalidState, "an active contract already exists for this supplier")
		}
		return domain.Contract{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "create contract", err)
	}
	s.logger.InfoContext(ctx, "contract proposed", "contract_id", contract.ID, "factory", actor.ID, "supplier", supplierID)
	return contract, nil
}

// Respond lets the named supplier accept or reject a pending contract.
// Terminal statuses are write-once; responding twice fails InvalidState.
func (s *Service) Respond(ctx context.Context, actor domain.Actor, contractID string, decision domain.ContractStatus) (domain.Contract, error) {
	if decision != domain.ContractAccepted && decision != domain.ContractRejected {
		return domain.Contract{}, pkgerrors.New(pkgerrors.CodeValidation, "decision must be accepted or rejected")
	}
	contract, err := s.store.Get(ctx, contractID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.Contract{}, pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
	}
	if err != nil {
		return domain.Contract{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "get contract", err)
	}
	if contract.Supplier != actor.ID {
		return domain.Contract{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the named supplier may respond")
	}

	decided, err := s.store.Decide(ctx, contractID, decision, s.now().UTC())
	switch {
	case errors.Is(err, sentinel.ErrInvalidState):
		return domain.Contract{}, pkgerrors.New(pkgerrors.CodeInvalidState, "contract is no longer pending")
	case errors.Is(err, sentinel.ErrNotFound):
		return domain.Contract{}, pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
	case err != nil:
		return domain.Contract{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "decide contract", err)
	}
	s.logger.InfoContext(ctx, "contract decided", "contract_id", contractID, "status", string(decision))
	return decided, nil
}

// Revoke deletes a contract; only the proposing factory may do so.
func (s *Service) Revoke(ctx context.Context, actor domain.Actor, contractID string) error {
	if !actor.HasRole(domain.RoleManufacturer) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "only manufacturers revoke contracts")
	}
	err := s.store.Delete(ctx, contractID, actor.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, "revoke contract", err)
	}
	return nil
}

// Get returns a contract visible to one of its participants.
func (s *Service) Get(ctx context.Context, actor domain.Actor, contractID string) (domain.Contract, error) {
	contract, err := s.store.Get(ctx, contractID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.Contract{}, pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
	}
	if err != nil {
		return domain.Contract{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "get contract", err)
	}
	if contract.Factory != actor.ID && contract.Supplier != actor.ID {
		return domain.Contract{}, pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
	}
	return contract, nil
}

// List returns the actor's contracts, optionally filtered by status.
func (s *Service) List(ctx context.Context, actor domain.Actor, status domain.ContractStatus) ([]domain.Contract, error) {
	filter := Filter{Status: status}
	switch actor.Role {
	case domain.RoleManufacturer:
		filter.Factory = actor.ID
	case domain.RoleSupplier:
		filter.Supplier = actor.ID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown role")
	}
	contracts, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "list contracts", err)
	}
	return contracts, nil
}

// AcceptedSuppliers lists the suppliers a factory can currently order from.
func (s *Service) AcceptedSuppliers(ctx context.Context, actor domain.Actor) ([]domain.Contract, error) {
	if !actor.HasRole(domain.RoleManufacturer) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "only manufacturers list accepted suppliers")
	}
	contracts, err := s.store.List(ctx, Filter{Factory: actor.ID, Status: domain.ContractAccepted})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "list accepted contracts", err)
	}
	return contracts, nil
}

// HasAccepted reports whether an accepted contract exists for the pair.
// The order workflow and custody engine both gate on this.
func (s *Service) HasAccepted(ctx context.Context, factory, supplier string) (bool, error) {
	_, err := s.store.FindAccepted(ctx, factory, supplier)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, "find accepted contract", err)
	}
	return true, nil
}
