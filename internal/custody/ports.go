// Package custody implements the ownership-transfer engine. It is the only
// writer of unit owner/location and of custody events, and it owns the
// dual-write protocol between the relational store and the external ledger.
package custody

import (
	"context"

	"medtrace/internal/domain"
)

// UnitStore is the slice of the batch store the engine mutates. Owner
// updates are conditional on the expected current owner so retried
// transfers cannot double-apply.
type UnitStore interface {
	GetBatch(ctx context.Context, batchID string) (domain.Batch, error)
	UnitsByBatch(ctx context.Context, batchID string) ([]domain.Unit, error)
	GetUnit(ctx context.Context, serial string) (domain.Unit, error)
	UpdateUnitOwner(ctx context.Context, serial, fromOwner, toOwner, location string) error
	MarkUnitSold(ctx context.Context, serial, owner string) error
	UpdateBatchOwnerStatus(ctx context.Context, batchID, owner string, status domain.BatchStatus) error
}

// OrderGate re-validates at transfer time that an accepted order ships the
// batch to the receiving supplier. Implemented by the order store.
type OrderGate interface {
	FindAcceptedForBatch(ctx context.Context, batchID, supplier string) (domain.Order, error)
}

// Tracker appends to the local chain-of-custody history.
type Tracker interface {
	Append(ctx context.Context, event domain.CustodyEvent) error
}
