package domain

import "time"

// OrderStatus mirrors the contract vocabulary; accepted/rejected are final.
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderAccepted OrderStatus = "accepted"
	OrderRejected OrderStatus = "rejected"
)

// Order is a manufacturer's contract-backed intent to ship a batch to a
// supplier. An accepted order is re-validated by the custody engine at
// transfer time; stale client-side state is never trusted.
type Order struct {
	ID        string
	Factory   string
	Supplier  string
	BatchID   string
	Status    OrderStatus
	CreatedAt time.Time
	DecidedAt *time.Time
}

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	return s == OrderAccepted || s == OrderRejected
}
