package domain

import "time"

// BatchStatus is the canonical batch lifecycle vocabulary. Transitions are
// monotonic: pending -> received -> delivered, never back to pending.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchReceived  BatchStatus = "received"
	BatchDelivered BatchStatus = "delivered"
)

// MaxBatchQuantity bounds units per batch.
const MaxBatchQuantity = 1000

// MaxBatchesPerFactory bounds the BA#### sequence space per manufacturer.
const MaxBatchesPerFactory = 9999

// Batch groups units issued together by one manufacturer. BatchNumber is
// sequential per factory in the form BA0001..BA9999.
type Batch struct {
	ID             string
	BatchNumber    string
	Factory        string
	Owner          string
	MedicineName   string
	GenericName    string
	Price          int64
	Quantity       int
	Serials        []string
	Status         BatchStatus
	ProductionDate time.Time
	ExpirationDate time.Time
	CreatedAt      time.Time
}

// Unit is a single trackable product instance. Serial is assigned once at
// batch creation and never reused; Owner changes only through the custody
// engine; once SoldToPatient is set no further transfer is permitted.
type Unit struct {
	Serial         string
	BatchID        string
	Factory        string
	MedicineName   string
	GenericName    string
	Price          int64
	Owner          string
	Location       string
	SoldToPatient  bool
	ProductionDate time.Time
	ExpirationDate time.Time
}

// CanTransition reports whether the batch may move to the given status.
func (s BatchStatus) CanTransition(next BatchStatus) bool {
	switch s {
	case BatchPending:
		return next == BatchReceived || next == BatchDelivered
	case BatchReceived:
		return next == BatchDelivered
	default:
		return false
	}
}
