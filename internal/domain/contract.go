package domain

import "time"

// ContractStatus is write-once after leaving pending.
type ContractStatus string

const (
	ContractPending  ContractStatus = "pending"
	ContractAccepted ContractStatus = "accepted"
	ContractRejected ContractStatus = "rejected"
)

// Contract is the bilateral trust record between a manufacturer and a
// supplier. Only an accepted contract gates order creation.
type Contract struct {
	ID          string
	Factory     string
	Supplier    string
	Description string
	Status      ContractStatus
	CreatedAt   time.Time
	DecidedAt   *time.Time
}

// Terminal reports whether the status can no longer change.
func (s ContractStatus) Terminal() bool {
	return s == ContractAccepted || s == ContractRejected
}
