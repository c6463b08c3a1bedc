// Package ledger wraps the external append-only ledger (the deployed
// tracking contract) as an opaque capability. All calls are network I/O and
// fallible; callers must treat ErrUnavailable as retryable and ErrRejected
// as a permanent on-chain revert.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable means the ledger could not be reached or timed out.
	// The transaction may or may not have landed; retry is safe because
	// on-chain ownership checks make re-submission of a completed transfer
	// revert instead of double-applying.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrRejected means the ledger explicitly reverted the transaction.
	ErrRejected = errors.New("ledger rejected transaction")

	// ErrNotFound means the serial has no on-chain record.
	ErrNotFound = errors.New("no ledger record")
)

// Receipt identifies a confirmed ledger transaction.
type Receipt struct {
	TxRef       string
	BlockNumber uint64
}

// CustodyRecord is one on-chain custody entry for a serial.
type CustodyRecord struct {
	Serial    string
	Owner     string
	Location  string
	TxRef     string
	Timestamp time.Time
}

// RegisterRequest registers a freshly issued unit under its factory.
type RegisterRequest struct {
	Serial       string
	BatchNumber  string
	MedicineName string
	Factory      string
	Location     string
}

// TransferRequest moves on-chain custody of one unit. From is the signing
// identity; submissions from the same signer are serialized by the client.
type TransferRequest struct {
	Serial   string
	From     string
	To       string
	Location string
}

// Client is the capability consumed by the custody engine. Implementations
// must serialize submissions per signing address because the backend orders
// transactions by a per-signer sequence number.
type Client interface {
	Register(ctx context.Context, req RegisterRequest) (Receipt, error)
	Transfer(ctx context.Context, req TransferRequest) (Receipt, error)
	History(ctx context.Context, serial string) ([]CustodyRecord, error)
	Current(ctx context.Context, serial string) (CustodyRecord, error)
}
