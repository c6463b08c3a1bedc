// Package ledgertest provides an in-memory ledger.Client with scriptable
// failures for exercising the custody engine's dual-write paths.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medtrace/internal/ledger"
)

// Fake implements ledger.Client in memory. Failure injection is per serial:
// set RegisterErr or TransferErr before the call under test.
type Fake struct {
	mu      sync.Mutex
	seq     int
	records map[string][]ledger.CustodyRecord

	// RegisterErr, when set, fails every Register call.
	RegisterErr error
	// TransferErr maps serials to the error their next Transfer returns.
	TransferErr map[string]error
}

// New returns an empty fake ledger.
func New() *Fake {
	return &Fake{
		records:     make(map[string][]ledger.CustodyRecord),
		TransferErr: make(map[string]error),
	}
}

func (f *Fake) nextRef() string {
	f.seq++
	return fmt.Sprintf("0xtx%04d", f.seq)
}

func (f *Fake) Register(_ context.Context, req ledger.RegisterRequest) (ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RegisterErr != nil {
		return ledger.Receipt{}, f.RegisterErr
	}
	ref := f.nextRef()
	f.records[req.Serial] = append(f.records[req.Serial], ledger.CustodyRecord{
		Serial:    req.Serial,
		Owner:     req.Factory,
		Location:  req.Location,
		TxRef:     ref,
		Timestamp: time.Now().UTC(),
	})
	return ledger.Receipt{TxRef: ref, BlockNumber: uint64(f.seq)}, nil
}

func (f *Fake) Transfer(_ context.Context, req ledger.TransferRequest) (ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.TransferErr[req.Serial]; err != nil {
		return ledger.Receipt{}, err
	}
	history := f.records[req.Serial]
	if len(history) == 0 {
		return ledger.Receipt{}, ledger.ErrNotFound
	}
	if history[len(history)-1].Owner != req.From {
		return ledger.Receipt{}, fmt.Errorf("%w: %s does not own %s", ledger.ErrRejected, req.From, req.Serial)
	}
	ref := f.nextRef()
	f.records[req.Serial] = append(history, ledger.CustodyRecord{
		Serial:    req.Serial,
		Owner:     req.To,
		Location:  req.Location,
		TxRef:     ref,
		Timestamp: time.Now().UTC(),
	})
	return ledger.Receipt{TxRef: ref, BlockNumber: uint64(f.seq)}, nil
}

func (f *Fake) History(_ context.Context, serial string) ([]ledger.CustodyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.records[serial]
	if len(history) == 0 {
		return nil, ledger.ErrNotFound
	}
	return append([]ledger.CustodyRecord(nil), history...), nil
}

func (f *Fake) Current(_ context.Context, serial string) (ledger.CustodyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.records[serial]
	if len(history) == 0 {
		return ledger.CustodyRecord{}, ledger.ErrNotFound
	}
	return history[len(history)-1], nil
}

// Seed installs an on-chain record directly, bypassing Register. Tests use
// it to simulate state the relational store has not caught up with.
func (f *Fake) Seed(record ledger.CustodyRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record.TxRef == "" {
		record.TxRef = f.nextRef()
	}
	f.records[record.Serial] = append(f.records[record.Serial], record)
}

var _ ledger.Client = (*Fake)(nil)
