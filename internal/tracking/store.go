// Package tracking keeps the local append-only chain-of-custody history and
// the tooling around it: a read cache, a change stream, and the divergence
// check against the external ledger.
package tracking

import (
	"context"

	"medtrace/internal/domain"
)

// Store persists custody events. Append is write-once; there is no update
// or delete. History returns events ordered by timestamp ascending.
type Store interface {
	Append(ctx context.Context, event domain.CustodyEvent) error
	History(ctx context.Context, serial string) ([]domain.CustodyEvent, error)
}
