package tracking

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrace/internal/domain"
	"medtrace/internal/ledger"
	"medtrace/internal/ledger/ledgertest"
	"medtrace/internal/platform/metrics"
	pkgerrors "medtrace/pkg/errors"
)

func newService(t *testing.T) (*Service, *MemoryStore, *ledgertest.Fake) {
	t.Helper()
	store := NewMemoryStore()
	fake := ledgertest.New()
	svc := NewService(store, nil, nil, fake, metrics.New(prometheus.NewRegistry()),
		slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute)
	return svc, store, fake
}

func event(serial, from, to string, at time.Time) domain.CustodyEvent {
	return domain.CustodyEvent{
		ID:        uuid.NewString(),
		Serial:    serial,
		FromOwner: from,
		ToOwner:   to,
		Location:  "Lagos",
		Timestamp: at,
	}
}

func TestHistoryOrderedAscending(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	// Appended out of order on purpose.
	require.NoError(t, svc.Append(ctx, event("s1", "factory-1", "supplier-1", base.Add(time.Hour))))
	require.NoError(t, svc.Append(ctx, event("s1", "", "factory-1", base)))
	require.NoError(t, svc.Append(ctx, event("s1", "supplier-1", "pharmacy-1", base.Add(2*time.Hour))))

	events, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "factory-1", events[0].ToOwner)
	assert.Equal(t, "supplier-1", events[1].ToOwner)
	assert.Equal(t, "pharmacy-1", events[2].ToOwner)
}

func TestHistoryUnknownSerial(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.History(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestCompareWithLedgerInSync(t *testing.T) {
	svc, _, fake := newService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, svc.Append(ctx, event("s1", "", "factory-1", now)))
	require.NoError(t, svc.Append(ctx, event("s1", "factory-1", "supplier-1", now.Add(time.Second))))
	fake.Seed(ledger.CustodyRecord{Serial: "s1", Owner: "factory-1"})
	fake.Seed(ledger.CustodyRecord{Serial: "s1", Owner: "supplier-1"})

	diff, err := svc.CompareWithLedger(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, diff.InSync)
	assert.Equal(t, "supplier-1", diff.LocalOwner)
	assert.Equal(t, "supplier-1", diff.LedgerOwner)
}

func TestCompareWithLedgerFlagsDivergence(t *testing.T) {
	svc, _, fake := newService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, svc.Append(ctx, event("s1", "", "factory-1", now)))
	fake.Seed(ledger.CustodyRecord{Serial: "s1", Owner: "factory-1"})
	fake.Seed(ledger.CustodyRecord{Serial: "s1", Owner: "supplier-1"})

	diff, err := svc.CompareWithLedger(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, diff.InSync)
	assert.Equal(t, "factory-1", diff.LocalOwner)
	assert.Equal(t, "supplier-1", diff.LedgerOwner)
}

func TestCompareWithLedgerIgnoresPatientSale(t *testing.T) {
	svc, _, fake := newService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, svc.Append(ctx, event("s1", "", "pharmacy-1", now)))
	require.NoError(t, svc.Append(ctx, event("s1", "pharmacy-1", domain.PatientOwner, now.Add(time.Second))))
	fake.Seed(ledger.CustodyRecord{Serial: "s1", Owner: "pharmacy-1"})

	diff, err := svc.CompareWithLedger(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, diff.InSync, "a dispensed unit is compared at its last traced custodian")
	assert.Equal(t, "pharmacy-1", diff.LocalOwner)
}

func TestCompareWithLedgerMissingChainRecord(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Append(ctx, event("s1", "", "factory-1", time.Now().UTC())))

	diff, err := svc.CompareWithLedger(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, diff.InSync, "locally known serial with no chain record must be flagged")
	assert.Empty(t, diff.LedgerOwner)
}
