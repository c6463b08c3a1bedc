package order

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrace/internal/domain"
	pkgerrors "medtrace/pkg/errors"
	"medtrace/pkg/sentinel"
)

var (
	factory       = domain.Actor{ID: "factory-1", Role: domain.RoleManufacturer}
	supplier      = domain.Actor{ID: "supplier-1", Role: domain.RoleSupplier}
	otherSupplier = domain.Actor{ID: "supplier-2", Role: domain.RoleSupplier}
)

// fakeContracts marks which (factory, supplier) pairs hold accepted
// contracts.
type fakeContracts map[string]bool

func (f fakeContracts) HasAccepted(_ context.Context, factory, supplier string) (bool, error) {
	return f[factory+"/"+supplier], nil
}

// fakeBatches serves batch lookups from a map.
type fakeBatches map[string]domain.Batch

func (f fakeBatches) GetBatch(_ context.Context, batchID string) (domain.Batch, error) {
	b, ok := f[batchID]
	if !ok {
		return domain.Batch{}, sentinel.ErrNotFound
	}
	return b, nil
}

func newService(contracts fakeContracts, batches fakeBatches) *Service {
	return NewService(NewMemoryStore(), contracts, batches, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func pendingBatch(id, owner string) domain.Batch {
	return domain.Batch{ID: id, Factory: factory.ID, Owner: owner, Status: domain.BatchPending}
}

func TestCreateRequiresAcceptedContract(t *testing.T) {
	svc := newService(fakeContracts{}, fakeBatches{"b1": pendingBatch("b1", factory.ID)})

	_, err := svc.Create(context.Background(), factory, supplier.ID, "b1")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNoValidContract))
}

func TestCreateRequiresOwnedPendingBatch(t *testing.T) {
	ctx := context.Background()
	contracts := fakeContracts{factory.ID + "/" + supplier.ID: true}

	t.Run("missing batch", func(t *testing.T) {
		svc := newService(contracts, fakeBatches{})
		_, err := svc.Create(ctx, factory, supplier.ID, "nope")
		require.Error(t, err)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
	})

	t.Run("batch held elsewhere", func(t *testing.T) {
		svc := newService(contracts, fakeBatches{"b1": pendingBatch("b1", otherSupplier.ID)})
		_, err := svc.Create(ctx, factory, supplier.ID, "b1")
		require.Error(t, err)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))
	})

	t.Run("batch already shipped", func(t *testing.T) {
		shipped := pendingBatch("b1", factory.ID)
		shipped.Status = domain.BatchReceived
		svc := newService(contracts, fakeBatches{"b1": shipped})
		_, err := svc.Create(ctx, factory, supplier.ID, "b1")
		require.Error(t, err)
		assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidState))
	})
}

func TestCreateOneOpenOrderPerBatch(t *testing.T) {
	ctx := context.Background()
	contracts := fakeContracts{factory.ID + "/" + supplier.ID: true}
	svc := newService(contracts, fakeBatches{"b1": pendingBatch("b1", factory.ID)})

	first, err := svc.Create(ctx, factory, supplier.ID, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, first.Status)

	_, err = svc.Create(ctx, factory, supplier.ID, "b1")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidState))
}

func TestRespondSupplierOnlyAndTerminal(t *testing.T) {
	ctx := context.Background()
	contracts := fakeContracts{factory.ID + "/" + supplier.ID: true}
	svc := newService(contracts, fakeBatches{"b1": pendingBatch("b1", factory.ID)})

	placed, err := svc.Create(ctx, factory, supplier.ID, "b1")
	require.NoError(t, err)

	_, err = svc.Respond(ctx, otherSupplier, placed.ID, domain.OrderAccepted)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	accepted, err := svc.Respond(ctx, supplier, placed.ID, domain.OrderAccepted)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderAccepted, accepted.Status)
	require.NotNil(t, accepted.DecidedAt)

	_, err = svc.Respond(ctx, supplier, placed.ID, domain.OrderRejected)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidState))
}

func TestCancelPendingOnly(t *testing.T) {
	ctx := context.Background()
	contracts := fakeContracts{factory.ID + "/" + supplier.ID: true}
	svc := newService(contracts, fakeBatches{
		"b1": pendingBatch("b1", factory.ID),
		"b2": pendingBatch("b2", factory.ID),
	})

	placed, err := svc.Create(ctx, factory, supplier.ID, "b1")
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, factory, placed.ID))

	// Cancelling frees the batch for a new order.
	_, err = svc.Create(ctx, factory, supplier.ID, "b1")
	require.NoError(t, err)

	second, err := svc.Create(ctx, factory, supplier.ID, "b2")
	require.NoError(t, err)
	_, err = svc.Respond(ctx, supplier, second.ID, domain.OrderAccepted)
	require.NoError(t, err)

	err = svc.Cancel(ctx, factory, second.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidState))
}

func TestListScopedByRole(t *testing.T) {
	ctx := context.Background()
	contracts := fakeContracts{
		factory.ID + "/" + supplier.ID:      true,
		factory.ID + "/" + otherSupplier.ID: true,
	}
	svc := newService(contracts, fakeBatches{
		"b1": pendingBatch("b1", factory.ID),
		"b2": pendingBatch("b2", factory.ID),
	})

	_, err := svc.Create(ctx, factory, supplier.ID, "b1")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = svc.Create(ctx, factory, otherSupplier.ID, "b2")
	require.NoError(t, err)

	all, err := svc.List(ctx, factory, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := svc.List(ctx, supplier, "")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "b1", own[0].BatchID)
}
