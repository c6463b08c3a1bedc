package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrace/internal/domain"
	"medtrace/internal/platform/metrics"
	pkgerrors "medtrace/pkg/errors"
)

var (
	factory  = domain.Actor{ID: "factory-1", Role: domain.RoleManufacturer, Location: "Lagos"}
	supplier = domain.Actor{ID: "supplier-1", Role: domain.RoleSupplier, Location: "Abuja"}
)

func newService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store, metrics.New(prometheus.NewRegistry()), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store
}

func validInput() CreateInput {
	return CreateInput{
		MedicineName: "Ibuprofen 400mg",
		GenericName:  "Ibuprofen",
		Price:        950,
		Quantity:     5,
	}
}

func TestCreateAssignsSequentialNumbers(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, units, err := svc.Create(ctx, factory, validInput())
	require.NoError(t, err)
	assert.Equal(t, "BA0001", first.BatchNumber)
	assert.Equal(t, factory.ID, first.Owner)
	assert.Equal(t, domain.BatchPending, first.Status)
	assert.Len(t, units, 5)
	assert.Len(t, first.Serials, 5)

	second, _, err := svc.Create(ctx, factory, validInput())
	require.NoError(t, err)
	assert.Equal(t, "BA0002", second.BatchNumber)

	// A different factory gets its own sequence.
	otherFactory := domain.Actor{ID: "factory-2", Role: domain.RoleManufacturer, Location: "Accra"}
	other, _, err := svc.Create(ctx, otherFactory, validInput())
	require.NoError(t, err)
	assert.Equal(t, "BA0001", other.BatchNumber)
}

func TestCreateSerialsAreUnique(t *testing.T) {
	svc, _ := newService(t)
	seen := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		_, units, err := svc.Create(context.Background(), factory, validInput())
		require.NoError(t, err)
		for _, unit := range units {
			_, dup := seen[unit.Serial]
			require.False(t, dup, "serial %s issued twice", unit.Serial)
			seen[unit.Serial] = struct{}{}
		}
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		actor  domain.Actor
		mutate func(*CreateInput)
		code   pkgerrors.Code
	}{
		{"supplier cannot create", supplier, func(*CreateInput) {}, pkgerrors.CodeUnauthorized},
		{"missing name", factory, func(in *CreateInput) { in.MedicineName = "" }, pkgerrors.CodeValidation},
		{"zero price", factory, func(in *CreateInput) { in.Price = 0 }, pkgerrors.CodeValidation},
		{"zero quantity", factory, func(in *CreateInput) { in.Quantity = 0 }, pkgerrors.CodeValidation},
		{"oversized batch", factory, func(in *CreateInput) { in.Quantity = domain.MaxBatchQuantity + 1 }, pkgerrors.CodeValidation},
		{"expiration before production", factory, func(in *CreateInput) {
			in.ProductionDate = time.Now()
			in.ExpirationDate = time.Now().AddDate(0, -1, 0)
		}, pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			_, _, err := svc.Create(ctx, tc.actor, input)
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, tc.code), "got %v", err)
		})
	}
}

func TestCreateDefaultsExpiration(t *testing.T) {
	svc, _ := newService(t)
	produced := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	created, _, err := svc.Create(context.Background(), factory, CreateInput{
		MedicineName:   "Metformin 500mg",
		GenericName:    "Metformin",
		Price:          400,
		Quantity:       1,
		ProductionDate: produced,
	})
	require.NoError(t, err)
	assert.Equal(t, produced.AddDate(3, 0, 0), created.ExpirationDate)
}

func TestCreateCapacityExceeded(t *testing.T) {
	svc, store := newService(t)
	store.counters[factory.ID] = domain.MaxBatchesPerFactory

	_, _, err := svc.Create(context.Background(), factory, validInput())
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeCapacityExceeded))
}

func TestDeleteOnlyPendingAndOwned(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	created, _, err := svc.Create(ctx, factory, validInput())
	require.NoError(t, err)

	err = svc.Delete(ctx, supplier, created.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	require.NoError(t, store.UpdateBatchOwnerStatus(ctx, created.ID, supplier.ID, domain.BatchReceived))
	err = svc.Delete(ctx, factory, created.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidState))

	fresh, _, err := svc.Create(ctx, factory, validInput())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, factory, fresh.ID))

	_, err = store.GetBatch(ctx, fresh.ID)
	require.Error(t, err)
	for _, serial := range fresh.Serials {
		exists, err := store.SerialExists(ctx, serial)
		require.NoError(t, err)
		assert.False(t, exists, "unit %s should be cascaded away", serial)
	}
}

func TestListScopedByRole(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	first, _, err := svc.Create(ctx, factory, validInput())
	require.NoError(t, err)
	second, _, err := svc.Create(ctx, factory, validInput())
	require.NoError(t, err)
	require.NoError(t, store.UpdateBatchOwnerStatus(ctx, second.ID, supplier.ID, domain.BatchReceived))

	mine, err := svc.List(ctx, factory, "")
	require.NoError(t, err)
	assert.Len(t, mine, 2, "factory sees everything it issued")

	held, err := svc.List(ctx, supplier, "")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, second.ID, held[0].ID)

	pending, err := svc.List(ctx, factory, domain.BatchPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	atSupplier, err := svc.ListHeldBy(ctx, factory, supplier.ID)
	require.NoError(t, err)
	require.Len(t, atSupplier, 1)
	assert.Equal(t, second.ID, atSupplier[0].ID)
}

func TestGetVisibility(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	created, _, err := svc.Create(ctx, factory, validInput())
	require.NoError(t, err)

	_, err = svc.Get(ctx, supplier, created.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	require.NoError(t, store.UpdateBatchOwnerStatus(ctx, created.ID, supplier.ID, domain.BatchReceived))

	got, err := svc.Get(ctx, supplier, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	// The issuing factory keeps visibility after handoff.
	got, err = svc.Get(ctx, factory, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestConcurrentNumbering(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	const n = 20
	type result struct {
		number string
		err    error
	}
	results := make(chan result, n)
	for i := 0; i < n; i++ {
		go func() {
			created, _, err := svc.Create(ctx, factory, validInput())
			results <- result{created.BatchNumber, err}
		}()
	}

	numbers := make(map[string]int)
	for i := 0; i < n; i++ {
		res := <-results
		require.NoError(t, res.err)
		numbers[res.number]++
	}
	require.Len(t, numbers, n, "every batch must draw a distinct number")
	for i := 1; i <= n; i++ {
		assert.Equal(t, 1, numbers[fmt.Sprintf("BA%04d", i)])
	}
}
