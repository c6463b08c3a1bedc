//go:build integration

package batch_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrace/internal/batch"
	"medtrace/internal/domain"
	"medtrace/internal/platform/postgres/postgrestest"
	"medtrace/pkg/sentinel"
)

func seedBatch(t *testing.T, store *batch.PostgresStore, factory string, quantity int) (domain.Batch, []domain.Unit) {
	t.Helper()
	ctx := context.Background()
	seq, err := store.NextBatchNumber(ctx, factory)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	b := domain.Batch{
		ID:             uuid.NewString(),
		BatchNumber:    fmt.Sprintf("BA%04d", seq),
		Factory:        factory,
		Owner:          factory,
		MedicineName:   "Omeprazole 20mg",
		GenericName:    "Omeprazole",
		Price:          700,
		Quantity:       quantity,
		Status:         domain.BatchPending,
		ProductionDate: now,
		ExpirationDate: now.AddDate(3, 0, 0),
		CreatedAt:      now,
	}
	units := make([]domain.Unit, 0, quantity)
	for i := 0; i < quantity; i++ {
		serial := uuid.NewString()
		b.Serials = append(b.Serials, serial)
		units = append(units, domain.Unit{
			Serial:         serial,
			BatchID:        b.ID,
			Factory:        factory,
			MedicineName:   b.MedicineName,
			GenericName:    b.GenericName,
			Price:          b.Price,
			Owner:          factory,
			Location:       "Lagos",
			ProductionDate: b.ProductionDate,
			ExpirationDate: b.ExpirationDate,
		})
	}
	require.NoError(t, store.CreateBatch(ctx, b, units))
	return b, units
}

func TestPostgresStore(t *testing.T) {
	db := postgrestest.Start(t)
	store := batch.NewPostgresStore(db)
	ctx := context.Background()

	t.Run("concurrent batch numbers are distinct", func(t *testing.T) {
		const n = 10
		var wg sync.WaitGroup
		numbers := make(chan int, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				seq, err := store.NextBatchNumber(ctx, "factory-seq")
				assert.NoError(t, err)
				numbers <- seq
			}()
		}
		wg.Wait()
		close(numbers)

		seen := make(map[int]bool)
		for seq := range numbers {
			assert.False(t, seen[seq], "sequence %d drawn twice", seq)
			seen[seq] = true
		}
		assert.Len(t, seen, n)
	})

	t.Run("create and read back", func(t *testing.T) {
		created, units := seedBatch(t, store, "factory-rt", 3)

		got, err := store.GetBatch(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.BatchNumber, got.BatchNumber)
		assert.Equal(t, domain.BatchPending, got.Status)
		assert.ElementsMatch(t, created.Serials, got.Serials)

		unit, err := store.GetUnit(ctx, units[0].Serial)
		require.NoError(t, err)
		assert.Equal(t, created.ID, unit.BatchID)
		assert.False(t, unit.SoldToPatient)
	})

	t.Run("duplicate serial is a conflict", func(t *testing.T) {
		created, units := seedBatch(t, store, "factory-dup", 1)

		dup := created
		dup.ID = uuid.NewString()
		dup.BatchNumber = "BA9999"
		err := store.CreateBatch(ctx, dup, []domain.Unit{units[0]})
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("owner update is conditional", func(t *testing.T) {
		_, units := seedBatch(t, store, "factory-cas", 1)
		serial := units[0].Serial

		require.NoError(t, store.UpdateUnitOwner(ctx, serial, "factory-cas", "supplier-1", "Abuja"))

		// A stale retry from the old owner must not apply.
		err := store.UpdateUnitOwner(ctx, serial, "factory-cas", "supplier-2", "Accra")
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		unit, err := store.GetUnit(ctx, serial)
		require.NoError(t, err)
		assert.Equal(t, "supplier-1", unit.Owner)
	})

	t.Run("status transitions are monotonic", func(t *testing.T) {
		created, _ := seedBatch(t, store, "factory-st", 1)

		require.NoError(t, store.UpdateBatchOwnerStatus(ctx, created.ID, "supplier-1", domain.BatchReceived))
		require.NoError(t, store.UpdateBatchOwnerStatus(ctx, created.ID, "pharmacy-1", domain.BatchDelivered))

		err := store.UpdateBatchOwnerStatus(ctx, created.ID, "supplier-1", domain.BatchReceived)
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})

	t.Run("sold unit is frozen", func(t *testing.T) {
		_, units := seedBatch(t, store, "factory-sold", 1)
		serial := units[0].Serial

		require.NoError(t, store.MarkUnitSold(ctx, serial, "factory-sold"))

		err := store.MarkUnitSold(ctx, serial, "factory-sold")
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		err = store.UpdateUnitOwner(ctx, serial, "factory-sold", "supplier-1", "Abuja")
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("delete cascades while pending", func(t *testing.T) {
		created, units := seedBatch(t, store, "factory-del", 2)

		require.NoError(t, store.DeleteBatch(ctx, created.ID, "factory-del"))

		_, err := store.GetBatch(ctx, created.ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		exists, err := store.SerialExists(ctx, units[0].Serial)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}
