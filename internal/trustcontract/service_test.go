package trustcontract

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrace/internal/directory"
	"medtrace/internal/domain"
	pkgerrors "medtrace/pkg/errors"
)

var (
	factory       = domain.Actor{ID: "factory-1", Role: domain.RoleManufacturer}
	supplier      = domain.Actor{ID: "supplier-1", Role: domain.RoleSupplier}
	otherSupplier = domain.Actor{ID: "supplier-2", Role: domain.RoleSupplier}
	pharmacy      = domain.Actor{ID: "pharmacy-1", Role: domain.RolePharmacy}
)

func newService(t *testing.T) *Service {
	t.Helper()
	dir := directory.NewMemory()
	dir.Put(factory)
	dir.Put(supplier)
	dir.Put(otherSupplier)
	dir.Put(pharmacy)
	return NewService(NewMemoryStore(), dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestProposeValidatesTarget(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Propose(ctx, supplier, otherSupplier.ID, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	_, err = svc.Propose(ctx, factory, "nobody", "")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.Propose(ctx, factory, pharmacy.ID, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	contract, err := svc.Propose(ctx, factory, supplier.ID, "annual supply")
	require.NoError(t, err)
	assert.Equal(t, domain.ContractPending, contract.Status)
}

func TestProposeSingleActiveContract(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Propose(ctx, factory, supplier.ID, "")
	require.NoError(t, err)

	_, err = svc.Propose(ctx, factory, supplier.ID, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidState))
}

func TestRespondOnlyNamedSupplier(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	contract, err := svc.Propose(ctx, factory, supplier.ID, "")
	require.NoError(t, err)

	_, err = svc.Respond(ctx, otherSupplier, contract.ID, domain.ContractAccepted)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	accepted, err := svc.Respond(ctx, supplier, contract.ID, domain.ContractAccepted)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractAccepted, accepted.Status)
	require.NotNil(t, accepted.DecidedAt)
}

func TestRespondTerminalIsWriteOnce(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	contract, err := svc.Propose(ctx, factory, supplier.ID, "")
	require.NoError(t, err)

	rejected, err := svc.Respond(ctx, supplier, contract.ID, domain.ContractRejected)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractRejected, rejected.Status)

	// Accepting after rejection must fail without mutating anything.
	_, err = svc.Respond(ctx, supplier, contract.ID, domain.ContractAccepted)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidState))

	got, err := svc.Get(ctx, supplier, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractRejected, got.Status)
}

func TestHasAccepted(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	ok, err := svc.HasAccepted(ctx, factory.ID, supplier.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	contract, err := svc.Propose(ctx, factory, supplier.ID, "")
	require.NoError(t, err)

	ok, err = svc.HasAccepted(ctx, factory.ID, supplier.ID)
	require.NoError(t, err)
	assert.False(t, ok, "pending does not gate orders")

	_, err = svc.Respond(ctx, supplier, contract.ID, domain.ContractAccepted)
	require.NoError(t, err)

	ok, err = svc.HasAccepted(ctx, factory.ID, supplier.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRevokeFactoryOnly(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	contract, err := svc.Propose(ctx, factory, supplier.ID, "")
	require.NoError(t, err)

	err = svc.Revoke(ctx, supplier, contract.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	require.NoError(t, svc.Revoke(ctx, factory, contract.ID))

	_, err = svc.Get(ctx, factory, contract.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestListAndAcceptedSuppliers(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.Propose(ctx, factory, supplier.ID, "")
	require.NoError(t, err)
	_, err = svc.Propose(ctx, factory, otherSupplier.ID, "")
	require.NoError(t, err)
	_, err = svc.Respond(ctx, supplier, first.ID, domain.ContractAccepted)
	require.NoError(t, err)

	all, err := svc.List(ctx, factory, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := svc.List(ctx, supplier, "")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, first.ID, own[0].ID)

	accepted, err := svc.AcceptedSuppliers(ctx, factory)
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, supplier.ID, accepted[0].Supplier)
}
