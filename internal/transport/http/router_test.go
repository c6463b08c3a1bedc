package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrace/internal/batch"
	"medtrace/internal/custody"
	"medtrace/internal/directory"
	"medtrace/internal/domain"
	"medtrace/internal/jwtauth"
	"medtrace/internal/ledger/ledgertest"
	"medtrace/internal/order"
	"medtrace/internal/platform/metrics"
	"medtrace/internal/tracking"
	httpapi "medtrace/internal/transport/http"
	"medtrace/internal/trustcontract"
)

const signingKey = "router-test-key"

var (
	factory  = domain.Actor{ID: "factory-1", Role: domain.RoleManufacturer, Location: "Lagos"}
	supplier = domain.Actor{ID: "supplier-1", Role: domain.RoleSupplier, Location: "Abuja"}
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())

	batchStore := batch.NewMemoryStore()
	orderStore := order.NewMemoryStore()
	trackStore := tracking.NewMemoryStore()
	fakeLedger := ledgertest.New()

	dir := directory.NewMemory()
	dir.Put(factory)
	dir.Put(supplier)

	trackingSvc := tracking.NewService(trackStore, nil, nil, fakeLedger, m, logger, time.Minute)
	batchSvc := batch.NewService(batchStore, m, logger)
	contractSvc := trustcontract.NewService(trustcontract.NewMemoryStore(), dir, logger)
	orderSvc := order.NewService(orderStore, contractSvc, batchStore, logger)
	engine := custody.NewEngine(batchStore, orderStore, fakeLedger, trackingSvc, m, logger)

	return httpapi.NewRouter(httpapi.Deps{
		Logger:    logger,
		Validator: jwtauth.NewValidator(signingKey),
		Batch:     httpapi.NewBatchHandler(batchSvc, engine, logger),
		Custody:   httpapi.NewCustodyHandler(engine, logger),
		Contract:  httpapi.NewContractHandler(contractSvc, logger),
		Order:     httpapi.NewOrderHandler(orderSvc, logger),
		Tracking:  httpapi.NewTrackingHandler(batchSvc, trackingSvc, logger),
	})
}

func token(t *testing.T, actor domain.Actor) string {
	t.Helper()
	tok, err := jwtauth.NewValidator(signingKey).IssueToken(actor, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, h http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/batches", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSupplyChainOverHTTP(t *testing.T) {
	h := newTestRouter(t)
	factoryTok := token(t, factory)
	supplierTok := token(t, supplier)

	type batchBody struct {
		ID          string   `json:"id"`
		BatchNumber string   `json:"batch_number"`
		Owner       string   `json:"owner"`
		Status      string   `json:"status"`
		Serials     []string `json:"serials"`
	}
	rec := do(t, h, http.MethodPost, "/batches", factoryTok, map[string]any{
		"medicine_name": "Cetirizine 10mg",
		"generic_name":  "Cetirizine",
		"price":         300,
		"quantity":      2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[batchBody](t, rec)
	assert.Equal(t, "BA0001", created.BatchNumber)
	require.Len(t, created.Serials, 2)

	// Ordering without a contract is refused.
	rec = do(t, h, http.MethodPost, "/orders", factoryTok, map[string]any{
		"supplier_id": supplier.ID, "batch_id": created.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_valid_contract")

	type idBody struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	rec = do(t, h, http.MethodPost, "/contracts", factoryTok, map[string]any{
		"supplier_id": supplier.ID, "description": "standing agreement",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	contract := decode[idBody](t, rec)

	rec = do(t, h, http.MethodPost, "/contracts/"+contract.ID+"/respond", supplierTok, map[string]any{
		"decision": "accepted",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/orders", factoryTok, map[string]any{
		"supplier_id": supplier.ID, "batch_id": created.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	placed := decode[idBody](t, rec)

	rec = do(t, h, http.MethodPost, "/orders/"+placed.ID+"/respond", supplierTok, map[string]any{
		"decision": "accepted",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/batches/"+created.ID+"/transfer", factoryTok, map[string]any{
		"to_owner": supplier.ID, "location": supplier.Location,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/batches/"+created.ID, supplierTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[batchBody](t, rec)
	assert.Equal(t, supplier.ID, got.Owner)
	assert.Equal(t, "received", got.Status)

	type eventBody struct {
		FromOwner string `json:"from_owner"`
		ToOwner   string `json:"to_owner"`
	}
	rec = do(t, h, http.MethodGet, "/units/"+created.Serials[0]+"/history", supplierTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]eventBody](t, rec)
	require.Len(t, events, 2)
	assert.Equal(t, factory.ID, events[1].FromOwner)
	assert.Equal(t, supplier.ID, events[1].ToOwner)

	type diffBody struct {
		InSync bool `json:"in_sync"`
	}
	rec = do(t, h, http.MethodGet, "/units/"+created.Serials[0]+"/diff", supplierTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[diffBody](t, rec).InSync)
}

func TestSelfTransferConflict(t *testing.T) {
	h := newTestRouter(t)
	factoryTok := token(t, factory)

	rec := do(t, h, http.MethodPost, "/batches", factoryTok, map[string]any{
		"medicine_name": "Aspirin 100mg",
		"generic_name":  "Acetylsalicylic acid",
		"price":         150,
		"quantity":      1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Serials []string `json:"serials"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = do(t, h, http.MethodPost, "/units/"+created.Serials[0]+"/transfer", factoryTok, map[string]any{
		"to_owner": factory.ID, "location": factory.Location,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "self_transfer")
}
