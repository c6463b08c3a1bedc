package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medtrace/internal/custody"
	"medtrace/internal/domain"
	pkgerrors "medtrace/pkg/errors"
)

// CustodyHandler serves ownership transfers, patient sales and the
// reconciliation repair endpoint.
type CustodyHandler struct {
	engine *custody.Engine
	logger *slog.Logger
}

func NewCustodyHandler(engine *custody.Engine, logger *slog.Logger) *CustodyHandler {
	return &CustodyHandler{engine: engine, logger: logger}
}

func (h *CustodyHandler) Register(r chi.Router) {
	r.Post("/batches/{batchID}/transfer", h.transferBatch)
	r.Post("/units/{serial}/transfer", h.transferUnit)
	r.Post("/units/{serial}/sell", h.sell)
	r.Post("/units/{serial}/reconcile", h.reconcile)
}

type transferRequest struct {
	ToOwner  string `json:"to_owner"`
	Location string `json:"location"`
}

type transferResultResponse struct {
	Serial    string `json:"serial"`
	TxRef     string `json:"tx_ref,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func toTransferResultResponse(res custody.TransferResult) transferResultResponse {
	out := transferResultResponse{Serial: res.Serial, TxRef: res.TxRef}
	if res.Err != nil {
		out.Error = res.Err.Error()
		out.Retryable = pkgerrors.Retryable(res.Err)
	}
	return out
}

func (h *CustodyHandler) transferUnit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	result, err := h.engine.TransferUnit(r.Context(), actor, chi.URLParam(r, "serial"), req.ToOwner, req.Location)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransferResultResponse(result))
}

func (h *CustodyHandler) transferBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	results, err := h.engine.TransferBatch(r.Context(), actor, chi.URLParam(r, "batchID"), req.ToOwner, req.Location)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out := make([]transferResultResponse, 0, len(results))
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
		out = append(out, toTransferResultResponse(res))
	}
	status := http.StatusOK
	if failed > 0 {
		// Partial success; the caller retries the failed subset.
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, out)
}

type unitResponse struct {
	Serial         string    `json:"serial"`
	BatchID        string    `json:"batch_id"`
	Factory        string    `json:"factory"`
	MedicineName   string    `json:"medicine_name"`
	GenericName    string    `json:"generic_name"`
	Price          int64     `json:"price"`
	Owner          string    `json:"owner"`
	Location       string    `json:"location"`
	SoldToPatient  bool      `json:"sold_to_patient"`
	ProductionDate time.Time `json:"production_date"`
	ExpirationDate time.Time `json:"expiration_date"`
}

func toUnitResponse(u domain.Unit) unitResponse {
	return unitResponse{
		Serial:         u.Serial,
		BatchID:        u.BatchID,
		Factory:        u.Factory,
		MedicineName:   u.MedicineName,
		GenericName:    u.GenericName,
		Price:          u.Price,
		Owner:          u.Owner,
		Location:       u.Location,
		SoldToPatient:  u.SoldToPatient,
		ProductionDate: u.ProductionDate,
		ExpirationDate: u.ExpirationDate,
	}
}

func (h *CustodyHandler) sell(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	unit, err := h.engine.SellToPatient(r.Context(), actor, chi.URLParam(r, "serial"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitResponse(unit))
}

type reconcileResponse struct {
	Serial      string `json:"serial"`
	LocalOwner  string `json:"local_owner"`
	LedgerOwner string `json:"ledger_owner,omitempty"`
	LedgerTxRef string `json:"ledger_tx_ref,omitempty"`
	Repaired    bool   `json:"repaired"`
}

func (h *CustodyHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r, h.logger); !ok {
		return
	}
	report, err := h.engine.Reconcile(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{
		Serial:      report.Serial,
		LocalOwner:  report.LocalOwner,
		LedgerOwner: report.LedgerOwner,
		LedgerTxRef: report.LedgerTxRef,
		Repaired:    report.Repaired,
	})
}
