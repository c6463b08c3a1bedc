package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medtrace/internal/batch"
	"medtrace/internal/custody"
	"medtrace/internal/domain"
)

// BatchHandler serves batch lifecycle endpoints. Creation hands the new
// units to the custody engine for ledger registration and genesis events.
type BatchHandler struct {
	batches *batch.Service
	engine  *custody.Engine
	logger  *slog.Logger
}

func NewBatchHandler(batches *batch.Service, engine *custody.Engine, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{batches: batches, engine: engine, logger: logger}
}

func (h *BatchHandler) Register(r chi.Router) {
	r.Post("/batches", h.create)
	r.Get("/batches", h.list)
	r.Get("/batches/held-by/{holderID}", h.listHeldBy)
	r.Get("/batches/{batchID}", h.get)
	r.Delete("/batches/{batchID}", h.delete)
}

type createBatchRequest struct {
	MedicineName   string `json:"medicine_name"`
	GenericName    string `json:"generic_name"`
	Price          int64  `json:"price"`
	Quantity       int    `json:"quantity"`
	ProductionDate string `json:"production_date,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

type batchResponse struct {
	ID             string    `json:"id"`
	BatchNumber    string    `json:"batch_number"`
	Factory        string    `json:"factory"`
	Owner          string    `json:"owner"`
	MedicineName   string    `json:"medicine_name"`
	GenericName    string    `json:"generic_name"`
	Price          int64     `json:"price"`
	Quantity       int       `json:"quantity"`
	Serials        []string  `json:"serials,omitempty"`
	Status         string    `json:"status"`
	ProductionDate time.Time `json:"production_date"`
	ExpirationDate time.Time `json:"expiration_date"`
	CreatedAt      time.Time `json:"created_at"`
}

func toBatchResponse(b domain.Batch) batchResponse {
	return batchResponse{
		ID:             b.ID,
		BatchNumber:    b.BatchNumber,
		Factory:        b.Factory,
		Owner:          b.Owner,
		MedicineName:   b.MedicineName,
		GenericName:    b.GenericName,
		Price:          b.Price,
		Quantity:       b.Quantity,
		Serials:        b.Serials,
		Status:         string(b.Status),
		ProductionDate: b.ProductionDate,
		ExpirationDate: b.ExpirationDate,
		CreatedAt:      b.CreatedAt,
	}
}

func (h *BatchHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	var req createBatchRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	input := batch.CreateInput{
		MedicineName: req.MedicineName,
		GenericName:  req.GenericName,
		Price:        req.Price,
		Quantity:     req.Quantity,
	}
	if req.ProductionDate != "" {
		t, err := time.Parse(time.RFC3339, req.ProductionDate)
		if err != nil {
			writeError(w, r, h.logger, validationErr("production_date must be RFC 3339"))
			return
		}
		input.ProductionDate = t
	}
	if req.ExpirationDate != "" {
		t, err := time.Parse(time.RFC3339, req.ExpirationDate)
		if err != nil {
			writeError(w, r, h.logger, validationErr("expiration_date must be RFC 3339"))
			return
		}
		input.ExpirationDate = t
	}

	created, units, err := h.batches.Create(r.Context(), actor, input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	// Genesis registration is best-effort; units without a ledger record are
	// caught by reconciliation.
	h.engine.RegisterBatch(r.Context(), created, units)

	writeJSON(w, http.StatusCreated, toBatchResponse(created))
}

func (h *BatchHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	b, err := h.batches.Get(r.Context(), actor, chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(b))
}

func (h *BatchHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	batches, err := h.batches.List(r.Context(), actor, domain.BatchStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *BatchHandler) listHeldBy(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	batches, err := h.batches.ListHeldBy(r.Context(), actor, chi.URLParam(r, "holderID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *BatchHandler) delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.batches.Delete(r.Context(), actor, chi.URLParam(r, "batchID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
