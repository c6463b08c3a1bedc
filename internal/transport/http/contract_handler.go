package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medtrace/internal/domain"
	"medtrace/internal/trustcontract"
)

type ContractHandler struct {
	contracts *trustcontract.Service
	logger    *slog.Logger
}

func NewContractHandler(contracts *trustcontract.Service, logger *slog.Logger) *ContractHandler {
	return &ContractHandler{contracts: contracts, logger: logger}
}

func (h *ContractHandler) Register(r chi.Router) {
	r.Route("/contracts", func(r chi.Router) {
		r.Post("/", h.propose)
		r.Get("/", h.list)
		r.Get("/accepted-suppliers", h.acceptedSuppliers)
		r.Get("/{contractID}", h.get)
		r.Post("/{contractID}/respond", h.respond)
		r.Delete("/{contractID}", h.revoke)
	})
}

type proposeContractRequest struct {
	SupplierID  string `json:"supplier_id"`
	Description string `json:"description,omitempty"`
}

type respondRequest struct {
	Decision string `json:"decision"`
}

type contractResponse struct {
	ID          string     `json:"id"`
	Factory     string     `json:"factory"`
	Supplier    string     `json:"supplier"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

func toContractResponse(c domain.Contract) contractResponse {
	return contractResponse{
		ID:          c.ID,
		Factory:     c.Factory,
		Supplier:    c.Supplier,
		Description: c.Description,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
		DecidedAt:   c.DecidedAt,
	}
}

func (h *ContractHandler) propose(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	var req proposeContractRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	contract, err := h.contracts.Propose(r.Context(), actor, req.SupplierID, req.Description)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractResponse(contract))
}

func (h *ContractHandler) respond(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	var req respondRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	contract, err := h.contracts.Respond(r.Context(), actor, chi.URLParam(r, "contractID"), domain.ContractStatus(req.Decision))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractResponse(contract))
}

func (h *ContractHandler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.contracts.Revoke(r.Context(), actor, chi.URLParam(r, "contractID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContractHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	contract, err := h.contracts.Get(r.Context(), actor, chi.URLParam(r, "contractID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractResponse(contract))
}

func (h *ContractHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	contracts, err := h.contracts.List(r.Context(), actor, domain.ContractStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]contractResponse, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, toContractResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ContractHandler) acceptedSuppliers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	contracts, err := h.contracts.AcceptedSuppliers(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]contractResponse, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, toContractResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}
