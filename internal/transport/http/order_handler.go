package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medtrace/internal/domain"
	"medtrace/internal/order"
)

type OrderHandler struct {
	orders *order.Service
	logger *slog.Logger
}

func NewOrderHandler(orders *order.Service, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

func (h *OrderHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Post("/{orderID}/respond", h.respond)
		r.Delete("/{orderID}", h.cancel)
	})
}

type createOrderRequest struct {
	SupplierID string `json:"supplier_id"`
	BatchID    string `json:"batch_id"`
}

type orderResponse struct {
	ID        string     `json:"id"`
	Factory   string     `json:"factory"`
	Supplier  string     `json:"supplier"`
	BatchID   string     `json:"batch_id"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		Factory:   o.Factory,
		Supplier:  o.Supplier,
		BatchID:   o.BatchID,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		DecidedAt: o.DecidedAt,
	}
}

func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	created, err := h.orders.Create(r.Context(), actor, req.SupplierID, req.BatchID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(created))
}

func (h *OrderHandler) respond(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	var req respondRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	decided, err := h.orders.Respond(r.Context(), actor, chi.URLParam(r, "orderID"), domain.OrderStatus(req.Decision))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(decided))
}

func (h *OrderHandler) cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.orders.Cancel(r.Context(), actor, chi.URLParam(r, "orderID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r, h.logger)
	if !ok {
		return
	}
	orders, err := h.orders.List(r.Context(), actor, domain.OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}
