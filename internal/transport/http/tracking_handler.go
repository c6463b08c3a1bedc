package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medtrace/internal/batch"
	"medtrace/internal/domain"
	"medtrace/internal/tracking"
)

// TrackingHandler serves provenance queries: unit lookup, full custody
// history and the local-versus-ledger divergence check.
type TrackingHandler struct {
	batches  *batch.Service
	tracking *tracking.Service
	logger   *slog.Logger
}

func NewTrackingHandler(batches *batch.Service, trk *tracking.Service, logger *slog.Logger) *TrackingHandler {
	return &TrackingHandler{batches: batches, tracking: trk, logger: logger}
}

func (h *TrackingHandler) Register(r chi.Router) {
	r.Get("/units/{serial}", h.unit)
	r.Get("/units/{serial}/history", h.history)
	r.Get("/units/{serial}/diff", h.diff)
}

func (h *TrackingHandler) unit(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r, h.logger); !ok {
		return
	}
	unit, err := h.batches.Unit(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitResponse(unit))
}

type custodyEventResponse struct {
	ID           string    `json:"id"`
	Serial       string    `json:"serial"`
	FromOwner    string    `json:"from_owner,omitempty"`
	ToOwner      string    `json:"to_owner"`
	Location     string    `json:"location"`
	MedicineName string    `json:"medicine_name"`
	LedgerTxRef  string    `json:"ledger_tx_ref,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func toCustodyEventResponse(e domain.CustodyEvent) custodyEventResponse {
	return custodyEventResponse{
		ID:           e.ID,
		Serial:       e.Serial,
		FromOwner:    e.FromOwner,
		ToOwner:      e.ToOwner,
		Location:     e.Location,
		MedicineName: e.MedicineName,
		LedgerTxRef:  e.LedgerTxRef,
		Timestamp:    e.Timestamp,
	}
}

func (h *TrackingHandler) history(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r, h.logger); !ok {
		return
	}
	events, err := h.tracking.History(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]custodyEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toCustodyEventResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

type diffResponse struct {
	Serial      string `json:"serial"`
	LocalOwner  string `json:"local_owner"`
	LedgerOwner string `json:"ledger_owner,omitempty"`
	InSync      bool   `json:"in_sync"`
}

func (h *TrackingHandler) diff(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r, h.logger); !ok {
		return
	}
	diff, err := h.tracking.CompareWithLedger(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, diffResponse{
		Serial:      diff.Serial,
		LocalOwner:  diff.LocalOwner,
		LedgerOwner: diff.LedgerOwner,
		InSync:      diff.InSync,
	})
}
