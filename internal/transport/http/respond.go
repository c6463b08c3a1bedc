// Package http exposes the core operations over REST. Handlers decode and
// authorize at the edge, delegate to services, and translate domain error
// codes to HTTP statuses.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"medtrace/internal/domain"
	"medtrace/internal/platform/middleware"
	pkgerrors "medtrace/pkg/errors"
)

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := pkgerrors.CodeOf(err)
	status := pkgerrors.ToHTTPStatus(code)

	msg := ""
	var de *pkgerrors.Error
	if errors.As(err, &de) {
		msg = de.Message
	}
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		// Internal details stay in the log.
		if code == pkgerrors.CodeInternal {
			msg = "internal error"
		}
	}
	writeJSON(w, status, errorResponse{
		Error:     string(code),
		Message:   msg,
		Retryable: pkgerrors.Retryable(err),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, logger, pkgerrors.New(pkgerrors.CodeValidation, "invalid JSON body"))
		return false
	}
	return true
}

func validationErr(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg)
}

func actorFrom(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (domain.Actor, bool) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		writeError(w, r, logger, pkgerrors.New(pkgerrors.CodeUnauthorized, "no authenticated actor"))
		return domain.Actor{}, false
	}
	return actor, true
}
