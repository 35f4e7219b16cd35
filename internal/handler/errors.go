package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable machine-readable code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorMapping pairs a sentinel with its HTTP rendering. Order matters:
// ErrNeedsCompensation chains also match the cause (conflict, upstream).
var errorMapping = []struct {
	sentinel error
	status   int
	code     string
	// message replaces the error text when set, to avoid leaking internals.
	message string
}{
	{domain.ErrNeedsCompensation, http.StatusBadGateway, "reservation_failed",
		"the reservation could not be completed after payment; the charge has been or will be refunded"},
	{domain.ErrValidation, http.StatusBadRequest, "invalid_request", ""},
	{domain.ErrNotFound, http.StatusNotFound, "not_found", ""},
	{domain.ErrConflict, http.StatusConflict, "conflict", ""},
	{domain.ErrPaymentDeclined, http.StatusPaymentRequired, "payment_declined", ""},
	{domain.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "upstream_unavailable",
		"a dependency is temporarily unavailable, please retry"},
}

// writeDomainError renders err using errorMapping. notFound is the message
// used for a bare domain.ErrNotFound, since the handler is the layer that
// knows what was being looked up.
func writeDomainError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error, notFound string) {
	for _, m := range errorMapping {
		if !errors.Is(err, m.sentinel) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = unwrapMessage(err, m.sentinel)
		}
		if m.sentinel == domain.ErrNotFound && notFound != "" && msg == m.sentinel.Error() {
			msg = notFound
		}
		if m.status >= http.StatusInternalServerError {
			log.ErrorContext(r.Context(), "request failed", "status", m.status, "err", err)
		}
		writeError(w, m.status, m.code, msg)
		return
	}

	log.ErrorContext(r.Context(), "unhandled error", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}

// unwrapMessage extracts the human-readable part that follows the sentinel
// in a wrapped error.
// e.g. "service.X.Y: validation error: client id is required" → "client id is required"
func unwrapMessage(err, sentinel error) string {
	msg := err.Error()
	marker := sentinel.Error() + ": "
	if i := strings.LastIndex(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return sentinel.Error()
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body into dst, rendering the failure itself.
// It reports whether the caller should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body: "+err.Error())
		return false
	}
	return true
}
