package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"membership-backend/internal/logger"
	"membership-backend/internal/service"
)

type envelope map[string]any

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any, headers http.Header) {
	for key, value := range headers {
		w.Header()[key] = value
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{"data": data, "status": status}); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}

func (h *Handlers) writeMessage(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, envelope{"message": message}, nil)
}

func (h *Handlers) errorJSON(w http.ResponseWriter, r *http.Request, status int, message string, details any) {
	body := envelope{"message": message, "status": status}
	if details != nil {
		body["errors"] = details
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to write error response", "path", r.URL.Path, "error", err)
	}
}

// statusFor maps a service error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrPartialApproval):
		return http.StatusInternalServerError
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handlers) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	h.errorJSON(w, r, status, service.Message(err), nil)
}
