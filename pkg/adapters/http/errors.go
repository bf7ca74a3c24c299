package http

import (
	"errors"
	"net/http"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/registry"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable kind and, for denials, the reason.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// StatusOf maps engine errors onto HTTP status codes and error kinds.
func StatusOf(err error) (int, string) {
	var ce *domain.CascadeError
	switch {
	case errors.As(err, &ce):
		return http.StatusBadGateway, "cascade_failed"
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, registry.ErrUnknownKind):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, registry.ErrUnknownAction):
		return http.StatusBadRequest, "invalid_transition"
	case errors.Is(err, domain.ErrGuardFailed):
		return http.StatusBadRequest, "guard_failed"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict, "concurrency_conflict"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status, kind := StatusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.Logger.Error("request failed", "err", err)
		msg = "internal error"
	}
	writeError(w, status, kind, msg, string(domain.ReasonOf(err)))
}

func writeError(w http.ResponseWriter, status int, kind, message, reason string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Kind: kind, Message: message, Reason: reason}})
}
