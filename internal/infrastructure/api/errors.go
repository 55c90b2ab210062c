package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"crm-schema-migrator/internal/domain"
)

// statusFor maps the domain error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidMapping):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAmbiguousIdentity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrImmutableMapping):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrMappingConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoRefreshToken), errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTokenExchangeFailed), errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrPersistenceFailed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError answers with the status of a service error. Internal failures keep
// their detail out of the response.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSONError(w, status, msg)
}
