package crm

import (
	"fmt"
	"net/http"
	"regexp"

	"crm-schema-migrator/internal/domain"
)

// softConflict matches the messages and categories (OBJECT_ALREADY_EXISTS) the CRM uses
// for duplicate creates
var softConflict = regexp.MustCompile(`(?i)already[ _]exists|duplicate|conflict`)

// APIError is a non-2xx answer from the CRM API
type APIError struct {
	StatusCode int
	Message    string
	Category   string
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("crm %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("crm %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Unwrap maps the answer onto the domain taxonomy so callers can use errors.Is
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case e.StatusCode == http.StatusUnauthorized:
		return domain.ErrTokenExpired
	case e.StatusCode == http.StatusConflict, softConflict.MatchString(e.Message), softConflict.MatchString(e.Category):
		return domain.ErrAlreadyExists
	case e.StatusCode == http.StatusNotFound:
		return domain.ErrPropertyNotFound
	case e.StatusCode >= http.StatusInternalServerError:
		return domain.ErrUpstreamUnavailable
	}
	return nil
}
