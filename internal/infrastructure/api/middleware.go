package api

import (
	"net/http"
	"strings"

	"crm-schema-migrator/internal/domain"

	"github.com/rs/zerolog"
)

// UserIDHeader carries the acting user, set by the gateway in front of the service
const UserIDHeader = "X-User-ID"

// publicPath reports routes that are reachable without a user header
func publicPath(path string) bool {
	return path == "/health" ||
		path == "/metrics" ||
		strings.HasPrefix(path, "/webhooks/")
}

// UserIDMiddleware puts the acting user into the request context.
// Public routes such as /health and the webhook receiver are skipped.
func UserIDMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
			if userID == "" {
				logger.Debug().Str("path", r.URL.Path).Msg("Rejected request without user header")
				writeJSONError(w, http.StatusBadRequest, UserIDHeader+" header is required")
				return
			}

			next.ServeHTTP(w, r.WithContext(domain.WithUserID(r.Context(), userID)))
		})
	}
}
