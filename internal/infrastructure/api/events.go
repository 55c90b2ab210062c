package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/infrastructure/pubsub"
)

// migrationEvents streams the user's migration outcomes as server-sent events.
// Optional runId and objectType query parameters narrow the stream.
func (h *Handler) migrationEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	filter := &pubsub.MigrationEventFilter{
		UserID: domain.GetUserIDFromContext(ctx),
		RunID:  r.URL.Query().Get("runId"),
	}
	for _, ot := range r.URL.Query()["objectType"] {
		filter.ObjectTypes = append(filter.ObjectTypes, domain.NormalizeObjectType(ot))
	}

	sub := h.events.Subscribe(ctx, filter)
	defer h.events.Unsubscribe(sub.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case outcome, open := <-sub.Events:
			if !open {
				return
			}
			data, err := json.Marshal(outcome)
			if err != nil {
				h.logger.Error().Err(err).Str("runId", outcome.RunID).Msg("Failed to encode migration event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: outcome\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
