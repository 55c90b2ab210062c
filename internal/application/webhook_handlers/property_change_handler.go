package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"crm-schema-migrator/internal/domain"

	"github.com/rs/zerolog"
)

// propertyEvent is one entry of a schema-change notification batch
type propertyEvent struct {
	ObjectType   string `json:"objectType"`
	PropertyName string `json:"propertyName"`
}

// PropertyChangeHandler handles property schema webhook events by dropping the
// tenant's cached catalogs, so the next reconciliation sees the change
type PropertyChangeHandler struct {
	logger  zerolog.Logger
	catalog CatalogInvalidator
}

// NewPropertyChangeHandler creates a new property webhook handler
func NewPropertyChangeHandler(logger zerolog.Logger, catalog CatalogInvalidator) *PropertyChangeHandler {
	return &PropertyChangeHandler{
		logger:  logger,
		catalog: catalog,
	}
}

// CanHandle returns true if this handler can process the given topic
func (h *PropertyChangeHandler) CanHandle(topic string) bool {
	return topic == domain.TopicPropertyCreation ||
		topic == domain.TopicPropertyDeletion ||
		topic == domain.TopicPropertyChange
}

// Handle processes a property webhook event
func (h *PropertyChangeHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	var batch []propertyEvent
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &batch); err != nil {
			return fmt.Errorf("failed to parse property webhook payload: %w", err)
		}
	}

	names := make([]string, 0, len(batch))
	for _, e := range batch {
		names = append(names, e.PropertyName)
	}

	h.logger.Info().
		Str("topic", event.Topic).
		Str("sessionKey", event.Tenant.SessionKey()).
		Str("objectType", event.ObjectType).
		Str("properties", strings.Join(names, ",")).
		Msg("Processing property webhook event")

	if err := h.catalog.Invalidate(ctx, event.Tenant); err != nil {
		return fmt.Errorf("failed to invalidate catalog: %w", err)
	}
	return nil
}
