package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"crm-schema-migrator/internal/domain"

	"github.com/rs/zerolog"
)

// WebhookHandler processes the webhook topics it declares it can handle
type WebhookHandler interface {
	CanHandle(topic string) bool
	Handle(ctx context.Context, event *domain.WebhookEvent) error
}

// WebhookDispatcher routes verified webhook events to every registered handler
// that accepts the topic. Handlers run in registration order.
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers []WebhookHandler
	logger   zerolog.Logger
}

// NewWebhookDispatcher creates an empty dispatcher
func NewWebhookDispatcher(logger zerolog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{logger: logger}
}

// RegisterHandler adds a handler
func (d *WebhookDispatcher) RegisterHandler(h WebhookHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Dispatch runs every handler for the event topic. All matching handlers run even
// when one fails; their errors are joined.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, event *domain.WebhookEvent) error {
	d.mu.RLock()
	handlers := append([]WebhookHandler(nil), d.handlers...)
	d.mu.RUnlock()

	var errs []error
	handled := 0
	for _, h := range handlers {
		if !h.CanHandle(event.Topic) {
			continue
		}
		handled++
		if err := h.Handle(ctx, event); err != nil {
			d.logger.Error().
				Err(err).
				Str("topic", event.Topic).
				Str("sessionKey", event.Tenant.SessionKey()).
				Msg("Webhook handler failed")
			errs = append(errs, err)
		}
	}

	if handled == 0 {
		d.logger.Debug().Str("topic", event.Topic).Msg("No webhook handler registered for topic")
		return nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to handle webhook %s: %w", event.Topic, errors.Join(errs...))
	}
	return nil
}
