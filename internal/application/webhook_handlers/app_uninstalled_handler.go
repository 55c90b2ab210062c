package webhook_handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/ports"

	"github.com/rs/zerolog"
)

// TokenInvalidator drops the cached tokens of a session key
type TokenInvalidator interface {
	Invalidate(ctx context.Context, sessionKey string) error
}

// CatalogInvalidator drops the cached property catalogs of a tenant
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, tenant domain.Tenant) error
}

// uninstallPayload is the subset of the uninstall notification we log
type uninstallPayload struct {
	PortalID int64 `json:"portalId"`
	AppID    int64 `json:"appId"`
}

// AppUninstalledHandler handles app uninstalled webhook events
type AppUninstalledHandler struct {
	logger   zerolog.Logger
	profiles ports.ProfileRepository
	tokens   TokenInvalidator
	catalog  CatalogInvalidator
}

// NewAppUninstalledHandler creates a new app uninstalled webhook handler
func NewAppUninstalledHandler(
	logger zerolog.Logger,
	profiles ports.ProfileRepository,
	tokens TokenInvalidator,
	catalog CatalogInvalidator,
) *AppUninstalledHandler {
	return &AppUninstalledHandler{
		logger:   logger,
		profiles: profiles,
		tokens:   tokens,
		catalog:  catalog,
	}
}

// CanHandle returns true if this handler can process the given topic
func (h *AppUninstalledHandler) CanHandle(topic string) bool {
	return topic == domain.TopicAppUninstalled
}

// Handle forgets every credential of the uninstalled tenant. Mappings and migration
// provenance are kept so a reinstall picks up where the user left off.
func (h *AppUninstalledHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	var payload uninstallPayload
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("failed to parse app uninstalled webhook payload: %w", err)
		}
	}

	tenant := event.Tenant
	logger := h.logger.With().
		Str("topic", event.Topic).
		Str("userId", tenant.UserID).
		Str("instance", string(tenant.Instance)).
		Int64("portalId", payload.PortalID).
		Logger()
	logger.Info().Msg("Processing app uninstalled webhook event")

	var errs []error
	if err := h.tokens.Invalidate(ctx, tenant.SessionKey()); err != nil {
		errs = append(errs, fmt.Errorf("failed to drop cached tokens: %w", err))
	}
	if err := h.catalog.Invalidate(ctx, tenant); err != nil {
		errs = append(errs, fmt.Errorf("failed to drop cached catalogs: %w", err))
	}
	err := h.profiles.UpdateProfile(ctx, tenant.UserID, domain.ProfileUpdate{
		Instances: map[domain.Instance]domain.InstanceUpdate{tenant.Instance: {Clear: true}},
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to clear stored connection: %w", err))
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		logger.Error().Err(err).Msg("App uninstall cleanup incomplete")
		return err
	}

	logger.Info().Msg("App uninstalled - cleanup completed")
	return nil
}
