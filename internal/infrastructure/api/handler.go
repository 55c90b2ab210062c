package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"crm-schema-migrator/internal/application"
	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/infrastructure/pubsub"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// PropertyLister reads a tenant's property catalog
type PropertyLister interface {
	ListProperties(ctx context.Context, tenant domain.Tenant, objectType string, forceRefresh bool) ([]domain.PropertyDefinition, error)
}

// MappingManager reads and edits a user's reconciled mappings
type MappingManager interface {
	Rows(ctx context.Context, userID, objectType string) ([]domain.PropertyMapping, error)
	Edit(ctx context.Context, userID string, edit application.MappingEdit) (*domain.PropertyMapping, error)
	AddUserDefined(ctx context.Context, userID string, edit application.MappingEdit) (*domain.PropertyMapping, error)
	Delete(ctx context.Context, userID string, del application.MappingDelete) (int, error)
}

// Migrator runs a property migration for a user
type Migrator interface {
	Migrate(ctx context.Context, userID string, objectTypes []string) (*domain.MigrationBatchResult, error)
}

// Authorizer completes an OAuth authorization for one instance
type Authorizer interface {
	CompleteAuthorization(ctx context.Context, tenant domain.Tenant, code string) error
}

// Dispatcher routes verified webhook events
type Dispatcher interface {
	Dispatch(ctx context.Context, event *domain.WebhookEvent) error
}

// Handler serves the HTTP surface of the migrator
type Handler struct {
	catalog    PropertyLister
	mappings   MappingManager
	migrations Migrator
	auth       Authorizer
	events     *pubsub.MigrationPubSub
	dispatcher Dispatcher
	verifier   *WebhookVerifier
	now        func() time.Time
	logger     zerolog.Logger
}

// NewHandler creates the HTTP handler set
func NewHandler(
	catalog PropertyLister,
	mappings MappingManager,
	migrations Migrator,
	auth Authorizer,
	events *pubsub.MigrationPubSub,
	dispatcher Dispatcher,
	verifier *WebhookVerifier,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		catalog:    catalog,
		mappings:   mappings,
		migrations: migrations,
		auth:       auth,
		events:     events,
		dispatcher: dispatcher,
		verifier:   verifier,
		now:        time.Now,
		logger:     logger,
	}
}

// Routes mounts every endpoint on r. The user middleware is expected to run first.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/properties/{instance}/{objectType}", h.listProperties)

		r.Get("/mappings/{objectType}", h.listMappings)
		r.Put("/mappings/{objectType}", h.editMapping)
		r.Post("/mappings/{objectType}", h.addMapping)
		r.Delete("/mappings/{objectType}", h.deleteMapping)

		r.Post("/auth/{instance}/code", h.completeAuthorization)

		r.Post("/migrations", h.migrate)
		r.Get("/migrations/events", h.migrationEvents)
	})

	r.Post("/webhooks/crm/{userId}/{instance}", h.webhook)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (h *Handler) listProperties(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, err := domain.ParseInstance(chi.URLParam(r, "instance"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	tenant := domain.Tenant{UserID: domain.GetUserIDFromContext(ctx), Instance: instance}

	defs, err := h.catalog.ListProperties(ctx, tenant, chi.URLParam(r, "objectType"), refresh)
	if err != nil {
		h.logger.Error().Err(err).Str("sessionKey", tenant.SessionKey()).Msg("Failed to list properties")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": defs})
}

func (h *Handler) listMappings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := domain.GetUserIDFromContext(ctx)

	rows, err := h.mappings.Rows(ctx, userID, chi.URLParam(r, "objectType"))
	if err != nil {
		h.logger.Error().Err(err).Str("userId", userID).Msg("Failed to read mappings")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings": rows})
}

func (h *Handler) editMapping(w http.ResponseWriter, r *http.Request) {
	h.writeMapping(w, r, http.StatusOK, h.mappings.Edit)
}

func (h *Handler) addMapping(w http.ResponseWriter, r *http.Request) {
	h.writeMapping(w, r, http.StatusCreated, h.mappings.AddUserDefined)
}

func (h *Handler) writeMapping(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	fn func(ctx context.Context, userID string, edit application.MappingEdit) (*domain.PropertyMapping, error),
) {
	ctx := r.Context()
	userID := domain.GetUserIDFromContext(ctx)

	var edit application.MappingEdit
	if err := decodeBody(r, &edit); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	edit.ObjectType = chi.URLParam(r, "objectType")

	row, err := fn(ctx, userID, edit)
	if err != nil {
		h.logger.Warn().Err(err).Str("userId", userID).Str("objectType", edit.ObjectType).Msg("Mapping write rejected")
		writeError(w, err)
		return
	}
	writeJSON(w, status, row)
}

func (h *Handler) deleteMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := domain.GetUserIDFromContext(ctx)

	var del application.MappingDelete
	if err := decodeBody(r, &del); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	del.ObjectType = chi.URLParam(r, "objectType")

	removed, err := h.mappings.Delete(ctx, userID, del)
	if err != nil {
		h.logger.Error().Err(err).Str("userId", userID).Msg("Failed to delete mapping")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

type authorizationRequest struct {
	Code string `json:"code"`
}

func (h *Handler) completeAuthorization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, err := domain.ParseInstance(chi.URLParam(r, "instance"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req authorizationRequest
	if err := decodeBody(r, &req); err != nil || req.Code == "" {
		writeJSONError(w, http.StatusBadRequest, "code is required")
		return
	}

	tenant := domain.Tenant{UserID: domain.GetUserIDFromContext(ctx), Instance: instance}
	if err := h.auth.CompleteAuthorization(ctx, tenant, req.Code); err != nil {
		h.logger.Error().Err(err).Str("sessionKey", tenant.SessionKey()).Msg("Failed to complete authorization")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

type migrationRequest struct {
	ObjectTypes []string `json:"objectTypes"`
}

// migrate runs synchronously; progress is streamed on /migrations/events
func (h *Handler) migrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := domain.GetUserIDFromContext(ctx)

	var req migrationRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.ObjectTypes) == 0 {
		writeJSONError(w, http.StatusBadRequest, "objectTypes is required")
		return
	}

	result, err := h.migrations.Migrate(ctx, userID, req.ObjectTypes)
	if err != nil && result == nil {
		h.logger.Error().Err(err).Str("userId", userID).Msg("Migration did not start")
		writeError(w, err)
		return
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("userId", userID).Str("runId", result.RunID).Msg("Migration interrupted")
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userId")
	instance, err := domain.ParseInstance(chi.URLParam(r, "instance"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	topic := r.Header.Get("X-CRM-Topic")
	if topic == "" {
		h.logger.Warn().Msg("Missing X-CRM-Topic header")
		writeJSONError(w, http.StatusBadRequest, "Missing X-CRM-Topic header")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read webhook payload")
		writeJSONError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if err := h.verifier.Verify(r, payload); err != nil {
		h.logger.Warn().Err(err).Str("userId", userID).Msg("Webhook signature verification failed")
		writeJSONError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	event := &domain.WebhookEvent{
		Topic:      topic,
		Tenant:     domain.Tenant{UserID: userID, Instance: instance},
		Payload:    payload,
		ReceivedAt: h.now(),
	}
	if ot := r.Header.Get("X-CRM-Object-Type"); ot != "" {
		event.ObjectType = domain.NormalizeObjectType(ot)
	}

	if err := h.dispatcher.Dispatch(ctx, event); err != nil {
		h.logger.Error().
			Err(err).
			Str("topic", topic).
			Str("sessionKey", event.Tenant.SessionKey()).
			Msg("Failed to dispatch webhook event")

		// 500 makes the CRM retry the delivery
		writeJSONError(w, http.StatusInternalServerError, "Failed to process webhook event")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}
