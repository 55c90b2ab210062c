package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/ports"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentCatalogReads bounds the fan-out of ListPropertiesForTypes
const maxConcurrentCatalogReads = 4

// CatalogService fetches property definitions per tenant and object type and caches them
type CatalogService struct {
	client  ports.CRMClient
	tokens  *TokenService
	cache   ports.Cache[[]domain.PropertyDefinition]
	ttl     time.Duration
	metrics ports.MigrationMetrics
	logger  zerolog.Logger
}

// NewCatalogService creates a new catalog service. metrics may be nil.
func NewCatalogService(
	client ports.CRMClient,
	tokens *TokenService,
	cache ports.Cache[[]domain.PropertyDefinition],
	ttl time.Duration,
	metrics ports.MigrationMetrics,
	logger zerolog.Logger,
) *CatalogService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &CatalogService{
		client:  client,
		tokens:  tokens,
		cache:   cache,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

func catalogPrefix(tenant domain.Tenant) string {
	return fmt.Sprintf("catalog:%s:%s:", tenant.UserID, tenant.Instance)
}

// ListProperties returns every property of objectType in the tenant. Results are cached
// per tenant and normalized object type; forceRefresh bypasses the cached copy.
func (s *CatalogService) ListProperties(ctx context.Context, tenant domain.Tenant, objectType string, forceRefresh bool) ([]domain.PropertyDefinition, error) {
	objectType = domain.NormalizeObjectType(objectType)
	if objectType == "" {
		return nil, fmt.Errorf("object type is required")
	}
	key := catalogPrefix(tenant) + objectType

	if !forceRefresh {
		if defs, err := s.cache.Get(ctx, key); err == nil {
			s.metrics.RecordCatalogLookup(true)
			return defs, nil
		}
	}
	s.metrics.RecordCatalogLookup(false)

	var defs []domain.PropertyDefinition
	err := s.tokens.WithAccessToken(ctx, tenant.SessionKey(), func(ctx context.Context, accessToken string) error {
		var err error
		defs, err = s.client.ListProperties(ctx, accessToken, objectType)
		return err
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("userId", tenant.UserID).
			Str("instance", string(tenant.Instance)).
			Str("objectType", objectType).
			Msg("Failed to list properties")
		return nil, err
	}

	for i := range defs {
		defs[i].ObjectType = objectType
	}
	if err := s.cache.Set(ctx, key, defs, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache property catalog")
	}
	return defs, nil
}

// ListPropertiesForTypes reads several object types concurrently. The first failure
// cancels the remaining reads.
func (s *CatalogService) ListPropertiesForTypes(ctx context.Context, tenant domain.Tenant, objectTypes []string) (map[string][]domain.PropertyDefinition, error) {
	results := make([][]domain.PropertyDefinition, len(objectTypes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCatalogReads)
	for i, ot := range objectTypes {
		g.Go(func() error {
			defs, err := s.ListProperties(gctx, tenant, ot, false)
			if err != nil {
				return fmt.Errorf("failed to list %s properties: %w", ot, err)
			}
			results[i] = defs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]domain.PropertyDefinition, len(objectTypes))
	for i, ot := range objectTypes {
		out[domain.NormalizeObjectType(ot)] = results[i]
	}
	return out, nil
}

// Invalidate drops every cached catalog of the tenant
func (s *CatalogService) Invalidate(ctx context.Context, tenant domain.Tenant) error {
	if err := s.cache.DeletePrefix(ctx, catalogPrefix(tenant)); err != nil {
		return fmt.Errorf("failed to invalidate property catalog: %w", err)
	}
	return nil
}

// isDegradable reports whether a catalog failure should fall back to defaults instead of
// failing the caller
func isDegradable(err error) bool {
	return errors.Is(err, domain.ErrNoRefreshToken)
}
