package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"crm-schema-migrator/internal/application"
	"crm-schema-migrator/internal/application/webhook_handlers"
	"crm-schema-migrator/internal/config"
	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/infrastructure/cache"
	"crm-schema-migrator/internal/infrastructure/crm"
	"crm-schema-migrator/internal/infrastructure/metrics"
	"crm-schema-migrator/internal/infrastructure/pubsub"
	"crm-schema-migrator/internal/infrastructure/repository"
	"crm-schema-migrator/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config
	Logger zerolog.Logger

	// Core infrastructure
	Mongo        *mongo.Client
	Profiles     *repository.MongoProfileRepository
	CatalogCache ports.Cache[[]domain.PropertyDefinition]
	TokenCache   ports.Cache[string]
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics

	// Services
	Tokens     *application.TokenService
	Catalog    *application.CatalogService
	Mappings   *application.MappingService
	Migrations *application.MigrationService
	Events     *pubsub.MigrationPubSub
	Webhooks   *application.WebhookDispatcher
}

// New connects the infrastructure and builds the service graph
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	app := &Application{Config: cfg, Logger: logger}

	if err := app.initializeInfrastructure(ctx); err != nil {
		app.Close(context.Background())
		return nil, err
	}
	app.initializeBusinessLayer()
	return app, nil
}

// initializeInfrastructure sets up the profile store, caches and metrics
func (app *Application) initializeInfrastructure(ctx context.Context) error {
	cfg := app.Config

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	app.Mongo = client

	app.Profiles = repository.NewMongoProfileRepository(client.Database(cfg.MongoDatabase))
	if err := app.Profiles.EnsureIndexes(ctx); err != nil {
		return err
	}

	// Catalogs are shared through Redis when configured; tokens always stay in-process
	// so that refresh coalescing sees every waiter.
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		app.CatalogCache = cache.NewRedisCache[[]domain.PropertyDefinition](redisClient, "crm-schema-migrator:")
		app.Logger.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis catalog cache")
	} else {
		app.CatalogCache = cache.NewMemoryCache[[]domain.PropertyDefinition]()
		app.Logger.Info().Msg("Using in-memory catalog cache")
	}
	app.TokenCache = cache.NewMemoryCache[string]()

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.NewMetrics(app.Registry)
	return nil
}

// initializeBusinessLayer wires token -> catalog -> mapping -> migration
func (app *Application) initializeBusinessLayer() {
	cfg, logger := app.Config, app.Logger

	exchanger := crm.NewOAuthExchanger(crm.OAuthConfig{
		ClientID:     cfg.CRMClientID,
		ClientSecret: cfg.CRMClientSecret,
		AuthURL:      cfg.CRMAuthURL,
		TokenURL:     cfg.CRMTokenURL,
		RedirectURL:  cfg.CRMRedirectURI,
		Scopes:       cfg.CRMScopes,
	}, cfg.CRMRequestTimeout, logger)
	crmClient := crm.NewClient(cfg.CRMAPIBaseURL, cfg.CRMRequestTimeout, logger)

	app.Tokens = application.NewTokenService(app.TokenCache, exchanger, app.Profiles, app.Metrics, logger)
	app.Catalog = application.NewCatalogService(crmClient, app.Tokens, app.CatalogCache, cfg.CatalogCacheTTL, app.Metrics, logger)
	app.Mappings = application.NewMappingService(app.Profiles, app.Catalog, logger)

	app.Events = pubsub.NewMigrationPubSub(logger)
	app.Migrations = application.NewMigrationService(
		app.Mappings,
		app.Catalog,
		app.Tokens,
		crmClient,
		app.Events,
		app.Metrics,
		application.MigrationConfig{
			PropertyDelay: cfg.MigrationPropertyDelay,
			Backoff:       application.NewBackoff(cfg.MigrationMaxRetries, cfg.MigrationBackoffBase, cfg.MigrationBackoffMax),
		},
		logger,
	)

	app.Webhooks = application.NewWebhookDispatcher(logger)
	app.Webhooks.RegisterHandler(webhook_handlers.NewAppUninstalledHandler(logger, app.Profiles, app.Tokens, app.Catalog))
	app.Webhooks.RegisterHandler(webhook_handlers.NewPropertyChangeHandler(logger, app.Catalog))
}

// Close releases caches and the database connection
func (app *Application) Close(ctx context.Context) error {
	var errs []error
	if app.CatalogCache != nil {
		errs = append(errs, app.CatalogCache.Close())
	}
	if app.TokenCache != nil {
		errs = append(errs, app.TokenCache.Close())
	}
	if app.Mongo != nil {
		errs = append(errs, app.Mongo.Disconnect(ctx))
	}
	return errors.Join(errs...)
}
