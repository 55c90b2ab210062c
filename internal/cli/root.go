package cli

import (
	"context"
	"fmt"
	"os"

	"crm-schema-migrator/internal/application"
	"crm-schema-migrator/internal/bootstrap"
	"crm-schema-migrator/internal/config"
	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/infrastructure/pubsub"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// PropertyLister reads a tenant's property catalog
type PropertyLister interface {
	ListProperties(ctx context.Context, tenant domain.Tenant, objectType string, forceRefresh bool) ([]domain.PropertyDefinition, error)
}

// MappingStore reads, edits and upgrades a user's mappings
type MappingStore interface {
	Rows(ctx context.Context, userID, objectType string) ([]domain.PropertyMapping, error)
	Edit(ctx context.Context, userID string, edit application.MappingEdit) (*domain.PropertyMapping, error)
	AddUserDefined(ctx context.Context, userID string, edit application.MappingEdit) (*domain.PropertyMapping, error)
	Delete(ctx context.Context, userID string, del application.MappingDelete) (int, error)
	UpgradeLegacy(ctx context.Context, userID string) (bool, error)
}

// Migrator runs a property migration
type Migrator interface {
	Migrate(ctx context.Context, userID string, objectTypes []string) (*domain.MigrationBatchResult, error)
}

// Services is what the commands operate on
type Services struct {
	Catalog    PropertyLister
	Mappings   MappingStore
	Migrations Migrator
	Events     *pubsub.MigrationPubSub
	Close      func()
}

// Opener builds the services for one command invocation
type Opener func(ctx context.Context, logger zerolog.Logger) (*Services, error)

// openBootstrap connects to the real profile store and CRM
func openBootstrap(ctx context.Context, logger zerolog.Logger) (*Services, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Services{
		Catalog:    app.Catalog,
		Mappings:   app.Mappings,
		Migrations: app.Migrations,
		Events:     app.Events,
		Close:      func() { _ = app.Close(context.Background()) },
	}, nil
}

type globalOptions struct {
	userID   string
	output   string
	logLevel string
}

// runner carries the state shared by every subcommand
type runner struct {
	open Opener
	opts globalOptions
}

func (r *runner) logger(cmd *cobra.Command) zerolog.Logger {
	level, err := zerolog.ParseLevel(r.opts.logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger().Level(level)
}

// services opens the services and checks the acting user is set
func (r *runner) services(cmd *cobra.Command) (*Services, error) {
	if r.opts.userID == "" {
		return nil, fmt.Errorf("--user (or MIGRATOR_USER) is required")
	}
	return r.open(cmd.Context(), r.logger(cmd))
}

// NewRootCmd builds the command tree around an Opener
func NewRootCmd(open Opener) *cobra.Command {
	r := &runner{open: open}

	rootCmd := &cobra.Command{
		Use:   "migrator",
		Short: "Operate CRM schema mappings and property migrations",
		Long: `migrator inspects and edits the property mappings between a user's source and
target CRM accounts, and creates the user-defined properties that are missing
in the target account.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&r.opts.userID, "user", "u", os.Getenv("MIGRATOR_USER"), "User whose connections and mappings to operate on")
	rootCmd.PersistentFlags().StringVarP(&r.opts.output, "output", "o", string(FormatTable), "Output format: table, json or yaml")
	rootCmd.PersistentFlags().StringVar(&r.opts.logLevel, "log-level", "warn", "Log level written to stderr")

	rootCmd.AddCommand(
		newPropertiesCmd(r),
		newMappingsCmd(r),
		newMigrateCmd(r),
		newUpgradeCmd(r),
	)
	return rootCmd
}

// ExecuteContext runs the root command against the configured environment
func ExecuteContext(ctx context.Context) error {
	return NewRootCmd(openBootstrap).ExecuteContext(ctx)
}
