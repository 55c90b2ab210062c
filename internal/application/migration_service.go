package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPropertyDelay = 500 * time.Millisecond
	reasonCancelled      = "cancelled"
	reasonProvenance     = "created by an earlier run"
)

// MigrationConfig paces a migration run
type MigrationConfig struct {
	PropertyDelay time.Duration
	Backoff       Backoff
}

// MigrationService creates the user-defined properties of a user in the target tenant.
// A run is strictly sequential and never aborts on a single failure.
type MigrationService struct {
	mappings *MappingService
	catalog  *CatalogService
	tokens   *TokenService
	client   ports.CRMClient
	events   ports.MigrationEventPublisher
	metrics  ports.MigrationMetrics
	cfg      MigrationConfig
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	logger   zerolog.Logger
}

// NewMigrationService creates a new migration service. events and metrics may be nil.
func NewMigrationService(
	mappings *MappingService,
	catalog *CatalogService,
	tokens *TokenService,
	client ports.CRMClient,
	events ports.MigrationEventPublisher,
	metrics ports.MigrationMetrics,
	cfg MigrationConfig,
	logger zerolog.Logger,
) *MigrationService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.PropertyDelay < 0 {
		cfg.PropertyDelay = defaultPropertyDelay
	}
	// a backoff without a base was never configured; only an explicit retry count survives
	if cfg.Backoff.Base <= 0 {
		retries := -1
		if cfg.Backoff.MaxRetries > 0 {
			retries = cfg.Backoff.MaxRetries
		}
		cfg.Backoff = NewBackoff(retries, 0, cfg.Backoff.Max)
	}
	return &MigrationService{
		mappings: mappings,
		catalog:  catalog,
		tokens:   tokens,
		client:   client,
		events:   events,
		metrics:  metrics,
		cfg:      cfg,
		sleep:    sleepContext,
		now:      time.Now,
		logger:   logger,
	}
}

type migrationCandidate struct {
	objectType string
	row        domain.PropertyMapping
	source     *domain.PropertyDefinition
}

// Migrate creates every user-defined property of the given object types in the user's
// target tenant. Each candidate ends up in exactly one bucket of the result.
// When ctx is cancelled the property in flight still completes, the remaining ones are
// recorded as failed and the partial result is returned with the context error.
func (s *MigrationService) Migrate(ctx context.Context, userID string, objectTypes []string) (*domain.MigrationBatchResult, error) {
	if len(objectTypes) == 0 {
		return nil, fmt.Errorf("at least one object type is required")
	}
	runID := uuid.NewString()
	logger := s.logger.With().Str("runId", runID).Str("userId", userID).Logger()

	candidates, err := s.candidates(ctx, userID, objectTypes)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to collect migration candidates")
		return nil, err
	}

	logger.Info().Int("candidates", len(candidates)).Msg("Migration started")

	result := &domain.MigrationBatchResult{RunID: runID}
	for i, c := range candidates {
		if i > 0 {
			// a cancelled wait is picked up by the check below
			_ = s.sleep(ctx, s.cfg.PropertyDelay)
		}
		if ctx.Err() != nil {
			for _, rest := range candidates[i:] {
				s.record(ctx, result, s.outcome(runID, userID, rest, domain.SanitizePropertyName(rest.row.TargetIdentity), domain.OutcomeFailed, reasonCancelled))
			}
			break
		}
		s.record(ctx, result, s.migrateOne(ctx, logger, runID, userID, c))
	}

	logger.Info().
		Int("created", result.CreatedCount).
		Int("alreadyExists", result.AlreadyExistsCount).
		Int("failed", result.FailedCount).
		Msg("Migration finished")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *MigrationService) candidates(ctx context.Context, userID string, objectTypes []string) ([]migrationCandidate, error) {
	seen := make(map[string]bool, len(objectTypes))
	var types []string
	for _, raw := range objectTypes {
		ot := domain.NormalizeObjectType(raw)
		if ot == "" || seen[ot] {
			continue
		}
		seen[ot] = true
		types = append(types, ot)
	}

	sources, err := s.sourceDefinitions(ctx, userID, types)
	if err != nil {
		return nil, err
	}

	var out []migrationCandidate
	for _, ot := range types {
		rows, err := s.mappings.Rows(ctx, userID, ot)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s mappings: %w", ot, err)
		}
		for _, row := range rows {
			if row.Category != domain.CategoryUserDefined {
				continue
			}
			c := migrationCandidate{objectType: ot, row: row}
			if def, ok := sources[ot][row.SourceIdentity]; ok {
				c.source = &def
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// sourceDefinitions reads the source catalogs of all requested types at once and indexes
// them by internal name. They warm the cache the mapping rows are built from and supply
// the field types copied to the target. A source that was never connected leaves the
// default field types in place.
func (s *MigrationService) sourceDefinitions(ctx context.Context, userID string, objectTypes []string) (map[string]map[string]domain.PropertyDefinition, error) {
	tenant := domain.Tenant{UserID: userID, Instance: domain.InstanceSource}
	catalogs, err := s.catalog.ListPropertiesForTypes(ctx, tenant, objectTypes)
	if isDegradable(err) {
		s.logger.Debug().Err(err).Str("userId", userID).Msg("Source catalog unavailable, using default field types")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read source catalogs: %w", err)
	}

	out := make(map[string]map[string]domain.PropertyDefinition, len(catalogs))
	for ot, defs := range catalogs {
		byName := make(map[string]domain.PropertyDefinition, len(defs))
		for _, d := range defs {
			byName[d.Name] = d
		}
		out[ot] = byName
	}
	return out, nil
}

func (s *MigrationService) migrateOne(ctx context.Context, logger zerolog.Logger, runID, userID string, c migrationCandidate) domain.PropertyOutcome {
	name := domain.SanitizePropertyName(c.row.TargetIdentity)
	if c.row.RemotelyCreated {
		return s.outcome(runID, userID, c, name, domain.OutcomeAlreadyExists, reasonProvenance)
	}

	// the property in flight finishes even if the run is cancelled meanwhile
	workCtx := context.WithoutCancel(ctx)
	sessionKey := domain.SessionKey(userID, domain.InstanceTarget)

	err := s.withBackoff(ctx, logger, c.objectType, func() error {
		return s.tokens.WithAccessToken(workCtx, sessionKey, func(ctx context.Context, token string) error {
			_, err := s.client.GetProperty(ctx, token, c.objectType, name)
			return err
		})
	})
	switch {
	case err == nil:
		s.markMigrated(workCtx, logger, userID, c.objectType, name)
		return s.outcome(runID, userID, c, name, domain.OutcomeAlreadyExists, "present in target")
	case !errors.Is(err, domain.ErrPropertyNotFound):
		logger.Warn().Err(err).Str("objectType", c.objectType).Str("property", name).Msg("Existence check failed")
		return s.outcome(runID, userID, c, name, domain.OutcomeFailed, err.Error())
	}

	payload := s.payload(c, name)
	err = s.withBackoff(ctx, logger, c.objectType, func() error {
		return s.tokens.WithAccessToken(workCtx, sessionKey, func(ctx context.Context, token string) error {
			_, err := s.client.CreateProperty(ctx, token, c.objectType, payload)
			return err
		})
	})
	switch {
	case err == nil:
		s.markMigrated(workCtx, logger, userID, c.objectType, name)
		logger.Info().Str("objectType", c.objectType).Str("property", name).Msg("Property created")
		return s.outcome(runID, userID, c, name, domain.OutcomeCreated, "")
	case errors.Is(err, domain.ErrAlreadyExists):
		s.markMigrated(workCtx, logger, userID, c.objectType, name)
		return s.outcome(runID, userID, c, name, domain.OutcomeAlreadyExists, err.Error())
	default:
		logger.Warn().Err(err).Str("objectType", c.objectType).Str("property", name).Msg("Property creation failed")
		return s.outcome(runID, userID, c, name, domain.OutcomeFailed, fmt.Errorf("%w: %w", domain.ErrCreateFailed, err).Error())
	}
}

// withBackoff retries fn while the upstream answers 429. Waits honour ctx, so a cancelled
// run stops retrying but never interrupts a call already in flight.
func (s *MigrationService) withBackoff(ctx context.Context, logger zerolog.Logger, objectType string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if !errors.Is(err, domain.ErrRateLimited) {
			return err
		}
		s.metrics.RecordRateLimited(objectType)
		if attempt >= s.cfg.Backoff.MaxRetries {
			return fmt.Errorf("gave up after %d retries: %w", attempt, err)
		}
		delay := s.cfg.Backoff.Delay(attempt)
		logger.Debug().
			Str("objectType", objectType).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Rate limited, backing off")
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%w: retry interrupted: %w", err, sleepErr)
		}
	}
}

func (s *MigrationService) payload(c migrationCandidate, name string) domain.PropertyCreate {
	p := domain.PropertyCreate{
		Name:      name,
		Label:     firstOf(c.row.TargetLabel, c.row.SourceLabel, name),
		Type:      "string",
		FieldType: "text",
		GroupName: domain.DefaultGroupName(c.objectType),
	}
	if c.source != nil {
		if c.source.Type != "" {
			p.Type = c.source.Type
		}
		if c.source.FieldType != "" {
			p.FieldType = c.source.FieldType
		}
		if c.source.GroupName != "" {
			p.GroupName = c.source.GroupName
		}
	}
	return p
}

func (s *MigrationService) markMigrated(ctx context.Context, logger zerolog.Logger, userID, objectType, name string) {
	if err := s.mappings.MarkMigrated(ctx, userID, objectType, name); err != nil {
		// the next run's existence check still catches the property
		logger.Warn().Err(err).Str("objectType", objectType).Str("property", name).Msg("Failed to record provenance")
	}
}

func (s *MigrationService) outcome(runID, userID string, c migrationCandidate, name string, o domain.Outcome, reason string) domain.PropertyOutcome {
	return domain.PropertyOutcome{
		RunID:      runID,
		UserID:     userID,
		ObjectType: c.objectType,
		Name:       name,
		Label:      firstOf(c.row.TargetLabel, c.row.SourceLabel, name),
		Outcome:    o,
		Reason:     reason,
		At:         s.now().UTC(),
	}
}

func (s *MigrationService) record(ctx context.Context, result *domain.MigrationBatchResult, o domain.PropertyOutcome) {
	result.Record(o)
	s.metrics.RecordOutcome(o.ObjectType, o.Outcome)
	if s.events != nil {
		s.events.Publish(context.WithoutCancel(ctx), o)
	}
}
