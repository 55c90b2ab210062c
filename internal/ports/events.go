package ports

import (
	"context"

	"crm-schema-migrator/internal/domain"
)

// MigrationEventPublisher fans migration outcomes out to interested subscribers
type MigrationEventPublisher interface {
	Publish(ctx context.Context, outcome domain.PropertyOutcome)
}

// MigrationMetrics records migration and catalog activity
type MigrationMetrics interface {
	RecordOutcome(objectType string, outcome domain.Outcome)
	RecordRateLimited(objectType string)
	RecordTokenRefresh(success bool)
	RecordCatalogLookup(hit bool)
}
