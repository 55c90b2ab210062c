package ports

import (
	"context"

	"crm-schema-migrator/internal/domain"
)

// ProfileRepository defines the interface for tenant profile persistence.
// A profile is one keyed document per user.
type ProfileRepository interface {
	// ReadProfile returns the user's profile, or nil when none has been stored yet
	ReadProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// UpdateProfile applies a partial update, creating the profile when it does not exist.
	// A changes write carrying ExpectedRevision fails with domain.ErrRevisionConflict when
	// the stored document moved on.
	UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) error
}
