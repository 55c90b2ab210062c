package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/ports"

	"github.com/rs/zerolog"
)

// maxWriteAttempts bounds the read-modify-write retries after a lost revision race
const maxWriteAttempts = 5

// errNoChange tells mutate that the document is already in the wanted state
var errNoChange = errors.New("no change")

// MappingService reconciles and persists the per-user property mapping table
type MappingService struct {
	profiles ports.ProfileRepository
	catalog  *CatalogService
	now      func() time.Time
	logger   zerolog.Logger
}

// NewMappingService creates a new mapping service
func NewMappingService(profiles ports.ProfileRepository, catalog *CatalogService, logger zerolog.Logger) *MappingService {
	return &MappingService{
		profiles: profiles,
		catalog:  catalog,
		now:      time.Now,
		logger:   logger,
	}
}

// MappingEdit changes where one source property maps to.
// ExpectedVersion, when set, must equal the stored version of the record.
type MappingEdit struct {
	ObjectType      string `json:"object_type"`
	SourceName      string `json:"source_name,omitempty"`
	SourceLabel     string `json:"source_label"`
	TargetName      string `json:"target_name,omitempty"`
	TargetLabel     string `json:"target_label"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

// MappingDelete identifies a mapping by any of its source or target names and labels
type MappingDelete struct {
	ObjectType  string `json:"object_type"`
	SourceName  string `json:"source_name,omitempty"`
	SourceLabel string `json:"source_label,omitempty"`
	TargetName  string `json:"target_name,omitempty"`
	TargetLabel string `json:"target_label,omitempty"`
}

func (e MappingEdit) validate() error {
	if strings.TrimSpace(e.ObjectType) == "" {
		return fmt.Errorf("%w: object type is required", domain.ErrInvalidMapping)
	}
	if strings.TrimSpace(e.SourceName) == "" && strings.TrimSpace(e.SourceLabel) == "" {
		return fmt.Errorf("%w: source is required", domain.ErrInvalidMapping)
	}
	if strings.TrimSpace(e.TargetName) == "" && strings.TrimSpace(e.TargetLabel) == "" {
		return fmt.Errorf("%w: target is required", domain.ErrInvalidMapping)
	}
	return nil
}

// Rows returns the reconciled mapping rows of an object type. Without a source connection
// the rows degrade to the defaults plus what the user persisted.
func (s *MappingService) Rows(ctx context.Context, userID, objectType string) ([]domain.PropertyMapping, error) {
	objectType = domain.NormalizeObjectType(objectType)
	doc, err := s.readDoc(ctx, userID)
	if err != nil {
		return nil, err
	}
	remote, err := s.sourceCatalog(ctx, userID, objectType)
	if err != nil {
		return nil, err
	}
	return domain.Reconcile(objectType, remote, doc), nil
}

func (s *MappingService) sourceCatalog(ctx context.Context, userID, objectType string) ([]domain.PropertyDefinition, error) {
	tenant := domain.Tenant{UserID: userID, Instance: domain.InstanceSource}
	remote, err := s.catalog.ListProperties(ctx, tenant, objectType, false)
	if err == nil {
		return remote, nil
	}
	if isDegradable(err) {
		s.logger.Warn().
			Str("userId", userID).
			Str("objectType", objectType).
			Msg("Source instance not connected, using default properties")
		return nil, nil
	}
	return nil, fmt.Errorf("failed to read source catalog: %w", err)
}

// Edit remaps a row of any category. Every ghost entry of the same logical property is
// removed and one record is written at the row's canonical key with the next version.
func (s *MappingService) Edit(ctx context.Context, userID string, edit MappingEdit) (*domain.PropertyMapping, error) {
	if err := edit.validate(); err != nil {
		return nil, err
	}
	objectType := domain.NormalizeObjectType(edit.ObjectType)

	rows, err := s.Rows(ctx, userID, objectType)
	if err != nil {
		return nil, err
	}
	row, ok, err := domain.FindRow(rows, edit.SourceName, edit.SourceLabel)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no %s property %q", domain.ErrInvalidMapping, objectType, firstOf(edit.SourceLabel, edit.SourceName))
	}

	// a built-in default is never rewritten; remapping it stores a custom override at
	// its canonical key, which reconciliation ranks above the default row
	category := row.Category
	if category == domain.CategoryDefault {
		category = domain.CategoryCustom
	}
	sourceName := edit.SourceName
	if category == domain.CategoryCustom {
		sourceName = row.SourceIdentity
	}
	ghostForms := []string{row.Key, row.SourceIdentity, row.SourceLabel, edit.SourceName, edit.SourceLabel}
	var previousTargets []string
	if row.Version > 0 {
		previousTargets = ownTargetForms(rows, row)
	}
	return s.write(ctx, userID, objectType, row.Key, domain.MappingRecord{
		SourceName:  sourceName,
		SourceLabel: firstOf(edit.SourceLabel, row.SourceLabel),
		TargetName:  edit.TargetName,
		TargetLabel: firstOf(edit.TargetLabel, edit.TargetName),
		Category:    category,
	}, ghostForms, previousTargets, edit.ExpectedVersion)
}

// AddUserDefined declares a property that only exists on the user's side and should be
// created in the target. Names that resolve to a default or remote property are rejected;
// re-adding an existing user-defined property updates it.
func (s *MappingService) AddUserDefined(ctx context.Context, userID string, edit MappingEdit) (*domain.PropertyMapping, error) {
	if err := edit.validate(); err != nil {
		return nil, err
	}
	objectType := domain.NormalizeObjectType(edit.ObjectType)

	rows, err := s.Rows(ctx, userID, objectType)
	if err != nil {
		return nil, err
	}
	row, ok, err := domain.FindRow(rows, edit.SourceName, edit.SourceLabel)
	if err != nil {
		return nil, err
	}
	key := domain.CanonicalIdentity(edit.SourceName, edit.SourceLabel)
	var previousTargets []string
	if ok {
		if row.Category == domain.CategoryDefault {
			return nil, fmt.Errorf("%w: %q is a built-in %s property", domain.ErrImmutableMapping, row.SourceLabel, objectType)
		}
		if row.Category != domain.CategoryUserDefined {
			return nil, fmt.Errorf("%w: %q is already a %s property", domain.ErrInvalidMapping, row.SourceLabel, objectType)
		}
		key = row.Key
		previousTargets = ownTargetForms(rows, row)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: source has no usable identity", domain.ErrInvalidMapping)
	}

	return s.write(ctx, userID, objectType, key, domain.MappingRecord{
		SourceName:  edit.SourceName,
		SourceLabel: firstOf(edit.SourceLabel, edit.SourceName),
		TargetName:  edit.TargetName,
		TargetLabel: firstOf(edit.TargetLabel, edit.TargetName),
		Category:    domain.CategoryUserDefined,
	}, []string{key, edit.SourceName, edit.SourceLabel}, previousTargets, edit.ExpectedVersion)
}

func (s *MappingService) write(ctx context.Context, userID, objectType, key string, rec domain.MappingRecord, ghostForms, previousTargets []string, expected *int64) (*domain.PropertyMapping, error) {
	var written domain.MappingRecord
	err := s.mutate(ctx, userID, func(doc *domain.ChangesDocument) error {
		ghosts := doc.FindSourceKeys(objectType, ghostForms, previousTargets)

		var current int64
		for _, k := range ghosts {
			if r, ok := doc.Record(objectType, k); ok && r.Version > current {
				current = r.Version
			}
		}
		if expected != nil && *expected != current {
			return fmt.Errorf("%w: %s.%s is at version %d, expected %d", domain.ErrMappingConflict, objectType, key, current, *expected)
		}

		for _, k := range ghosts {
			doc.Remove(objectType, k)
		}
		written = rec
		written.Version = current + 1
		written.UpdatedAt = s.now().UTC()
		doc.Put(objectType, key, written)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("userId", userID).
		Str("objectType", objectType).
		Str("key", key).
		Int64("version", written.Version).
		Msg("Mapping saved")

	target := domain.TargetIdentity(written)
	return &domain.PropertyMapping{
		ObjectType:     objectType,
		Key:            key,
		SourceIdentity: firstOf(written.SourceName, key),
		SourceLabel:    written.SourceLabel,
		TargetIdentity: target,
		TargetLabel:    written.TargetLabel,
		Category:       written.Category,
		Version:        written.Version,
	}, nil
}

// Delete removes every record referring to the given names or labels. Deleting a mapping
// that does not exist is a no-op. It returns the number of records removed.
func (s *MappingService) Delete(ctx context.Context, userID string, del MappingDelete) (int, error) {
	objectType := domain.NormalizeObjectType(del.ObjectType)
	if objectType == "" {
		return 0, fmt.Errorf("%w: object type is required", domain.ErrInvalidMapping)
	}
	forms := []string{del.SourceName, del.SourceLabel, del.TargetName, del.TargetLabel}

	removed := 0
	err := s.mutate(ctx, userID, func(doc *domain.ChangesDocument) error {
		keys := doc.FindKeys(objectType, forms)
		if len(keys) == 0 {
			return errNoChange
		}
		removed = 0
		for _, k := range keys {
			if doc.Remove(objectType, k) {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info().Str("userId", userID).Str("objectType", objectType).Int("removed", removed).Msg("Mapping deleted")
	}
	return removed, nil
}

// MarkMigrated records that name was created in the target by this service
func (s *MappingService) MarkMigrated(ctx context.Context, userID, objectType, name string) error {
	objectType = domain.NormalizeObjectType(objectType)
	return s.mutate(ctx, userID, func(doc *domain.ChangesDocument) error {
		if !doc.MarkMigrated(objectType, name) {
			return errNoChange
		}
		return nil
	})
}

// Migrated returns the provenance sets of every object type
func (s *MappingService) Migrated(ctx context.Context, userID string) (map[string][]string, error) {
	doc, err := s.readDoc(ctx, userID)
	if err != nil {
		return nil, err
	}
	return doc.Migrated, nil
}

// UpgradeLegacy persists a legacy changes document in the current layout.
// It reports whether anything was rewritten.
func (s *MappingService) UpgradeLegacy(ctx context.Context, userID string) (bool, error) {
	upgraded := false
	err := s.mutate(ctx, userID, func(doc *domain.ChangesDocument) error {
		if !doc.Upgraded {
			return errNoChange
		}
		upgraded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if upgraded {
		s.logger.Info().Str("userId", userID).Msg("Legacy changes document upgraded")
	}
	return upgraded, nil
}

func (s *MappingService) readDoc(ctx context.Context, userID string) (*domain.ChangesDocument, error) {
	profile, err := s.profiles.ReadProfile(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("userId", userID).Msg("Failed to read profile")
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
	}
	if profile == nil || profile.Changes == nil {
		return domain.NewChangesDocument(), nil
	}
	return profile.Changes, nil
}

// mutate applies fn to a copy of the stored document and writes it back under a revision
// check, re-reading and re-applying fn when another writer got there first.
func (s *MappingService) mutate(ctx context.Context, userID string, fn func(doc *domain.ChangesDocument) error) error {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		doc, err := s.readDoc(ctx, userID)
		if err != nil {
			return err
		}
		expected := doc.Revision
		work := doc.Clone()

		if err := fn(work); err != nil {
			if errors.Is(err, errNoChange) {
				return nil
			}
			return err
		}

		err = s.profiles.UpdateProfile(ctx, userID, domain.ProfileUpdate{
			Changes:          work,
			ExpectedRevision: &expected,
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrRevisionConflict) {
			s.logger.Error().Err(err).Str("userId", userID).Msg("Failed to write changes document")
			return fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
		}
		s.logger.Debug().
			Str("userId", userID).
			Int64("revision", expected).
			Int("attempt", attempt).
			Msg("Changes document moved, retrying")
	}
	s.logger.Error().Str("userId", userID).Msg("Gave up writing changes document after repeated conflicts")
	return fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, domain.ErrRevisionConflict)
}

// ownTargetForms returns the previous target name and label of row, minus any form that
// is the key of another row and so cannot be a ghost of this one.
func ownTargetForms(rows []domain.PropertyMapping, row domain.PropertyMapping) []string {
	var out []string
	for _, f := range domain.IdentityForms(row.TargetIdentity, row.TargetLabel) {
		foreign := false
		for _, r := range rows {
			if r.Key != row.Key && r.Key == f {
				foreign = true
				break
			}
		}
		if !foreign {
			out = append(out, f)
		}
	}
	return out
}

func firstOf(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
