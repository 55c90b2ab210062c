package application

import (
	"context"
	"errors"
	"testing"

	"crm-schema-migrator/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeLegacyChanges(t *testing.T, h *harness, raw string) {
	t.Helper()
	doc, err := domain.DecodeChanges(raw)
	require.NoError(t, err)
	storeChanges(h, doc)
}

func storeChanges(h *harness, doc *domain.ChangesDocument) {
	h.repo.Put(&domain.Profile{
		UserID: testUser,
		Instances: map[domain.Instance]domain.InstanceProfile{
			domain.InstanceSource: {RefreshToken: "rt-source"},
			domain.InstanceTarget: {RefreshToken: "rt-target"},
		},
		Changes: doc,
	})
}

func countBySource(rows []domain.PropertyMapping, source string) int {
	n := 0
	for _, r := range rows {
		if r.SourceIdentity == source {
			n++
		}
	}
	return n
}

func TestMappingService_RowsDegradeWithoutSourceConnection(t *testing.T) {
	h := newHarness(t)

	rows, err := h.mappings.Rows(context.Background(), testUser, "deal")
	require.NoError(t, err)
	assert.Len(t, rows, len(domain.DefaultProperties(domain.ObjectDeals)))
}

func TestMappingService_RowsSurfaceUpstreamFailures(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.crm.listErrs = []error{domain.ErrUpstreamUnavailable}

	_, err := h.mappings.Rows(context.Background(), testUser, domain.ObjectDeals)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestMappingService_LegacyDealsAmountIsOneRow(t *testing.T) {
	h := newHarness(t)
	storeLegacyChanges(t, h, `{"Deals": {
		"Amount": {"source": "Amount", "target": "Deal Value", "category": "custom"},
		"amount": {"sourceLabel": "Amount", "sourceName": "amount", "targetLabel": "Revenue", "category": "custom"}
	}}`)

	rows, err := h.mappings.Rows(context.Background(), testUser, "deals")
	require.NoError(t, err)

	require.Equal(t, 1, countBySource(rows, "amount"))
	for _, r := range rows {
		if r.SourceIdentity == "amount" {
			assert.Equal(t, "Revenue", r.TargetLabel)
			assert.Equal(t, domain.CategoryCustom, r.Category)
		}
	}
}

func TestMappingService_EditCustomRow(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.crm.add("source", domain.ObjectContacts, domain.PropertyDefinition{Name: "shoe_size", Label: "Shoe Size", Type: "number", FieldType: "number"})
	ctx := context.Background()

	m, err := h.mappings.Edit(ctx, testUser, MappingEdit{ObjectType: "contact", SourceLabel: "Shoe Size", TargetLabel: "Foot Size"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Version)
	assert.Equal(t, "foot_size", m.TargetIdentity)
	assert.Equal(t, "shoe_size", m.Key)

	doc := h.repo.Changes(testUser)
	rec, ok := doc.Record(domain.ObjectContacts, "shoe_size")
	require.True(t, ok)
	assert.Equal(t, "shoe_size", rec.SourceName)
	assert.Equal(t, "Foot Size", rec.TargetLabel)
	assert.Equal(t, domain.CategoryCustom, rec.Category)
}

func TestMappingService_EditIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.crm.add("source", domain.ObjectContacts, domain.PropertyDefinition{Name: "shoe_size", Label: "Shoe Size"})
	ctx := context.Background()
	edit := MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "Shoe Size", TargetLabel: "Foot Size"}

	_, err := h.mappings.Edit(ctx, testUser, edit)
	require.NoError(t, err)
	first, err := h.mappings.Rows(ctx, testUser, domain.ObjectContacts)
	require.NoError(t, err)

	_, err = h.mappings.Edit(ctx, testUser, edit)
	require.NoError(t, err)
	second, err := h.mappings.Rows(ctx, testUser, domain.ObjectContacts)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		first[i].Version, second[i].Version = 0, 0
	}
	assert.Equal(t, first, second)
	assert.Len(t, h.repo.Changes(testUser).Records(domain.ObjectContacts), 1)
}

func TestMappingService_EditRemovesGhostEntries(t *testing.T) {
	h := newHarness(t)
	doc := domain.NewChangesDocument()
	custom := func(name, label, target string, version int64) domain.MappingRecord {
		return domain.MappingRecord{SourceName: name, SourceLabel: label, TargetLabel: target, Category: domain.CategoryCustom, Version: version}
	}
	// the same logical property under its raw label, its previous target and its canonical key
	doc.Put(domain.ObjectContacts, "Shoe Size", custom("", "Shoe Size", "Foot", 2))
	doc.Put(domain.ObjectContacts, "foot", custom("shoe_size", "", "Foot", 1))
	doc.Put(domain.ObjectContacts, "shoe_size", custom("shoe_size", "Shoe Size", "Foot", 3))
	doc.Put(domain.ObjectContacts, "other", domain.MappingRecord{SourceLabel: "Other", TargetLabel: "Other", Category: domain.CategoryUserDefined, Version: 1})
	storeChanges(h, doc)
	h.crm.add("source", domain.ObjectContacts, domain.PropertyDefinition{Name: "shoe_size", Label: "Shoe Size"})
	ctx := context.Background()

	_, err := h.mappings.Edit(ctx, testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "Shoe Size", TargetLabel: "Foot Size"})
	require.NoError(t, err)

	recs := h.repo.Changes(testUser).Records(domain.ObjectContacts)
	assert.Len(t, recs, 2)
	assert.Equal(t, "Foot Size", recs["shoe_size"].TargetLabel)
	assert.Equal(t, int64(4), recs["shoe_size"].Version)
	assert.Contains(t, recs, "other")

	rows, err := h.mappings.Rows(ctx, testUser, domain.ObjectContacts)
	require.NoError(t, err)
	assert.Equal(t, 1, countBySource(rows, "shoe_size"))
}

func TestMappingService_EditingDefaultStoresCustomOverride(t *testing.T) {
	h := newHarness(t)
	h.connect()
	ctx := context.Background()

	m, err := h.mappings.Edit(ctx, testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "Email", TargetLabel: "Mail"})
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryCustom, m.Category)
	assert.Equal(t, "email", m.Key)
	assert.Equal(t, int64(1), m.Version)

	records := h.repo.Changes(testUser).Records(domain.ObjectContacts)
	require.Len(t, records, 1)
	rec := records["email"]
	assert.Equal(t, "email", rec.SourceName)
	assert.Equal(t, "Mail", rec.TargetLabel)
	assert.Equal(t, domain.CategoryCustom, rec.Category)

	rows, err := h.mappings.Rows(ctx, testUser, domain.ObjectContacts)
	require.NoError(t, err)
	assert.Equal(t, 1, countBySource(rows, "email"))
	row, ok, err := domain.FindRow(rows, "email", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Mail", row.TargetLabel)
	assert.Equal(t, domain.CategoryCustom, row.Category)

	// removing the override brings the built-in row back; the built-in itself stays
	removed, err := h.mappings.Delete(ctx, testUser, MappingDelete{ObjectType: domain.ObjectContacts, SourceLabel: "Email"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	removed, err = h.mappings.Delete(ctx, testUser, MappingDelete{ObjectType: domain.ObjectContacts, SourceLabel: "Email"})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	rows, err = h.mappings.Rows(ctx, testUser, domain.ObjectContacts)
	require.NoError(t, err)
	row, ok, err = domain.FindRow(rows, "email", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.CategoryDefault, row.Category)
	assert.Equal(t, "Email", row.TargetLabel)
}

func TestMappingService_RemappingDealsAmountKeepsOneEntry(t *testing.T) {
	h := newHarness(t)
	h.connect()
	ctx := context.Background()

	_, err := h.mappings.Edit(ctx, testUser, MappingEdit{ObjectType: domain.ObjectDeals, SourceLabel: "Amount", TargetLabel: "Deal Value"})
	require.NoError(t, err)
	m, err := h.mappings.Edit(ctx, testUser, MappingEdit{ObjectType: "deal", SourceLabel: "Amount", TargetLabel: "Revenue"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Version)
	assert.Equal(t, "revenue", m.TargetIdentity)

	records := h.repo.Changes(testUser).Records(domain.ObjectDeals)
	require.Len(t, records, 1)
	for _, rec := range records {
		assert.Equal(t, "amount", rec.SourceName)
		assert.Equal(t, "Revenue", rec.TargetLabel)
		assert.Equal(t, domain.CategoryCustom, rec.Category)
	}

	rows, err := h.mappings.Rows(ctx, testUser, domain.ObjectDeals)
	require.NoError(t, err)
	assert.Equal(t, 1, countBySource(rows, "amount"))
}

func TestMappingService_EditValidation(t *testing.T) {
	h := newHarness(t)
	h.connect()
	ctx := context.Background()

	_, err := h.mappings.Edit(ctx, testUser, MappingEdit{ObjectType: domain.ObjectContacts, TargetLabel: "X"})
	assert.ErrorIs(t, err, domain.ErrInvalidMapping)
	_, err = h.mappings.Edit(ctx, testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "X"})
	assert.ErrorIs(t, err, domain.ErrInvalidMapping)
	_, err = h.mappings.Edit(ctx, testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "Nope", TargetLabel: "X"})
	assert.ErrorIs(t, err, domain.ErrInvalidMapping)
}

func TestMappingService_AmbiguousLabel(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.crm.add("source", domain.ObjectContacts,
		domain.PropertyDefinition{Name: "size_a", Label: "Size"},
		domain.PropertyDefinition{Name: "size_b", Label: "Size"},
	)

	_, err := h.mappings.Edit(context.Background(), testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "Size", TargetLabel: "X"})
	assert.ErrorIs(t, err, domain.ErrAmbiguousIdentity)

	m, err := h.mappings.Edit(context.Background(), testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceName: "size_b", SourceLabel: "Size", TargetLabel: "X"})
	require.NoError(t, err)
	assert.Equal(t, "size_b", m.SourceIdentity)
}

func TestMappingService_VersionConflict(t *testing.T) {
	h := newHarness(t)
	h.connect()
	ctx := context.Background()

	m, err := h.mappings.AddUserDefined(ctx, testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "Favorite Color", TargetLabel: "Favorite Color"})
	require.NoError(t, err)
	require.Equal(t, int64(1), m.Version)

	stale := int64(0)
	_, err = h.mappings.Edit(ctx, testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "Favorite Color", TargetLabel: "Colour", ExpectedVersion: &stale})
	assert.ErrorIs(t, err, domain.ErrMappingConflict)

	current := int64(1)
	m, err = h.mappings.Edit(ctx, testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "Favorite Color", TargetLabel: "Colour", ExpectedVersion: &current})
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Version)
	assert.Equal(t, "colour", m.TargetIdentity)
}

func TestMappingService_LostRevisionRaceIsRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// a competing writer lands a different object type just before our first write
	raced := false
	h.repo.BeforeUpdate = func(userID string) {
		if raced {
			return
		}
		raced = true
		doc := h.repo.Changes(userID)
		if doc == nil {
			doc = domain.NewChangesDocument()
		}
		expected := doc.Revision
		doc.Put(domain.ObjectDeals, "other", domain.MappingRecord{SourceLabel: "Other", TargetLabel: "Other", Category: domain.CategoryUserDefined, Version: 1})
		h.repo.BeforeUpdate = nil
		require.NoError(t, h.repo.UpdateProfile(ctx, userID, domain.ProfileUpdate{Changes: doc, ExpectedRevision: &expected}))
	}

	_, err := h.mappings.AddUserDefined(ctx, testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "Favorite Color", TargetLabel: "Favorite Color"})
	require.NoError(t, err)

	doc := h.repo.Changes(testUser)
	_, ok := doc.Record(domain.ObjectDeals, "other")
	assert.True(t, ok)
	_, ok = doc.Record(domain.ObjectContacts, "favorite_color")
	assert.True(t, ok)
	assert.Equal(t, int64(2), doc.Revision)
}

func TestMappingService_PersistenceFailure(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.repo.UpdateErr = errors.New("connection reset")

	_, err := h.mappings.AddUserDefined(context.Background(), testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "Favorite Color", TargetLabel: "Favorite Color"})
	assert.ErrorIs(t, err, domain.ErrPersistenceFailed)
}

func TestMappingService_AddUserDefinedRejectsExistingProperty(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.crm.add("source", domain.ObjectContacts, domain.PropertyDefinition{Name: "shoe_size", Label: "Shoe Size"})
	ctx := context.Background()

	_, err := h.mappings.AddUserDefined(ctx, testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "First Name", TargetLabel: "X"})
	assert.ErrorIs(t, err, domain.ErrImmutableMapping)
	_, err = h.mappings.AddUserDefined(ctx, testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "shoe size", TargetLabel: "X"})
	assert.ErrorIs(t, err, domain.ErrInvalidMapping)
}

func TestMappingService_DeleteIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.connect()
	ctx := context.Background()

	_, err := h.mappings.AddUserDefined(ctx, testUser, MappingEdit{ObjectType: domain.ObjectContacts, SourceLabel: "Favorite Color", TargetLabel: "Favourite Colour"})
	require.NoError(t, err)

	removed, err := h.mappings.Delete(ctx, testUser, MappingDelete{ObjectType: domain.ObjectContacts, TargetLabel: "favourite_colour"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	writes := h.repo.Updates

	removed, err = h.mappings.Delete(ctx, testUser, MappingDelete{ObjectType: domain.ObjectContacts, SourceLabel: "Favorite Color"})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Equal(t, writes, h.repo.Updates)

	rows, err := h.mappings.Rows(ctx, testUser, domain.ObjectContacts)
	require.NoError(t, err)
	for _, r := range rows {
		assert.NotEqual(t, domain.CategoryUserDefined, r.Category)
	}
}

func TestMappingService_DeletePreservesOtherEntries(t *testing.T) {
	h := newHarness(t)
	storeLegacyChanges(t, h, `{
		"contacts": {
			"Favorite Color": {"source": "Favorite Color", "target": "Favorite Color", "category": "userdefined"},
			"favorite_color": {"sourceLabel": "Favorite Color", "targetLabel": "Favorite Color", "category": "userdefined"},
			"Pet": {"source": "Pet", "target": "Pet", "category": "userdefined"}
		},
		"deals": {"Favorite Color": {"source": "Favorite Color", "target": "Favorite Color", "category": "userdefined"}}
	}`)
	ctx := context.Background()

	removed, err := h.mappings.Delete(ctx, testUser, MappingDelete{ObjectType: "contact", SourceLabel: "Favorite Color"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	doc := h.repo.Changes(testUser)
	assert.Len(t, doc.Records(domain.ObjectContacts), 1)
	assert.Len(t, doc.Records(domain.ObjectDeals), 1)
}

func TestMappingService_MarkMigratedAndUpgradeLegacy(t *testing.T) {
	h := newHarness(t)
	storeLegacyChanges(t, h, `{"contact": {"Favorite Color": {"source": "Favorite Color", "target": "Favorite Color", "category": "userdefined"}}}`)
	ctx := context.Background()

	upgraded, err := h.mappings.UpgradeLegacy(ctx, testUser)
	require.NoError(t, err)
	assert.True(t, upgraded)
	upgraded, err = h.mappings.UpgradeLegacy(ctx, testUser)
	require.NoError(t, err)
	assert.False(t, upgraded)

	require.NoError(t, h.mappings.MarkMigrated(ctx, testUser, "contact", "favorite_color"))
	writes := h.repo.Updates
	require.NoError(t, h.mappings.MarkMigrated(ctx, testUser, domain.ObjectContacts, "favorite_color"))
	assert.Equal(t, writes, h.repo.Updates)

	migrated, err := h.mappings.Migrated(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, []string{"favorite_color"}, migrated[domain.ObjectContacts])
}
