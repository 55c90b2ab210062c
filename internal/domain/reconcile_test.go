package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowsByIdentity(rows []PropertyMapping) map[string][]PropertyMapping {
	out := map[string][]PropertyMapping{}
	for _, r := range rows {
		key := CanonicalIdentity(r.SourceIdentity, r.SourceLabel)
		out[key] = append(out[key], r)
	}
	return out
}

func TestReconcile_DefaultsOnly(t *testing.T) {
	rows := Reconcile(ObjectDeals, nil, NewChangesDocument())

	require.Len(t, rows, len(DefaultProperties(ObjectDeals)))
	assert.Equal(t, "dealname", rows[0].SourceIdentity)
	for _, r := range rows {
		assert.Equal(t, CategoryDefault, r.Category)
		assert.Equal(t, ObjectDeals, r.ObjectType)
	}
}

func TestReconcile_RemoteCustomReplacesMatchingDefault(t *testing.T) {
	remote := []PropertyDefinition{
		{ObjectType: ObjectContacts, Name: "email", Label: "Email", IsBuiltIn: true},
		{ObjectType: ObjectContacts, Name: "email_address", Label: "Email"},
		{ObjectType: ObjectContacts, Name: "shoe_size", Label: "Shoe Size"},
		{ObjectType: ObjectContacts, Name: "hs_analytics_source", Label: "Original Source", IsBuiltIn: true},
	}

	rows := Reconcile(ObjectContacts, remote, NewChangesDocument())
	byID := rowsByIdentity(rows)

	// the custom "Email" property takes the default's slot instead of adding a second row
	emails := 0
	for _, r := range rows {
		if r.SourceLabel == "Email" {
			emails++
			assert.Equal(t, CategoryCustom, r.Category)
			assert.Equal(t, "email_address", r.SourceIdentity)
		}
	}
	assert.Equal(t, 1, emails)

	require.Len(t, byID["shoe_size"], 1)
	assert.Equal(t, CategoryCustom, byID["shoe_size"][0].Category)

	require.Len(t, byID["hs_analytics_source"], 1)
	assert.Equal(t, CategoryDefault, byID["hs_analytics_source"][0].Category)
}

func TestReconcile_PersistedCustomOverridesDefault(t *testing.T) {
	legacy := `{"Deals": {"Amount": {"source": "Amount", "target": "Deal Value", "category": "custom"},
		"amount": {"sourceLabel": "Amount", "sourceName": "amount", "targetLabel": "Revenue", "category": "custom"}}}`
	doc, err := DecodeChanges(legacy)
	require.NoError(t, err)

	rows := Reconcile(ObjectDeals, nil, doc)

	var amount []PropertyMapping
	for _, r := range rows {
		if r.SourceIdentity == "amount" {
			amount = append(amount, r)
		}
	}
	require.Len(t, amount, 1)
	assert.Equal(t, "Revenue", amount[0].TargetLabel)
	assert.Equal(t, "revenue", amount[0].TargetIdentity)
	assert.Equal(t, CategoryCustom, amount[0].Category)
	assert.Len(t, rows, len(DefaultProperties(ObjectDeals)))
}

func TestReconcile_UserDefinedRowsAndProvenance(t *testing.T) {
	doc := NewChangesDocument()
	doc.Put(ObjectContacts, "favorite_color", MappingRecord{
		SourceLabel: "Favorite Color", TargetLabel: "Favorite Color", Category: CategoryUserDefined, Version: 1,
	})
	doc.MarkMigrated(ObjectContacts, "favorite_color")

	rows := Reconcile(ObjectContacts, nil, doc)

	last := rows[len(rows)-1]
	assert.Equal(t, CategoryUserDefined, last.Category)
	assert.Equal(t, "favorite_color", last.TargetIdentity)
	assert.True(t, last.RemotelyCreated)
	assert.Equal(t, int64(1), last.Version)
}

func TestReconcile_NoDuplicateIdentities(t *testing.T) {
	doc := NewChangesDocument()
	// the same logical property stored under a non-canonical key and the canonical one
	doc.Put(ObjectContacts, "Shoe Size", MappingRecord{SourceLabel: "Shoe Size", TargetLabel: "Old", Category: CategoryCustom, Version: 5})
	doc.Put(ObjectContacts, "shoe_size", MappingRecord{SourceName: "shoe_size", SourceLabel: "Shoe Size", TargetLabel: "New", Category: CategoryCustom, Version: 2})
	remote := []PropertyDefinition{{ObjectType: ObjectContacts, Name: "shoe_size", Label: "Shoe Size"}}

	rows := Reconcile(ObjectContacts, remote, doc)

	for id, group := range rowsByIdentity(rows) {
		assert.Len(t, group, 1, "identity %s", id)
	}
	byID := rowsByIdentity(rows)
	require.Len(t, byID["shoe_size"], 1)
	assert.Equal(t, "New", byID["shoe_size"][0].TargetLabel)
}

func TestTargetIdentity(t *testing.T) {
	assert.Equal(t, "rev_total", TargetIdentity(MappingRecord{TargetName: "rev_total", TargetLabel: "Revenue"}))
	assert.Equal(t, "revenue", TargetIdentity(MappingRecord{TargetLabel: "Revenue"}))
	assert.Equal(t, "prop_2nd_phone", TargetIdentity(MappingRecord{TargetLabel: "2nd Phone"}))
}

func TestChangesDocument_FindSourceKeys(t *testing.T) {
	doc := NewChangesDocument()
	doc.Put(ObjectContacts, "favorite_color", MappingRecord{SourceLabel: "Favorite Color", TargetLabel: "Fav"})
	doc.Put(ObjectContacts, "Favorite Color", MappingRecord{SourceLabel: "Favorite Color", TargetLabel: "Fav"})
	doc.Put(ObjectContacts, "Fav", MappingRecord{SourceLabel: "Something Else", TargetLabel: "Fav"})
	doc.Put(ObjectContacts, "other", MappingRecord{SourceLabel: "Other", TargetLabel: "Fav"})

	keys := doc.FindSourceKeys(ObjectContacts, []string{"Favorite Color"}, []string{"Fav"})
	assert.Equal(t, []string{"Fav", "Favorite Color", "favorite_color"}, keys)
}

func TestParseSessionKey(t *testing.T) {
	tenant, err := ParseSessionKey("user_42_target")
	require.NoError(t, err)
	assert.Equal(t, Tenant{UserID: "user_42", Instance: InstanceTarget}, tenant)
	assert.Equal(t, "user_42_target", tenant.SessionKey())

	_, err = ParseSessionKey("nounderscore")
	assert.Error(t, err)
	_, err = ParseSessionKey("user_42_elsewhere")
	assert.Error(t, err)
}
