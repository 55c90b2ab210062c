package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// ChangesSchemaVersion is the layout written by this service. Documents without a
// schema version are legacy and are upgraded on read.
const ChangesSchemaVersion = 2

// ChangesDocument is the per-user mapping table plus the migration provenance sets.
// Mappings is keyed by normalized object type, then by canonical source identity.
type ChangesDocument struct {
	SchemaVersion int                                 `json:"schema_version"`
	Revision      int64                               `json:"revision"`
	Mappings      map[string]map[string]MappingRecord `json:"mappings"`
	Migrated      map[string][]string                 `json:"migrated"`

	// Upgraded is set when the document was rewritten from a legacy layout on read
	// and has not been persisted since.
	Upgraded bool `json:"-"`
}

// MappingRecord is one persisted user decision
type MappingRecord struct {
	SourceName  string    `json:"source_name,omitempty"`
	SourceLabel string    `json:"source_label"`
	TargetName  string    `json:"target_name,omitempty"`
	TargetLabel string    `json:"target_label"`
	Category    Category  `json:"category"`
	Version     int64     `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewChangesDocument returns an empty document in the current layout
func NewChangesDocument() *ChangesDocument {
	return &ChangesDocument{
		SchemaVersion: ChangesSchemaVersion,
		Mappings:      map[string]map[string]MappingRecord{},
		Migrated:      map[string][]string{},
	}
}

// Clone deep-copies the document so callers can mutate it without touching the original
func (d *ChangesDocument) Clone() *ChangesDocument {
	if d == nil {
		return NewChangesDocument()
	}
	out := &ChangesDocument{
		SchemaVersion: d.SchemaVersion,
		Revision:      d.Revision,
		Mappings:      make(map[string]map[string]MappingRecord, len(d.Mappings)),
		Migrated:      make(map[string][]string, len(d.Migrated)),
		Upgraded:      d.Upgraded,
	}
	for ot, recs := range d.Mappings {
		cp := make(map[string]MappingRecord, len(recs))
		for k, r := range recs {
			cp[k] = r
		}
		out.Mappings[ot] = cp
	}
	for ot, names := range d.Migrated {
		out.Migrated[ot] = slices.Clone(names)
	}
	return out
}

// Records returns the persisted records of an object type keyed by canonical identity
func (d *ChangesDocument) Records(objectType string) map[string]MappingRecord {
	if d == nil {
		return nil
	}
	return d.Mappings[objectType]
}

// Record returns the record stored under key
func (d *ChangesDocument) Record(objectType, key string) (MappingRecord, bool) {
	r, ok := d.Records(objectType)[key]
	return r, ok
}

// Put upserts a record under its canonical key
func (d *ChangesDocument) Put(objectType, key string, rec MappingRecord) {
	if d.Mappings == nil {
		d.Mappings = map[string]map[string]MappingRecord{}
	}
	recs, ok := d.Mappings[objectType]
	if !ok {
		recs = map[string]MappingRecord{}
		d.Mappings[objectType] = recs
	}
	recs[key] = rec
}

// Remove deletes the record under key and reports whether anything was removed
func (d *ChangesDocument) Remove(objectType, key string) bool {
	recs := d.Records(objectType)
	if _, ok := recs[key]; !ok {
		return false
	}
	delete(recs, key)
	if len(recs) == 0 {
		delete(d.Mappings, objectType)
	}
	return true
}

// FindKeys returns, sorted, the keys of every record of objectType that refers to any of
// the given identity forms, either through its key or through one of its stored
// source/target names and labels (raw or slugged).
func (d *ChangesDocument) FindKeys(objectType string, forms []string) []string {
	want := make(map[string]struct{}, len(forms))
	for _, f := range IdentityForms(forms...) {
		want[f] = struct{}{}
	}
	var keys []string
	for key, rec := range d.Records(objectType) {
		for _, f := range IdentityForms(key, rec.SourceName, rec.SourceLabel, rec.TargetName, rec.TargetLabel) {
			if _, ok := want[f]; ok {
				keys = append(keys, key)
				break
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// FindSourceKeys returns, sorted, the keys of every record whose key or stored source
// name/label matches one of sourceForms, plus the keys that equal one of keyForms.
// keyForms covers entries older writers stored under a previous target name or label.
func (d *ChangesDocument) FindSourceKeys(objectType string, sourceForms, keyForms []string) []string {
	want := make(map[string]struct{}, len(sourceForms))
	for _, f := range IdentityForms(sourceForms...) {
		want[f] = struct{}{}
	}
	asKey := make(map[string]struct{}, len(keyForms))
	for _, f := range IdentityForms(keyForms...) {
		asKey[f] = struct{}{}
	}
	var keys []string
	for key, rec := range d.Records(objectType) {
		if _, ok := asKey[key]; ok {
			keys = append(keys, key)
			continue
		}
		for _, f := range IdentityForms(key, rec.SourceName, rec.SourceLabel) {
			if _, ok := want[f]; ok {
				keys = append(keys, key)
				break
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// IsMigrated reports whether name was already created in the target by a prior run
func (d *ChangesDocument) IsMigrated(objectType, name string) bool {
	if d == nil {
		return false
	}
	return slices.Contains(d.Migrated[objectType], name)
}

// MarkMigrated adds name to the provenance set of objectType.
// It reports false when the name was already present.
func (d *ChangesDocument) MarkMigrated(objectType, name string) bool {
	if d.IsMigrated(objectType, name) {
		return false
	}
	if d.Migrated == nil {
		d.Migrated = map[string][]string{}
	}
	names := append(d.Migrated[objectType], name)
	sort.Strings(names)
	d.Migrated[objectType] = names
	return true
}

// EncodeChanges serializes the document in the current layout
func EncodeChanges(d *ChangesDocument) (string, error) {
	if d == nil {
		d = NewChangesDocument()
	}
	out := *d
	out.SchemaVersion = ChangesSchemaVersion
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode changes document: %w", err)
	}
	return string(b), nil
}

// DecodeChanges parses a stored changes document. Legacy documents (no schema version)
// are upgraded to canonical keys and returned with Upgraded set.
func DecodeChanges(raw string) (*ChangesDocument, error) {
	if strings.TrimSpace(raw) == "" {
		return NewChangesDocument(), nil
	}

	var header struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal([]byte(raw), &header); err != nil {
		return nil, fmt.Errorf("failed to decode changes document: %w", err)
	}

	if header.SchemaVersion >= ChangesSchemaVersion {
		doc := NewChangesDocument()
		if err := json.Unmarshal([]byte(raw), doc); err != nil {
			return nil, fmt.Errorf("failed to decode changes document: %w", err)
		}
		if doc.Mappings == nil {
			doc.Mappings = map[string]map[string]MappingRecord{}
		}
		if doc.Migrated == nil {
			doc.Migrated = map[string][]string{}
		}
		doc.dropUnpersistable()
		return doc, nil
	}

	return upgradeLegacyChanges(raw)
}

// dropUnpersistable removes records whose category a writer could never have stored
func (d *ChangesDocument) dropUnpersistable() {
	for ot, records := range d.Mappings {
		for key, r := range records {
			if !r.Category.Persistable() {
				delete(records, key)
			}
		}
		if len(records) == 0 {
			delete(d.Mappings, ot)
		}
	}
}

// legacyEntry accepts the field spellings older writers used for a mapping entry
type legacyEntry struct {
	Source      string `json:"source"`
	SourceName  string `json:"sourceName"`
	SourceLabel string `json:"sourceLabel"`
	Target      string `json:"target"`
	TargetName  string `json:"targetName"`
	TargetLabel string `json:"targetLabel"`
	Category    string `json:"category"`
	Type        string `json:"type"`
}

var legacyMigratedKeys = []string{"migratedProperties", "migrated_properties", "migrated"}

// upgradeLegacyChanges rewrites the old untyped layout, where the top-level object maps
// object type to raw key to entry, into canonical keys.
func upgradeLegacyChanges(raw string) (*ChangesDocument, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return nil, fmt.Errorf("failed to decode legacy changes document: %w", err)
	}

	doc := NewChangesDocument()
	doc.Upgraded = true

	for _, key := range legacyMigratedKeys {
		rawSets, ok := top[key]
		if !ok {
			continue
		}
		delete(top, key)
		var sets map[string][]string
		if err := json.Unmarshal(rawSets, &sets); err != nil {
			return nil, fmt.Errorf("failed to decode legacy provenance set: %w", err)
		}
		for ot, names := range sets {
			for _, n := range names {
				doc.MarkMigrated(NormalizeObjectType(ot), SanitizePropertyName(n))
			}
		}
	}
	delete(top, "schema_version")
	delete(top, "revision")

	objectTypes := make([]string, 0, len(top))
	for ot := range top {
		objectTypes = append(objectTypes, ot)
	}
	sort.Strings(objectTypes)

	for _, rawOT := range objectTypes {
		var entries map[string]legacyEntry
		if err := json.Unmarshal(top[rawOT], &entries); err != nil {
			// non-object values were never mapping tables
			continue
		}
		ot := NormalizeObjectType(rawOT)

		rawKeys := make([]string, 0, len(entries))
		for k := range entries {
			rawKeys = append(rawKeys, k)
		}
		sort.Strings(rawKeys)

		canonicalFrom := map[string]bool{}
		for _, rawKey := range rawKeys {
			rec, ok := entries[rawKey].toRecord(rawKey)
			if !ok {
				continue
			}
			key := CanonicalIdentity(rec.SourceName, rec.SourceLabel)
			if key == "" {
				continue
			}
			// an entry already stored under its canonical key is the most recent write
			isCanonical := rawKey == key
			if _, exists := doc.Record(ot, key); exists && canonicalFrom[key] && !isCanonical {
				continue
			}
			canonicalFrom[key] = isCanonical
			doc.Put(ot, key, rec)
		}
	}
	return doc, nil
}

func (e legacyEntry) toRecord(rawKey string) (MappingRecord, bool) {
	sourceLabel := firstNonEmpty(e.SourceLabel, e.Source, rawKey)
	targetLabel := firstNonEmpty(e.TargetLabel, e.Target, sourceLabel)
	category := Category(strings.ToLower(firstNonEmpty(e.Category, e.Type)))
	switch category {
	case "user_defined", "user-defined", "user":
		category = CategoryUserDefined
	}
	if !category.Persistable() {
		return MappingRecord{}, false
	}
	return MappingRecord{
		SourceName:  e.SourceName,
		SourceLabel: sourceLabel,
		TargetName:  e.TargetName,
		TargetLabel: targetLabel,
		Category:    category,
		Version:     1,
	}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
