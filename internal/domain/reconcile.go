package domain

import (
	"fmt"
	"sort"
	"strings"
)

// precedence of a reconciled row; a higher rank replaces a lower one at the same identity
const (
	rankDefault = iota + 1
	rankRemoteCustom
	rankPersisted
	rankPersistedCanonical
)

type rankedRow struct {
	row  PropertyMapping
	rank int
}

// reconciler accumulates rows in insertion order, one per canonical source identity
type reconciler struct {
	objectType string
	doc        *ChangesDocument
	order      []string
	rows       map[string]*rankedRow
	slotOf     map[string]string // catalog internal name -> key of the row it landed in
}

func (r *reconciler) put(key string, row PropertyMapping, rank int) {
	if key == "" {
		return
	}
	row.ObjectType = r.objectType
	row.Key = key
	if cur, ok := r.rows[key]; ok {
		if rank < cur.rank || (rank == cur.rank && row.Version <= cur.row.Version) {
			return
		}
		cur.row, cur.rank = row, rank
		return
	}
	r.rows[key] = &rankedRow{row: row, rank: rank}
	r.order = append(r.order, key)
}

// Reconcile merges the built-in defaults, the source tenant's live catalog and the
// persisted records of one object type into a single row per canonical source identity.
// Persisted records beat remote custom properties, which beat defaults.
// objectType must already be normalized.
func Reconcile(objectType string, remote []PropertyDefinition, doc *ChangesDocument) []PropertyMapping {
	rec := &reconciler{objectType: objectType, doc: doc, rows: map[string]*rankedRow{}, slotOf: map[string]string{}}

	defaults := DefaultProperties(objectType)
	for _, d := range defaults {
		key := CanonicalIdentity(d.Name, d.Label)
		rec.slotOf[d.Name] = key
		rec.put(key, defaultRow(d), rankDefault)
	}
	defaultIdx := NewPropertyIndex(defaults)

	for _, p := range remote {
		if p.IsBuiltIn {
			// built-ins the static table does not list still show up as defaults
			if _, known := rec.slotOf[p.Name]; !known {
				key := CanonicalIdentity(p.Name, p.Label)
				rec.slotOf[p.Name] = key
				rec.put(key, defaultRow(p), rankDefault)
			}
			continue
		}
		key := CanonicalIdentity(p.Name, p.Label)
		if d, ok, err := defaultIdx.Resolve(p.Name, p.Label); err == nil && ok {
			key = rec.slotOf[d.Name]
		}
		rec.slotOf[p.Name] = key
		rec.put(key, PropertyMapping{
			SourceIdentity:  p.Name,
			SourceLabel:     p.Label,
			TargetIdentity:  p.Name,
			TargetLabel:     p.Label,
			Category:        CategoryCustom,
			RemotelyCreated: doc.IsMigrated(objectType, p.Name),
		}, rankRemoteCustom)
	}

	catalogIdx := NewPropertyIndex(append(defaults, remote...))
	stored := doc.Records(objectType)
	keys := make([]string, 0, len(stored))
	for k := range stored {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, storedKey := range keys {
		r := stored[storedKey]
		key := storedKey
		source := firstNonEmpty(r.SourceName, storedKey)
		// an ambiguous or unknown identity stays under the key it was stored with
		if d, ok, err := catalogIdx.Resolve(r.SourceName, r.SourceLabel); err == nil && ok {
			if slot, known := rec.slotOf[d.Name]; known {
				key = slot
			}
			source = d.Name
		}
		rank := rankPersisted
		if storedKey == key {
			rank = rankPersistedCanonical
		}
		target := TargetIdentity(r)
		rec.put(key, PropertyMapping{
			SourceIdentity:  source,
			SourceLabel:     r.SourceLabel,
			TargetIdentity:  target,
			TargetLabel:     r.TargetLabel,
			Category:        r.Category,
			RemotelyCreated: doc.IsMigrated(objectType, SanitizePropertyName(target)),
			Version:         r.Version,
		}, rank)
	}

	out := make([]PropertyMapping, 0, len(rec.order))
	for _, key := range rec.order {
		out = append(out, rec.rows[key].row)
	}
	return out
}

// TargetIdentity is the internal name a record maps to: its stored target name, else the
// sanitized target label.
func TargetIdentity(r MappingRecord) string {
	if r.TargetName != "" {
		return r.TargetName
	}
	return SanitizePropertyName(r.TargetLabel)
}

// FindRow resolves a (name, label) pair against reconciled rows using, in order: exact
// source identity, exact source label, normalized slug of the row key or its source.
// It returns ErrAmbiguousIdentity when a label or slug matches several rows.
func FindRow(rows []PropertyMapping, name, label string) (PropertyMapping, bool, error) {
	name, label = strings.TrimSpace(name), strings.TrimSpace(label)
	if name != "" {
		for _, r := range rows {
			if r.SourceIdentity == name {
				return r, true, nil
			}
		}
	}
	for _, candidate := range uniqueNonEmpty(label, name) {
		var matches []PropertyMapping
		for _, r := range rows {
			if r.SourceLabel == candidate {
				matches = append(matches, r)
			}
		}
		switch len(matches) {
		case 0:
		case 1:
			return matches[0], true, nil
		default:
			return PropertyMapping{}, false, fmt.Errorf("%w: label %q matches %d rows", ErrAmbiguousIdentity, candidate, len(matches))
		}
	}
	for _, slug := range uniqueNonEmpty(Slugify(name), Slugify(label)) {
		var matches []PropertyMapping
		for _, r := range rows {
			if r.Key == slug || Slugify(r.SourceIdentity) == slug || Slugify(r.SourceLabel) == slug {
				matches = append(matches, r)
			}
		}
		if len(matches) == 1 {
			return matches[0], true, nil
		}
		for _, m := range matches {
			if m.Key == slug {
				return m, true, nil
			}
		}
		if len(matches) > 1 {
			return PropertyMapping{}, false, fmt.Errorf("%w: %q matches %d rows", ErrAmbiguousIdentity, slug, len(matches))
		}
	}
	return PropertyMapping{}, false, nil
}

func defaultRow(d PropertyDefinition) PropertyMapping {
	return PropertyMapping{
		SourceIdentity: d.Name,
		SourceLabel:    d.Label,
		TargetIdentity: d.Name,
		TargetLabel:    d.Label,
		Category:       CategoryDefault,
	}
}
