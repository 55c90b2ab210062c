package domain

import (
	"fmt"
	"strings"
)

// Slugify lowercases s and collapses every run of non-alphanumerics into a single "_".
// Leading and trailing separators are dropped.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// CanonicalIdentity is the one key a property is stored under: the slug of its internal
// name, else of its label. Every read and write boundary goes through this function.
func CanonicalIdentity(name, label string) string {
	if id := Slugify(name); id != "" {
		return id
	}
	return Slugify(label)
}

// IdentityForms returns every textual key a property may historically have been stored
// under: the raw values as given plus their slug forms. Empty values are skipped.
func IdentityForms(values ...string) []string {
	seen := make(map[string]struct{}, len(values)*2)
	var forms []string
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		forms = append(forms, v)
	}
	for _, v := range values {
		add(strings.TrimSpace(v))
		add(Slugify(v))
	}
	return forms
}

// PropertyIndex resolves a (name, label) pair against a set of property definitions using,
// in order: exact internal name, exact label, normalized slug.
type PropertyIndex struct {
	byName  map[string]PropertyDefinition
	byLabel map[string][]PropertyDefinition
	bySlug  map[string][]PropertyDefinition
}

// NewPropertyIndex indexes defs. Later definitions with the same internal name win.
func NewPropertyIndex(defs []PropertyDefinition) *PropertyIndex {
	idx := &PropertyIndex{
		byName:  make(map[string]PropertyDefinition, len(defs)),
		byLabel: make(map[string][]PropertyDefinition, len(defs)),
		bySlug:  make(map[string][]PropertyDefinition, len(defs)*2),
	}
	for _, d := range defs {
		idx.byName[d.Name] = d
	}
	for _, d := range idx.byName {
		if d.Label != "" {
			idx.byLabel[d.Label] = append(idx.byLabel[d.Label], d)
		}
		for _, slug := range uniqueNonEmpty(Slugify(d.Name), Slugify(d.Label)) {
			idx.bySlug[slug] = append(idx.bySlug[slug], d)
		}
	}
	return idx
}

// Resolve finds the definition a (name, label) pair refers to.
// It returns ErrAmbiguousIdentity when a label or slug matches several definitions and no
// internal name disambiguates it, and ok=false when nothing matches.
func (idx *PropertyIndex) Resolve(name, label string) (PropertyDefinition, bool, error) {
	if idx == nil {
		return PropertyDefinition{}, false, nil
	}
	if name != "" {
		if d, ok := idx.byName[name]; ok {
			return d, true, nil
		}
	}
	for _, candidate := range uniqueNonEmpty(label, name) {
		switch matches := idx.byLabel[candidate]; len(matches) {
		case 0:
		case 1:
			return matches[0], true, nil
		default:
			return PropertyDefinition{}, false, fmt.Errorf("%w: label %q matches %d properties", ErrAmbiguousIdentity, candidate, len(matches))
		}
	}
	for _, slug := range uniqueNonEmpty(Slugify(name), Slugify(label)) {
		matches := idx.bySlug[slug]
		if len(matches) == 0 {
			continue
		}
		if len(matches) == 1 {
			return matches[0], true, nil
		}
		// a definition whose internal name is the slug itself is the unambiguous owner
		for _, m := range matches {
			if m.Name == slug {
				return m, true, nil
			}
		}
		return PropertyDefinition{}, false, fmt.Errorf("%w: %q matches %d properties", ErrAmbiguousIdentity, slug, len(matches))
	}
	return PropertyDefinition{}, false, nil
}

func uniqueNonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v == "" {
			continue
		}
		dup := false
		for _, o := range out {
			if o == v {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}
