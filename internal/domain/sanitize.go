package domain

// reservedPropertyNames are built-in identifiers a created property must never shadow
var reservedPropertyNames = map[string]struct{}{
	"id":                  {},
	"email":               {},
	"createdate":          {},
	"lastmodifieddate":    {},
	"hs_object_id":        {},
	"hs_createdate":       {},
	"hs_lastmodifieddate": {},
	"hubspot_owner_id":    {},
	"firstname":           {},
	"lastname":            {},
	"phone":               {},
	"company":             {},
	"website":             {},
	"name":                {},
	"domain":              {},
	"dealname":            {},
	"dealstage":           {},
	"pipeline":            {},
	"amount":              {},
	"closedate":           {},
	"subject":             {},
	"content":             {},
	"owner":               {},
	"type":                {},
	"status":              {},
	"archived":            {},
	"associations":        {},
	"properties":          {},
}

const (
	digitPrefix    = "prop_"
	reservedSuffix = "_custom"
	emptyName      = "prop_unnamed"
)

// SanitizePropertyName turns a free-form label into a valid internal property name.
// The result always matches ^[a-z][a-z0-9_]*$.
func SanitizePropertyName(label string) string {
	name := Slugify(label)
	if name == "" {
		return emptyName
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = digitPrefix + name
	}
	if IsReservedPropertyName(name) {
		name += reservedSuffix
	}
	return name
}

// IsReservedPropertyName reports whether name collides with a built-in identifier
func IsReservedPropertyName(name string) bool {
	_, ok := reservedPropertyNames[name]
	return ok
}
