package domain

import "strings"

// Canonical object types
const (
	ObjectContacts       = "contacts"
	ObjectCompanies      = "companies"
	ObjectDeals          = "deals"
	ObjectTickets        = "tickets"
	ObjectProducts       = "products"
	ObjectLineItems      = "line_items"
	ObjectQuotes         = "quotes"
	ObjectCalls          = "calls"
	ObjectEmails         = "emails"
	ObjectMeetings       = "meetings"
	ObjectNotes          = "notes"
	ObjectTasks          = "tasks"
	ObjectCommunications = "communications"
	ObjectPostalMail     = "postal_mail"
)

// objectTypeAliases maps folded spellings to the canonical object type.
// Keys are already lowercased with separators folded to "_".
var objectTypeAliases = map[string]string{
	"contact":  ObjectContacts,
	"contacts": ObjectContacts,
	"contatcs": ObjectContacts,
	"person":   ObjectContacts,
	"people":   ObjectContacts,

	"company":   ObjectCompanies,
	"companies": ObjectCompanies,
	"companys":  ObjectCompanies,
	"account":   ObjectCompanies,
	"accounts":  ObjectCompanies,

	"deal":          ObjectDeals,
	"deals":         ObjectDeals,
	"opportunity":   ObjectDeals,
	"opportunities": ObjectDeals,

	"ticket":  ObjectTickets,
	"tickets": ObjectTickets,

	"product":  ObjectProducts,
	"products": ObjectProducts,

	"lineitem":   ObjectLineItems,
	"lineitems":  ObjectLineItems,
	"line_item":  ObjectLineItems,
	"line_items": ObjectLineItems,
	"lineiitem":  ObjectLineItems,

	"quote":  ObjectQuotes,
	"quotes": ObjectQuotes,

	"call":  ObjectCalls,
	"calls": ObjectCalls,

	"email":  ObjectEmails,
	"emails": ObjectEmails,

	"meeting":  ObjectMeetings,
	"meetings": ObjectMeetings,

	"note":  ObjectNotes,
	"notes": ObjectNotes,

	"task":  ObjectTasks,
	"tasks": ObjectTasks,

	"communication":  ObjectCommunications,
	"communications": ObjectCommunications,
	"sms":            ObjectCommunications,
	"whatsapp":       ObjectCommunications,
	"whats_app":      ObjectCommunications,
	"linkedin":       ObjectCommunications,
	"linked_in":      ObjectCommunications,

	"postal_mail":  ObjectPostalMail,
	"postalmail":   ObjectPostalMail,
	"postal_mails": ObjectPostalMail,
}

// NormalizeObjectType maps synonyms and misspellings to one canonical object type.
// Names it does not know (custom object ids such as "2-1234" or "p_widgets") are
// returned lowercased and trimmed so cache keys stay stable.
func NormalizeObjectType(name string) string {
	if canonical, ok := objectTypeAliases[foldObjectType(name)]; ok {
		return canonical
	}
	return strings.ToLower(strings.TrimSpace(name))
}

func foldObjectType(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(s))
	lastSep := false
	for _, r := range s {
		if r == ' ' || r == '-' || r == '_' {
			if !lastSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			lastSep = true
			continue
		}
		lastSep = false
		b.WriteRune(r)
	}
	return strings.TrimSuffix(b.String(), "_")
}
