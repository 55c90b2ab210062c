package domain

// builtIn is shorthand for the static default property table
func builtIn(objectType, name, label, typ, fieldType, group string) PropertyDefinition {
	return PropertyDefinition{
		ObjectType: objectType,
		Name:       name,
		Label:      label,
		Type:       typ,
		FieldType:  fieldType,
		GroupName:  group,
		IsBuiltIn:  true,
	}
}

var defaultProperties = map[string][]PropertyDefinition{
	ObjectContacts: {
		builtIn(ObjectContacts, "firstname", "First Name", "string", "text", "contactinformation"),
		builtIn(ObjectContacts, "lastname", "Last Name", "string", "text", "contactinformation"),
		builtIn(ObjectContacts, "email", "Email", "string", "text", "contactinformation"),
		builtIn(ObjectContacts, "phone", "Phone Number", "string", "phonenumber", "contactinformation"),
		builtIn(ObjectContacts, "mobilephone", "Mobile Phone Number", "string", "phonenumber", "contactinformation"),
		builtIn(ObjectContacts, "company", "Company Name", "string", "text", "contactinformation"),
		builtIn(ObjectContacts, "website", "Website URL", "string", "text", "contactinformation"),
		builtIn(ObjectContacts, "jobtitle", "Job Title", "string", "text", "contactinformation"),
		builtIn(ObjectContacts, "address", "Street Address", "string", "text", "contactinformation"),
		builtIn(ObjectContacts, "city", "City", "string", "text", "contactinformation"),
		builtIn(ObjectContacts, "state", "State/Region", "string", "text", "contactinformation"),
		builtIn(ObjectContacts, "zip", "Postal Code", "string", "text", "contactinformation"),
		builtIn(ObjectContacts, "country", "Country/Region", "string", "text", "contactinformation"),
		builtIn(ObjectContacts, "lifecyclestage", "Lifecycle Stage", "enumeration", "radio", "contactinformation"),
		builtIn(ObjectContacts, "hs_lead_status", "Lead Status", "enumeration", "radio", "sales_properties"),
		builtIn(ObjectContacts, "hubspot_owner_id", "Contact Owner", "enumeration", "select", "sales_properties"),
	},
	ObjectCompanies: {
		builtIn(ObjectCompanies, "name", "Company Name", "string", "text", "companyinformation"),
		builtIn(ObjectCompanies, "domain", "Company Domain Name", "string", "text", "companyinformation"),
		builtIn(ObjectCompanies, "industry", "Industry", "enumeration", "select", "companyinformation"),
		builtIn(ObjectCompanies, "phone", "Phone Number", "string", "phonenumber", "companyinformation"),
		builtIn(ObjectCompanies, "address", "Street Address", "string", "text", "companyinformation"),
		builtIn(ObjectCompanies, "city", "City", "string", "text", "companyinformation"),
		builtIn(ObjectCompanies, "state", "State/Region", "string", "text", "companyinformation"),
		builtIn(ObjectCompanies, "zip", "Postal Code", "string", "text", "companyinformation"),
		builtIn(ObjectCompanies, "country", "Country/Region", "string", "text", "companyinformation"),
		builtIn(ObjectCompanies, "numberofemployees", "Number of Employees", "number", "number", "companyinformation"),
		builtIn(ObjectCompanies, "annualrevenue", "Annual Revenue", "number", "number", "companyinformation"),
		builtIn(ObjectCompanies, "description", "Description", "string", "textarea", "companyinformation"),
		builtIn(ObjectCompanies, "hubspot_owner_id", "Company Owner", "enumeration", "select", "companyinformation"),
	},
	ObjectDeals: {
		builtIn(ObjectDeals, "dealname", "Deal Name", "string", "text", "dealinformation"),
		builtIn(ObjectDeals, "amount", "Amount", "number", "number", "dealinformation"),
		builtIn(ObjectDeals, "dealstage", "Deal Stage", "enumeration", "radio", "dealinformation"),
		builtIn(ObjectDeals, "pipeline", "Pipeline", "enumeration", "select", "dealinformation"),
		builtIn(ObjectDeals, "closedate", "Close Date", "datetime", "date", "dealinformation"),
		builtIn(ObjectDeals, "dealtype", "Deal Type", "enumeration", "radio", "dealinformation"),
		builtIn(ObjectDeals, "description", "Deal Description", "string", "textarea", "dealinformation"),
		builtIn(ObjectDeals, "hubspot_owner_id", "Deal Owner", "enumeration", "select", "dealinformation"),
	},
	ObjectTickets: {
		builtIn(ObjectTickets, "subject", "Ticket Name", "string", "text", "ticketinformation"),
		builtIn(ObjectTickets, "content", "Ticket Description", "string", "textarea", "ticketinformation"),
		builtIn(ObjectTickets, "hs_pipeline", "Pipeline", "enumeration", "select", "ticketinformation"),
		builtIn(ObjectTickets, "hs_pipeline_stage", "Ticket Status", "enumeration", "select", "ticketinformation"),
		builtIn(ObjectTickets, "hs_ticket_priority", "Priority", "enumeration", "select", "ticketinformation"),
		builtIn(ObjectTickets, "hs_ticket_category", "Category", "enumeration", "checkbox", "ticketinformation"),
		builtIn(ObjectTickets, "hubspot_owner_id", "Ticket Owner", "enumeration", "select", "ticketinformation"),
	},
	ObjectProducts: {
		builtIn(ObjectProducts, "name", "Name", "string", "text", "productinformation"),
		builtIn(ObjectProducts, "price", "Unit Price", "number", "number", "productinformation"),
		builtIn(ObjectProducts, "description", "Description", "string", "textarea", "productinformation"),
		builtIn(ObjectProducts, "hs_sku", "SKU", "string", "text", "productinformation"),
	},
	ObjectLineItems: {
		builtIn(ObjectLineItems, "name", "Name", "string", "text", "lineiteminformation"),
		builtIn(ObjectLineItems, "quantity", "Quantity", "number", "number", "lineiteminformation"),
		builtIn(ObjectLineItems, "price", "Unit Price", "number", "number", "lineiteminformation"),
		builtIn(ObjectLineItems, "amount", "Net Price", "number", "number", "lineiteminformation"),
		builtIn(ObjectLineItems, "hs_product_id", "Product ID", "number", "number", "lineiteminformation"),
	},
	ObjectCalls: {
		builtIn(ObjectCalls, "hs_call_title", "Call Title", "string", "text", "call"),
		builtIn(ObjectCalls, "hs_call_body", "Call Notes", "string", "html", "call"),
		builtIn(ObjectCalls, "hs_call_duration", "Call Duration", "number", "number", "call"),
		builtIn(ObjectCalls, "hs_timestamp", "Activity Date", "datetime", "date", "call"),
	},
	ObjectNotes: {
		builtIn(ObjectNotes, "hs_note_body", "Note Body", "string", "html", "note"),
		builtIn(ObjectNotes, "hs_timestamp", "Activity Date", "datetime", "date", "note"),
	},
	ObjectTasks: {
		builtIn(ObjectTasks, "hs_task_subject", "Task Title", "string", "text", "task"),
		builtIn(ObjectTasks, "hs_task_body", "Task Notes", "string", "html", "task"),
		builtIn(ObjectTasks, "hs_task_status", "Task Status", "enumeration", "select", "task"),
		builtIn(ObjectTasks, "hs_timestamp", "Due Date", "datetime", "date", "task"),
	},
	ObjectCommunications: {
		builtIn(ObjectCommunications, "hs_communication_channel_type", "Channel Type", "enumeration", "select", "communication"),
		builtIn(ObjectCommunications, "hs_communication_body", "Communication Body", "string", "html", "communication"),
		builtIn(ObjectCommunications, "hs_timestamp", "Activity Date", "datetime", "date", "communication"),
	},
}

// defaultGroups is the property group created properties land in per object type
var defaultGroups = map[string]string{
	ObjectContacts:       "contactinformation",
	ObjectCompanies:      "companyinformation",
	ObjectDeals:          "dealinformation",
	ObjectTickets:        "ticketinformation",
	ObjectProducts:       "productinformation",
	ObjectLineItems:      "lineiteminformation",
	ObjectCalls:          "call",
	ObjectNotes:          "note",
	ObjectTasks:          "task",
	ObjectCommunications: "communication",
}

// DefaultProperties returns a copy of the built-in properties of an object type.
// objectType must already be normalized.
func DefaultProperties(objectType string) []PropertyDefinition {
	defs := defaultProperties[objectType]
	out := make([]PropertyDefinition, len(defs))
	copy(out, defs)
	return out
}

// DefaultGroupName returns the property group used when creating a property
func DefaultGroupName(objectType string) string {
	if g, ok := defaultGroups[objectType]; ok {
		return g
	}
	return "default"
}
