package domain

import "time"

// Webhook topics the service reacts to
const (
	TopicAppUninstalled   = "app.uninstalled"
	TopicPropertyCreation = "property.creation"
	TopicPropertyDeletion = "property.deletion"
	TopicPropertyChange   = "property.propertyChange"
)

// WebhookEvent is one verified notification from the CRM about a connected tenant
type WebhookEvent struct {
	Topic      string
	Tenant     Tenant
	ObjectType string // normalized, empty when the topic is not about a schema change
	Payload    []byte
	ReceivedAt time.Time
}
