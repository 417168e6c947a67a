package domain

// Notification event names published on an organization channel.
const (
	EventServiceCreated        = "service-created"
	EventServiceUpdated        = "service-updated"
	EventServiceDeleted        = "service-deleted"
	EventServiceStatusChanged  = "service-status-changed"
	EventIncidentCreated       = "incident-created"
	EventIncidentUpdated       = "incident-updated"
	EventIncidentUpdateCreated = "incident-update-created"
)
