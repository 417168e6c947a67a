package domain

import (
	"strings"
	"time"
)

// IncidentStatus tracks the lifecycle stage of an incident.
type IncidentStatus string

const (
	IncidentInvestigating IncidentStatus = "INVESTIGATING"
	IncidentIdentified    IncidentStatus = "IDENTIFIED"
	IncidentMonitoring    IncidentStatus = "MONITORING"
	IncidentResolved      IncidentStatus = "RESOLVED"
)

// Valid reports whether s is a known incident status.
func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentInvestigating, IncidentIdentified, IncidentMonitoring, IncidentResolved:
		return true
	}
	return false
}

// ParseIncidentStatus normalises raw input into an IncidentStatus.
func ParseIncidentStatus(raw string) (IncidentStatus, bool) {
	status := IncidentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// Incident records a disruption affecting one service.
type Incident struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	ServiceID      string         `json:"service_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Status         IncidentStatus `json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	ResolvedAt     *time.Time     `json:"resolved_at"`
	CreatedByID    string         `json:"created_by_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Open reports whether the incident still counts toward duplicate-title checks.
func (i Incident) Open() bool {
	return i.Status != IncidentResolved
}

// IncidentUpdate is an immutable timeline entry.
type IncidentUpdate struct {
	ID          string    `json:"id"`
	IncidentID  string    `json:"incident_id"`
	Message     string    `json:"message"`
	CreatedByID *string   `json:"created_by_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// IncidentStatusChange carries the fields written together when an incident changes status.
type IncidentStatusChange struct {
	OrganizationID string
	IncidentID     string
	Status         IncidentStatus
	ResolvedAt     *time.Time
	UpdatedAt      time.Time
	Update         IncidentUpdate
}

// IncidentDetail is an incident joined with its service and timeline, newest update first.
type IncidentDetail struct {
	Incident
	Service *Service         `json:"service,omitempty"`
	Updates []IncidentUpdate `json:"updates"`
}
