package domain

import (
	"strings"
	"time"
)

// ServiceStatus is the operational state of a monitored service.
type ServiceStatus string

const (
	ServiceOperational         ServiceStatus = "OPERATIONAL"
	ServiceDegradedPerformance ServiceStatus = "DEGRADED_PERFORMANCE"
	ServicePartialOutage       ServiceStatus = "PARTIAL_OUTAGE"
	ServiceMajorOutage         ServiceStatus = "MAJOR_OUTAGE"
	ServiceUnderMaintenance    ServiceStatus = "UNDER_MAINTENANCE"
)

// ServiceStatuses lists every accepted service status.
var ServiceStatuses = []ServiceStatus{
	ServiceOperational,
	ServiceDegradedPerformance,
	ServicePartialOutage,
	ServiceMajorOutage,
	ServiceUnderMaintenance,
}

// Valid reports whether s is a known service status.
func (s ServiceStatus) Valid() bool {
	switch s {
	case ServiceOperational, ServiceDegradedPerformance, ServicePartialOutage, ServiceMajorOutage, ServiceUnderMaintenance:
		return true
	}
	return false
}

// ParseServiceStatus normalises raw input such as "partial_outage" into a ServiceStatus.
func ParseServiceStatus(raw string) (ServiceStatus, bool) {
	status := ServiceStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// Service is a named, independently monitored component of an organization.
type Service struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Status         ServiceStatus `json:"status"`
	MonitorURL     string        `json:"monitor_url,omitempty"`
	MonitorToken   []byte        `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Monitored reports whether the health sweep should probe the service.
func (s Service) Monitored() bool {
	return strings.TrimSpace(s.MonitorURL) != ""
}

// ServiceMetric is a single health observation for a service.
type ServiceMetric struct {
	ID         string        `json:"id"`
	ServiceID  string        `json:"service_id"`
	Status     ServiceStatus `json:"status"`
	LatencyMS  float64       `json:"latency_ms"`
	Uptime     float64       `json:"uptime"`
	RecordedAt time.Time     `json:"recorded_at"`
}
