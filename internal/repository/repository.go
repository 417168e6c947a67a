package repository

import (
	"context"
	"time"

	"github.com/splax/statuspage/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// OrganizationRepository manages organizations and memberships.
type OrganizationRepository interface {
	// CreateOrganization stores the organization, its first member and seed services atomically.
	CreateOrganization(ctx context.Context, org *domain.Organization, owner *domain.Membership, services []domain.Service) error
	GetOrganizationByID(ctx context.Context, id string) (*domain.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error)
	UpdateOrganization(ctx context.Context, org *domain.Organization) error
	GetMembership(ctx context.Context, organizationID, userID string) (*domain.Membership, error)
	UpsertMembership(ctx context.Context, member *domain.Membership) error
	ListOrganizationsByUser(ctx context.Context, userID string) ([]domain.Organization, error)
}

// ServiceRepository persists services. Every lookup is scoped by organization.
type ServiceRepository interface {
	CreateService(ctx context.Context, service *domain.Service) error
	GetService(ctx context.Context, organizationID, serviceID string) (*domain.Service, error)
	ListServices(ctx context.Context, organizationID string) ([]domain.Service, error)
	ListMonitoredServices(ctx context.Context) ([]domain.Service, error)
	UpdateService(ctx context.Context, service *domain.Service) error
	SetServiceStatus(ctx context.Context, organizationID, serviceID string, status domain.ServiceStatus, at time.Time) (*domain.Service, error)
	// DeleteService removes the service with its incidents, their updates and its metrics in one transaction.
	DeleteService(ctx context.Context, organizationID, serviceID string) error
}

// MetricRepository stores append-only health observations.
type MetricRepository interface {
	InsertMetric(ctx context.Context, metric *domain.ServiceMetric) error
	// ListMetrics returns the most recent limit metrics, oldest first.
	ListMetrics(ctx context.Context, serviceID string, limit int) ([]domain.ServiceMetric, error)
	// LatestMetrics returns the newest metric per service of the organization keyed by service ID.
	LatestMetrics(ctx context.Context, organizationID string) (map[string]domain.ServiceMetric, error)
}

// IncidentFilter narrows incident listings.
type IncidentFilter struct {
	ServiceID string
	OpenOnly  bool
	Limit     int
}

// IncidentRepository persists incidents and their timelines.
type IncidentRepository interface {
	// CreateIncident stores the incident with its first timeline entry atomically.
	CreateIncident(ctx context.Context, incident *domain.Incident, first *domain.IncidentUpdate) error
	GetIncident(ctx context.Context, organizationID, incidentID string) (*domain.Incident, error)
	FindOpenIncidentByTitle(ctx context.Context, organizationID, title string) (*domain.Incident, error)
	// UpdateIncidentStatus writes the status fields and appends change.Update in one transaction.
	UpdateIncidentStatus(ctx context.Context, change domain.IncidentStatusChange) (*domain.Incident, error)
	AppendIncidentUpdate(ctx context.Context, organizationID string, update *domain.IncidentUpdate) error
	// ListIncidents returns incidents newest first.
	ListIncidents(ctx context.Context, organizationID string, filter IncidentFilter) ([]domain.Incident, error)
	// ListIncidentUpdates returns timelines newest first keyed by incident ID. perIncident <= 0 means all.
	ListIncidentUpdates(ctx context.Context, incidentIDs []string, perIncident int) (map[string][]domain.IncidentUpdate, error)
}

// Store is a complete persistence backend.
type Store interface {
	UserRepository
	OrganizationRepository
	ServiceRepository
	MetricRepository
	IncidentRepository
}
