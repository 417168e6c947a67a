package status

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/splax/statuspage/internal/apperr"
	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/repository"
	"github.com/splax/statuspage/pkg/config"
)

const activeIncidentLimit = 5

// OrganizationRef is the public face of an organization.
type OrganizationRef struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ServiceView is a service with its most recent metric.
type ServiceView struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	Status       domain.ServiceStatus  `json:"status"`
	UpdatedAt    time.Time             `json:"updated_at"`
	LatestMetric *domain.ServiceMetric `json:"latest_metric,omitempty"`
}

// IncidentView is an incident as shown on the public page.
type IncidentView struct {
	ID          string                  `json:"id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Status      domain.IncidentStatus   `json:"status"`
	ServiceID   string                  `json:"service_id"`
	ServiceName string                  `json:"service_name,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	ResolvedAt  *time.Time              `json:"resolved_at,omitempty"`
	Updates     []UpdateView            `json:"updates"`
}

// UpdateView is a timeline entry without its author.
type UpdateView struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// PublicPage is the unauthenticated status page for an organization.
type PublicPage struct {
	Organization    OrganizationRef      `json:"organization"`
	AggregateStatus domain.ServiceStatus `json:"aggregate_status"`
	Services        []ServiceView        `json:"services"`
	RecentIncidents []IncidentView       `json:"recent_incidents"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// SummaryService is the compact service row returned to pollers.
type SummaryService struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Status    domain.ServiceStatus `json:"status"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// SummaryIncident is the compact incident row returned to pollers.
type SummaryIncident struct {
	ID        string                `json:"id"`
	Title     string                `json:"title"`
	Status    domain.IncidentStatus `json:"status"`
	ServiceID string                `json:"service_id"`
	StartedAt time.Time             `json:"started_at"`
}

// Summary is the machine-readable status snapshot.
type Summary struct {
	Status          string               `json:"status"`
	Timestamp       time.Time            `json:"timestamp"`
	AggregateStatus domain.ServiceStatus `json:"aggregate_status"`
	Services        []SummaryService     `json:"services"`
	ActiveIncidents []SummaryIncident    `json:"active_incidents"`
}

// Service projects registry and incident state into read-only status views.
type Service struct {
	orgs          repository.OrganizationRepository
	services      repository.ServiceRepository
	metrics       repository.MetricRepository
	incidents     repository.IncidentRepository
	logger        *slog.Logger
	incidentLimit int
	timelineSlice int
	now           func() time.Time
}

// New returns a status projector.
func New(orgs repository.OrganizationRepository, services repository.ServiceRepository, metrics repository.MetricRepository, incidents repository.IncidentRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	limit := cfg.PublicIncidentLimit
	if limit <= 0 {
		limit = 10
	}
	slice := cfg.TimelineSlice
	if slice <= 0 {
		slice = 10
	}
	return Service{
		orgs:          orgs,
		services:      services,
		metrics:       metrics,
		incidents:     incidents,
		logger:        logger.With("component", "status"),
		incidentLimit: limit,
		timelineSlice: slice,
		now:           time.Now,
	}
}

func (s Service) organization(ctx context.Context, slug string) (*domain.Organization, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !domain.ValidSlug(slug) {
		return nil, apperr.NotFound("organization not found")
	}
	org, err := s.orgs.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("organization not found")
		}
		return nil, apperr.Internal(err)
	}
	return org, nil
}

// Public builds the status page for the organization identified by slug.
func (s Service) Public(ctx context.Context, slug string) (*PublicPage, error) {
	org, err := s.organization(ctx, slug)
	if err != nil {
		return nil, err
	}
	services, err := s.services.ListServices(ctx, org.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	latest, err := s.metrics.LatestMetrics(ctx, org.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	page := &PublicPage{
		Organization:    OrganizationRef{Name: org.Name, Slug: org.Slug},
		AggregateStatus: AggregateServices(services),
		Services:        make([]ServiceView, 0, len(services)),
		RecentIncidents: []IncidentView{},
		GeneratedAt:     s.now().UTC(),
	}
	names := make(map[string]string, len(services))
	for _, svc := range services {
		names[svc.ID] = svc.Name
		view := ServiceView{
			ID:          svc.ID,
			Name:        svc.Name,
			Description: svc.Description,
			Status:      svc.Status,
			UpdatedAt:   svc.UpdatedAt,
		}
		if metric, ok := latest[svc.ID]; ok {
			m := metric
			view.LatestMetric = &m
		}
		page.Services = append(page.Services, view)
	}

	incidents, err := s.incidents.ListIncidents(ctx, org.ID, repository.IncidentFilter{Limit: s.incidentLimit})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(incidents) == 0 {
		return page, nil
	}
	ids := make([]string, 0, len(incidents))
	for _, incident := range incidents {
		ids = append(ids, incident.ID)
	}
	timelines, err := s.incidents.ListIncidentUpdates(ctx, ids, s.timelineSlice)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	for _, incident := range incidents {
		updates := make([]UpdateView, 0, len(timelines[incident.ID]))
		for _, u := range timelines[incident.ID] {
			updates = append(updates, UpdateView{ID: u.ID, Message: u.Message, CreatedAt: u.CreatedAt})
		}
		page.RecentIncidents = append(page.RecentIncidents, IncidentView{
			ID:          incident.ID,
			Title:       incident.Title,
			Description: incident.Description,
			Status:      incident.Status,
			ServiceID:   incident.ServiceID,
			ServiceName: names[incident.ServiceID],
			StartedAt:   incident.StartedAt,
			ResolvedAt:  incident.ResolvedAt,
			Updates:     updates,
		})
	}
	return page, nil
}

// Summary builds the polling snapshot for the organization identified by slug.
func (s Service) Summary(ctx context.Context, slug string) (*Summary, error) {
	org, err := s.organization(ctx, slug)
	if err != nil {
		return nil, err
	}
	services, err := s.services.ListServices(ctx, org.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	incidents, err := s.incidents.ListIncidents(ctx, org.ID, repository.IncidentFilter{OpenOnly: true, Limit: activeIncidentLimit})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	summary := &Summary{
		Status:          "ok",
		Timestamp:       s.now().UTC(),
		AggregateStatus: AggregateServices(services),
		Services:        make([]SummaryService, 0, len(services)),
		ActiveIncidents: make([]SummaryIncident, 0, len(incidents)),
	}
	for _, svc := range services {
		summary.Services = append(summary.Services, SummaryService{ID: svc.ID, Name: svc.Name, Status: svc.Status, UpdatedAt: svc.UpdatedAt})
	}
	for _, incident := range incidents {
		summary.ActiveIncidents = append(summary.ActiveIncidents, SummaryIncident{
			ID:        incident.ID,
			Title:     incident.Title,
			Status:    incident.Status,
			ServiceID: incident.ServiceID,
			StartedAt: incident.StartedAt,
		})
	}
	return summary, nil
}
