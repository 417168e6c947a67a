package incident

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/statuspage/internal/apperr"
	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/notify"
	"github.com/splax/statuspage/internal/repository"
	"github.com/splax/statuspage/pkg/config"
)

const maxTitleLength = 200

// Actor identifies who performs a mutation within which organization.
type Actor struct {
	UserID         string
	OrganizationID string
}

// CreateInput encapsulates incident creation attributes.
type CreateInput struct {
	ServiceID   string `json:"service_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// StatusInput is a status transition with an optional timeline message.
type StatusInput struct {
	Status  string  `json:"status"`
	Message *string `json:"message"`
}

// Filter narrows incident listings.
type Filter struct {
	ServiceID string
	OpenOnly  bool
	Limit     int
}

// Service drives the incident lifecycle and its timeline.
type Service struct {
	incidents     repository.IncidentRepository
	services      repository.ServiceRepository
	events        notify.Emitter
	logger        *slog.Logger
	timelineSlice int
	now           func() time.Time
}

// New returns an incident service.
func New(incidents repository.IncidentRepository, services repository.ServiceRepository, events notify.Emitter, logger *slog.Logger, cfg config.APIConfig) Service {
	if events == nil {
		events = notify.Discard
	}
	slice := cfg.TimelineSlice
	if slice <= 0 {
		slice = 10
	}
	return Service{
		incidents:     incidents,
		services:      services,
		events:        events,
		logger:        logger.With("component", "incident"),
		timelineSlice: slice,
		now:           time.Now,
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

func authorOf(actor Actor) *string {
	if actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}

func translate(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, repository.ErrConflict):
		return apperr.Conflict("an open incident with this title already exists")
	case errors.Is(err, repository.ErrInvalidArgument):
		return apperr.Invalid("", "value rejected by store")
	}
	return apperr.Internal(err)
}

// resolvedAtFor stamps now when status is RESOLVED and clears it otherwise.
func resolvedAtFor(status domain.IncidentStatus, now time.Time) *time.Time {
	if status != domain.IncidentResolved {
		return nil
	}
	at := now
	return &at
}

// Create opens an incident for one of the organization's services.
func (s Service) Create(ctx context.Context, actor Actor, input CreateInput) (*domain.IncidentDetail, error) {
	if actor.OrganizationID == "" {
		return nil, apperr.Unauthorized("organization context required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperr.Invalid("title", "title is required")
	}
	if len(title) > maxTitleLength {
		return nil, apperr.Invalid("title", fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	status := domain.IncidentInvestigating
	if strings.TrimSpace(input.Status) != "" {
		parsed, ok := domain.ParseIncidentStatus(input.Status)
		if !ok {
			return nil, apperr.Invalid("status", fmt.Sprintf("unknown incident status %q", input.Status))
		}
		status = parsed
	}
	if strings.TrimSpace(input.ServiceID) == "" {
		return nil, apperr.Invalid("service_id", "service_id is required")
	}
	if !validID(input.ServiceID) {
		return nil, apperr.NotFound("service not found")
	}
	svc, err := s.services.GetService(ctx, actor.OrganizationID, input.ServiceID)
	if err != nil {
		return nil, translate(err, "service not found")
	}
	if status != domain.IncidentResolved {
		existing, err := s.incidents.FindOpenIncidentByTitle(ctx, actor.OrganizationID, title)
		if err == nil && existing != nil {
			return nil, apperr.Conflict(fmt.Sprintf("incident %q is already open", existing.Title))
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Internal(err)
		}
	}

	now := s.now().UTC()
	description := strings.TrimSpace(input.Description)
	incident := &domain.Incident{
		ID:             uuid.NewString(),
		OrganizationID: actor.OrganizationID,
		ServiceID:      svc.ID,
		Title:          title,
		Description:    description,
		Status:         status,
		StartedAt:      now,
		ResolvedAt:     resolvedAtFor(status, now),
		CreatedByID:    actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	message := description
	if message == "" {
		message = fmt.Sprintf("Incident reported with status %s", status)
	}
	first := domain.IncidentUpdate{
		ID:          uuid.NewString(),
		IncidentID:  incident.ID,
		Message:     message,
		CreatedByID: authorOf(actor),
		CreatedAt:   now,
	}
	if err := s.incidents.CreateIncident(ctx, incident, &first); err != nil {
		return nil, translate(err, "service not found")
	}
	s.logger.Info("incident created", "incident_id", incident.ID, "organization_id", actor.OrganizationID, "status", status)
	detail := &domain.IncidentDetail{Incident: *incident, Service: svc, Updates: []domain.IncidentUpdate{first}}
	s.events.Emit(ctx, actor.OrganizationID, domain.EventIncidentCreated, detail)
	return detail, nil
}

// UpdateStatus moves an incident to any status and appends exactly one timeline entry.
// Repeating the current status still appends an entry.
func (s Service) UpdateStatus(ctx context.Context, actor Actor, incidentID string, input StatusInput) (*domain.IncidentDetail, error) {
	if actor.OrganizationID == "" {
		return nil, apperr.Unauthorized("organization context required")
	}
	if !validID(incidentID) {
		return nil, apperr.NotFound("incident not found")
	}
	current, err := s.incidents.GetIncident(ctx, actor.OrganizationID, incidentID)
	if err != nil {
		return nil, translate(err, "incident not found")
	}
	status, ok := domain.ParseIncidentStatus(input.Status)
	if !ok {
		return nil, apperr.Invalid("status", fmt.Sprintf("unknown incident status %q", input.Status))
	}
	message := fmt.Sprintf("Status changed to %s", status)
	if input.Message != nil && strings.TrimSpace(*input.Message) != "" {
		message = strings.TrimSpace(*input.Message)
	}

	now := s.now().UTC()
	change := domain.IncidentStatusChange{
		OrganizationID: actor.OrganizationID,
		IncidentID:     current.ID,
		Status:         status,
		ResolvedAt:     resolvedAtFor(status, now),
		UpdatedAt:      now,
		Update: domain.IncidentUpdate{
			ID:          uuid.NewString(),
			IncidentID:  current.ID,
			Message:     message,
			CreatedByID: authorOf(actor),
			CreatedAt:   now,
		},
	}
	updated, err := s.incidents.UpdateIncidentStatus(ctx, change)
	if err != nil {
		return nil, translate(err, "incident not found")
	}
	s.logger.Info("incident status changed", "incident_id", updated.ID, "organization_id", actor.OrganizationID, "from", current.Status, "to", status)

	detail, err := s.detail(ctx, *updated, s.timelineSlice)
	if err != nil {
		// The change is committed; answer with what was written.
		s.logger.Warn("incident detail reload failed", "incident_id", updated.ID, "error", err)
		detail = &domain.IncidentDetail{Incident: *updated, Updates: []domain.IncidentUpdate{change.Update}}
	}
	s.events.Emit(ctx, actor.OrganizationID, domain.EventIncidentUpdated, detail)
	return detail, nil
}

// AddUpdate appends a free-form timeline entry without changing status.
func (s Service) AddUpdate(ctx context.Context, actor Actor, incidentID, message string) (*domain.IncidentUpdate, error) {
	if actor.OrganizationID == "" {
		return nil, apperr.Unauthorized("organization context required")
	}
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil, apperr.Invalid("message", "message is required")
	}
	if !validID(incidentID) {
		return nil, apperr.NotFound("incident not found")
	}
	update := &domain.IncidentUpdate{
		ID:          uuid.NewString(),
		IncidentID:  incidentID,
		Message:     trimmed,
		CreatedByID: authorOf(actor),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.incidents.AppendIncidentUpdate(ctx, actor.OrganizationID, update); err != nil {
		return nil, translate(err, "incident not found")
	}
	s.events.Emit(ctx, actor.OrganizationID, domain.EventIncidentUpdateCreated, update)
	return update, nil
}

// Get returns one incident with its service and full timeline.
func (s Service) Get(ctx context.Context, organizationID, incidentID string) (*domain.IncidentDetail, error) {
	if !validID(incidentID) {
		return nil, apperr.NotFound("incident not found")
	}
	incident, err := s.incidents.GetIncident(ctx, organizationID, incidentID)
	if err != nil {
		return nil, translate(err, "incident not found")
	}
	return s.detail(ctx, *incident, 0)
}

// Timeline returns an incident's updates, newest first.
func (s Service) Timeline(ctx context.Context, organizationID, incidentID string) ([]domain.IncidentUpdate, error) {
	detail, err := s.Get(ctx, organizationID, incidentID)
	if err != nil {
		return nil, err
	}
	return detail.Updates, nil
}

// List returns the organization's incidents newest first with service and timeline.
func (s Service) List(ctx context.Context, organizationID string, filter Filter) ([]domain.IncidentDetail, error) {
	return s.list(ctx, organizationID, filter, 0)
}

// ListWithTimeline is List with each timeline capped at perIncident entries.
func (s Service) ListWithTimeline(ctx context.Context, organizationID string, filter Filter, perIncident int) ([]domain.IncidentDetail, error) {
	return s.list(ctx, organizationID, filter, perIncident)
}

func (s Service) list(ctx context.Context, organizationID string, filter Filter, perIncident int) ([]domain.IncidentDetail, error) {
	incidents, err := s.incidents.ListIncidents(ctx, organizationID, repository.IncidentFilter{
		ServiceID: filter.ServiceID,
		OpenOnly:  filter.OpenOnly,
		Limit:     filter.Limit,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(incidents) == 0 {
		return []domain.IncidentDetail{}, nil
	}
	ids := make([]string, 0, len(incidents))
	for _, incident := range incidents {
		ids = append(ids, incident.ID)
	}
	timelines, err := s.incidents.ListIncidentUpdates(ctx, ids, perIncident)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	services, err := s.services.ListServices(ctx, organizationID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	byID := make(map[string]domain.Service, len(services))
	for _, svc := range services {
		byID[svc.ID] = svc
	}
	details := make([]domain.IncidentDetail, 0, len(incidents))
	for _, incident := range incidents {
		detail := domain.IncidentDetail{Incident: incident, Updates: timelines[incident.ID]}
		if detail.Updates == nil {
			detail.Updates = []domain.IncidentUpdate{}
		}
		if svc, ok := byID[incident.ServiceID]; ok {
			detail.Service = &svc
		}
		details = append(details, detail)
	}
	return details, nil
}

func (s Service) detail(ctx context.Context, incident domain.Incident, perIncident int) (*domain.IncidentDetail, error) {
	timelines, err := s.incidents.ListIncidentUpdates(ctx, []string{incident.ID}, perIncident)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	detail := &domain.IncidentDetail{Incident: incident, Updates: timelines[incident.ID]}
	if detail.Updates == nil {
		detail.Updates = []domain.IncidentUpdate{}
	}
	svc, err := s.services.GetService(ctx, incident.OrganizationID, incident.ServiceID)
	switch {
	case err == nil:
		detail.Service = svc
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Internal(err)
	}
	return detail, nil
}
