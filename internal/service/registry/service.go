package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/statuspage/internal/apperr"
	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/notify"
	"github.com/splax/statuspage/internal/repository"
	"github.com/splax/statuspage/pkg/config"
	"github.com/splax/statuspage/pkg/crypto"
)

const maxNameLength = 120

// CreateInput encapsulates service creation attributes.
type CreateInput struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	MonitorURL   string `json:"monitor_url"`
	MonitorToken string `json:"monitor_token"`
}

// UpdateInput carries a partial service update. Nil fields are left untouched.
type UpdateInput struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	Status       *string `json:"status"`
	MonitorURL   *string `json:"monitor_url"`
	MonitorToken *string `json:"monitor_token"`
}

func (in UpdateInput) empty() bool {
	return in.Name == nil && in.Description == nil && in.Status == nil && in.MonitorURL == nil && in.MonitorToken == nil
}

// MetricInput is a single health observation.
type MetricInput struct {
	Status    string  `json:"status"`
	LatencyMS float64 `json:"latency"`
	Uptime    float64 `json:"uptime"`
}

// Service owns the lifecycle of services and their metrics.
type Service struct {
	services     repository.ServiceRepository
	metrics      repository.MetricRepository
	events       notify.Emitter
	logger       *slog.Logger
	cfg          config.APIConfig
	historyLimit int
	now          func() time.Time
}

// New returns a registry service.
func New(services repository.ServiceRepository, metrics repository.MetricRepository, events notify.Emitter, logger *slog.Logger, cfg config.APIConfig) Service {
	if events == nil {
		events = notify.Discard
	}
	limit := cfg.MetricsHistoryLimit
	if limit <= 0 {
		limit = 100
	}
	return Service{
		services:     services,
		metrics:      metrics,
		events:       events,
		logger:       logger.With("component", "registry"),
		cfg:          cfg,
		historyLimit: limit,
		now:          time.Now,
	}
}

func validName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperr.Invalid("name", "service name is required")
	}
	if len(name) > maxNameLength {
		return "", apperr.Invalid("name", fmt.Sprintf("service name must be at most %d characters", maxNameLength))
	}
	return name, nil
}

func validStatus(raw string) (domain.ServiceStatus, error) {
	status, ok := domain.ParseServiceStatus(raw)
	if !ok {
		return "", apperr.Invalid("status", fmt.Sprintf("unknown service status %q", raw))
	}
	return status, nil
}

func validMonitorURL(raw string) (string, error) {
	url := strings.TrimSpace(raw)
	if url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", apperr.Invalid("monitor_url", "monitor URL must use http or https")
	}
	return url, nil
}

// translate maps repository sentinels to caller-facing kinds.
func translate(err error, notFound, conflict string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, repository.ErrConflict):
		return apperr.Conflict(conflict)
	case errors.Is(err, repository.ErrInvalidArgument):
		return apperr.Invalid("", "value rejected by store")
	}
	return apperr.Internal(err)
}

func validID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

// Create registers a new service for the organization.
func (s Service) Create(ctx context.Context, organizationID string, input CreateInput) (*domain.Service, error) {
	name, err := validName(input.Name)
	if err != nil {
		return nil, err
	}
	status := domain.ServiceOperational
	if strings.TrimSpace(input.Status) != "" {
		if status, err = validStatus(input.Status); err != nil {
			return nil, err
		}
	}
	monitorURL, err := validMonitorURL(input.MonitorURL)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	svc := &domain.Service{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		Name:           name,
		Description:    strings.TrimSpace(input.Description),
		Status:         status,
		MonitorURL:     monitorURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if token := strings.TrimSpace(input.MonitorToken); token != "" {
		if svc.MonitorToken, err = crypto.SealString(s.cfg.EncryptionKey, token, svc.ID); err != nil {
			return nil, apperr.Internal(err)
		}
	}
	if err := s.services.CreateService(ctx, svc); err != nil {
		return nil, translate(err, "organization not found", fmt.Sprintf("a service named %q already exists", name))
	}
	s.logger.Info("service created", "service_id", svc.ID, "organization_id", organizationID)
	s.events.Emit(ctx, organizationID, domain.EventServiceCreated, svc)
	return svc, nil
}

// Get returns a service owned by the organization.
func (s Service) Get(ctx context.Context, organizationID, serviceID string) (*domain.Service, error) {
	if !validID(serviceID) {
		return nil, apperr.NotFound("service not found")
	}
	svc, err := s.services.GetService(ctx, organizationID, serviceID)
	if err != nil {
		return nil, translate(err, "service not found", "")
	}
	return svc, nil
}

// List returns the organization's services.
func (s Service) List(ctx context.Context, organizationID string) ([]domain.Service, error) {
	services, err := s.services.ListServices(ctx, organizationID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return services, nil
}

// Update applies a partial update to a service.
func (s Service) Update(ctx context.Context, organizationID, serviceID string, input UpdateInput) (*domain.Service, error) {
	if input.empty() {
		return nil, apperr.Invalid("", "at least one field must be provided")
	}
	svc, err := s.Get(ctx, organizationID, serviceID)
	if err != nil {
		return nil, err
	}
	previous := svc.Status
	if input.Name != nil {
		if svc.Name, err = validName(*input.Name); err != nil {
			return nil, err
		}
	}
	if input.Description != nil {
		svc.Description = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		if svc.Status, err = validStatus(*input.Status); err != nil {
			return nil, err
		}
	}
	if input.MonitorURL != nil {
		if svc.MonitorURL, err = validMonitorURL(*input.MonitorURL); err != nil {
			return nil, err
		}
	}
	if input.MonitorToken != nil {
		svc.MonitorToken = nil
		if token := strings.TrimSpace(*input.MonitorToken); token != "" {
			if svc.MonitorToken, err = crypto.SealString(s.cfg.EncryptionKey, token, svc.ID); err != nil {
				return nil, apperr.Internal(err)
			}
		}
	}
	svc.UpdatedAt = s.now().UTC()
	if err := s.services.UpdateService(ctx, svc); err != nil {
		return nil, translate(err, "service not found", fmt.Sprintf("a service named %q already exists", svc.Name))
	}
	s.events.Emit(ctx, organizationID, domain.EventServiceUpdated, svc)
	if svc.Status != previous {
		s.events.Emit(ctx, organizationID, domain.EventServiceStatusChanged, svc)
	}
	return svc, nil
}

// SetStatus changes a service's operational status. service-status-changed
// follows service-updated only when the status differs from the stored one.
func (s Service) SetStatus(ctx context.Context, organizationID, serviceID string, status domain.ServiceStatus) (*domain.Service, error) {
	if !status.Valid() {
		return nil, apperr.Invalid("status", fmt.Sprintf("unknown service status %q", status))
	}
	if !validID(serviceID) {
		return nil, apperr.NotFound("service not found")
	}
	current, err := s.services.GetService(ctx, organizationID, serviceID)
	if err != nil {
		return nil, translate(err, "service not found", "")
	}
	svc, err := s.services.SetServiceStatus(ctx, organizationID, serviceID, status, s.now().UTC())
	if err != nil {
		return nil, translate(err, "service not found", "")
	}
	s.logger.Info("service status changed", "service_id", serviceID, "organization_id", organizationID, "from", current.Status, "status", status)
	s.events.Emit(ctx, organizationID, domain.EventServiceUpdated, svc)
	if current.Status != svc.Status {
		s.events.Emit(ctx, organizationID, domain.EventServiceStatusChanged, svc)
	}
	return svc, nil
}

// Delete removes a service together with its incidents, their updates and its metrics.
func (s Service) Delete(ctx context.Context, organizationID, serviceID string) error {
	if !validID(serviceID) {
		return apperr.NotFound("service not found")
	}
	if err := s.services.DeleteService(ctx, organizationID, serviceID); err != nil {
		return translate(err, "service not found", "")
	}
	s.logger.Info("service deleted", "service_id", serviceID, "organization_id", organizationID)
	s.events.Emit(ctx, organizationID, domain.EventServiceDeleted, map[string]string{"id": serviceID})
	return nil
}

// RecordMetric appends a health observation. It never changes the service status.
func (s Service) RecordMetric(ctx context.Context, organizationID, serviceID string, input MetricInput) (*domain.ServiceMetric, error) {
	status, err := validStatus(input.Status)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(input.Uptime) || input.Uptime < 0 || input.Uptime > 100 {
		return nil, apperr.Invalid("uptime", "uptime must be between 0 and 100")
	}
	if math.IsNaN(input.LatencyMS) || math.IsInf(input.LatencyMS, 0) || input.LatencyMS < 0 {
		return nil, apperr.Invalid("latency", "latency must be a non-negative number")
	}
	if _, err := s.Get(ctx, organizationID, serviceID); err != nil {
		return nil, err
	}
	metric := &domain.ServiceMetric{
		ID:         uuid.NewString(),
		ServiceID:  serviceID,
		Status:     status,
		LatencyMS:  input.LatencyMS,
		Uptime:     input.Uptime,
		RecordedAt: s.now().UTC(),
	}
	if err := s.metrics.InsertMetric(ctx, metric); err != nil {
		return nil, translate(err, "service not found", "")
	}
	return metric, nil
}

// Metrics returns the most recent observations for a service, oldest first.
func (s Service) Metrics(ctx context.Context, organizationID, serviceID string, limit int) ([]domain.ServiceMetric, error) {
	if _, err := s.Get(ctx, organizationID, serviceID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	metrics, err := s.metrics.ListMetrics(ctx, serviceID, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return metrics, nil
}

// MonitorToken decrypts the stored probe credential of a service.
func (s Service) MonitorToken(svc domain.Service) (string, error) {
	if len(svc.MonitorToken) == 0 {
		return "", nil
	}
	return crypto.OpenString(s.cfg.EncryptionKey, svc.MonitorToken, svc.ID)
}
