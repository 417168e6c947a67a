// Package memory implements the repository interfaces in process memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/repository"
)

// Store enforces the same ownership and uniqueness rules as the Postgres schema.
type Store struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	orgs        map[string]domain.Organization
	memberships map[string]domain.Membership
	services    map[string]domain.Service
	metrics     map[string][]domain.ServiceMetric
	incidents   map[string]domain.Incident
	updates     map[string][]storedUpdate
	seq         int64
}

type storedUpdate struct {
	update domain.IncidentUpdate
	seq    int64
}

var (
	_ repository.UserRepository         = (*Store)(nil)
	_ repository.OrganizationRepository = (*Store)(nil)
	_ repository.ServiceRepository      = (*Store)(nil)
	_ repository.MetricRepository       = (*Store)(nil)
	_ repository.IncidentRepository     = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:       make(map[string]domain.User),
		orgs:        make(map[string]domain.Organization),
		memberships: make(map[string]domain.Membership),
		services:    make(map[string]domain.Service),
		metrics:     make(map[string][]domain.ServiceMetric),
		incidents:   make(map[string]domain.Incident),
		updates:     make(map[string][]storedUpdate),
	}
}

func membershipKey(orgID, userID string) string {
	return orgID + "/" + userID
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CreateUser stores a user; emails are unique case-insensitively.
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if fold(existing.Email) == fold(user.Email) {
			return repository.ErrConflict
		}
	}
	s.users[user.ID] = *user
	return nil
}

// GetUserByEmail fetches a user by email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if fold(user.Email) == fold(email) {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetUserByID fetches a user by identifier.
func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

// CreateOrganization stores the organization, owner and seed services atomically.
func (s *Store) CreateOrganization(_ context.Context, org *domain.Organization, owner *domain.Membership, services []domain.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orgs {
		if existing.Slug == org.Slug {
			return repository.ErrConflict
		}
	}
	if owner != nil {
		if _, ok := s.users[owner.UserID]; !ok {
			return repository.ErrNotFound
		}
	}
	seen := make(map[string]struct{}, len(services))
	for _, svc := range services {
		key := fold(svc.Name)
		if _, dup := seen[key]; dup {
			return repository.ErrConflict
		}
		seen[key] = struct{}{}
	}
	s.orgs[org.ID] = *org
	if owner != nil {
		s.memberships[membershipKey(owner.OrganizationID, owner.UserID)] = *owner
	}
	for _, svc := range services {
		s.services[svc.ID] = svc
	}
	return nil
}

// GetOrganizationByID returns an organization by identifier.
func (s *Store) GetOrganizationByID(_ context.Context, id string) (*domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &org, nil
}

// GetOrganizationBySlug returns an organization by slug.
func (s *Store) GetOrganizationBySlug(_ context.Context, slug string) (*domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, org := range s.orgs {
		if org.Slug == slug {
			o := org
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

// UpdateOrganization persists name and notify email.
func (s *Store) UpdateOrganization(_ context.Context, org *domain.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.orgs[org.ID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Name = org.Name
	existing.NotifyEmail = org.NotifyEmail
	existing.UpdatedAt = org.UpdatedAt
	s.orgs[org.ID] = existing
	return nil
}

// GetMembership returns a user's membership in an organization.
func (s *Store) GetMembership(_ context.Context, organizationID, userID string) (*domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipKey(organizationID, userID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

// UpsertMembership adds a member or changes the role of an existing one.
func (s *Store) UpsertMembership(_ context.Context, member *domain.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[member.OrganizationID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := s.users[member.UserID]; !ok {
		return repository.ErrNotFound
	}
	key := membershipKey(member.OrganizationID, member.UserID)
	if existing, ok := s.memberships[key]; ok {
		existing.Role = member.Role
		s.memberships[key] = existing
		return nil
	}
	s.memberships[key] = *member
	return nil
}

// ListOrganizationsByUser returns organizations the user belongs to, oldest membership first.
func (s *Store) ListOrganizationsByUser(_ context.Context, userID string) ([]domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]domain.Membership, 0)
	for _, m := range s.memberships {
		if m.UserID == userID {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })
	orgs := make([]domain.Organization, 0, len(members))
	for _, m := range members {
		if org, ok := s.orgs[m.OrganizationID]; ok {
			orgs = append(orgs, org)
		}
	}
	return orgs, nil
}

func (s *Store) nameTaken(orgID, name, exceptID string) bool {
	for _, svc := range s.services {
		if svc.OrganizationID == orgID && svc.ID != exceptID && fold(svc.Name) == fold(name) {
			return true
		}
	}
	return false
}

// CreateService stores a service; names are unique per organization case-insensitively.
func (s *Store) CreateService(_ context.Context, svc *domain.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[svc.OrganizationID]; !ok {
		return repository.ErrNotFound
	}
	if s.nameTaken(svc.OrganizationID, svc.Name, "") {
		return repository.ErrConflict
	}
	s.services[svc.ID] = *svc
	return nil
}

// GetService returns a service owned by the organization.
func (s *Store) GetService(_ context.Context, organizationID, serviceID string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.OrganizationID != organizationID {
		return nil, repository.ErrNotFound
	}
	return &svc, nil
}

// ListServices returns the organization's services in creation order.
func (s *Store) ListServices(_ context.Context, organizationID string) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	services := make([]domain.Service, 0)
	for _, svc := range s.services {
		if svc.OrganizationID == organizationID {
			services = append(services, svc)
		}
	}
	sortServices(services)
	return services, nil
}

// ListMonitoredServices returns every service with a monitor URL.
func (s *Store) ListMonitoredServices(_ context.Context) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	services := make([]domain.Service, 0)
	for _, svc := range s.services {
		if svc.Monitored() {
			services = append(services, svc)
		}
	}
	sortServices(services)
	return services, nil
}

func sortServices(services []domain.Service) {
	sort.Slice(services, func(i, j int) bool {
		if !services[i].CreatedAt.Equal(services[j].CreatedAt) {
			return services[i].CreatedAt.Before(services[j].CreatedAt)
		}
		return services[i].Name < services[j].Name
	})
}

// UpdateService persists the mutable service fields.
func (s *Store) UpdateService(_ context.Context, svc *domain.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.services[svc.ID]
	if !ok || existing.OrganizationID != svc.OrganizationID {
		return repository.ErrNotFound
	}
	if s.nameTaken(svc.OrganizationID, svc.Name, svc.ID) {
		return repository.ErrConflict
	}
	updated := *svc
	updated.CreatedAt = existing.CreatedAt
	s.services[svc.ID] = updated
	return nil
}

// SetServiceStatus writes status and updated_at together.
func (s *Store) SetServiceStatus(_ context.Context, organizationID, serviceID string, status domain.ServiceStatus, at time.Time) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.OrganizationID != organizationID {
		return nil, repository.ErrNotFound
	}
	svc.Status = status
	svc.UpdatedAt = at
	s.services[serviceID] = svc
	return &svc, nil
}

// DeleteService removes the service, its incidents with their updates, and its metrics.
func (s *Store) DeleteService(_ context.Context, organizationID, serviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.OrganizationID != organizationID {
		return repository.ErrNotFound
	}
	for id, incident := range s.incidents {
		if incident.ServiceID == serviceID {
			delete(s.updates, id)
			delete(s.incidents, id)
		}
	}
	delete(s.metrics, serviceID)
	delete(s.services, serviceID)
	return nil
}

// InsertMetric appends a health observation.
func (s *Store) InsertMetric(_ context.Context, metric *domain.ServiceMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[metric.ServiceID]; !ok {
		return repository.ErrNotFound
	}
	s.metrics[metric.ServiceID] = append(s.metrics[metric.ServiceID], *metric)
	return nil
}

// ListMetrics returns the latest limit metrics in ascending time order.
func (s *Store) ListMetrics(_ context.Context, serviceID string, limit int) ([]domain.ServiceMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics := append([]domain.ServiceMetric(nil), s.metrics[serviceID]...)
	sort.SliceStable(metrics, func(i, j int) bool { return metrics[i].RecordedAt.Before(metrics[j].RecordedAt) })
	if len(metrics) > limit {
		metrics = metrics[len(metrics)-limit:]
	}
	if metrics == nil {
		metrics = []domain.ServiceMetric{}
	}
	return metrics, nil
}

// LatestMetrics returns the newest metric per service of an organization.
func (s *Store) LatestMetrics(_ context.Context, organizationID string) (map[string]domain.ServiceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[string]domain.ServiceMetric)
	for serviceID, metrics := range s.metrics {
		svc, ok := s.services[serviceID]
		if !ok || svc.OrganizationID != organizationID {
			continue
		}
		for _, metric := range metrics {
			current, seen := latest[serviceID]
			if !seen || !metric.RecordedAt.Before(current.RecordedAt) {
				latest[serviceID] = metric
			}
		}
	}
	return latest, nil
}

func (s *Store) openTitleTaken(orgID, title, exceptID string) bool {
	for _, incident := range s.incidents {
		if incident.OrganizationID == orgID && incident.ID != exceptID && incident.Open() && fold(incident.Title) == fold(title) {
			return true
		}
	}
	return false
}

func (s *Store) appendUpdate(update domain.IncidentUpdate) {
	s.seq++
	s.updates[update.IncidentID] = append(s.updates[update.IncidentID], storedUpdate{update: update, seq: s.seq})
}

// CreateIncident stores the incident and its first update atomically.
func (s *Store) CreateIncident(_ context.Context, incident *domain.Incident, first *domain.IncidentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[incident.ServiceID]
	if !ok || svc.OrganizationID != incident.OrganizationID {
		return repository.ErrNotFound
	}
	if incident.Open() && s.openTitleTaken(incident.OrganizationID, incident.Title, "") {
		return repository.ErrConflict
	}
	s.incidents[incident.ID] = *incident
	if first != nil {
		update := *first
		update.IncidentID = incident.ID
		s.appendUpdate(update)
	}
	return nil
}

// GetIncident returns an incident owned by the organization.
func (s *Store) GetIncident(_ context.Context, organizationID, incidentID string) (*domain.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	incident, ok := s.incidents[incidentID]
	if !ok || incident.OrganizationID != organizationID {
		return nil, repository.ErrNotFound
	}
	return &incident, nil
}

// FindOpenIncidentByTitle returns a non-resolved incident whose title matches case-insensitively.
func (s *Store) FindOpenIncidentByTitle(_ context.Context, organizationID, title string) (*domain.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, incident := range s.incidents {
		if incident.OrganizationID == organizationID && incident.Open() && fold(incident.Title) == fold(title) {
			i := incident
			return &i, nil
		}
	}
	return nil, repository.ErrNotFound
}

// UpdateIncidentStatus writes the status fields and appends the update atomically.
func (s *Store) UpdateIncidentStatus(_ context.Context, change domain.IncidentStatusChange) (*domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	incident, ok := s.incidents[change.IncidentID]
	if !ok || incident.OrganizationID != change.OrganizationID {
		return nil, repository.ErrNotFound
	}
	if change.Status != domain.IncidentResolved && s.openTitleTaken(incident.OrganizationID, incident.Title, incident.ID) {
		return nil, repository.ErrConflict
	}
	incident.Status = change.Status
	incident.ResolvedAt = change.ResolvedAt
	incident.UpdatedAt = change.UpdatedAt
	s.incidents[incident.ID] = incident
	update := change.Update
	update.IncidentID = incident.ID
	s.appendUpdate(update)
	return &incident, nil
}

// AppendIncidentUpdate adds a timeline entry to an incident owned by the organization.
func (s *Store) AppendIncidentUpdate(_ context.Context, organizationID string, update *domain.IncidentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	incident, ok := s.incidents[update.IncidentID]
	if !ok || incident.OrganizationID != organizationID {
		return repository.ErrNotFound
	}
	s.appendUpdate(*update)
	return nil
}

// ListIncidents returns incidents newest first.
func (s *Store) ListIncidents(_ context.Context, organizationID string, filter repository.IncidentFilter) ([]domain.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	incidents := make([]domain.Incident, 0)
	for _, incident := range s.incidents {
		if incident.OrganizationID != organizationID {
			continue
		}
		if filter.ServiceID != "" && incident.ServiceID != filter.ServiceID {
			continue
		}
		if filter.OpenOnly && !incident.Open() {
			continue
		}
		incidents = append(incidents, incident)
	}
	sort.Slice(incidents, func(i, j int) bool {
		if !incidents[i].CreatedAt.Equal(incidents[j].CreatedAt) {
			return incidents[i].CreatedAt.After(incidents[j].CreatedAt)
		}
		return incidents[i].ID > incidents[j].ID
	})
	if filter.Limit > 0 && len(incidents) > filter.Limit {
		incidents = incidents[:filter.Limit]
	}
	return incidents, nil
}

// ListIncidentUpdates returns timelines newest first keyed by incident.
func (s *Store) ListIncidentUpdates(_ context.Context, incidentIDs []string, perIncident int) (map[string][]domain.IncidentUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string][]domain.IncidentUpdate, len(incidentIDs))
	for _, id := range incidentIDs {
		stored := append([]storedUpdate(nil), s.updates[id]...)
		if len(stored) == 0 {
			continue
		}
		sort.Slice(stored, func(i, j int) bool {
			a, b := stored[i], stored[j]
			if !a.update.CreatedAt.Equal(b.update.CreatedAt) {
				return a.update.CreatedAt.After(b.update.CreatedAt)
			}
			return a.seq > b.seq
		})
		if perIncident > 0 && len(stored) > perIncident {
			stored = stored[:perIncident]
		}
		updates := make([]domain.IncidentUpdate, 0, len(stored))
		for _, item := range stored {
			updates = append(updates, item.update)
		}
		result[id] = updates
	}
	return result, nil
}

// Counts reports stored rows per table.
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	updates := 0
	for _, items := range s.updates {
		updates += len(items)
	}
	metrics := 0
	for _, items := range s.metrics {
		metrics += len(items)
	}
	return map[string]int{
		"organizations":    len(s.orgs),
		"services":         len(s.services),
		"service_metrics":  metrics,
		"incidents":        len(s.incidents),
		"incident_updates": updates,
	}
}
