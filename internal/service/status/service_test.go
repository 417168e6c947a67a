package status

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/splax/statuspage/internal/apperr"
	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/repository/memory"
	"github.com/splax/statuspage/pkg/config"
)

func TestAggregate(t *testing.T) {
	cases := []struct {
		name     string
		statuses []domain.ServiceStatus
		want     domain.ServiceStatus
	}{
		{"empty", nil, domain.ServiceOperational},
		{"degraded with maintenance", []domain.ServiceStatus{domain.ServiceOperational, domain.ServiceDegradedPerformance, domain.ServiceUnderMaintenance}, domain.ServiceDegradedPerformance},
		{"major wins", []domain.ServiceStatus{domain.ServiceMajorOutage, domain.ServiceOperational}, domain.ServiceMajorOutage},
		{"partial over degraded", []domain.ServiceStatus{domain.ServiceDegradedPerformance, domain.ServicePartialOutage}, domain.ServicePartialOutage},
		{"maintenance only", []domain.ServiceStatus{domain.ServiceUnderMaintenance}, domain.ServiceOperational},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Aggregate(tc.statuses...); got != tc.want {
				t.Fatalf("Aggregate(%v) = %s, want %s", tc.statuses, got, tc.want)
			}
		})
	}
}

type seeded struct {
	store *memory.Store
	svc   Service
	orgID string
	api   domain.Service
	web   domain.Service
}

func seed(t *testing.T) seeded {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	orgID := uuid.NewString()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	api := domain.Service{ID: uuid.NewString(), OrganizationID: orgID, Name: "API", Status: domain.ServicePartialOutage, CreatedAt: now, UpdatedAt: now}
	web := domain.Service{ID: uuid.NewString(), OrganizationID: orgID, Name: "Website", Status: domain.ServiceUnderMaintenance, CreatedAt: now, UpdatedAt: now}
	org := &domain.Organization{ID: orgID, Slug: "acme", Name: "Acme", CreatedAt: now}
	if err := store.CreateOrganization(ctx, org, nil, []domain.Service{api, web}); err != nil {
		t.Fatalf("seed org: %v", err)
	}
	for i := 0; i < 3; i++ {
		metric := &domain.ServiceMetric{ID: uuid.NewString(), ServiceID: api.ID, Status: domain.ServicePartialOutage, LatencyMS: float64(900 + i), Uptime: 95, RecordedAt: now.Add(time.Duration(i) * time.Minute)}
		if err := store.InsertMetric(ctx, metric); err != nil {
			t.Fatalf("seed metric: %v", err)
		}
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(store, store, store, store, log, config.APIConfig{PublicIncidentLimit: 2, TimelineSlice: 2})
	svc.now = func() time.Time { return now.Add(time.Hour) }
	return seeded{store: store, svc: svc, orgID: orgID, api: api, web: web}
}

func (s seeded) incident(t *testing.T, title string, status domain.IncidentStatus, at time.Time, updates int) domain.Incident {
	t.Helper()
	ctx := context.Background()
	inc := domain.Incident{ID: uuid.NewString(), OrganizationID: s.orgID, ServiceID: s.api.ID, Title: title, Status: status, StartedAt: at, CreatedAt: at, UpdatedAt: at}
	if status == domain.IncidentResolved {
		resolved := at
		inc.ResolvedAt = &resolved
	}
	if err := s.store.CreateIncident(ctx, &inc, &domain.IncidentUpdate{ID: uuid.NewString(), Message: "opened", CreatedAt: at}); err != nil {
		t.Fatalf("seed incident: %v", err)
	}
	for i := 1; i < updates; i++ {
		update := &domain.IncidentUpdate{ID: uuid.NewString(), IncidentID: inc.ID, Message: "note", CreatedAt: at.Add(time.Duration(i) * time.Second)}
		if err := s.store.AppendIncidentUpdate(ctx, s.orgID, update); err != nil {
			t.Fatalf("seed update: %v", err)
		}
	}
	return inc
}

func TestPublicProjectsServicesAndRecentIncidents(t *testing.T) {
	s := seed(t)
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s.incident(t, "Old", domain.IncidentResolved, base, 1)
	resolved := s.incident(t, "Fixed", domain.IncidentResolved, base.Add(time.Minute), 1)
	open := s.incident(t, "Errors", domain.IncidentInvestigating, base.Add(2*time.Minute), 4)

	page, err := s.svc.Public(context.Background(), " ACME ")
	if err != nil {
		t.Fatalf("public: %v", err)
	}
	if page.AggregateStatus != domain.ServicePartialOutage {
		t.Fatalf("unexpected aggregate %s", page.AggregateStatus)
	}
	if page.Organization.Slug != "acme" || len(page.Services) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	for _, view := range page.Services {
		if view.ID == s.api.ID {
			if view.LatestMetric == nil || view.LatestMetric.LatencyMS != 902 {
				t.Fatalf("expected newest metric, got %+v", view.LatestMetric)
			}
		} else if view.LatestMetric != nil {
			t.Fatalf("service without metrics should have none")
		}
	}
	if len(page.RecentIncidents) != 2 {
		t.Fatalf("expected incident limit to apply, got %d", len(page.RecentIncidents))
	}
	if page.RecentIncidents[0].ID != open.ID || page.RecentIncidents[1].ID != resolved.ID {
		t.Fatalf("unexpected incident order %+v", page.RecentIncidents)
	}
	if len(page.RecentIncidents[0].Updates) != 2 || page.RecentIncidents[0].ServiceName != "API" {
		t.Fatalf("expected capped timeline with service name, got %+v", page.RecentIncidents[0])
	}
}

func TestPublicUnknownSlug(t *testing.T) {
	s := seed(t)
	for _, slug := range []string{"missing", "Not A Slug!"} {
		if _, err := s.svc.Public(context.Background(), slug); apperr.KindOf(err) != apperr.KindNotFound {
			t.Fatalf("slug %q: expected not found, got %v", slug, err)
		}
	}
}

func TestSummaryListsOnlyActiveIncidents(t *testing.T) {
	s := seed(t)
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s.incident(t, "Resolved", domain.IncidentResolved, base, 1)
	for i := 0; i < 6; i++ {
		s.incident(t, "Open "+string(rune('A'+i)), domain.IncidentMonitoring, base.Add(time.Duration(i+1)*time.Minute), 1)
	}
	summary, err := s.svc.Summary(context.Background(), "acme")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Status != "ok" || summary.AggregateStatus != domain.ServicePartialOutage {
		t.Fatalf("unexpected summary header %+v", summary)
	}
	if len(summary.ActiveIncidents) != activeIncidentLimit {
		t.Fatalf("expected %d active incidents, got %d", activeIncidentLimit, len(summary.ActiveIncidents))
	}
	for _, inc := range summary.ActiveIncidents {
		if inc.Status == domain.IncidentResolved {
			t.Fatalf("resolved incident leaked into summary")
		}
	}
	if summary.ActiveIncidents[0].Title != "Open F" {
		t.Fatalf("expected newest first, got %s", summary.ActiveIncidents[0].Title)
	}
	if len(summary.Services) != 2 {
		t.Fatalf("unexpected services %+v", summary.Services)
	}
}

func TestPublicTimelineOmitsAuthors(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	inc := s.incident(t, "Errors", domain.IncidentInvestigating, at, 1)
	author := uuid.NewString()
	note := &domain.IncidentUpdate{ID: uuid.NewString(), IncidentID: inc.ID, Message: "rolling back", CreatedByID: &author, CreatedAt: at.Add(time.Minute)}
	if err := s.store.AppendIncidentUpdate(ctx, s.orgID, note); err != nil {
		t.Fatalf("append update: %v", err)
	}

	page, err := s.svc.Public(ctx, "acme")
	if err != nil {
		t.Fatalf("public: %v", err)
	}
	raw, err := json.Marshal(page)
	if err != nil {
		t.Fatalf("marshal page: %v", err)
	}
	if strings.Contains(string(raw), "created_by_id") || strings.Contains(string(raw), author) {
		t.Fatalf("public page exposes update author: %s", raw)
	}
	if !strings.Contains(string(raw), "rolling back") {
		t.Fatalf("expected update message on public page: %s", raw)
	}
}
