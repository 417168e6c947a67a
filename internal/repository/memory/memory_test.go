package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/repository"
)

func seedOrg(t *testing.T, store *Store, id string) {
	t.Helper()
	org := &domain.Organization{ID: id, Slug: id, Name: id, CreatedAt: time.Now().UTC()}
	if err := store.CreateOrganization(context.Background(), org, nil, nil); err != nil {
		t.Fatalf("create org: %v", err)
	}
}

func TestServiceNamesUniquePerOrganizationIgnoringCase(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedOrg(t, store, "org-a")
	seedOrg(t, store, "org-b")

	if err := store.CreateService(ctx, &domain.Service{ID: "s1", OrganizationID: "org-a", Name: "API"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.CreateService(ctx, &domain.Service{ID: "s2", OrganizationID: "org-a", Name: "api"})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := store.CreateService(ctx, &domain.Service{ID: "s3", OrganizationID: "org-b", Name: "api"}); err != nil {
		t.Fatalf("other org should accept same name: %v", err)
	}
}

func TestGetServiceHidesForeignOrganizations(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedOrg(t, store, "org-a")
	seedOrg(t, store, "org-b")
	if err := store.CreateService(ctx, &domain.Service{ID: "s1", OrganizationID: "org-a", Name: "API"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.GetService(ctx, "org-b", "s1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.SetServiceStatus(ctx, "org-b", "s1", domain.ServiceMajorOutage, time.Now()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found on foreign status write, got %v", err)
	}
}

func TestDeleteServiceCascades(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedOrg(t, store, "org-a")
	now := time.Now().UTC()
	if err := store.CreateService(ctx, &domain.Service{ID: "s1", OrganizationID: "org-a", Name: "API"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateService(ctx, &domain.Service{ID: "s2", OrganizationID: "org-a", Name: "Web"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 2; i++ {
		id := []string{"i1", "i2"}[i]
		incident := &domain.Incident{ID: id, OrganizationID: "org-a", ServiceID: "s1", Title: id, Status: domain.IncidentInvestigating, CreatedAt: now}
		if err := store.CreateIncident(ctx, incident, &domain.IncidentUpdate{ID: id + "-u0", Message: "opened", CreatedAt: now}); err != nil {
			t.Fatalf("create incident: %v", err)
		}
		for j := 0; j < 2; j++ {
			update := &domain.IncidentUpdate{ID: id + "-u" + string(rune('1'+j)), IncidentID: id, Message: "note", CreatedAt: now}
			if err := store.AppendIncidentUpdate(ctx, "org-a", update); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
	}
	for i := 0; i < 10; i++ {
		metric := &domain.ServiceMetric{ID: string(rune('a' + i)), ServiceID: "s1", Status: domain.ServiceOperational, RecordedAt: now}
		if err := store.InsertMetric(ctx, metric); err != nil {
			t.Fatalf("metric: %v", err)
		}
	}
	if err := store.InsertMetric(ctx, &domain.ServiceMetric{ID: "keep", ServiceID: "s2", RecordedAt: now}); err != nil {
		t.Fatalf("metric: %v", err)
	}

	if err := store.DeleteService(ctx, "org-a", "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	counts := store.Counts()
	if counts["services"] != 1 || counts["incidents"] != 0 || counts["incident_updates"] != 0 || counts["service_metrics"] != 1 {
		t.Fatalf("unexpected counts after delete: %v", counts)
	}
	if err := store.DeleteService(ctx, "org-a", "s1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestOpenTitleUniquenessReleasedOnResolve(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedOrg(t, store, "org-a")
	now := time.Now().UTC()
	if err := store.CreateService(ctx, &domain.Service{ID: "s1", OrganizationID: "org-a", Name: "API"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	first := &domain.Incident{ID: "i1", OrganizationID: "org-a", ServiceID: "s1", Title: "DB down", Status: domain.IncidentInvestigating, CreatedAt: now}
	if err := store.CreateIncident(ctx, first, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &domain.Incident{ID: "i2", OrganizationID: "org-a", ServiceID: "s1", Title: "db DOWN", Status: domain.IncidentInvestigating, CreatedAt: now}
	if err := store.CreateIncident(ctx, dup, nil); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	resolvedAt := now
	change := domain.IncidentStatusChange{
		OrganizationID: "org-a",
		IncidentID:     "i1",
		Status:         domain.IncidentResolved,
		ResolvedAt:     &resolvedAt,
		UpdatedAt:      now,
		Update:         domain.IncidentUpdate{ID: "u1", Message: "fixed", CreatedAt: now},
	}
	if _, err := store.UpdateIncidentStatus(ctx, change); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := store.CreateIncident(ctx, dup, nil); err != nil {
		t.Fatalf("expected title to be free after resolve: %v", err)
	}
	reopen := change
	reopen.Status = domain.IncidentInvestigating
	reopen.ResolvedAt = nil
	reopen.Update.ID = "u2"
	if _, err := store.UpdateIncidentStatus(ctx, reopen); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected conflict reopening a duplicate title, got %v", err)
	}
}

func TestListIncidentUpdatesOrdersNewestFirstWithStableTieBreak(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedOrg(t, store, "org-a")
	now := time.Now().UTC()
	if err := store.CreateService(ctx, &domain.Service{ID: "s1", OrganizationID: "org-a", Name: "API"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	incident := &domain.Incident{ID: "i1", OrganizationID: "org-a", ServiceID: "s1", Title: "t", Status: domain.IncidentInvestigating, CreatedAt: now}
	if err := store.CreateIncident(ctx, incident, &domain.IncidentUpdate{ID: "first", Message: "a", CreatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.AppendIncidentUpdate(ctx, "org-a", &domain.IncidentUpdate{ID: "second", IncidentID: "i1", Message: "b", CreatedAt: now}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendIncidentUpdate(ctx, "org-a", &domain.IncidentUpdate{ID: "third", IncidentID: "i1", Message: "c", CreatedAt: now}); err != nil {
		t.Fatalf("append: %v", err)
	}
	timelines, err := store.ListIncidentUpdates(ctx, []string{"i1"}, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := timelines["i1"]
	if len(got) != 2 || got[0].ID != "third" || got[1].ID != "second" {
		t.Fatalf("unexpected timeline %+v", got)
	}
}

func TestListMetricsReturnsMostRecentAscending(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedOrg(t, store, "org-a")
	if err := store.CreateService(ctx, &domain.Service{ID: "s1", OrganizationID: "org-a", Name: "API"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		metric := &domain.ServiceMetric{ID: string(rune('a' + i)), ServiceID: "s1", LatencyMS: float64(i), RecordedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.InsertMetric(ctx, metric); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	metrics, err := store.ListMetrics(ctx, "s1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(metrics) != 3 || metrics[0].LatencyMS != 2 || metrics[2].LatencyMS != 4 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}
