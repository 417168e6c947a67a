package organization

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/splax/statuspage/internal/apperr"
	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/repository/memory"
)

func newTestService(t *testing.T, templates []Template) (Service, *memory.Store, string) {
	t.Helper()
	store := memory.New()
	userID := uuid.NewString()
	if err := store.CreateUser(context.Background(), &domain.User{ID: userID, Email: "owner@example.com"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, store, templates, log), store, userID
}

func TestCreateSeedsDefaultServicesAndAdmin(t *testing.T) {
	svc, store, userID := newTestService(t, nil)
	ctx := context.Background()

	org, err := svc.Create(ctx, userID, CreateInput{Name: " Acme ", Slug: "acme-inc"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if org.Name != "Acme" || org.Slug != "acme-inc" {
		t.Fatalf("unexpected org %+v", org)
	}
	member, err := store.GetMembership(ctx, org.ID, userID)
	if err != nil || !member.IsAdmin() {
		t.Fatalf("expected creator to be admin, got %+v (%v)", member, err)
	}
	services, err := store.ListServices(ctx, org.ID)
	if err != nil {
		t.Fatalf("list services: %v", err)
	}
	if len(services) != len(DefaultTemplates) {
		t.Fatalf("expected %d seeded services, got %d", len(DefaultTemplates), len(services))
	}
	for _, s := range services {
		if s.Status != domain.ServiceOperational {
			t.Fatalf("seeded service %s has status %s", s.Name, s.Status)
		}
	}
}

func TestCreateValidatesSlug(t *testing.T) {
	svc, _, userID := newTestService(t, nil)
	ctx := context.Background()

	for _, slug := range []string{"", "Acme", "acme inc", "acme_inc"} {
		_, err := svc.Create(ctx, userID, CreateInput{Name: "Acme", Slug: slug})
		appErr, ok := apperr.As(err)
		if !ok || appErr.Kind != apperr.KindInvalidInput || appErr.Field != "slug" {
			t.Fatalf("slug %q: expected invalid slug, got %v", slug, err)
		}
	}
	if _, err := svc.Create(ctx, userID, CreateInput{Name: "Acme", Slug: "acme"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, userID, CreateInput{Name: "Other", Slug: "acme"}); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict for taken slug, got %v", err)
	}
	if _, err := svc.Create(ctx, userID, CreateInput{Name: "Mail", Slug: "mail", NotifyEmail: "not-an-email"}); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("expected invalid email, got %v", err)
	}
}

func TestUpdateRequiresAdmin(t *testing.T) {
	svc, store, ownerID := newTestService(t, []Template{})
	ctx := context.Background()
	org, err := svc.Create(ctx, ownerID, CreateInput{Name: "Acme", Slug: "acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	memberID := uuid.NewString()
	if err := store.CreateUser(ctx, &domain.User{ID: memberID, Email: "dev@example.com"}); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	if _, err := svc.AddMember(ctx, ownerID, org.ID, MemberInput{Email: "DEV@example.com"}); err != nil {
		t.Fatalf("add member: %v", err)
	}

	rename := "Acme Corp"
	if _, err := svc.Update(ctx, memberID, org.ID, UpdateInput{Name: &rename}); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized for member, got %v", err)
	}
	if _, err := svc.Update(ctx, uuid.NewString(), org.ID, UpdateInput{Name: &rename}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found for outsider, got %v", err)
	}
	email := "alerts@example.com"
	updated, err := svc.Update(ctx, ownerID, org.ID, UpdateInput{Name: &rename, NotifyEmail: &email})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != rename || updated.NotifyEmail != email || updated.Slug != "acme" {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, err := svc.AddMember(ctx, memberID, org.ID, MemberInput{Email: "owner@example.com"}); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected member to be refused, got %v", err)
	}

	orgs, err := svc.ListForUser(ctx, memberID)
	if err != nil || len(orgs) != 1 || orgs[0].ID != org.ID {
		t.Fatalf("unexpected memberships %v (%v)", orgs, err)
	}
}

func TestLoadTemplatesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	data := []byte("services:\n  - name: Checkout\n    description: Payments\n  - name: Search\n    status: under_maintenance\n    monitor_url: https://search.example.com/health\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	templates, err := LoadTemplates(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(templates) != 2 || templates[0].Name != "Checkout" || templates[1].MonitorURL == "" {
		t.Fatalf("unexpected templates %+v", templates)
	}

	svc, store, userID := newTestService(t, templates)
	org, err := svc.Create(context.Background(), userID, CreateInput{Name: "Shop", Slug: "shop"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	services, _ := store.ListServices(context.Background(), org.ID)
	statuses := map[string]domain.ServiceStatus{}
	for _, s := range services {
		statuses[s.Name] = s.Status
	}
	if statuses["Search"] != domain.ServiceUnderMaintenance || statuses["Checkout"] != domain.ServiceOperational {
		t.Fatalf("unexpected seeded statuses %v", statuses)
	}
}

func TestParseTemplatesRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing name": "services:\n  - description: x\n",
		"duplicate":    "services:\n  - name: API\n  - name: api\n",
		"bad status":   "services:\n  - name: API\n    status: broken\n",
		"bad yaml":     "services: [",
	}
	for name, data := range cases {
		if _, err := ParseTemplates([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
