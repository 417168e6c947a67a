package domain

import "testing"

func TestParseServiceStatusNormalisesInput(t *testing.T) {
	cases := map[string]ServiceStatus{
		"operational":          ServiceOperational,
		" PARTIAL_OUTAGE ":     ServicePartialOutage,
		"under_maintenance":    ServiceUnderMaintenance,
		"Degraded_Performance": ServiceDegradedPerformance,
	}
	for raw, want := range cases {
		got, ok := ParseServiceStatus(raw)
		if !ok || got != want {
			t.Fatalf("ParseServiceStatus(%q) = %q, %v; want %q", raw, got, ok, want)
		}
	}
	if _, ok := ParseServiceStatus("DOWN"); ok {
		t.Fatalf("expected DOWN to be rejected")
	}
	if _, ok := ParseServiceStatus(""); ok {
		t.Fatalf("expected empty status to be rejected")
	}
}

func TestParseIncidentStatus(t *testing.T) {
	if got, ok := ParseIncidentStatus("resolved"); !ok || got != IncidentResolved {
		t.Fatalf("unexpected parse result %q %v", got, ok)
	}
	if _, ok := ParseIncidentStatus("CLOSED"); ok {
		t.Fatalf("expected CLOSED to be rejected")
	}
}

func TestValidSlug(t *testing.T) {
	valid := []string{"acme", "acme-corp", "team-42"}
	for _, slug := range valid {
		if !ValidSlug(slug) {
			t.Fatalf("expected %q to be valid", slug)
		}
	}
	invalid := []string{"", "Acme", "acme corp", "acme_corp", "acme/corp"}
	for _, slug := range invalid {
		if ValidSlug(slug) {
			t.Fatalf("expected %q to be invalid", slug)
		}
	}
}
