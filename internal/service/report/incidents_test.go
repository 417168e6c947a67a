package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/splax/statuspage/internal/domain"
)

func TestIncidentWorkbook(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	resolved := started.Add(90 * time.Minute)
	details := []domain.IncidentDetail{
		{
			Incident: domain.Incident{ID: "inc-1", Title: "API errors", Status: domain.IncidentResolved, StartedAt: started, ResolvedAt: &resolved},
			Service:  &domain.Service{Name: "API"},
			Updates: []domain.IncidentUpdate{
				{Message: "Resolved", CreatedAt: resolved},
				{Message: "Investigating", CreatedAt: started},
			},
		},
		{
			Incident: domain.Incident{ID: "inc-2", Title: "Slow pages", Status: domain.IncidentMonitoring, StartedAt: started},
			Updates:  []domain.IncidentUpdate{{Message: "Watching", CreatedAt: started}},
		},
	}

	data, err := IncidentWorkbook(details)
	if err != nil {
		t.Fatalf("workbook: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(IncidentSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Incident ID" || rows[1][1] != "API errors" || rows[1][2] != "API" || rows[1][3] != "RESOLVED" {
		t.Fatalf("unexpected incident rows %v", rows)
	}
	if rows[1][6] != "90" {
		t.Fatalf("expected 90 minute duration, got %q", rows[1][6])
	}

	timeline, err := f.GetRows(TimelineSheet)
	if err != nil {
		t.Fatalf("timeline rows: %v", err)
	}
	if len(timeline) != 4 {
		t.Fatalf("expected header plus 3 updates, got %d", len(timeline))
	}
	if timeline[1][3] != "Investigating" || timeline[2][3] != "Resolved" || timeline[3][0] != "inc-2" {
		t.Fatalf("expected oldest-first timeline, got %v", timeline)
	}
	if sheets := f.GetSheetList(); len(sheets) != 2 {
		t.Fatalf("unexpected sheets %v", sheets)
	}
}
