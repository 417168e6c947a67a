package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/splax/statuspage/internal/domain"
)

// Sheet names in the incident workbook.
const (
	IncidentSheet = "Incidents"
	TimelineSheet = "Timeline"
)

var (
	incidentHeader = []string{"Incident ID", "Title", "Service", "Status", "Started At", "Resolved At", "Duration (min)", "Updates"}
	incidentWidths = []float64{38, 40, 24, 16, 22, 22, 16, 10}
	timelineHeader = []string{"Incident ID", "Title", "Posted At", "Message"}
	timelineWidths = []float64{38, 40, 22, 80}
)

// IncidentWorkbook renders incidents and their timelines as an XLSX document.
// Timeline rows are written oldest first.
func IncidentWorkbook(details []domain.IncidentDetail) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(IncidentSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if _, err := f.NewSheet(TimelineSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	if err := writeHeader(f, IncidentSheet, incidentHeader, incidentWidths, headerStyle); err != nil {
		return nil, err
	}
	if err := writeHeader(f, TimelineSheet, timelineHeader, timelineWidths, headerStyle); err != nil {
		return nil, err
	}

	timelineRow := 2
	for i, detail := range details {
		serviceName := ""
		if detail.Service != nil {
			serviceName = detail.Service.Name
		}
		row := []any{
			detail.ID,
			detail.Title,
			serviceName,
			string(detail.Status),
			formatTime(&detail.StartedAt),
			formatTime(detail.ResolvedAt),
			durationMinutes(detail.Incident),
			len(detail.Updates),
		}
		if err := writeRow(f, IncidentSheet, i+2, row); err != nil {
			return nil, err
		}
		for j := len(detail.Updates) - 1; j >= 0; j-- {
			update := detail.Updates[j]
			if err := writeRow(f, TimelineSheet, timelineRow, []any{detail.ID, detail.Title, formatTime(&update.CreatedAt), update.Message}); err != nil {
				return nil, err
			}
			timelineRow++
		}
	}

	for _, sheet := range []string{IncidentSheet, TimelineSheet} {
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return nil, fmt.Errorf("freeze panes: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func writeHeader(f *excelize.File, sheet string, header []string, widths []float64, style int) error {
	for i, title := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("style header %s: %w", cell, err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, widths[i]); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// durationMinutes is the open time of a resolved incident, or empty while it is open.
func durationMinutes(incident domain.Incident) any {
	if incident.ResolvedAt == nil {
		return ""
	}
	return int(incident.ResolvedAt.Sub(incident.StartedAt).Round(time.Minute) / time.Minute)
}
