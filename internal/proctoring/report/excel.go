// Package report renders per-interview proctoring reports as XLSX workbooks.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"ihire-proctoring/backend/internal/proctoring/analytics"
	"ihire-proctoring/backend/internal/proctoring/domain"
)

// Sheet names of the generated workbook.
const (
	SummarySheet  = "Summary"
	SessionsSheet = "Sessions"
	AlertsSheet   = "Alerts"
)

const timeLayout = "2006-01-02 15:04:05"

// severityFill maps a severity to its row background.
var severityFill = map[domain.Severity]string{
	domain.SeverityLow:    "C6EFCE",
	domain.SeverityMedium: "FFEB9C",
	domain.SeverityHigh:   "FFC7CE",
}

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// WriteWorkbook writes a report of one interview's sessions to w.
func WriteWorkbook(w io.Writer, mockID string, sessions []*domain.Session, summary analytics.MockSummary, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SessionsSheet, AlertsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	if err := writeSummarySheet(f, mockID, summary, generatedAt); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := writeSessionsSheet(f, sessions); err != nil {
		return fmt.Errorf("failed to create sessions sheet: %w", err)
	}
	if err := writeAlertsSheet(f, sessions); err != nil {
		return fmt.Errorf("failed to create alerts sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	})
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	style, err := headerStyle(f)
	if err != nil {
		return err
	}
	for i, h := range headers {
		c := cell(i+1, 1)
		if err := f.SetCellValue(sheet, c, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, c, c, style); err != nil {
			return err
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeSummarySheet(f *excelize.File, mockID string, s analytics.MockSummary, generatedAt time.Time) error {
	sheet := SummarySheet
	if err := f.SetColWidth(sheet, "A", "A", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "B", "B", 40); err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	titleStyle, err := headerStyle(f)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, "A1", "Proctoring Report"); err != nil {
		return err
	}
	if err := f.MergeCell(sheet, "A1", "B1"); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "B1", titleStyle); err != nil {
		return err
	}

	rows := []struct {
		label string
		value interface{}
	}{
		{"Interview:", mockID},
		{"Generated:", generatedAt.UTC().Format(timeLayout)},
		{"Total Sessions:", s.TotalSessions},
		{"Completed Sessions:", s.CompletedSessions},
		{"Active Sessions:", s.ActiveSessions},
		{"Average Risk Score:", s.AverageRiskScore},
		{"Total Alerts:", s.TotalAlerts},
		{"High Severity Sessions:", s.SeverityBreakdown.High},
		{"Medium Severity Sessions:", s.SeverityBreakdown.Medium},
		{"Low Severity Sessions:", s.SeverityBreakdown.Low},
	}
	for i, r := range rows {
		row := i + 3
		if err := f.SetCellValue(sheet, cell(1, row), r.label); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell(1, row), cell(1, row), labelStyle); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell(2, row), r.value); err != nil {
			return err
		}
	}
	return nil
}

var sessionHeaders = []string{
	"Session ID", "Candidate", "Started", "Ended", "Duration (s)", "Risk Score", "Severity",
	"Alerts", "Detections", "Violations", "Most Common Violation", "Review Required",
}

func writeSessionsSheet(f *excelize.File, sessions []*domain.Session) error {
	sheet := SessionsSheet
	if err := writeHeader(f, sheet, sessionHeaders); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "L", 18); err != nil {
		return err
	}
	styles := make(map[domain.Severity]int, len(severityFill))
	for sev, color := range severityFill {
		id, err := f.NewStyle(&excelize.Style{
			Fill:   excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Border: thinBorder,
		})
		if err != nil {
			return err
		}
		styles[sev] = id
	}

	for i, s := range sessions {
		row := i + 2
		ended := ""
		if s.EndedAt != nil {
			ended = s.EndedAt.UTC().Format(timeLayout)
		}
		mostCommon := analytics.MostCommonViolation(s.Violations)
		review := ""
		if s.Summary != nil && s.Summary.Review != nil {
			review = "no"
			if s.Summary.Review.Required {
				review = "yes"
			}
		}
		values := []interface{}{
			s.SessionID, s.UserEmail, s.StartedAt.UTC().Format(timeLayout), ended, s.DurationSeconds,
			s.RiskScore, string(s.Severity), len(s.Alerts), len(s.DetectionHistory), s.Violations.Total(),
			mostCommon, review,
		}
		for col, v := range values {
			if err := f.SetCellValue(sheet, cell(col+1, row), v); err != nil {
				return err
			}
		}
		if style, ok := styles[s.Severity]; ok {
			if err := f.SetCellStyle(sheet, cell(1, row), cell(len(values), row), style); err != nil {
				return err
			}
		}
	}
	if len(sessions) > 0 {
		ref := fmt.Sprintf("A1:%s", cell(len(sessionHeaders), len(sessions)+1))
		if err := f.AutoFilter(sheet, ref, []excelize.AutoFilterOptions{}); err != nil {
			return err
		}
	}
	return nil
}

var alertHeaders = []string{"Session ID", "Time", "Type", "Severity", "Confidence", "Message"}

func writeAlertsSheet(f *excelize.File, sessions []*domain.Session) error {
	sheet := AlertsSheet
	if err := writeHeader(f, sheet, alertHeaders); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "E", 18); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "F", "F", 60); err != nil {
		return err
	}
	row := 2
	for _, s := range sessions {
		for _, a := range s.Alerts {
			values := []interface{}{
				s.SessionID, a.Timestamp.UTC().Format(timeLayout), a.Type, a.Severity, a.Confidence, a.Message,
			}
			for col, v := range values {
				if err := f.SetCellValue(sheet, cell(col+1, row), v); err != nil {
					return err
				}
			}
			row++
		}
	}
	return nil
}
