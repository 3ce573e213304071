// Package xlsx renders question-flow sessions as spreadsheets.
package xlsx

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

const (
	resultsSheet = "Results"
	sessionSheet = "Session"
)

var resultHeaders = []string{
	"#", "Node", "Category", "Question", "Answer", "Answer category",
	"Confidence", "Mode", "Fallback", "Sources", "Follow-up", "Answered at",
}

type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Export writes one row per result in answer order plus a session summary sheet.
func (e *Exporter) Export(w io.Writer, session domain.SessionState) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &resultHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(resultHeaders), 1)
		_ = f.SetCellStyle(resultsSheet, "A1", last, style)
	}

	for i, r := range session.Results {
		row := []any{
			i + 1,
			r.NodeID,
			r.Category,
			r.Question,
			r.Answer,
			r.AnswerCategory,
			r.Confidence,
			string(r.Mode),
			r.FallbackReason,
			strings.Join(r.Sources, ", "),
			r.FollowUp,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return fmt.Errorf("write result row %d: %w", i+1, err)
		}
	}
	_ = f.SetColWidth(resultsSheet, "D", "E", 60)

	if _, err := f.NewSheet(sessionSheet); err != nil {
		return fmt.Errorf("create session sheet: %w", err)
	}
	summary := [][]any{
		{"Session", session.ID},
		{"Flow", session.Flow},
		{"Status", string(session.Status)},
		{"Current node", session.CurrentID},
		{"Results", len(session.Results)},
		{"Created at", session.CreatedAt.UTC().Format(time.RFC3339)},
		{"Updated at", session.UpdatedAt.UTC().Format(time.RFC3339)},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sessionSheet, cell, &row); err != nil {
			return fmt.Errorf("write session row: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
