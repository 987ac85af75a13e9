// Package excel renders the daily season report workbook: status and bucket
// breakdowns, per-worker load, and the overdue list.
package excel

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/taxops/season-orchestrator/internal/core/domain"
)

type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write produces one workbook per org per day and returns its path.
func (w *Writer) Write(dash *domain.Dashboard, workflows []*domain.Workflow, now time.Time) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return "", fmt.Errorf("rename summary sheet: %w", err)
	}

	rows := [][]any{
		{"Season report", dash.OrgID},
		{"Generated", now.Format(time.RFC3339)},
		{},
		{"Status", "Count"},
	}
	for _, status := range []domain.WorkflowStatus{
		domain.StatusOrganizerSent, domain.StatusDocumentsPending, domain.StatusDocumentsReceived,
		domain.StatusInPreparation, domain.StatusReadyForReview, domain.StatusClientReview,
		domain.StatusReadyToFile, domain.StatusFiled, domain.StatusCompleted,
	} {
		rows = append(rows, []any{string(status), dash.StatusCounts[status]})
	}
	rows = append(rows, []any{}, []any{"Overdue", dash.OverdueCount}, []any{"Open incidents", dash.OpenIncidents})
	if err := writeRows(f, summary, rows); err != nil {
		return "", err
	}

	const workers = "Workers"
	if _, err := f.NewSheet(workers); err != nil {
		return "", fmt.Errorf("create workers sheet: %w", err)
	}
	workerRows := [][]any{{"Worker", "Workflows", "Estimated hours"}}
	for _, load := range dash.WorkerLoads {
		workerRows = append(workerRows, []any{load.Worker, load.Workflows, load.EstimatedHours})
	}
	if err := writeRows(f, workers, workerRows); err != nil {
		return "", err
	}

	const overdue = "Overdue"
	if _, err := f.NewSheet(overdue); err != nil {
		return "", fmt.Errorf("create overdue sheet: %w", err)
	}
	overdueRows := [][]any{{"Workflow", "Client", "Status", "Deadline", "Worker"}}
	for _, wf := range workflows {
		if wf.Archived || wf.Status == domain.StatusCompleted {
			continue
		}
		if domain.DaysToDeadline(wf.DeadlineDate, now) > 0 {
			continue
		}
		overdueRows = append(overdueRows, []any{
			wf.ID, wf.ClientID, string(wf.Status), wf.DeadlineDate.Format("2006-01-02"), wf.AssignedWorker,
		})
	}
	if err := writeRows(f, overdue, overdueRows); err != nil {
		return "", err
	}

	path := filepath.Join(w.dir, fmt.Sprintf("season-%s-%s.xlsx", dash.OrgID, now.Format("2006-01-02")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d on %s: %w", i+1, sheet, err)
		}
	}
	return nil
}
