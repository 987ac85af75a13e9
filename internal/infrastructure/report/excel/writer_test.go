package excel

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/taxops/season-orchestrator/internal/core/domain"
)

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, time.April, 14, 9, 0, 0, 0, time.UTC)

	dash := &domain.Dashboard{
		OrgID: "org-1",
		StatusCounts: map[domain.WorkflowStatus]int{
			domain.StatusDocumentsPending: 2,
			domain.StatusInPreparation:    1,
		},
		OverdueCount:  1,
		OpenIncidents: 0,
		WorkerLoads: []domain.WorkerLoad{
			{Worker: "alice", Workflows: 2, EstimatedHours: 12},
		},
	}
	workflows := []*domain.Workflow{
		{
			ID: "wf-late", OrgID: "org-1", ClientID: "c1",
			Status:         domain.StatusDocumentsPending,
			DeadlineDate:   now.AddDate(0, 0, -2),
			AssignedWorker: "alice",
		},
		{
			ID: "wf-ontime", OrgID: "org-1", ClientID: "c2",
			Status:       domain.StatusInPreparation,
			DeadlineDate: now.AddDate(0, 0, 10),
		},
		{
			ID: "wf-done", OrgID: "org-1", ClientID: "c3",
			Status:       domain.StatusCompleted,
			DeadlineDate: now.AddDate(0, 0, -5),
		},
	}

	path, err := NewWriter(dir).Write(dash, workflows, now)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if want := filepath.Join(dir, "season-org-1-2025-04-14.xlsx"); path != want {
		t.Fatalf("path = %s, want %s", path, want)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 {
		t.Fatalf("sheets = %v", sheets)
	}

	title, err := f.GetCellValue("Summary", "A1")
	if err != nil || title != "Season report" {
		t.Fatalf("A1 = %q (%v)", title, err)
	}

	worker, _ := f.GetCellValue("Workers", "A2")
	if worker != "alice" {
		t.Fatalf("worker row = %q", worker)
	}

	// Only the overdue, non-completed workflow is listed.
	overdueRows, err := f.GetRows("Overdue")
	if err != nil {
		t.Fatalf("overdue rows: %v", err)
	}
	if len(overdueRows) != 2 {
		t.Fatalf("overdue rows = %v", overdueRows)
	}
	if overdueRows[1][0] != "wf-late" {
		t.Fatalf("overdue workflow = %q", overdueRows[1][0])
	}
}
