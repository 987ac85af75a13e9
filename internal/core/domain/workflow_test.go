package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to WorkflowStatus
		want     bool
	}{
		{StatusOrganizerSent, StatusDocumentsPending, true},
		{StatusDocumentsPending, StatusDocumentsReceived, true},
		{StatusFiled, StatusCompleted, true},
		{StatusClientReview, StatusInPreparation, true}, // reopen after client rejection
		{StatusOrganizerSent, StatusDocumentsReceived, false},
		{StatusCompleted, StatusFiled, false},
		{StatusInPreparation, StatusClientReview, false},
		{StatusOrganizerSent, "bogus", false},
		{"bogus", StatusDocumentsPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestPriorityForDeadline(t *testing.T) {
	cases := []struct {
		days int
		want Priority
	}{
		{-1, PriorityUrgent},
		{0, PriorityUrgent},
		{2, PriorityUrgent},
		{3, PriorityUrgent},
		{4, PriorityHigh},
		{7, PriorityHigh},
		{10, PriorityNormal},
		{14, PriorityNormal},
		{15, PriorityLow},
		{90, PriorityLow},
	}
	for _, tc := range cases {
		if got := PriorityForDeadline(tc.days); got != tc.want {
			t.Errorf("PriorityForDeadline(%d) = %s, want %s", tc.days, got, tc.want)
		}
	}
}

func TestDeadlineFor(t *testing.T) {
	deadline, err := DeadlineFor(2024, DeadlineStandard)
	if err != nil {
		t.Fatalf("DeadlineFor standard: %v", err)
	}
	want := time.Date(2025, time.April, 15, 0, 0, 0, 0, time.UTC)
	if !deadline.Equal(want) {
		t.Errorf("standard deadline for tax year 2024 = %s, want %s", deadline, want)
	}

	deadline, err = DeadlineFor(2024, DeadlineExtension)
	if err != nil {
		t.Fatalf("DeadlineFor extension: %v", err)
	}
	want = time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC)
	if !deadline.Equal(want) {
		t.Errorf("extension deadline for tax year 2024 = %s, want %s", deadline, want)
	}

	if _, err := DeadlineFor(2024, "fiscal"); !IsKind(err, ErrValidation) {
		t.Errorf("unknown deadline type: got %v, want validation error", err)
	}
}

func TestEffectivePriorityOverride(t *testing.T) {
	now := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	wf := &Workflow{DeadlineDate: now.AddDate(0, 0, 2)}
	if got := wf.EffectivePriority(now); got != PriorityUrgent {
		t.Fatalf("derived priority = %s, want urgent", got)
	}
	low := PriorityLow
	wf.PriorityOverride = &low
	if got := wf.EffectivePriority(now); got != PriorityLow {
		t.Fatalf("override priority = %s, want low", got)
	}
}

func TestMissingDocumentTypes(t *testing.T) {
	wf := &Workflow{ClientType: ClientIndividual, TaxYear: 2024}
	missing := wf.MissingDocumentTypes()
	if len(missing) != 2 || missing[0] != DocW2 || missing[1] != Doc1099INT {
		t.Fatalf("missing for empty individual = %v", missing)
	}

	wf.Documents = append(wf.Documents, Document{Type: DocW2})
	missing = wf.MissingDocumentTypes()
	if len(missing) != 1 || missing[0] != Doc1099INT {
		t.Fatalf("missing after W2 = %v", missing)
	}

	wf.Documents = append(wf.Documents, Document{Type: Doc1099INT})
	if missing = wf.MissingDocumentTypes(); len(missing) != 0 {
		t.Fatalf("missing after all uploads = %v", missing)
	}

	// Extra documents never make a workflow incomplete.
	wf.Documents = append(wf.Documents, Document{Type: DocReceipts})
	if missing = wf.MissingDocumentTypes(); len(missing) != 0 {
		t.Fatalf("missing with extra docs = %v", missing)
	}
}

func TestRequiredDocumentTypesBusiness(t *testing.T) {
	required := RequiredDocumentTypes(ClientBusiness, 2024)
	want := []DocumentType{Doc1099NEC, DocBalanceSheet, DocProfitLoss}
	if len(required) != len(want) {
		t.Fatalf("business required = %v, want %v", required, want)
	}
	for i := range want {
		if required[i] != want[i] {
			t.Fatalf("business required = %v, want %v", required, want)
		}
	}
}

func TestIncidentCanTransition(t *testing.T) {
	cases := []struct {
		from, to IncidentStatus
		want     bool
	}{
		{IncidentDetected, IncidentInvestigating, true},
		{IncidentDetected, IncidentResolved, true}, // forward jumps allowed
		{IncidentInvestigating, IncidentResponding, true},
		{IncidentResolved, IncidentPostMortem, true},
		{IncidentResolved, IncidentInvestigating, false}, // backward only via reopen
		{IncidentPostMortem, IncidentDetected, false},
		{IncidentDetected, IncidentDetected, false},
	}
	for _, tc := range cases {
		if got := IncidentCanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("IncidentCanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
