package core

import "testing"

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusReview, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
		{Status("bogus"), false},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%q.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStatusRankOrdering(t *testing.T) {
	if StatusPending.rank() >= StatusProcessing.rank() {
		t.Error("pending should rank below processing")
	}
	if StatusProcessing.rank() >= StatusReview.rank() {
		t.Error("processing should rank below review")
	}
	if StatusCompleted.rank() != StatusFailed.rank() || StatusFailed.rank() != StatusCancelled.rank() {
		t.Error("terminal statuses should share a rank")
	}
	if Status("bogus").rank() >= StatusPending.rank() {
		t.Error("unknown status should rank below everything")
	}
}

func TestProjectStatus_NonTerminal(t *testing.T) {
	tests := []struct {
		status       Status
		wantUI       UIStatus
		wantProgress int
	}{
		{StatusPending, UIProcessing, 10},
		{StatusProcessing, UIProcessing, 50},
		{StatusReview, UIProcessing, 50},
	}
	for _, tt := range tests {
		got := ProjectStatus(StatementImport{Status: tt.status})
		if got.UIStatus != tt.wantUI || got.Progress != tt.wantProgress {
			t.Errorf("ProjectStatus(%q) = %v/%d, want %v/%d",
				tt.status, got.UIStatus, got.Progress, tt.wantUI, tt.wantProgress)
		}
		if got.Classification != "" {
			t.Errorf("ProjectStatus(%q) should not classify, got %q", tt.status, got.Classification)
		}
	}
}

func TestProjectStatus_Completed(t *testing.T) {
	got := ProjectStatus(StatementImport{Status: StatusCompleted})
	if got.UIStatus != UISuccess || got.Progress != 100 {
		t.Errorf("completed projects to %v/%d, want success/100", got.UIStatus, got.Progress)
	}
}

func TestProjectStatus_FailedVerbatimMessage(t *testing.T) {
	msg := "unbalanced ledger rows on page 3"
	got := ProjectStatus(StatementImport{Status: StatusFailed, ErrorMessage: &msg})
	if got.UIStatus != UIError {
		t.Fatalf("failed projects to %v, want error", got.UIStatus)
	}
	if got.Classification != ClassProcessingFailed {
		t.Errorf("classification = %q, want %q", got.Classification, ClassProcessingFailed)
	}
	if got.Message != msg {
		t.Errorf("message = %q, want verbatim %q", got.Message, msg)
	}
}

func TestProjectStatus_FailedTimeoutGetsGuidance(t *testing.T) {
	msg := "job killed: WORKER_LIMIT exceeded"
	got := ProjectStatus(StatementImport{Status: StatusFailed, ErrorMessage: &msg})
	if got.Message == msg {
		t.Error("timeout failure should be replaced with size guidance")
	}
	if got.Message == "" {
		t.Error("timeout failure should still carry a message")
	}
}

func TestProjectStatus_CancelledDistinctFromFailed(t *testing.T) {
	cancelled := ProjectStatus(StatementImport{Status: StatusCancelled})
	failed := ProjectStatus(StatementImport{Status: StatusFailed})

	if cancelled.UIStatus != UIError {
		t.Errorf("cancelled projects to %v, want error", cancelled.UIStatus)
	}
	if cancelled.Classification != ClassCancelled {
		t.Errorf("classification = %q, want %q", cancelled.Classification, ClassCancelled)
	}
	if cancelled.Message == failed.Message {
		t.Error("cancelled and failed should carry distinct messages")
	}
}
