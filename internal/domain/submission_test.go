package domain

import (
	"testing"
	"time"
)

func TestNewSubmissionRecord_RendersSubmitTime(t *testing.T) {
	t.Parallel()

	commit := time.Date(2024, 3, 1, 22, 5, 0, 0, time.Local)
	rec := NewSubmissionRecord(Identity{ID: "123456789"}, "a1-001", "/tmp/submissions/a1-001", commit, StatusOnTime)

	if rec.SubmitTime != "22:05 01 Mar 2024" {
		t.Fatalf("SubmitTime = %q, want 22:05 01 Mar 2024", rec.SubmitTime)
	}
	if !rec.CommitTime.Equal(commit) {
		t.Fatalf("CommitTime = %v, want %v", rec.CommitTime, commit)
	}
}

func TestBatchResult_InvalidAccounting(t *testing.T) {
	t.Parallel()

	res := &BatchResult{
		Invalid: []InvalidSubmission{
			{Repo: "a1-002", Reason: ReasonMissingMetadata},
			{Repo: "a1-004", Reason: ReasonCloneFailed},
			{Repo: "a1-007", Reason: ReasonMissingMetadata},
		},
	}

	names := res.InvalidNames()
	if len(names) != 3 || names[0] != "a1-002" || names[2] != "a1-007" {
		t.Fatalf("InvalidNames() = %v", names)
	}
	counts := res.CountByReason()
	if counts[ReasonMissingMetadata] != 2 || counts[ReasonCloneFailed] != 1 {
		t.Fatalf("CountByReason() = %v", counts)
	}
}
