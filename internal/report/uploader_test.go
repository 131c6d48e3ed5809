package report

import (
	"context"
	"testing"
	"time"

	"github.com/dreschagin/deploy-sentinel/internal/monitor"
)

func TestFromSession(t *testing.T) {
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(time.Hour)

	session := &monitor.Session{
		ID:             "abc-123",
		Environment:    "prod",
		DryRun:         true,
		StartTime:      started,
		State:          monitor.StateViolationRolledBack,
		CheckCount:     12,
		ViolationCount: 1,
		Violations:     []monitor.Violation{{Trigger: "error_rate"}},
	}

	rep := FromSession(session, finished)

	if rep.SessionID != "abc-123" || rep.Environment != "prod" {
		t.Errorf("report = %+v", rep)
	}
	if rep.State != monitor.StateViolationRolledBack {
		t.Errorf("state = %s", rep.State)
	}
	if !rep.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", rep.FinishedAt, finished)
	}
	if len(rep.Violations) != 1 {
		t.Errorf("violations = %+v", rep.Violations)
	}
}

func TestObjectKey(t *testing.T) {
	rep := SessionReport{
		SessionID:   "abc-123",
		Environment: "staging",
		StartedAt:   time.Date(2026, 8, 1, 12, 30, 45, 0, time.UTC),
	}

	got := ObjectKey("reports", rep)
	want := "reports/staging/20260801T123045Z_abc-123.json"
	if got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}

func TestNewUploaderValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing bucket", cfg: Config{Region: "us-east-1"}},
		{name: "missing region", cfg: Config{Bucket: "reports"}},
		{name: "blank bucket", cfg: Config{Bucket: "   ", Region: "us-east-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewUploader(context.Background(), tt.cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
