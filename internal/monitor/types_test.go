package monitor

import (
	"fmt"
	"testing"
	"time"
)

func TestAppendHealthTrimsOldestHalf(t *testing.T) {
	session := &Session{}

	for i := 0; i < historyCapacity+1; i++ {
		session.appendHealth(HealthCheckResult{
			Status: HealthOK,
			Reason: fmt.Sprintf("check-%d", i),
		})
	}

	want := (historyCapacity + 1) / 2
	if len(session.HealthHistory) != want {
		t.Fatalf("history length = %d, want %d after trim", len(session.HealthHistory), want)
	}

	// The newest entries must survive the trim.
	last := session.HealthHistory[len(session.HealthHistory)-1]
	if last.Reason != fmt.Sprintf("check-%d", historyCapacity) {
		t.Errorf("newest entry = %q", last.Reason)
	}
	first := session.HealthHistory[0]
	if first.Reason != fmt.Sprintf("check-%d", historyCapacity+1-want) {
		t.Errorf("oldest surviving entry = %q", first.Reason)
	}
}

func TestSessionSnapshot(t *testing.T) {
	established := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	session := &Session{
		ID:          "abc",
		Environment: "prod",
		State:       StatePollingSlow,
		CheckCount:  7,
		Baseline: &Baseline{
			Environment:   "prod",
			EstablishedAt: established,
		},
		Violations: []Violation{{Trigger: "error_rate"}},
	}
	session.appendHealth(HealthCheckResult{Status: HealthFail, Reason: "boom"})

	snap := session.snapshot()

	if snap.ID != "abc" || snap.State != StatePollingSlow || snap.CheckCount != 7 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.LastHealth == nil || snap.LastHealth.Reason != "boom" {
		t.Errorf("LastHealth = %+v", snap.LastHealth)
	}
	if snap.BaselineEstablished == nil || !snap.BaselineEstablished.Equal(established) {
		t.Errorf("BaselineEstablished = %v", snap.BaselineEstablished)
	}

	// Mutating the snapshot's violations must not touch the session.
	snap.Violations[0].Trigger = "changed"
	if session.Violations[0].Trigger != "error_rate" {
		t.Error("snapshot shares the session violation slice")
	}
}
