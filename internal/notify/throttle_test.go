package notify

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/deploy-sentinel/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.NewWithOutput("error", io.Discard)
}

type countingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *countingNotifier) Notify(_ context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *countingNotifier) Close() error { return nil }

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func TestThrottledDropsAboveBurst(t *testing.T) {
	inner := &countingNotifier{}
	throttled := NewThrottled(inner, 60, 3, testLogger())

	for i := 0; i < 10; i++ {
		if err := throttled.Notify(context.Background(), Event{Type: "health", Severity: SeverityInfo}); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}

	// Burst of 3, refill of 1/s: effectively 3 delivered, the rest dropped.
	if got := inner.count(); got > 4 {
		t.Errorf("delivered %d events, want at most 4", got)
	}
	if got := inner.count(); got < 3 {
		t.Errorf("delivered %d events, want the full burst of 3", got)
	}
}

func TestThrottledCriticalBypassesLimit(t *testing.T) {
	inner := &countingNotifier{}
	throttled := NewThrottled(inner, 60, 1, testLogger())

	for i := 0; i < 5; i++ {
		if err := throttled.Notify(context.Background(), Event{Type: "rollback_failed", Severity: SeverityCritical}); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}

	if got := inner.count(); got != 5 {
		t.Errorf("delivered %d critical events, want all 5", got)
	}
}

func TestMultiFansOut(t *testing.T) {
	first := &countingNotifier{}
	second := &countingNotifier{}
	multi := NewMulti(first, second)

	event := Event{Type: "monitoring_started", Severity: SeverityInfo, Timestamp: time.Now()}
	if err := multi.Notify(context.Background(), event); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if first.count() != 1 || second.count() != 1 {
		t.Errorf("counts = %d/%d, want 1/1", first.count(), second.count())
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "violation event",
			event: Event{Environment: "prod", Type: "quality_gate_violation"},
			want:  "deploy.monitor.prod.quality_gate_violation",
		},
		{
			name:  "completion event",
			event: Event{Environment: "staging", Type: "monitoring_complete"},
			want:  "deploy.monitor.staging.monitoring_complete",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Subject("deploy.monitor", tt.event); got != tt.want {
				t.Errorf("Subject = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogNotifierNeverFails(t *testing.T) {
	notifier := NewLogNotifier(testLogger())

	for _, severity := range []Severity{SeverityInfo, SeverityWarning, SeverityCritical} {
		if err := notifier.Notify(context.Background(), Event{Type: "x", Severity: severity}); err != nil {
			t.Errorf("Notify(%s): %v", severity, err)
		}
	}
	if err := notifier.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
