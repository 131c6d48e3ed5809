// Package notify delivers best-effort monitoring notifications. Delivery
// failure is logged by callers and never affects monitoring control flow.
package notify

import (
	"context"
	"time"

	"github.com/dreschagin/deploy-sentinel/pkg/logger"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one monitoring notification.
type Event struct {
	Type        string    `json:"type"`
	Environment string    `json:"environment"`
	Message     string    `json:"message"`
	Severity    Severity  `json:"severity"`
	SessionID   string    `json:"session_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Notifier dispatches events to a side channel.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
	Close() error
}

// LogNotifier writes events to the monitor log. Always available, never
// fails.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	switch event.Severity {
	case SeverityCritical:
		n.log.Error("Notification: "+event.Message, nil,
			"type", event.Type,
			"environment", event.Environment,
		)
	case SeverityWarning:
		n.log.Warn("Notification: "+event.Message,
			"type", event.Type,
			"environment", event.Environment,
		)
	default:
		n.log.Info("Notification: "+event.Message,
			"type", event.Type,
			"environment", event.Environment,
		)
	}
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// Multi fans an event out to several notifiers. The first error is returned
// after all notifiers have been attempted.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Notify(ctx context.Context, event Event) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Multi) Close() error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
