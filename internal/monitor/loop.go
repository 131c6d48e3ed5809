package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/deploy-sentinel/internal/notify"
	"github.com/dreschagin/deploy-sentinel/pkg/logger"
)

// ErrRollbackFailed marks the one fatal outcome that requires manual
// intervention: the remediation action itself failed.
var ErrRollbackFailed = errors.New("rollback failed, manual intervention required")

// HealthChecker produces one health observation per call.
type HealthChecker interface {
	Check(ctx context.Context) HealthCheckResult
}

// Collector produces one metric snapshot per call.
type Collector interface {
	Collect(ctx context.Context) MetricSnapshot
}

// DatapointPublisher ships per-iteration observations to an external
// observability sink. Failures are logged, never fatal.
type DatapointPublisher interface {
	PublishIteration(ctx context.Context, environment string, health HealthCheckResult, snapshot MetricSnapshot, violations []Violation) error
}

// LoopConfig is the per-session monitoring plan.
type LoopConfig struct {
	Environment        string
	DryRun             bool
	Duration           time.Duration
	FastPhase          time.Duration
	FastInterval       time.Duration
	SlowInterval       time.Duration
	StabilityThreshold int
}

// LoopDeps collects the loop collaborators. Publisher may be nil.
type LoopDeps struct {
	Probe     HealthChecker
	Collector Collector
	Baseline  *BaselineTracker
	Gates     *GateEvaluator
	Rollback  *RollbackCoordinator
	Notifier  notify.Notifier
	Publisher DatapointPublisher
	Metrics   *Metrics
	Log       *logger.Logger
}

// Loop owns the monitoring session and is its only writer. One iteration at
// a time: probe, collect, evaluate, maybe roll back, sleep.
type Loop struct {
	cfg  LoopConfig
	deps LoopDeps

	mu      sync.RWMutex
	session *Session

	stabilityLogged bool

	// Injectable for tests; real time and context-aware sleep otherwise.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLoop(cfg LoopConfig, deps LoopDeps) *Loop {
	return &Loop{
		cfg:   cfg,
		deps:  deps,
		now:   time.Now,
		sleep: sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a read-only copy of session progress for the status
// endpoint. Safe for concurrent use with Run.
func (l *Loop) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.session == nil {
		return Snapshot{Environment: l.cfg.Environment, State: StateInitializing}
	}
	return l.session.snapshot()
}

// Run executes the monitoring session to completion. The returned session is
// final; its State field identifies the terminal outcome. A non-nil error
// means either rollback failure or an unrecoverable iteration error.
func (l *Loop) Run(ctx context.Context) (*Session, error) {
	start := l.now().UTC()

	l.mu.Lock()
	l.session = &Session{
		ID:             uuid.NewString(),
		Environment:    l.cfg.Environment,
		DryRun:         l.cfg.DryRun,
		StartTime:      start,
		EndTime:        start.Add(l.cfg.Duration),
		FastPhaseUntil: start.Add(l.cfg.FastPhase),
		State:          StatePollingFast,
	}
	l.mu.Unlock()

	l.deps.Log.Info("Monitoring session started",
		"session_id", l.session.ID,
		"environment", l.cfg.Environment,
		"duration", l.cfg.Duration.String(),
		"dry_run", l.cfg.DryRun,
	)
	l.notify(ctx, "monitoring_started", notify.SeverityInfo,
		fmt.Sprintf("monitoring %s for %s", l.cfg.Environment, l.cfg.Duration))

	for {
		done, err := l.iterate(ctx)
		if err != nil || done {
			return l.session, err
		}

		interval := l.currentInterval()
		if err := l.sleep(ctx, interval); err != nil {
			// Interrupted between iterations; no state transition is
			// uncommitted, so exit without touching the session further.
			l.deps.Log.Warn("Monitoring interrupted", "session_id", l.session.ID)
			return l.session, err
		}
	}
}

// iterate runs one full probe-collect-evaluate cycle. It reports done=true
// on any terminal state.
func (l *Loop) iterate(ctx context.Context) (bool, error) {
	probeStart := l.now()
	health := l.deps.Probe.Check(ctx)
	l.deps.Metrics.observeCheck(health, l.now().Sub(probeStart))

	l.mu.Lock()
	l.session.CheckCount++
	l.session.appendHealth(health)
	if health.Status == HealthOK {
		l.session.ConsecutiveOK++
	} else {
		l.session.ConsecutiveOK = 0
	}
	l.deps.Metrics.ConsecutiveOK.Set(float64(l.session.ConsecutiveOK))
	checkCount := l.session.CheckCount
	consecutiveOK := l.session.ConsecutiveOK
	l.mu.Unlock()

	l.deps.Log.Info("Health check",
		"check", checkCount,
		"status", string(health.Status),
		"reason", health.Reason,
	)

	snapshot := l.deps.Collector.Collect(ctx)
	l.deps.Metrics.observeSnapshot(snapshot)

	baseline, err := l.deps.Baseline.Ensure(l.cfg.Environment, snapshot, l.now())
	if err != nil {
		l.notify(ctx, "monitoring_error", notify.SeverityCritical, err.Error())
		return true, fmt.Errorf("baseline tracking: %w", err)
	}

	l.mu.Lock()
	l.session.Baseline = baseline
	history := append([]HealthCheckResult(nil), l.session.HealthHistory...)
	l.mu.Unlock()

	violations := l.deps.Gates.Evaluate(history, snapshot, baseline)

	if l.deps.Publisher != nil {
		if err := l.deps.Publisher.PublishIteration(ctx, l.cfg.Environment, health, snapshot, violations); err != nil {
			l.deps.Log.Warn("Datapoint publish failed", "error", err.Error())
		}
	}

	if len(violations) > 0 {
		return true, l.handleViolations(ctx, violations)
	}

	now := l.now().UTC()

	if !l.stabilityLogged &&
		l.cfg.StabilityThreshold > 0 &&
		consecutiveOK >= l.cfg.StabilityThreshold &&
		now.Sub(l.session.StartTime) >= l.cfg.FastPhase {
		// Informational only: the session always runs its full duration.
		l.deps.Log.Info("Service looks stable",
			"consecutive_ok", consecutiveOK,
			"threshold", l.cfg.StabilityThreshold,
		)
		l.stabilityLogged = true
	}

	if !now.Before(l.session.EndTime) {
		l.setState(StateStableComplete)
		l.deps.Log.Info("Monitoring window elapsed with no violations",
			"session_id", l.session.ID,
			"checks", checkCount,
		)
		l.notify(ctx, "monitoring_complete", notify.SeverityInfo,
			fmt.Sprintf("%s stable after %d checks", l.cfg.Environment, checkCount))
		return true, nil
	}

	return false, nil
}

// handleViolations performs the single rollback attempt of the session and
// always terminates the loop.
func (l *Loop) handleViolations(ctx context.Context, violations []Violation) error {
	l.mu.Lock()
	l.session.Violations = append([]Violation(nil), violations...)
	l.session.ViolationCount = len(violations)
	l.session.RollbackAttempted = true
	l.mu.Unlock()

	for range violations {
		l.deps.Metrics.ViolationsTotal.Inc()
	}

	reason := BuildReason(violations)
	l.notify(ctx, "quality_gate_violation", notify.SeverityCritical,
		fmt.Sprintf("quality gates failed: %s", reason))

	result := l.deps.Rollback.Trigger(ctx, l.cfg.Environment, violations)

	switch {
	case result.Success && result.DryRun:
		l.deps.Metrics.RollbacksTotal.WithLabelValues("dry_run").Inc()
		l.setState(StateViolationRolledBack)
		l.notify(ctx, "rollback_dry_run", notify.SeverityWarning,
			fmt.Sprintf("dry run: would roll back %s (%s)", l.cfg.Environment, reason))
		return nil
	case result.Success:
		l.deps.Metrics.RollbacksTotal.WithLabelValues("success").Inc()
		l.setState(StateViolationRolledBack)
		l.notify(ctx, "rollback_success", notify.SeverityWarning,
			fmt.Sprintf("rolled back %s (%s)", l.cfg.Environment, reason))
		return nil
	default:
		l.deps.Metrics.RollbacksTotal.WithLabelValues("failure").Inc()
		l.setState(StateRollbackFailed)
		l.notify(ctx, "rollback_failed", notify.SeverityCritical,
			fmt.Sprintf("rollback of %s failed, manual intervention required (%s)", l.cfg.Environment, reason))
		return fmt.Errorf("%w: %v", ErrRollbackFailed, result.Err)
	}
}

// currentInterval picks the cadence from elapsed time, not iteration count.
func (l *Loop) currentInterval() time.Duration {
	now := l.now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Before(l.session.FastPhaseUntil) {
		l.session.State = StatePollingFast
		return l.cfg.FastInterval
	}

	if l.session.State == StatePollingFast {
		l.deps.Log.Info("Switching to normal polling cadence",
			"interval", l.cfg.SlowInterval.String(),
		)
	}
	l.session.State = StatePollingSlow
	return l.cfg.SlowInterval
}

func (l *Loop) setState(state SessionState) {
	l.mu.Lock()
	l.session.State = state
	l.mu.Unlock()
}

// notify dispatches a best-effort event; failures are warnings only.
func (l *Loop) notify(ctx context.Context, eventType string, severity notify.Severity, message string) {
	if l.deps.Notifier == nil {
		return
	}

	event := notify.Event{
		Type:        eventType,
		Environment: l.cfg.Environment,
		Message:     message,
		Severity:    severity,
		SessionID:   l.session.ID,
		Timestamp:   l.now().UTC(),
	}
	if err := l.deps.Notifier.Notify(ctx, event); err != nil {
		l.deps.Log.Warn("Notification delivery failed",
			"type", eventType,
			"error", err.Error(),
		)
	}
}
