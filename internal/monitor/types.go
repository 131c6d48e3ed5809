package monitor

import (
	"time"
)

type HealthStatus string

const (
	HealthOK   HealthStatus = "OK"
	HealthFail HealthStatus = "FAIL"
)

// HealthCheckResult is one probe observation. Immutable once created.
type HealthCheckResult struct {
	Status    HealthStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// MetricSnapshot maps metric name to the value observed this iteration.
// A nil entry means that metric could not be fetched or parsed; it never
// blocks evaluation of the others.
type MetricSnapshot map[string]*float64

// Baseline holds the first-observed metric values for an environment. Created
// once per session (or loaded from disk) and never overwritten afterwards.
type Baseline struct {
	Environment   string             `json:"environment"`
	Values        map[string]float64 `json:"values"`
	EstablishedAt time.Time          `json:"established_at"`
}

// ThresholdRule is one quality gate. Rules are independent; either the
// absolute threshold or the baseline multiplier alone can fire a violation.
type ThresholdRule struct {
	Trigger             string
	Enabled             bool
	AbsoluteThreshold   *float64
	BaselineMultiplier  *float64
	ConsecutiveFailures int
	Description         string
}

// Violation is produced by gate evaluation. Never mutated, only collected.
type Violation struct {
	Trigger        string  `json:"trigger"`
	Description    string  `json:"description"`
	CurrentValue   float64 `json:"current_value"`
	ThresholdValue float64 `json:"threshold_value"`
}

type SessionState string

const (
	StateInitializing        SessionState = "INITIALIZING"
	StatePollingFast         SessionState = "POLLING_FAST"
	StatePollingSlow         SessionState = "POLLING_SLOW"
	StateStableComplete      SessionState = "STABLE_COMPLETE"
	StateViolationRolledBack SessionState = "VIOLATION_ROLLED_BACK"
	StateRollbackFailed      SessionState = "ROLLBACK_FAILED"
)

// historyCapacity bounds the health history; when exceeded the oldest half is
// dropped so the most recent entries always survive trimming.
const historyCapacity = 100

// Session is the single mutable record of a monitoring run. The loop is its
// only writer; every other component reads it or returns derived values.
type Session struct {
	ID          string
	Environment string
	DryRun      bool

	StartTime      time.Time
	EndTime        time.Time
	FastPhaseUntil time.Time

	State         SessionState
	HealthHistory []HealthCheckResult
	Baseline      *Baseline
	Violations    []Violation

	CheckCount        int
	ViolationCount    int
	ConsecutiveOK     int
	RollbackAttempted bool
}

func (s *Session) appendHealth(result HealthCheckResult) {
	s.HealthHistory = append(s.HealthHistory, result)
	if len(s.HealthHistory) > historyCapacity {
		keep := len(s.HealthHistory) / 2
		trimmed := make([]HealthCheckResult, keep)
		copy(trimmed, s.HealthHistory[len(s.HealthHistory)-keep:])
		s.HealthHistory = trimmed
	}
}

func (s *Session) lastHealth() *HealthCheckResult {
	if len(s.HealthHistory) == 0 {
		return nil
	}
	last := s.HealthHistory[len(s.HealthHistory)-1]
	return &last
}

// Snapshot is a read-only copy of session progress for the status endpoint.
type Snapshot struct {
	ID                  string             `json:"id"`
	Environment         string             `json:"environment"`
	DryRun              bool               `json:"dry_run"`
	State               SessionState       `json:"state"`
	StartTime           time.Time          `json:"start_time"`
	EndTime             time.Time          `json:"end_time"`
	CheckCount          int                `json:"check_count"`
	ViolationCount      int                `json:"violation_count"`
	ConsecutiveOK       int                `json:"consecutive_ok"`
	LastHealth          *HealthCheckResult `json:"last_health,omitempty"`
	Violations          []Violation        `json:"violations,omitempty"`
	BaselineEstablished *time.Time         `json:"baseline_established_at,omitempty"`
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:             s.ID,
		Environment:    s.Environment,
		DryRun:         s.DryRun,
		State:          s.State,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		CheckCount:     s.CheckCount,
		ViolationCount: s.ViolationCount,
		ConsecutiveOK:  s.ConsecutiveOK,
		LastHealth:     s.lastHealth(),
	}
	if len(s.Violations) > 0 {
		snap.Violations = append([]Violation(nil), s.Violations...)
	}
	if s.Baseline != nil {
		established := s.Baseline.EstablishedAt
		snap.BaselineEstablished = &established
	}
	return snap
}
