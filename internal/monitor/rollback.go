package monitor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dreschagin/deploy-sentinel/pkg/logger"
)

// RollbackExecutor performs the actual remediation side effect. The
// coordinator and loop never know which implementation is active.
type RollbackExecutor interface {
	Execute(ctx context.Context, environment, reason string) error
}

// ExecExecutor invokes the configured external rollback command as
// `command <environment> <reason>` and maps its exit code to success/failure.
type ExecExecutor struct {
	command string
	timeout time.Duration
	log     *logger.Logger
}

func NewExecExecutor(command string, timeout time.Duration, log *logger.Logger) *ExecExecutor {
	return &ExecExecutor{command: command, timeout: timeout, log: log}
}

func (e *ExecExecutor) Execute(ctx context.Context, environment, reason string) error {
	if strings.TrimSpace(e.command) == "" {
		return fmt.Errorf("rollback command is not configured")
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.command, environment, reason)
	output, err := cmd.CombinedOutput()
	if err != nil {
		e.log.Error("Rollback command failed", err,
			"command", e.command,
			"environment", environment,
			"output", strings.TrimSpace(string(output)),
		)
		return fmt.Errorf("rollback command %s: %w", e.command, err)
	}

	e.log.Info("Rollback command completed",
		"command", e.command,
		"environment", environment,
	)
	return nil
}

// DryRunExecutor logs the invocation that would occur and performs no side
// effect.
type DryRunExecutor struct {
	log *logger.Logger
}

func NewDryRunExecutor(log *logger.Logger) *DryRunExecutor {
	return &DryRunExecutor{log: log}
}

func (e *DryRunExecutor) Execute(_ context.Context, environment, reason string) error {
	e.log.Info("DRY RUN: would trigger rollback",
		"environment", environment,
		"reason", reason,
	)
	return nil
}

// RollbackResult reports the outcome of a rollback attempt.
type RollbackResult struct {
	Success bool
	DryRun  bool
	Reason  string
	Err     error
}

// RollbackCoordinator turns a non-empty violation list into exactly one
// rollback attempt.
type RollbackCoordinator struct {
	executor RollbackExecutor
	dryRun   bool
	log      *logger.Logger
}

func NewRollbackCoordinator(executor RollbackExecutor, dryRun bool, log *logger.Logger) *RollbackCoordinator {
	return &RollbackCoordinator{executor: executor, dryRun: dryRun, log: log}
}

// Trigger executes the rollback for the given violations. With no violations
// it is a no-op reporting success.
func (c *RollbackCoordinator) Trigger(ctx context.Context, environment string, violations []Violation) RollbackResult {
	if len(violations) == 0 {
		return RollbackResult{Success: true, DryRun: c.dryRun}
	}

	reason := BuildReason(violations)

	for _, v := range violations {
		c.log.Warn("Quality gate violation",
			"trigger", v.Trigger,
			"current", v.CurrentValue,
			"threshold", v.ThresholdValue,
			"description", v.Description,
		)
	}

	if err := c.executor.Execute(ctx, environment, reason); err != nil {
		return RollbackResult{Success: false, DryRun: c.dryRun, Reason: reason, Err: err}
	}

	return RollbackResult{Success: true, DryRun: c.dryRun, Reason: reason}
}

// BuildReason joins violation triggers into the reason string handed to the
// rollback executor and notifications.
func BuildReason(violations []Violation) string {
	triggers := make([]string, 0, len(violations))
	for _, v := range violations {
		triggers = append(triggers, v.Trigger)
	}
	return strings.Join(triggers, ",")
}
