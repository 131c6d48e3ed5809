package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// MonitorConfig is the static deployment-monitor configuration loaded from a
// JSON file. Every optional field receives an explicit default in Load so the
// rest of the code never needs to guess.
type MonitorConfig struct {
	Environments         map[string]EnvironmentConfig `json:"environments"`
	HealthCheck          HealthCheckConfig            `json:"health_check_config"`
	MetricsEndpoints     map[string]string            `json:"metrics_endpoints"`
	AutoRollbackTriggers map[string]TriggerConfig     `json:"auto_rollback_triggers"`
	PollIntervals        PollIntervalsConfig          `json:"poll_intervals"`
	Rollback             RollbackConfig               `json:"rollback"`
	BaselineDir          string                       `json:"baseline_dir"`
}

type EnvironmentConfig struct {
	BaseURL string `json:"base_url"`
}

type HealthCheckConfig struct {
	Endpoint                          string `json:"endpoint"`
	TimeoutSeconds                    int    `json:"timeout_seconds"`
	ExpectedStatus                    int    `json:"expected_status"`
	RequiredConsecutiveOKForStability int    `json:"required_consecutive_ok_for_stability"`
}

// TriggerConfig describes one auto-rollback quality gate. The threshold may
// arrive under threshold, threshold_percent or threshold_ms depending on the
// metric group; ThresholdValue normalizes that.
type TriggerConfig struct {
	Enabled            bool     `json:"enabled"`
	Threshold          *float64 `json:"threshold"`
	ThresholdPercent   *float64 `json:"threshold_percent"`
	ThresholdMS        *float64 `json:"threshold_ms"`
	BaselineMultiplier *float64 `json:"baseline_multiplier"`
	Description        string   `json:"description"`
}

// ThresholdValue returns the configured absolute threshold, whichever key it
// was spelled with, or nil when none is set.
func (t TriggerConfig) ThresholdValue() *float64 {
	switch {
	case t.Threshold != nil:
		return t.Threshold
	case t.ThresholdPercent != nil:
		return t.ThresholdPercent
	case t.ThresholdMS != nil:
		return t.ThresholdMS
	default:
		return nil
	}
}

type PollIntervalsConfig struct {
	InitialHighFrequencyMinutes int `json:"initial_high_frequency_minutes"`
	InitialPollSeconds          int `json:"initial_poll_seconds"`
	NormalPollSeconds           int `json:"normal_poll_seconds"`
}

func (p PollIntervalsConfig) FastPhase() time.Duration {
	return time.Duration(p.InitialHighFrequencyMinutes) * time.Minute
}

func (p PollIntervalsConfig) FastInterval() time.Duration {
	return time.Duration(p.InitialPollSeconds) * time.Second
}

func (p PollIntervalsConfig) SlowInterval() time.Duration {
	return time.Duration(p.NormalPollSeconds) * time.Second
}

type RollbackConfig struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (r RollbackConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// Load reads and validates the monitor configuration file.
func Load(path string) (*MonitorConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &MonitorConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func applyDefaults(cfg *MonitorConfig) {
	if cfg.HealthCheck.Endpoint == "" {
		cfg.HealthCheck.Endpoint = "/health"
	}
	if cfg.HealthCheck.TimeoutSeconds <= 0 {
		cfg.HealthCheck.TimeoutSeconds = 10
	}
	if cfg.HealthCheck.ExpectedStatus <= 0 {
		cfg.HealthCheck.ExpectedStatus = 200
	}
	if cfg.HealthCheck.RequiredConsecutiveOKForStability <= 0 {
		cfg.HealthCheck.RequiredConsecutiveOKForStability = 10
	}
	if cfg.PollIntervals.InitialHighFrequencyMinutes <= 0 {
		cfg.PollIntervals.InitialHighFrequencyMinutes = 10
	}
	if cfg.PollIntervals.InitialPollSeconds <= 0 {
		cfg.PollIntervals.InitialPollSeconds = 30
	}
	if cfg.PollIntervals.NormalPollSeconds <= 0 {
		cfg.PollIntervals.NormalPollSeconds = 120
	}
	if cfg.Rollback.TimeoutSeconds <= 0 {
		cfg.Rollback.TimeoutSeconds = 300
	}
	if cfg.BaselineDir == "" {
		cfg.BaselineDir = ".deploy-sentinel"
	}
}

func (c *MonitorConfig) validate() error {
	if len(c.Environments) == 0 {
		return fmt.Errorf("environments section is empty")
	}

	for name, env := range c.Environments {
		if strings.TrimSpace(env.BaseURL) == "" {
			return fmt.Errorf("environment %q: base_url is required", name)
		}
		parsed, err := url.Parse(env.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("environment %q: base_url %q is not an absolute URL", name, env.BaseURL)
		}
	}

	if !strings.HasPrefix(c.HealthCheck.Endpoint, "/") {
		return fmt.Errorf("health_check_config.endpoint must start with /")
	}

	for name, path := range c.MetricsEndpoints {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("metrics_endpoints.%s: path %q must start with /", name, path)
		}
	}

	for name, trigger := range c.AutoRollbackTriggers {
		if !trigger.Enabled {
			continue
		}
		if name == TriggerHealthCheckFailures {
			threshold := trigger.ThresholdValue()
			if threshold == nil || *threshold < 1 {
				return fmt.Errorf("auto_rollback_triggers.%s: threshold must be >= 1", name)
			}
			continue
		}
		if trigger.ThresholdValue() == nil && trigger.BaselineMultiplier == nil {
			return fmt.Errorf("auto_rollback_triggers.%s: enabled trigger needs a threshold or baseline_multiplier", name)
		}
		if trigger.BaselineMultiplier != nil && *trigger.BaselineMultiplier <= 0 {
			return fmt.Errorf("auto_rollback_triggers.%s: baseline_multiplier must be positive", name)
		}
	}

	return nil
}

// TriggerHealthCheckFailures is the reserved trigger evaluated against the
// health-check history rather than a metric value.
const TriggerHealthCheckFailures = "health_check_failures"

// Environment returns the named environment or an error when it is not
// configured. Missing environments are never defaulted.
func (c *MonitorConfig) Environment(name string) (EnvironmentConfig, error) {
	env, ok := c.Environments[name]
	if !ok {
		known := make([]string, 0, len(c.Environments))
		for k := range c.Environments {
			known = append(known, k)
		}
		return EnvironmentConfig{}, fmt.Errorf("unknown environment %q (configured: %s)", name, strings.Join(known, ", "))
	}
	return env, nil
}
