package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monitor.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `{
	"environments": {
		"staging": {"base_url": "https://staging.example.com"},
		"production": {"base_url": "https://example.com"}
	},
	"health_check_config": {
		"endpoint": "/health",
		"timeout_seconds": 5,
		"expected_status": 200,
		"required_consecutive_ok_for_stability": 6
	},
	"metrics_endpoints": {
		"extraction_failure_rate": "/api/v1/metrics/extraction",
		"p95_latency": "/api/v1/metrics/hash-performance",
		"low_confidence_queue_length": "/api/v1/metrics/review-queue"
	},
	"auto_rollback_triggers": {
		"health_check_failures": {"enabled": true, "threshold": 3, "description": "consecutive health failures"},
		"extraction_failure_rate": {"enabled": true, "threshold_percent": 10.0, "baseline_multiplier": 3.0, "description": "failure rate"},
		"p95_latency": {"enabled": true, "threshold_ms": 500, "baseline_multiplier": 2.0, "description": "latency"},
		"low_confidence_queue_length": {"enabled": false, "threshold": 50, "description": "queue"}
	},
	"poll_intervals": {
		"initial_high_frequency_minutes": 10,
		"initial_poll_seconds": 30,
		"normal_poll_seconds": 120
	},
	"rollback": {"command": "./scripts/rollback.sh", "timeout_seconds": 120}
}`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(cfg.Environments) != 2 {
		t.Errorf("expected 2 environments, got %d", len(cfg.Environments))
	}
	if cfg.HealthCheck.RequiredConsecutiveOKForStability != 6 {
		t.Errorf("expected stability threshold 6, got %d", cfg.HealthCheck.RequiredConsecutiveOKForStability)
	}
	if got := cfg.PollIntervals.FastInterval().Seconds(); got != 30 {
		t.Errorf("expected fast interval 30s, got %vs", got)
	}

	trigger := cfg.AutoRollbackTriggers["extraction_failure_rate"]
	if threshold := trigger.ThresholdValue(); threshold == nil || *threshold != 10.0 {
		t.Errorf("expected threshold_percent normalized to 10.0, got %v", threshold)
	}
	if trigger.BaselineMultiplier == nil || *trigger.BaselineMultiplier != 3.0 {
		t.Errorf("expected baseline_multiplier 3.0, got %v", trigger.BaselineMultiplier)
	}
}

func TestThresholdValueVariants(t *testing.T) {
	value := 42.0
	tests := []struct {
		name    string
		trigger TriggerConfig
		want    *float64
	}{
		{"plain threshold", TriggerConfig{Threshold: &value}, &value},
		{"percent threshold", TriggerConfig{ThresholdPercent: &value}, &value},
		{"ms threshold", TriggerConfig{ThresholdMS: &value}, &value},
		{"none", TriggerConfig{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.trigger.ThresholdValue()
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ThresholdValue() = %v, want %v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("ThresholdValue() = %v, want %v", *got, *tt.want)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"environments": {"staging": {"base_url": "http://localhost:8000"}}
	}`))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.HealthCheck.Endpoint != "/health" {
		t.Errorf("expected default endpoint /health, got %q", cfg.HealthCheck.Endpoint)
	}
	if cfg.HealthCheck.ExpectedStatus != 200 {
		t.Errorf("expected default expected_status 200, got %d", cfg.HealthCheck.ExpectedStatus)
	}
	if cfg.PollIntervals.NormalPollSeconds != 120 {
		t.Errorf("expected default normal poll 120s, got %d", cfg.PollIntervals.NormalPollSeconds)
	}
	if cfg.Rollback.TimeoutSeconds != 300 {
		t.Errorf("expected default rollback timeout 300s, got %d", cfg.Rollback.TimeoutSeconds)
	}
}

func TestLoadFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"malformed json", `{"environments": `, "parse config"},
		{"no environments", `{"environments": {}}`, "environments section is empty"},
		{"missing base_url", `{"environments": {"staging": {}}}`, "base_url is required"},
		{"relative base_url", `{"environments": {"staging": {"base_url": "localhost"}}}`, "not an absolute URL"},
		{
			"bad metrics path",
			`{"environments": {"s": {"base_url": "http://h"}}, "metrics_endpoints": {"m": "metrics"}}`,
			"must start with /",
		},
		{
			"enabled trigger without threshold",
			`{"environments": {"s": {"base_url": "http://h"}}, "auto_rollback_triggers": {"p95_latency": {"enabled": true}}}`,
			"needs a threshold or baseline_multiplier",
		},
		{
			"health trigger threshold below one",
			`{"environments": {"s": {"base_url": "http://h"}}, "auto_rollback_triggers": {"health_check_failures": {"enabled": true, "threshold": 0}}}`,
			"threshold must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvironmentLookup(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	env, err := cfg.Environment("staging")
	if err != nil {
		t.Fatalf("Environment(staging) returned error: %v", err)
	}
	if env.BaseURL != "https://staging.example.com" {
		t.Errorf("unexpected base_url %q", env.BaseURL)
	}

	if _, err := cfg.Environment("canary"); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestLoadInfraValidation(t *testing.T) {
	t.Setenv("NOTIFY_NATS_ENABLED", "false")
	t.Setenv("REPORT_S3_ENABLED", "true")
	t.Setenv("REPORT_S3_BUCKET", "")

	if _, err := LoadInfra(); err == nil {
		t.Fatal("expected error when report bucket is missing")
	}

	t.Setenv("REPORT_S3_ENABLED", "false")
	t.Setenv("K8S_DISCOVERY_ENABLED", "true")
	t.Setenv("K8S_SERVICE_SELECTOR", "")

	if _, err := LoadInfra(); err == nil {
		t.Fatal("expected error when discovery selector is missing")
	}

	t.Setenv("K8S_DISCOVERY_ENABLED", "false")
	cfg, err := LoadInfra()
	if err != nil {
		t.Fatalf("LoadInfra returned error: %v", err)
	}
	if cfg.Notify.SubjectPrefix != "deploy.monitor" {
		t.Errorf("unexpected default subject prefix %q", cfg.Notify.SubjectPrefix)
	}
}
