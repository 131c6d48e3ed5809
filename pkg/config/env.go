package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// InfraConfig holds the deployment-infrastructure settings that do not belong
// in the monitor config file: credentials, endpoints and optional side
// channels. Loaded from the environment (with .env support) so the same
// config file works across CI and local runs.
type InfraConfig struct {
	LogLevel   string
	StatusPort string

	Notify     NotifyConfig
	Audit      AuditConfig
	Report     ReportConfig
	CloudWatch CloudWatchConfig
	Discovery  DiscoveryConfig
}

// NotifyConfig controls the NATS notification channel.
type NotifyConfig struct {
	NATSEnabled   bool
	NATSURL       string
	SubjectPrefix string
	RatePerMinute float64
	Burst         int
}

// AuditConfig controls the Postgres session audit trail.
type AuditConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

func (a AuditConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		a.Host, a.Port, a.User, a.Password, a.Database)
}

// ReportConfig controls S3 upload of the final session report.
type ReportConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

// CloudWatchConfig controls the CloudWatch datapoint publisher.
type CloudWatchConfig struct {
	Enabled         bool
	Namespace       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BufferSize      int
	FlushInterval   time.Duration
}

// DiscoveryConfig controls in-cluster resolution of the monitored service.
type DiscoveryConfig struct {
	Enabled         bool
	Namespace       string
	ServiceSelector string
}

// LoadInfra reads infrastructure configuration from the environment.
func LoadInfra() (*InfraConfig, error) {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg := &InfraConfig{
		LogLevel:   strings.ToLower(getEnv("LOG_LEVEL", "info")),
		StatusPort: getEnv("STATUS_PORT", ""),
		Notify: NotifyConfig{
			NATSEnabled:   getEnvBool("NOTIFY_NATS_ENABLED", false),
			NATSURL:       getEnv("NOTIFY_NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnv("NOTIFY_SUBJECT_PREFIX", "deploy.monitor"),
			RatePerMinute: getEnvFloat("NOTIFY_RATE_PER_MINUTE", 30),
			Burst:         getEnvInt("NOTIFY_BURST", 10),
		},
		Audit: AuditConfig{
			Enabled:  getEnvBool("AUDIT_DB_ENABLED", false),
			Host:     getEnv("AUDIT_DB_HOST", "localhost"),
			Port:     getEnv("AUDIT_DB_PORT", "5432"),
			User:     getEnv("AUDIT_DB_USER", "postgres"),
			Password: getEnv("AUDIT_DB_PASSWORD", "postgres"),
			Database: getEnv("AUDIT_DB_NAME", "deploy_sentinel"),
		},
		Report: ReportConfig{
			Enabled:         getEnvBool("REPORT_S3_ENABLED", false),
			Bucket:          getEnv("REPORT_S3_BUCKET", ""),
			Region:          getEnv("REPORT_S3_REGION", "us-east-1"),
			Endpoint:        getEnv("REPORT_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("REPORT_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("REPORT_S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("REPORT_S3_USE_PATH_STYLE", true),
			KeyPrefix:       getEnv("REPORT_S3_KEY_PREFIX", "reports"),
		},
		CloudWatch: CloudWatchConfig{
			Enabled:         getEnvBool("CLOUDWATCH_ENABLED", false),
			Namespace:       getEnv("CLOUDWATCH_NAMESPACE", "DeploySentinel/Monitor"),
			Region:          getEnv("CLOUDWATCH_REGION", "us-east-1"),
			Endpoint:        getEnv("CLOUDWATCH_ENDPOINT", ""),
			AccessKeyID:     getEnv("CLOUDWATCH_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("CLOUDWATCH_SECRET_ACCESS_KEY", ""),
			BufferSize:      getEnvInt("CLOUDWATCH_BUFFER_SIZE", 100),
			FlushInterval:   getEnvDuration("CLOUDWATCH_FLUSH_INTERVAL", 10*time.Second),
		},
		Discovery: DiscoveryConfig{
			Enabled:         getEnvBool("K8S_DISCOVERY_ENABLED", false),
			Namespace:       getEnv("K8S_NAMESPACE", "default"),
			ServiceSelector: getEnv("K8S_SERVICE_SELECTOR", ""),
		},
	}

	if cfg.Notify.NATSEnabled && strings.TrimSpace(cfg.Notify.NATSURL) == "" {
		return nil, fmt.Errorf("NOTIFY_NATS_ENABLED=true requires NOTIFY_NATS_URL")
	}
	if cfg.Notify.RatePerMinute <= 0 {
		return nil, fmt.Errorf("NOTIFY_RATE_PER_MINUTE must be positive")
	}
	if cfg.Report.Enabled && strings.TrimSpace(cfg.Report.Bucket) == "" {
		return nil, fmt.Errorf("REPORT_S3_ENABLED=true requires REPORT_S3_BUCKET")
	}
	if cfg.Discovery.Enabled && strings.TrimSpace(cfg.Discovery.ServiceSelector) == "" {
		return nil, fmt.Errorf("K8S_DISCOVERY_ENABLED=true requires K8S_SERVICE_SELECTOR")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
