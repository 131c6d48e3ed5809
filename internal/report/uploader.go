// Package report uploads the final monitoring session report to S3 so CI
// pipelines and dashboards can link to it.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dreschagin/deploy-sentinel/internal/monitor"
)

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

// SessionReport is the durable record of one monitoring run.
type SessionReport struct {
	SessionID      string                     `json:"session_id"`
	Environment    string                     `json:"environment"`
	State          monitor.SessionState       `json:"state"`
	DryRun         bool                       `json:"dry_run"`
	StartedAt      time.Time                  `json:"started_at"`
	FinishedAt     time.Time                  `json:"finished_at"`
	CheckCount     int                        `json:"check_count"`
	ViolationCount int                        `json:"violation_count"`
	Violations     []monitor.Violation        `json:"violations,omitempty"`
	Baseline       *monitor.Baseline          `json:"baseline,omitempty"`
	HealthHistory  []monitor.HealthCheckResult `json:"health_history,omitempty"`
}

// FromSession builds the report payload from a finished session.
func FromSession(session *monitor.Session, finishedAt time.Time) SessionReport {
	return SessionReport{
		SessionID:      session.ID,
		Environment:    session.Environment,
		State:          session.State,
		DryRun:         session.DryRun,
		StartedAt:      session.StartTime,
		FinishedAt:     finishedAt,
		CheckCount:     session.CheckCount,
		ViolationCount: session.ViolationCount,
		Violations:     session.Violations,
		Baseline:       session.Baseline,
		HealthHistory:  session.HealthHistory,
	}
}

type Uploader struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "reports"
	}

	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("build aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if cfg.Endpoint != "" {
			options.BaseEndpoint = &cfg.Endpoint
		}
		options.UsePathStyle = cfg.UsePathStyle
	})

	return &Uploader{
		client:    client,
		bucket:    strings.TrimSpace(cfg.Bucket),
		keyPrefix: strings.Trim(cfg.KeyPrefix, "/"),
	}, nil
}

// Upload writes the report as indented JSON and returns the object key.
func (u *Uploader) Upload(ctx context.Context, rep SessionReport) (string, error) {
	body, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	key := ObjectKey(u.keyPrefix, rep)
	contentType := "application/json"

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &u.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put report object: %w", err)
	}

	return key, nil
}

// ObjectKey lays out report objects by environment and start time so listing
// a prefix yields a chronological deployment history.
func ObjectKey(prefix string, rep SessionReport) string {
	return fmt.Sprintf("%s/%s/%s_%s.json",
		prefix,
		rep.Environment,
		rep.StartedAt.UTC().Format("20060102T150405Z"),
		rep.SessionID,
	)
}
