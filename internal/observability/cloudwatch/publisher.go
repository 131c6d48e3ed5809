// Package cloudwatch ships monitoring datapoints to AWS CloudWatch so
// deployment health is visible next to the rest of the fleet's dashboards.
package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/deploy-sentinel/internal/monitor"
)

const (
	maxDataPerRequest = 1000
	maxRetries        = 3
	initialBackoff    = 100 * time.Millisecond
)

// Datapoint is one observation shipped to CloudWatch.
type Datapoint struct {
	Name       string
	Value      float64
	Unit       string
	Timestamp  time.Time
	Dimensions map[string]string
}

// PublisherConfig holds configuration for CloudWatch publishing.
type PublisherConfig struct {
	Namespace       string
	Region          string
	Endpoint        string // optional override for LocalStack
	AccessKeyID     string
	SecretAccessKey string
	BufferSize      int
	FlushInterval   time.Duration
}

// Publisher buffers datapoints and flushes them in batches with retry.
type Publisher struct {
	client    *cloudwatch.Client
	namespace string

	buffer     []Datapoint
	bufferSize int
	mu         sync.Mutex

	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func NewPublisher(ctx context.Context, cfg PublisherConfig) (*Publisher, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
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
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	p := &Publisher{
		client:      cloudwatch.NewFromConfig(awsCfg),
		namespace:   cfg.Namespace,
		buffer:      make([]Datapoint, 0, cfg.BufferSize),
		bufferSize:  cfg.BufferSize,
		flushTicker: time.NewTicker(cfg.FlushInterval),
		stopCh:      make(chan struct{}),
	}

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

// PublishIteration converts one monitoring iteration into datapoints and
// buffers them. Implements the loop's DatapointPublisher contract.
func (p *Publisher) PublishIteration(ctx context.Context, environment string, health monitor.HealthCheckResult, snapshot monitor.MetricSnapshot, violations []monitor.Violation) error {
	data := IterationDatapoints(environment, health, snapshot, violations)

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, datum := range data {
		p.buffer = append(p.buffer, datum)
		if len(p.buffer) >= p.bufferSize {
			if err := p.flushBufferUnsafe(ctx); err != nil {
				return fmt.Errorf("flush buffer: %w", err)
			}
		}
	}

	return nil
}

// IterationDatapoints maps an iteration's observations to datapoints.
func IterationDatapoints(environment string, health monitor.HealthCheckResult, snapshot monitor.MetricSnapshot, violations []monitor.Violation) []Datapoint {
	healthValue := 0.0
	if health.Status == monitor.HealthOK {
		healthValue = 1.0
	}

	data := []Datapoint{
		{
			Name:      "HealthCheckOK",
			Value:     healthValue,
			Unit:      "count",
			Timestamp: health.Timestamp,
		},
		{
			Name:      "GateViolations",
			Value:     float64(len(violations)),
			Unit:      "count",
			Timestamp: health.Timestamp,
		},
	}

	for name, value := range snapshot {
		if value == nil {
			continue
		}
		data = append(data, Datapoint{
			Name:       "ServiceMetric",
			Value:      *value,
			Unit:       "none",
			Timestamp:  health.Timestamp,
			Dimensions: map[string]string{"Metric": name},
		})
	}

	for i := range data {
		if data[i].Dimensions == nil {
			data[i].Dimensions = make(map[string]string, 1)
		}
		data[i].Dimensions["Environment"] = environment
	}

	return data
}

// Flush forces immediate publication of all buffered datapoints.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flushBufferUnsafe(ctx)
}

// Close stops the background flush goroutine and flushes what remains.
func (p *Publisher) Close(ctx context.Context) error {
	close(p.stopCh)
	p.flushTicker.Stop()
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *Publisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			// Errors retry on the next tick.
			_ = p.Flush(ctx)
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

// flushBufferUnsafe flushes without locking; the caller must hold the lock.
func (p *Publisher) flushBufferUnsafe(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	data := make([]types.MetricDatum, 0, len(p.buffer))
	for _, datum := range p.buffer {
		data = append(data, convertToDatum(datum))
	}

	for i := 0; i < len(data); i += maxDataPerRequest {
		end := i + maxDataPerRequest
		if end > len(data) {
			end = len(data)
		}

		if err := p.putWithRetry(ctx, data[i:end]); err != nil {
			return fmt.Errorf("publish chunk: %w", err)
		}
	}

	p.buffer = p.buffer[:0]
	return nil
}

func (p *Publisher) putWithRetry(ctx context.Context, data []types.MetricDatum) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data,
		}

		_, err := p.client.PutMetricData(ctx, input)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < maxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

func convertToDatum(datum Datapoint) types.MetricDatum {
	dimensions := make([]types.Dimension, 0, len(datum.Dimensions))
	for key, value := range datum.Dimensions {
		dimensions = append(dimensions, types.Dimension{
			Name:  aws.String(key),
			Value: aws.String(value),
		})
	}

	return types.MetricDatum{
		MetricName: aws.String(datum.Name),
		Value:      aws.Float64(datum.Value),
		Unit:       mapUnit(datum.Unit),
		Timestamp:  aws.Time(datum.Timestamp),
		Dimensions: dimensions,
	}
}

func mapUnit(unit string) types.StandardUnit {
	switch unit {
	case "%":
		return types.StandardUnitPercent
	case "ms":
		return types.StandardUnitMilliseconds
	case "s":
		return types.StandardUnitSeconds
	case "count":
		return types.StandardUnitCount
	default:
		return types.StandardUnitNone
	}
}
