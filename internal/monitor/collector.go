package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/dreschagin/deploy-sentinel/pkg/logger"
)

// metricFieldAliases maps a configured metric name to the response fields it
// may be reported under. Metric groups name their fields slightly differently
// (p95_hash_time_ms vs p95_time_ms), so the first numeric candidate wins.
var metricFieldAliases = map[string][]string{
	"extraction_failure_rate":     {"extraction_failure_rate", "failure_rate_percent"},
	"p95_latency":                 {"p95_hash_time_ms", "p95_time_ms", "p95_latency_ms"},
	"low_confidence_queue_length": {"low_confidence_queue_length", "queue_length"},
}

// MetricsCollector fetches every configured metric endpoint independently.
// A failed or unparseable metric becomes a nil snapshot entry and never
// aborts collection of the others.
type MetricsCollector struct {
	client    *http.Client
	baseURL   string
	endpoints map[string]string
	log       *logger.Logger
}

func NewMetricsCollector(baseURL string, endpoints map[string]string, timeout time.Duration, log *logger.Logger) *MetricsCollector {
	return &MetricsCollector{
		client:    &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		endpoints: endpoints,
		log:       log,
	}
}

// Collect returns one snapshot covering every configured metric. Endpoints
// are fetched sequentially in name order so log output stays deterministic.
func (c *MetricsCollector) Collect(ctx context.Context) MetricSnapshot {
	snapshot := make(MetricSnapshot, len(c.endpoints))

	names := make([]string, 0, len(c.endpoints))
	for name := range c.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		snapshot[name] = c.fetchMetric(ctx, name, c.endpoints[name])
	}

	return snapshot
}

func (c *MetricsCollector) fetchMetric(ctx context.Context, name, path string) *float64 {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.log.Warn("Metric request build failed", "metric", name, "error", err.Error())
		return nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("Metric fetch failed", "metric", name, "url", url, "error", err.Error())
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("Metric endpoint returned non-200", "metric", name, "url", url, "status", resp.StatusCode)
		return nil
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.Warn("Metric response is not valid JSON", "metric", name, "url", url, "error", err.Error())
		return nil
	}

	value, ok := extractMetricValue(name, body)
	if !ok {
		c.log.Warn("Metric field not found in response", "metric", name, "url", url)
		return nil
	}

	return &value
}

// extractMetricValue finds the metric value in a decoded response body. The
// configured name is tried first, then the known aliases, then a bare
// "value" field.
func extractMetricValue(name string, body map[string]interface{}) (float64, bool) {
	candidates := []string{name}
	candidates = append(candidates, metricFieldAliases[name]...)
	candidates = append(candidates, "value")

	for _, field := range candidates {
		if raw, ok := body[field]; ok {
			if value, ok := raw.(float64); ok {
				return value, true
			}
		}
	}

	return 0, false
}
