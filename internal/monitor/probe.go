package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dreschagin/deploy-sentinel/pkg/logger"
)

// HealthProbe issues a single bounded-timeout request against the service
// health endpoint. It never retries; consecutive-failure policy lives in the
// monitoring loop.
type HealthProbe struct {
	client         *http.Client
	url            string
	expectedStatus int
	log            *logger.Logger
}

func NewHealthProbe(baseURL, endpoint string, timeout time.Duration, expectedStatus int, log *logger.Logger) *HealthProbe {
	return &HealthProbe{
		client:         &http.Client{Timeout: timeout},
		url:            baseURL + endpoint,
		expectedStatus: expectedStatus,
		log:            log,
	}
}

// Check classifies exactly one observation. Network errors, timeouts and
// unexpected status codes all map to FAIL with a human-readable reason.
func (p *HealthProbe) Check(ctx context.Context) HealthCheckResult {
	now := time.Now().UTC()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return HealthCheckResult{Status: HealthFail, Reason: fmt.Sprintf("build request: %v", err), Timestamp: now}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn("Health check request failed", "url", p.url, "error", err.Error())
		return HealthCheckResult{Status: HealthFail, Reason: fmt.Sprintf("request failed: %v", err), Timestamp: now}
	}
	defer resp.Body.Close()

	if resp.StatusCode != p.expectedStatus {
		reason := fmt.Sprintf("unexpected status %d (want %d)", resp.StatusCode, p.expectedStatus)
		if detail := serviceStatus(resp); detail != "" {
			reason += fmt.Sprintf(", service reports %q", detail)
		}
		p.log.Warn("Health check returned unexpected status", "url", p.url, "status", resp.StatusCode)
		return HealthCheckResult{Status: HealthFail, Reason: reason, Timestamp: now}
	}

	return HealthCheckResult{Status: HealthOK, Timestamp: now}
}

// serviceStatus pulls the status field out of the health body when present.
// Best-effort only, the classification never depends on it.
func serviceStatus(resp *http.Response) string {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ""
	}
	return body.Status
}
