package notify

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/dreschagin/deploy-sentinel/pkg/logger"
)

// Throttled caps the notification rate of the wrapped notifier. Critical
// events bypass the limiter; a dropped rollback notification would be worse
// than a noisy channel.
type Throttled struct {
	inner   Notifier
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewThrottled(inner Notifier, perMinute float64, burst int, log *logger.Logger) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), burst),
		log:     log,
	}
}

func (t *Throttled) Notify(ctx context.Context, event Event) error {
	if event.Severity != SeverityCritical && !t.limiter.Allow() {
		t.log.Warn("Notification dropped by rate limit",
			"type", event.Type,
			"environment", event.Environment,
		)
		return nil
	}
	return t.inner.Notify(ctx, event)
}

func (t *Throttled) Close() error {
	return t.inner.Close()
}
