package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dreschagin/deploy-sentinel/pkg/logger"
)

// NATSNotifier publishes monitoring events to JetStream subjects of the form
// <prefix>.<environment>.<type>.
type NATSNotifier struct {
	nc            *nats.Conn
	js            nats.JetStreamContext
	subjectPrefix string
	log           *logger.Logger
}

func NewNATSNotifier(natsURL, subjectPrefix string, log *logger.Logger) (*NATSNotifier, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}

	log.Info("Connected to NATS", "url", natsURL)

	return &NATSNotifier{
		nc:            nc,
		js:            js,
		subjectPrefix: subjectPrefix,
		log:           log,
	}, nil
}

func (n *NATSNotifier) Notify(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := Subject(n.subjectPrefix, event)

	// Async publish; monitoring never waits on the broker.
	if _, err := n.js.PublishAsync(subject, data); err != nil {
		n.log.Error("Failed to publish notification", err, "subject", subject)
		return fmt.Errorf("publish notification: %w", err)
	}

	n.log.Debug("Notification published", "subject", subject, "size", len(data))
	return nil
}

func (n *NATSNotifier) Close() error {
	if n.nc != nil {
		n.log.Info("Closing NATS connection")
		n.nc.Close()
	}
	return nil
}

// Subject builds the publish subject for an event.
func Subject(prefix string, event Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, event.Environment, event.Type)
}
