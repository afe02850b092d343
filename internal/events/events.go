// Package events publishes delivery and engagement events to an external
// broker so other services can follow message outcomes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/msghub/internal/config"
	"github.com/foxzi/msghub/internal/metrics"
)

// Event types
const (
	TypeSent    = "message.sent"
	TypeFailed  = "message.failed"
	TypeOpened  = "message.opened"
	TypeClicked = "message.clicked"
	TypeStatus  = "message.status"
)

// Drivers
const (
	DriverNone  = "none"
	DriverRedis = "redis"
	DriverAMQP  = "amqp"
)

// Event describes one message outcome
type Event struct {
	Type           string    `json:"type"`
	OrganizationID string    `json:"organization_id,omitempty"`
	CampaignID     string    `json:"campaign_id,omitempty"`
	DeliveryID     string    `json:"delivery_id,omitempty"`
	ContactID      string    `json:"contact_id,omitempty"`
	Channel        string    `json:"channel,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	Error          string    `json:"error,omitempty"`
	URL            string    `json:"url,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// RoutingKey is the AMQP routing key of the event
func (e *Event) RoutingKey() string {
	if e.Channel == "" {
		return e.Type
	}
	return e.Type + "." + e.Channel
}

// Publisher sends events to a broker
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// New creates the publisher selected by cfg.Driver
func New(ctx context.Context, cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return Noop{}, nil
	case DriverRedis:
		return NewRedisPublisher(ctx, cfg.RedisURL, cfg.RedisChannel)
	case DriverAMQP:
		return NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	}
	return nil, fmt.Errorf("unknown events driver: %s", cfg.Driver)
}

// Noop discards every event
type Noop struct{}

func (Noop) Publish(ctx context.Context, e Event) error { return nil }
func (Noop) Close() error                               { return nil }

// PublishAll publishes events one by one. Failures are logged and counted,
// never returned: an event broker outage must not fail a send.
func PublishAll(ctx context.Context, p Publisher, driver string, logger *slog.Logger, evs []Event) {
	if p == nil {
		return
	}
	for _, e := range evs {
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		if err := p.Publish(ctx, e); err != nil {
			metrics.IncEventsPublishFailed(driver)
			if logger != nil {
				logger.Warn("failed to publish event", "type", e.Type, "error", err)
			}
		}
	}
}

func encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}
