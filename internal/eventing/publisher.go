package eventing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"optinet-monitor/internal/observability/metrics"
)

// Broker settings for durable delivery: QoS 1 (at-least-once) on a
// persistent session. Exactly-once is explicitly not guaranteed.
const (
	publishQoS     = 1
	publishTimeout = 10 * time.Second
)

// BrokerConfig describes the message broker connection.
type BrokerConfig struct {
	URL      string
	ClientID string
	Username string
	Password string
}

// Publisher pushes lifecycle events onto the message channel.
type Publisher struct {
	client mqtt.Client
	logger *zap.Logger
}

// NewPublisher connects to the broker and returns a publisher.
func NewPublisher(cfg BrokerConfig, logger *zap.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("eventing: empty broker url")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("eventing: broker connect: %w", token.Error())
	}
	return &Publisher{client: client, logger: logger}, nil
}

// Publish sends one envelope to a topic and waits for broker acknowledgement.
func (p *Publisher) Publish(ctx context.Context, topic string, env Envelope) error {
	if p == nil || p.client == nil {
		return errors.New("eventing: publisher not connected")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("eventing: marshal envelope: %w", err)
	}

	token := p.client.Publish(topic, publishQoS, false, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(publishTimeout):
		metrics.IncEventPublished(topic, "timeout")
		return fmt.Errorf("eventing: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		metrics.IncEventPublished(topic, "error")
		return fmt.Errorf("eventing: publish to %s: %w", topic, err)
	}
	metrics.IncEventPublished(topic, "success")
	p.logger.Debug("event published",
		zap.String("topic", topic),
		zap.String("event_type", env.EventType),
		zap.String("event_id", env.EventID))
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p != nil && p.client != nil {
		p.client.Disconnect(250)
	}
}
