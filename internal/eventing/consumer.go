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

// DefaultMaxDeliveries bounds redelivery of a failing message before it is
// redirected to the dead-letter topic. Without the bound, a permanently
// malformed message would requeue forever.
const DefaultMaxDeliveries = 3

// Handler processes one envelope. A non-nil error requeues the message, up
// to the delivery bound.
type Handler func(ctx context.Context, env Envelope) error

// Consumer subscribes to event topics with one-message-at-a-time processing
// and explicit acknowledgement.
type Consumer struct {
	client        mqtt.Client
	logger        *zap.Logger
	maxDeliveries int

	// publish requeues or dead-letters a message; injectable for tests.
	publish func(ctx context.Context, topic string, env Envelope) error
}

// ConsumerOption customizes a consumer.
type ConsumerOption func(*Consumer)

// WithMaxDeliveries overrides the redelivery bound.
func WithMaxDeliveries(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.maxDeliveries = n
		}
	}
}

// NewConsumer connects to the broker with a persistent session and manual
// acknowledgement enabled.
func NewConsumer(cfg BrokerConfig, logger *zap.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("eventing: empty broker url")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clientOpts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(false).
		SetOrderMatters(true).
		SetAutoAckDisabled(true)
	if cfg.Username != "" {
		clientOpts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		clientOpts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("eventing: broker connect: %w", token.Error())
	}

	consumer := &Consumer{
		client:        client,
		logger:        logger,
		maxDeliveries: DefaultMaxDeliveries,
	}
	consumer.publish = consumer.publishEnvelope
	for _, opt := range opts {
		opt(consumer)
	}
	return consumer, nil
}

// Subscribe registers a handler for a topic. Messages are acknowledged only
// after the handler outcome is decided; failures are requeued with an
// incremented delivery attempt and dead-lettered past the bound.
func (c *Consumer) Subscribe(topic string, handler Handler) error {
	if c == nil || c.client == nil {
		return errors.New("eventing: consumer not connected")
	}
	if handler == nil {
		return errors.New("eventing: nil handler")
	}
	token := c.client.Subscribe(topic, publishQoS, func(_ mqtt.Client, msg mqtt.Message) {
		c.handleMessage(context.Background(), topic, msg.Payload(), handler)
		msg.Ack()
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("eventing: subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (c *Consumer) Close() {
	if c != nil && c.client != nil {
		c.client.Disconnect(250)
	}
}

// DeadLetterTopic names the dead-letter destination for a topic.
func DeadLetterTopic(topic string) string {
	return topic + ".deadletter"
}

func (c *Consumer) handleMessage(ctx context.Context, topic string, payload []byte, handler Handler) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.logger.Error("undecodable message, dead-lettering",
			zap.String("topic", topic), zap.Error(err))
		quoted, _ := json.Marshal(string(payload))
		c.deadLetter(ctx, topic, Envelope{
			EventType: "undecodable",
			Timestamp: time.Now().UTC(),
			Data:      quoted,
		})
		return
	}

	if err := handler(ctx, env); err != nil {
		env.DeliveryAttempt++
		if env.DeliveryAttempt >= c.maxDeliveries {
			c.logger.Error("delivery bound exhausted, dead-lettering",
				zap.String("topic", topic),
				zap.String("event_id", env.EventID),
				zap.Int("attempts", env.DeliveryAttempt),
				zap.Error(err))
			c.deadLetter(ctx, topic, env)
			return
		}
		c.logger.Warn("handler failed, requeueing",
			zap.String("topic", topic),
			zap.String("event_id", env.EventID),
			zap.Int("attempt", env.DeliveryAttempt),
			zap.Error(err))
		if pubErr := c.publish(ctx, topic, env); pubErr != nil {
			c.logger.Error("requeue failed", zap.String("topic", topic), zap.Error(pubErr))
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, topic string, env Envelope) {
	metrics.IncEventDeadletter()
	if err := c.publish(ctx, DeadLetterTopic(topic), env); err != nil {
		c.logger.Error("dead-letter publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (c *Consumer) publishEnvelope(ctx context.Context, topic string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	token := c.client.Publish(topic, publishQoS, false, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(publishTimeout):
		return fmt.Errorf("eventing: publish to %s timed out", topic)
	}
	return token.Error()
}
