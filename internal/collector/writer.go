package collector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"optinet-monitor/internal/eventing"
	inventory "optinet-monitor/internal/inventory/domain"
	telemetry "optinet-monitor/internal/telemetry/domain"
)

// CardStore persists the card inventory.
type CardStore interface {
	Upsert(ctx context.Context, card *inventory.Card) error
	ListAll(ctx context.Context) ([]inventory.Card, error)
}

// MeasurementStore persists telemetry points.
type MeasurementStore interface {
	Insert(ctx context.Context, m *telemetry.Measurement) error
}

// LatestWriter tracks the latest value per (card, measure key).
type LatestWriter interface {
	Set(ctx context.Context, m telemetry.Measurement) error
}

// EventPublisher pushes collection events onto the message channel.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, env eventing.Envelope) error
}

// Writer is the single write path for fetched inventory and telemetry. The
// durable insert decides success; the latest-value cache and the event
// publish are best-effort side effects.
type Writer struct {
	cards        CardStore
	measurements MeasurementStore
	latest       LatestWriter
	publisher    EventPublisher
	logger       *zap.Logger
}

// WriterOption customizes the writer.
type WriterOption func(*Writer)

// WithLatestWriter attaches a latest-value cache.
func WithLatestWriter(latest LatestWriter) WriterOption {
	return func(w *Writer) {
		w.latest = latest
	}
}

// NewWriter constructs a writer.
func NewWriter(cards CardStore, measurements MeasurementStore, publisher EventPublisher, logger *zap.Logger, opts ...WriterOption) (*Writer, error) {
	if cards == nil || measurements == nil {
		return nil, errors.New("writer: nil store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &Writer{
		cards:        cards,
		measurements: measurements,
		publisher:    publisher,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(writer)
	}
	return writer, nil
}

// UpsertCard persists one inventory card.
func (w *Writer) UpsertCard(ctx context.Context, card inventory.Card) error {
	if err := w.cards.Upsert(ctx, &card); err != nil {
		return fmt.Errorf("writer: upsert card %s: %w", card.Serial, err)
	}
	return nil
}

// StoreMeasurement persists one measurement, refreshes the latest-value
// cache and announces the point on the measurements topic.
func (w *Writer) StoreMeasurement(ctx context.Context, m telemetry.Measurement) error {
	if err := w.measurements.Insert(ctx, &m); err != nil {
		return fmt.Errorf("writer: insert measurement %s/%s: %w", m.CardSerial, m.MeasureKey, err)
	}
	if w.latest != nil {
		if err := w.latest.Set(ctx, m); err != nil {
			w.logger.Warn("latest cache update failed",
				zap.String("card_serial", m.CardSerial),
				zap.String("measure_key", m.MeasureKey),
				zap.Error(err))
		}
	}
	w.announce(ctx, m)
	return nil
}

func (w *Writer) announce(ctx context.Context, m telemetry.Measurement) {
	if w.publisher == nil {
		return
	}
	env, err := eventing.NewEnvelope(eventing.EventMeasurementCollected, eventing.MeasurementCollected{
		CardSerial:   m.CardSerial,
		MeasureKey:   m.MeasureKey,
		MeasureValue: m.Value,
		MeasureUnit:  m.Unit,
		LocationSite: m.Site,
	})
	if err != nil {
		w.logger.Error("measurement event build failed", zap.Error(err))
		return
	}
	env.Timestamp = m.Time
	if err := w.publisher.Publish(ctx, eventing.TopicMeasurementsCollected, env); err != nil {
		w.logger.Warn("measurement event publish failed",
			zap.String("card_serial", m.CardSerial),
			zap.String("measure_key", m.MeasureKey),
			zap.Error(err))
	}
}
