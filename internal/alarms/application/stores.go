package application

import (
	"context"
	"time"

	alarms "optinet-monitor/internal/alarms/domain"
	"optinet-monitor/internal/eventing"
	telemetry "optinet-monitor/internal/telemetry/domain"
)

// RuleStore loads alert rules. Rules are owned by an external configuration
// surface; the engine only reads them.
type RuleStore interface {
	ListEnabled(ctx context.Context) ([]alarms.AlertRule, error)
}

// AlarmStore persists alarm records.
type AlarmStore interface {
	Create(ctx context.Context, alarm *alarms.Alarm) error
	Upsert(ctx context.Context, alarm *alarms.Alarm) error
	ActiveIDs(ctx context.Context) ([]string, error)
	MarkCleared(ctx context.Context, ids []string, clearedAt time.Time) (int, error)
	ListActive(ctx context.Context) ([]alarms.Alarm, error)
}

// MeasurementHistory reads stored measurements for trend evaluation,
// ordered oldest to newest.
type MeasurementHistory interface {
	History(ctx context.Context, cardSerial, measureKey string, window time.Duration) ([]telemetry.Measurement, error)
}

// LatestReader returns the latest known measurement per (card, measure key).
type LatestReader interface {
	Latest(ctx context.Context) ([]telemetry.Measurement, error)
}

// EventPublisher pushes lifecycle events onto the message channel.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, env eventing.Envelope) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
