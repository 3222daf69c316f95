package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"optinet-monitor/internal/eventing"
	telemetry "optinet-monitor/internal/telemetry/domain"
)

// MeasurementProcessor evaluates one measurement against the rule set.
type MeasurementProcessor interface {
	ProcessMeasurement(ctx context.Context, m telemetry.Measurement) error
}

// MeasurementConsumer adapts measurement_collected events into the rule
// evaluation engine.
type MeasurementConsumer struct {
	engine MeasurementProcessor
}

// NewMeasurementConsumer constructs a consumer.
func NewMeasurementConsumer(engine MeasurementProcessor) (*MeasurementConsumer, error) {
	if engine == nil {
		return nil, errors.New("measurement consumer: nil engine")
	}
	return &MeasurementConsumer{engine: engine}, nil
}

// Handle processes one envelope from the measurements channel. Events of any
// other type are acknowledged without processing.
func (c *MeasurementConsumer) Handle(ctx context.Context, env eventing.Envelope) error {
	if env.EventType != eventing.EventMeasurementCollected {
		return nil
	}
	var payload eventing.MeasurementCollected
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return fmt.Errorf("measurement consumer: decode payload: %w", err)
	}
	measurement := telemetry.Measurement{
		Time:       env.Timestamp,
		CardSerial: payload.CardSerial,
		MeasureKey: payload.MeasureKey,
		Value:      payload.MeasureValue,
		Unit:       payload.MeasureUnit,
		Site:       payload.LocationSite,
	}
	return c.engine.ProcessMeasurement(ctx, measurement)
}
