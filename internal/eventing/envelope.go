package eventing

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Topics of the durable event channel.
const (
	TopicMeasurementsCollected = "measurements.collected"
	TopicAlarmsTriggered       = "alarms.triggered"
	TopicAlarmsCleared         = "alarms.cleared"
)

// Event types carried in envelopes.
const (
	EventMeasurementCollected = "measurement_collected"
	EventAlarmTriggered       = "alarm_triggered"
	EventAlarmCleared         = "alarm_cleared"
)

// Envelope wraps an event payload with delivery metadata. DeliveryAttempt is
// incremented on each redelivery so consumers can bound requeues.
type Envelope struct {
	EventID         string          `json:"event_id"`
	EventType       string          `json:"event_type"`
	Timestamp       time.Time       `json:"timestamp"`
	DeliveryAttempt int             `json:"delivery_attempt,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// MeasurementCollected is the payload of measurement_collected events.
type MeasurementCollected struct {
	CardSerial   string  `json:"card_serial"`
	MeasureKey   string  `json:"measure_key"`
	MeasureValue float64 `json:"measure_value"`
	MeasureUnit  string  `json:"measure_unit"`
	LocationSite string  `json:"location_site"`
}

// AlarmCleared is the payload of alarm_cleared events.
type AlarmCleared struct {
	AlarmID string `json:"alarm_id"`
}

// NewEnvelope builds an envelope around a payload.
func NewEnvelope(eventType string, data any) (Envelope, error) {
	if eventType == "" {
		return Envelope{}, errors.New("eventing: empty event type")
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}, nil
}
