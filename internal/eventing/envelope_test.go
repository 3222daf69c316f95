package eventing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(EventAlarmCleared, AlarmCleared{AlarmID: "A1"})
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, EventAlarmCleared, env.EventType)
	assert.False(t, env.Timestamp.IsZero())
	assert.Zero(t, env.DeliveryAttempt)

	var payload AlarmCleared
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "A1", payload.AlarmID)
}

func TestNewEnvelopeUniqueIDs(t *testing.T) {
	first, err := NewEnvelope(EventAlarmCleared, AlarmCleared{AlarmID: "A1"})
	require.NoError(t, err)
	second, err := NewEnvelope(EventAlarmCleared, AlarmCleared{AlarmID: "A1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.EventID, second.EventID)
}

func TestNewEnvelopeRequiresEventType(t *testing.T) {
	_, err := NewEnvelope("", nil)
	assert.Error(t, err)
}
