package alarms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlertRuleValidate(t *testing.T) {
	rule := AlertRule{ID: "r1", Name: "High OSNR", MeasureKey: "OSNR", Condition: ConditionAbove}
	assert.NoError(t, rule.Validate())

	invalid := rule
	invalid.Condition = "SIDEWAYS"
	assert.Error(t, invalid.Validate())

	invalid = rule
	invalid.MeasureKey = ""
	assert.Error(t, invalid.Validate())
}

func TestWindowHours(t *testing.T) {
	cases := []struct {
		window string
		want   int
	}{
		{"2 hours", 2},
		{"24", 24},
		{"", 1},
		{"soon", 1},
		{"-3 hours", 1},
		{"0", 1},
	}
	for _, tc := range cases {
		rule := AlertRule{TimeWindow: tc.window}
		assert.Equal(t, tc.want, rule.WindowHours(), "window %q", tc.window)
	}
}

func TestDeriveAlarmIDDeterministic(t *testing.T) {
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	first := DeriveAlarmID("C1", "LOS", at)
	second := DeriveAlarmID("C1", "LOS", at)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, DeriveAlarmID("C2", "LOS", at))
	assert.NotEqual(t, first, DeriveAlarmID("C1", "LOS", at.Add(time.Second)))
}

func TestAlarmOpen(t *testing.T) {
	assert.True(t, Alarm{Status: StatusActive}.Open())
	assert.True(t, Alarm{Status: StatusAcknowledged}.Open())
	assert.False(t, Alarm{Status: StatusCleared}.Open())
}
