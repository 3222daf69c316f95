package alarms

import (
	"crypto/sha1"
	"encoding/hex"
	"time"
)

const (
	StatusActive       = "ACTIVE"
	StatusAcknowledged = "ACKNOWLEDGED"
	StatusCleared      = "CLEARED"
)

const (
	TypeThresholdExceeded   = "THRESHOLD_EXCEEDED"
	TypeDegradationDetected = "DEGRADATION_DETECTED"
)

// Alarm represents an alarm instance, either raised locally from a rule
// evaluation or mirrored from the remote NMS.
type Alarm struct {
	ID             string    `json:"alarm_id"`
	Type           string    `json:"alarm_type"`
	Severity       string    `json:"severity"`
	CardSerial     string    `json:"card_serial"`
	Site           string    `json:"location_site"`
	Description    string    `json:"description"`
	Status         string    `json:"status"`
	RuleID         string    `json:"rule_id,omitempty"`
	MeasureKey     string    `json:"measure_key,omitempty"`
	TriggeredAt    time.Time `json:"triggered_at"`
	ClearedAt      time.Time `json:"cleared_at,omitempty"`
	AcknowledgedAt time.Time `json:"acknowledged_at,omitempty"`
}

// Open reports whether the alarm has not reached a terminal status.
func (a Alarm) Open() bool {
	return a.Status != StatusCleared
}

// DeriveAlarmID computes a deterministic id for a remote alarm that carries no
// id of its own. Two fetches of the same logical alarm yield the same id, so
// upserts stay idempotent.
func DeriveAlarmID(cardSerial, alarmType string, triggeredAt time.Time) string {
	sum := sha1.Sum([]byte(cardSerial + "|" + alarmType + "|" + triggeredAt.UTC().Format(time.RFC3339)))
	return "alarm-" + hex.EncodeToString(sum[:8])
}
