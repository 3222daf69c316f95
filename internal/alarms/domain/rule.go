package alarms

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

type Condition string

const (
	ConditionAbove       Condition = "ABOVE"
	ConditionBelow       Condition = "BELOW"
	ConditionRange       Condition = "RANGE"
	ConditionDegradation Condition = "DEGRADATION"
)

// DefaultHysteresis is applied when a rule does not set one.
const DefaultHysteresis = 0.5

// AlertRule defines a threshold or trend rule against one measure key.
// Rules are owned by an external configuration surface; the engine treats
// them as read-only.
type AlertRule struct {
	ID           string
	Name         string
	MeasureKey   string
	Condition    Condition
	ThresholdMin *float64
	ThresholdMax *float64
	Hysteresis   float64
	Severity     string
	Enabled      bool
	TimeWindow   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks rule invariants.
func (r AlertRule) Validate() error {
	if r.ID == "" {
		return errors.New("alert rule: empty id")
	}
	if r.Name == "" {
		return errors.New("alert rule: empty name")
	}
	if r.MeasureKey == "" {
		return errors.New("alert rule: empty measure key")
	}
	if !r.Condition.Valid() {
		return errors.New("alert rule: invalid condition")
	}
	return nil
}

// Valid returns true when the condition is supported.
func (c Condition) Valid() bool {
	switch c {
	case ConditionAbove, ConditionBelow, ConditionRange, ConditionDegradation:
		return true
	default:
		return false
	}
}

// WindowHours resolves the lookback window for DEGRADATION rules from the
// rule's time window, parsed as a leading integer (e.g. "2 hours"). Absence
// or a parse failure falls back to 1 hour.
func (r AlertRule) WindowHours() int {
	fields := strings.Fields(r.TimeWindow)
	if len(fields) == 0 {
		return 1
	}
	hours, err := strconv.Atoi(fields[0])
	if err != nil || hours <= 0 {
		return 1
	}
	return hours
}
