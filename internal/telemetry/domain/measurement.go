package telemetry

import (
	"errors"
	"time"
)

const QualityGood = "GOOD"

// Measurement is one telemetry point for a card. Identity is the
// (time, card serial, measure key) tuple; conflicting writes on the same
// tuple are last-write-wins on value, unit, group and quality.
type Measurement struct {
	Time       time.Time `json:"time"`
	CardSerial string    `json:"card_serial"`
	CardPart   string    `json:"card_part,omitempty"`
	Site       string    `json:"location_site,omitempty"`
	MeasureKey string    `json:"measure_key"`
	Name       string    `json:"measure_name,omitempty"`
	Value      float64   `json:"measure_value"`
	Unit       string    `json:"measure_unit,omitempty"`
	Group      string    `json:"measure_group,omitempty"`
	Quality    string    `json:"quality,omitempty"`
}

// Validate checks measurement invariants.
func (m Measurement) Validate() error {
	if m.CardSerial == "" {
		return errors.New("measurement: empty card serial")
	}
	if m.MeasureKey == "" {
		return errors.New("measurement: empty measure key")
	}
	return nil
}
