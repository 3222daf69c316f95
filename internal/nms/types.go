package nms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	alarms "optinet-monitor/internal/alarms/domain"
	inventory "optinet-monitor/internal/inventory/domain"
	telemetry "optinet-monitor/internal/telemetry/domain"
)

// The NMS returns loosely typed JSON: serials arrive as strings or integers,
// timestamps as epoch seconds or formatted strings, and several fields under
// deployment-dependent aliases. The DTOs below absorb that variance before
// anything reaches the domain types.

type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("nms: unexpected string value %q", data)
	}
	*s = flexString(n.String())
	return nil
}

func (s flexString) String() string { return string(s) }

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		var n json.Number = json.Number(v)
		parsed, err := n.Float64()
		if err != nil {
			return fmt.Errorf("nms: unexpected numeric value %q", v)
		}
		*f = flexFloat(parsed)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexTime accepts epoch seconds and the timestamp formats observed on the
// NMS ("2006-01-02 15:04:05" and RFC 3339). Anything else decodes to the
// zero time so callers can substitute a fallback.
type flexTime struct {
	time.Time
}

const nmsTimeLayout = "2006-01-02 15:04:05"

func (t *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		if parsed, err := time.Parse(nmsTimeLayout, v); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		t.Time = time.Time{}
		return nil
	}
	var epoch float64
	if err := json.Unmarshal(data, &epoch); err != nil {
		t.Time = time.Time{}
		return nil
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	t.Time = time.Unix(sec, nsec).UTC()
	return nil
}

type cardDTO struct {
	Serial      flexString `json:"cardSerial"`
	Part        flexString `json:"cardPart"`
	Family      flexString `json:"cardFamily"`
	Model       flexString `json:"cardModel"`
	Site        flexString `json:"locationSite"`
	Slot        *int       `json:"slotNumber"`
	Status      flexString `json:"status"`
	InstalledAt flexTime   `json:"installedAt"`
	LastUpdated flexTime   `json:"lastUpdated"`
}

func (d cardDTO) toDomain(now time.Time) inventory.Card {
	card := inventory.Card{
		Serial:      d.Serial.String(),
		Part:        d.Part.String(),
		Family:      d.Family.String(),
		Model:       d.Model.String(),
		Site:        d.Site.String(),
		Status:      d.Status.String(),
		InstalledAt: d.InstalledAt.Time,
		UpdatedAt:   d.LastUpdated.Time,
	}
	if d.Slot != nil {
		card.Slot = *d.Slot
	}
	if card.Status == "" {
		card.Status = "UNKNOWN"
	}
	if card.UpdatedAt.IsZero() {
		card.UpdatedAt = now
	}
	return card
}

type measurementDTO struct {
	CardSerial flexString `json:"cardSerial"`
	CardPart   flexString `json:"cardPart"`
	Site       flexString `json:"locationSite"`
	MeasureKey flexString `json:"measureKey"`
	Name       flexString `json:"measureName"`
	Value      flexFloat  `json:"measureValue"`
	Unit       flexString `json:"measureUnit"`
	Group      flexString `json:"measureGroup"`
	Quality    flexString `json:"quality"`
	Timestamp  flexTime   `json:"timestamp"`
	UpdatedAt  flexTime   `json:"updatedAt"`
}

func (d measurementDTO) toDomain(now time.Time) telemetry.Measurement {
	at := d.Timestamp.Time
	if at.IsZero() {
		at = d.UpdatedAt.Time
	}
	if at.IsZero() {
		at = now
	}
	quality := d.Quality.String()
	if quality == "" {
		quality = telemetry.QualityGood
	}
	return telemetry.Measurement{
		Time:       at,
		CardSerial: d.CardSerial.String(),
		CardPart:   d.CardPart.String(),
		Site:       d.Site.String(),
		MeasureKey: d.MeasureKey.String(),
		Name:       d.Name.String(),
		Value:      float64(d.Value),
		Unit:       d.Unit.String(),
		Group:      d.Group.String(),
		Quality:    quality,
	}
}

type alarmDTO struct {
	ID            flexString `json:"id"`
	AlarmID       flexString `json:"alarmId"`
	AlarmUID      flexString `json:"alarmUid"`
	AlarmGroup    flexString `json:"alarmGroup"`
	Type          flexString `json:"type"`
	AlarmType     flexString `json:"alarmType"`
	AlarmSeverity flexString `json:"alarmSeverity"`
	Severity      flexString `json:"severity"`
	CardSerial    flexString `json:"cardSerial"`
	Site          flexString `json:"locationSite"`
	AlarmName     flexString `json:"alarmName"`
	Description   flexString `json:"description"`
	StartDate     flexTime   `json:"alarmStartDate"`
	TriggeredAt   flexTime   `json:"triggeredAt"`
	Timestamp     flexTime   `json:"timestamp"`
	Status        flexString `json:"status"`
}

func (d alarmDTO) toDomain(now time.Time) alarms.Alarm {
	triggeredAt := d.StartDate.Time
	if triggeredAt.IsZero() {
		triggeredAt = d.TriggeredAt.Time
	}
	if triggeredAt.IsZero() {
		triggeredAt = d.Timestamp.Time
	}
	if triggeredAt.IsZero() {
		triggeredAt = now
	}
	alarm := alarms.Alarm{
		ID:          firstNonEmpty(d.ID.String(), d.AlarmID.String(), d.AlarmUID.String()),
		Type:        firstNonEmpty(d.AlarmGroup.String(), d.Type.String(), d.AlarmType.String(), "UNKNOWN"),
		Severity:    firstNonEmpty(d.AlarmSeverity.String(), d.Severity.String(), "UNKNOWN"),
		CardSerial:  d.CardSerial.String(),
		Site:        d.Site.String(),
		Description: firstNonEmpty(d.AlarmName.String(), d.Description.String()),
		Status:      firstNonEmpty(d.Status.String(), alarms.StatusActive),
		TriggeredAt: triggeredAt,
	}
	return alarm
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
