package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	telemetry "optinet-monitor/internal/telemetry/domain"
)

// MeasurementRepository is a Postgres repository for telemetry points stored
// in a time-partitioned measurements table.
type MeasurementRepository struct {
	db *sql.DB
}

// NewMeasurementRepository constructs a repository.
func NewMeasurementRepository(db *sql.DB) *MeasurementRepository {
	return &MeasurementRepository{db: db}
}

// Insert writes one measurement. Writes on the same (time, card serial,
// measure key) tuple are last-write-wins on value, unit, group and quality.
func (r *MeasurementRepository) Insert(ctx context.Context, m *telemetry.Measurement) error {
	if r == nil || r.db == nil {
		return errors.New("measurement repo: nil db")
	}
	if m == nil {
		return errors.New("measurement repo: nil measurement")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Time.IsZero() {
		m.Time = time.Now().UTC()
	}
	if m.Quality == "" {
		m.Quality = telemetry.QualityGood
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO measurements (
	time, card_serial, card_part, location_site,
	measure_key, measure_name, measure_value,
	measure_unit, measure_group, quality
) VALUES (
	$1, $2, $3, $4,
	$5, $6, $7,
	$8, $9, $10
)
ON CONFLICT (time, card_serial, measure_key) DO UPDATE SET
	measure_value = EXCLUDED.measure_value,
	measure_unit = EXCLUDED.measure_unit,
	measure_group = EXCLUDED.measure_group,
	quality = EXCLUDED.quality`,
		m.Time.UTC(), m.CardSerial, m.CardPart, m.Site,
		m.MeasureKey, m.Name, m.Value,
		m.Unit, m.Group, m.Quality)
	return err
}

// History returns stored values for one (card, measure key) within the
// lookback window, ordered oldest to newest.
func (r *MeasurementRepository) History(ctx context.Context, cardSerial, measureKey string, window time.Duration) ([]telemetry.Measurement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("measurement repo: nil db")
	}
	if cardSerial == "" || measureKey == "" {
		return nil, errors.New("measurement repo: invalid query")
	}
	since := time.Now().UTC().Add(-window)
	rows, err := r.db.QueryContext(ctx, `
SELECT time, card_serial, card_part, location_site,
	measure_key, measure_name, measure_value,
	measure_unit, measure_group, quality
FROM measurements
WHERE card_serial = $1 AND measure_key = $2 AND time > $3
ORDER BY time ASC`, cardSerial, measureKey, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMeasurements(rows)
}

// Latest returns the most recent measurement per (card, measure key).
func (r *MeasurementRepository) Latest(ctx context.Context) ([]telemetry.Measurement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("measurement repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT ON (card_serial, measure_key)
	time, card_serial, card_part, location_site,
	measure_key, measure_name, measure_value,
	measure_unit, measure_group, quality
FROM measurements
ORDER BY card_serial, measure_key, time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMeasurements(rows)
}

func scanMeasurements(rows *sql.Rows) ([]telemetry.Measurement, error) {
	var result []telemetry.Measurement
	for rows.Next() {
		var m telemetry.Measurement
		var part, site, name, unit, group, quality sql.NullString
		if err := rows.Scan(
			&m.Time,
			&m.CardSerial,
			&part,
			&site,
			&m.MeasureKey,
			&name,
			&m.Value,
			&unit,
			&group,
			&quality,
		); err != nil {
			return nil, err
		}
		m.Time = m.Time.UTC()
		m.CardPart = part.String
		m.Site = site.String
		m.Name = name.String
		m.Unit = unit.String
		m.Group = group.String
		m.Quality = quality.String
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
