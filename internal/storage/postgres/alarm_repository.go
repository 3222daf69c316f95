package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alarms "optinet-monitor/internal/alarms/domain"
)

// AlarmRepository is a Postgres repository for alarm records.
type AlarmRepository struct {
	db *sql.DB
}

// NewAlarmRepository constructs a repository.
func NewAlarmRepository(db *sql.DB) *AlarmRepository {
	return &AlarmRepository{db: db}
}

// Create inserts a locally-raised alarm. Re-raising the same id reactivates
// it with a fresh trigger time.
func (r *AlarmRepository) Create(ctx context.Context, alarm *alarms.Alarm) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	if alarm == nil || alarm.ID == "" {
		return errors.New("alarm repo: invalid alarm")
	}
	if alarm.TriggeredAt.IsZero() {
		alarm.TriggeredAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alarms (
	alarm_id, alarm_type, severity, card_serial,
	location_site, description, status, rule_id, measure_key, triggered_at
) VALUES (
	$1, $2, $3, $4,
	$5, $6, 'ACTIVE', $7, $8, $9
)
ON CONFLICT (alarm_id) DO UPDATE SET
	status = 'ACTIVE',
	triggered_at = EXCLUDED.triggered_at,
	cleared_at = NULL`,
		alarm.ID, alarm.Type, alarm.Severity, alarm.CardSerial,
		alarm.Site, alarm.Description, nullString(alarm.RuleID), nullString(alarm.MeasureKey),
		alarm.TriggeredAt.UTC())
	return err
}

// Upsert mirrors one remote alarm. Severity, status and description follow
// the remote record; the stored trigger time is never rewritten.
func (r *AlarmRepository) Upsert(ctx context.Context, alarm *alarms.Alarm) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	if alarm == nil || alarm.ID == "" {
		return errors.New("alarm repo: invalid alarm")
	}
	if alarm.TriggeredAt.IsZero() {
		alarm.TriggeredAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alarms (
	alarm_id, alarm_type, severity, card_serial,
	location_site, description, status, triggered_at
) VALUES (
	$1, $2, $3, $4,
	$5, $6, $7, $8
)
ON CONFLICT (alarm_id) DO UPDATE SET
	severity = EXCLUDED.severity,
	status = EXCLUDED.status,
	description = EXCLUDED.description`,
		alarm.ID, alarm.Type, alarm.Severity, alarm.CardSerial,
		alarm.Site, alarm.Description, alarm.Status, alarm.TriggeredAt.UTC())
	return err
}

// ActiveIDs returns ids of every alarm currently in ACTIVE status.
func (r *AlarmRepository) ActiveIDs(ctx context.Context) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT alarm_id FROM alarms WHERE status = 'ACTIVE'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkCleared transitions the given alarms to CLEARED and stamps the clear
// time. It returns how many rows actually changed.
func (r *AlarmRepository) MarkCleared(ctx context.Context, ids []string, clearedAt time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("alarm repo: nil db")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alarms
SET status = 'CLEARED',
	cleared_at = $1
WHERE alarm_id = ANY($2) AND status <> 'CLEARED'`, clearedAt.UTC(), ids)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Acknowledge marks one alarm as seen by an operator.
func (r *AlarmRepository) Acknowledge(ctx context.Context, alarmID string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	if alarmID == "" {
		return errors.New("alarm repo: empty alarm id")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE alarms
SET status = 'ACKNOWLEDGED',
	acknowledged_at = $1
WHERE alarm_id = $2`, at.UTC(), alarmID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alarms.ErrNotFound
	}
	return nil
}

// ListActive returns all ACTIVE alarms, newest first.
func (r *AlarmRepository) ListActive(ctx context.Context) ([]alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT alarm_id, alarm_type, severity, card_serial,
	location_site, description, status, rule_id, measure_key,
	triggered_at, cleared_at, acknowledged_at
FROM alarms
WHERE status = 'ACTIVE'
ORDER BY triggered_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Alarm
	for rows.Next() {
		var alarm alarms.Alarm
		var site, description, ruleID, measureKey sql.NullString
		var clearedAt, acknowledgedAt sql.NullTime
		if err := rows.Scan(
			&alarm.ID,
			&alarm.Type,
			&alarm.Severity,
			&alarm.CardSerial,
			&site,
			&description,
			&alarm.Status,
			&ruleID,
			&measureKey,
			&alarm.TriggeredAt,
			&clearedAt,
			&acknowledgedAt,
		); err != nil {
			return nil, err
		}
		alarm.Site = site.String
		alarm.Description = description.String
		alarm.RuleID = ruleID.String
		alarm.MeasureKey = measureKey.String
		alarm.TriggeredAt = alarm.TriggeredAt.UTC()
		if clearedAt.Valid {
			alarm.ClearedAt = clearedAt.Time.UTC()
		}
		if acknowledgedAt.Valid {
			alarm.AcknowledgedAt = acknowledgedAt.Time.UTC()
		}
		result = append(result, alarm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
