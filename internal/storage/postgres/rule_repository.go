package postgres

import (
	"context"
	"database/sql"
	"errors"

	alarms "optinet-monitor/internal/alarms/domain"
)

// RuleRepository is a Postgres repository for alert rules. Rules are managed
// by an external configuration surface; this side only reads them.
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository constructs a repository.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListEnabled returns all enabled rules ordered by id. A rule without an
// explicit hysteresis gets the default band.
func (r *RuleRepository) ListEnabled(ctx context.Context) ([]alarms.AlertRule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("rule repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT rule_id, rule_name, measure_key, condition,
	threshold_min, threshold_max, severity, enabled, hysteresis, time_window
FROM alert_rules
WHERE enabled = TRUE
ORDER BY rule_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.AlertRule
	for rows.Next() {
		var rule alarms.AlertRule
		var condition string
		var thresholdMin, thresholdMax, hysteresis sql.NullFloat64
		var timeWindow sql.NullString
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.MeasureKey,
			&condition,
			&thresholdMin,
			&thresholdMax,
			&rule.Severity,
			&rule.Enabled,
			&hysteresis,
			&timeWindow,
		); err != nil {
			return nil, err
		}
		rule.Condition = alarms.Condition(condition)
		if thresholdMin.Valid {
			v := thresholdMin.Float64
			rule.ThresholdMin = &v
		}
		if thresholdMax.Valid {
			v := thresholdMax.Float64
			rule.ThresholdMax = &v
		}
		rule.Hysteresis = alarms.DefaultHysteresis
		if hysteresis.Valid {
			rule.Hysteresis = hysteresis.Float64
		}
		rule.TimeWindow = timeWindow.String
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
