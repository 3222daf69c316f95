package postgres

import (
	"context"
	"database/sql"
	"errors"
)

// SystemConfigRepository reads runtime configuration key/value pairs. The
// operator-facing surface writes them; the collector reloads them on demand.
type SystemConfigRepository struct {
	db *sql.DB
}

// NewSystemConfigRepository constructs a repository.
func NewSystemConfigRepository(db *sql.DB) *SystemConfigRepository {
	return &SystemConfigRepository{db: db}
}

// Load returns every configuration pair.
func (r *SystemConfigRepository) Load(ctx context.Context) (map[string]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("system config repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT config_key, config_value FROM system_config`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
