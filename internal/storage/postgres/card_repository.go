package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	inventory "optinet-monitor/internal/inventory/domain"
)

// CardRepository is a Postgres repository for the card inventory. Cards are
// upserted on every inventory sync and never deleted here.
type CardRepository struct {
	db *sql.DB
}

// NewCardRepository constructs a repository.
func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

// Upsert inserts or refreshes one card keyed by serial.
func (r *CardRepository) Upsert(ctx context.Context, card *inventory.Card) error {
	if r == nil || r.db == nil {
		return errors.New("card repo: nil db")
	}
	if card == nil {
		return errors.New("card repo: nil card")
	}
	if err := card.Validate(); err != nil {
		return err
	}
	if card.UpdatedAt.IsZero() {
		card.UpdatedAt = time.Now().UTC()
	}
	var installedAt sql.NullTime
	if !card.InstalledAt.IsZero() {
		installedAt = sql.NullTime{Time: card.InstalledAt.UTC(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO cards (
	card_serial, card_part, card_family, card_model,
	location_site, slot_number, status, installed_at, last_updated
) VALUES (
	$1, $2, $3, $4,
	$5, $6, $7, $8, $9
)
ON CONFLICT (card_serial) DO UPDATE SET
	card_part = EXCLUDED.card_part,
	card_family = EXCLUDED.card_family,
	card_model = EXCLUDED.card_model,
	location_site = EXCLUDED.location_site,
	slot_number = EXCLUDED.slot_number,
	status = EXCLUDED.status,
	last_updated = EXCLUDED.last_updated`,
		card.Serial, card.Part, card.Family, card.Model,
		card.Site, card.Slot, card.Status, installedAt, card.UpdatedAt.UTC())
	return err
}

// ListAll returns every known card ordered by site then serial.
func (r *CardRepository) ListAll(ctx context.Context) ([]inventory.Card, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("card repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT card_serial, card_part, card_family, card_model,
	location_site, slot_number, status, installed_at, last_updated
FROM cards
ORDER BY location_site, card_serial`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inventory.Card
	for rows.Next() {
		var card inventory.Card
		var installedAt sql.NullTime
		if err := rows.Scan(
			&card.Serial,
			&card.Part,
			&card.Family,
			&card.Model,
			&card.Site,
			&card.Slot,
			&card.Status,
			&installedAt,
			&card.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if installedAt.Valid {
			card.InstalledAt = installedAt.Time.UTC()
		}
		card.UpdatedAt = card.UpdatedAt.UTC()
		result = append(result, card)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
