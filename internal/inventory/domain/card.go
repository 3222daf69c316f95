package inventory

import (
	"errors"
	"time"
)

// Card represents one optical line card in the remote inventory. Cards are
// upserted on every inventory fetch and never deleted by the collector.
type Card struct {
	Serial      string    `json:"card_serial"`
	Part        string    `json:"card_part"`
	Family      string    `json:"card_family"`
	Model       string    `json:"card_model"`
	Site        string    `json:"location_site"`
	Slot        int       `json:"slot_number"`
	Status      string    `json:"status"`
	InstalledAt time.Time `json:"installed_at,omitempty"`
	UpdatedAt   time.Time `json:"last_updated,omitempty"`
}

// Validate checks card invariants.
func (c Card) Validate() error {
	if c.Serial == "" {
		return errors.New("card: empty serial")
	}
	return nil
}
