package domain

import (
	"github.com/google/uuid"
)

// Exchange represents a trading venue, identified by its ISO 10383 market
// identifier code (MIC). Exchanges are static reference data: the core reads
// them but never mutates them outside seeding.
type Exchange struct {
	ID       uuid.UUID
	MIC      string
	Name     string
	Country  string
	Currency string
	Timezone string
}
