package domain

import (
	"time"

	"github.com/google/uuid"
)

// ListingStatus represents the trading status of a listing. Transitions move
// toward terminal states, but a later sync pass may revive a listing the feed
// still reports as active.
type ListingStatus string

const (
	ListingStatusActive     ListingStatus = "ACTIVE"
	ListingStatusTerminated ListingStatus = "TERMINATED"
	ListingStatusCancelled  ListingStatus = "CANCELLED"
	ListingStatusSuspended  ListingStatus = "SUSPENDED"
)

// Listing is one instrument as traded on one exchange. The (ISIN, ExchangeID)
// pair is unique; a listing cannot exist without its parent instrument.
type Listing struct {
	ID              uuid.UUID
	ISIN            string
	ExchangeID      uuid.UUID
	Ticker          string
	TradingCurrency string
	Status          ListingStatus
	SourceSystem    string
	FirstSeenAt     time.Time
	LastSeenAt      time.Time
}
