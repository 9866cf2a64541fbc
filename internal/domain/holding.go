package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Holding is a derived snapshot of one open position: quantity held, average
// cost and current valuation for a single listing. Holdings are recomputed on
// demand from the transaction log and never persisted.
type Holding struct {
	ListingID       uuid.UUID
	Quantity        decimal.Decimal
	AvgPrice        decimal.Decimal
	CurrentPrice    decimal.Decimal
	MarketValue     decimal.Decimal
	TotalCost       decimal.Decimal
	GainLoss        decimal.Decimal
	GainLossPercent decimal.Decimal
	Allocation      decimal.Decimal
	Currency        string
}
