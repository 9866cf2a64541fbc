// Package holdings derives position snapshots from transaction history.
// Compute is a pure transform: identical input always yields identical
// output, so holdings can be safely re-derived after any ledger edit.
package holdings

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/etfolio/etfolio-backend/internal/domain"
)

// PriceFn supplies the current price for a listing, if one is known. The
// calculator never fetches prices itself; positions without a known price are
// marked at cost.
type PriceFn func(listingID uuid.UUID) (decimal.Decimal, bool)

var hundred = decimal.NewFromInt(100)

type position struct {
	quantity  decimal.Decimal
	totalCost decimal.Decimal
	currency  string
}

// Compute scans the transaction history in date order and aggregates one
// average-cost position per listing:
//
//	BUY:  quantity += qty, totalCost += qty*price + fees
//	SELL: quantity -= qty, totalCost -= qty*price - fees
//
// Fees increase cost basis on BUY and reduce proceeds on SELL. Fully closed
// positions (quantity <= 0) produce no holding row. A second pass assigns
// each holding its allocation share of the total market value; all
// allocations are zero when the total is zero. Output order follows first
// appearance in the date-ordered scan.
func Compute(transactions []*domain.Transaction, priceOf PriceFn) []domain.Holding {
	sorted := make([]*domain.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	positions := make(map[uuid.UUID]*position)
	var order []uuid.UUID

	for _, tx := range sorted {
		pos, ok := positions[tx.ListingID]
		if !ok {
			pos = &position{currency: tx.Currency}
			positions[tx.ListingID] = pos
			order = append(order, tx.ListingID)
		}

		gross := tx.Quantity.Mul(tx.PricePerUnit)
		switch tx.Type {
		case domain.TransactionTypeBuy:
			pos.quantity = pos.quantity.Add(tx.Quantity)
			pos.totalCost = pos.totalCost.Add(gross.Add(tx.Fees))
		case domain.TransactionTypeSell:
			pos.quantity = pos.quantity.Sub(tx.Quantity)
			pos.totalCost = pos.totalCost.Sub(gross.Sub(tx.Fees))
		}
	}

	var result []domain.Holding
	totalMarketValue := decimal.Zero

	for _, listingID := range order {
		pos := positions[listingID]
		if !pos.quantity.IsPositive() {
			continue
		}

		avgPrice := pos.totalCost.Div(pos.quantity)

		currentPrice := avgPrice
		if priceOf != nil {
			if price, ok := priceOf(listingID); ok {
				currentPrice = price
			}
		}

		marketValue := pos.quantity.Mul(currentPrice)
		gainLoss := marketValue.Sub(pos.totalCost)

		gainLossPercent := decimal.Zero
		if !pos.totalCost.IsZero() {
			gainLossPercent = gainLoss.Div(pos.totalCost).Mul(hundred)
		}

		result = append(result, domain.Holding{
			ListingID:       listingID,
			Quantity:        pos.quantity,
			AvgPrice:        avgPrice,
			CurrentPrice:    currentPrice,
			MarketValue:     marketValue,
			TotalCost:       pos.totalCost,
			GainLoss:        gainLoss,
			GainLossPercent: gainLossPercent,
			Currency:        pos.currency,
		})
		totalMarketValue = totalMarketValue.Add(marketValue)
	}

	if totalMarketValue.IsPositive() {
		for i := range result {
			result[i].Allocation = result[i].MarketValue.Div(totalMarketValue).Mul(hundred)
		}
	}

	return result
}
