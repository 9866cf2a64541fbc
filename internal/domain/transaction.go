package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the type of ledger entry
type TransactionType string

const (
	TransactionTypeBuy  TransactionType = "BUY"
	TransactionTypeSell TransactionType = "SELL"
)

// SupportedCurrencies lists the trading currencies a transaction may carry.
// Currency is recorded per transaction but never converted.
var SupportedCurrencies = []string{"EUR", "USD", "GBP", "PLN", "CHF"}

// IsSupportedCurrency reports whether code is an accepted trading currency.
func IsSupportedCurrency(code string) bool {
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// MaxNotesLength bounds the free-text notes field.
const MaxNotesLength = 500

// Transaction is one atomic ledger entry: a BUY or SELL of a listing inside a
// portfolio. TotalAmount is derived (quantity * price + fees) and re-derived
// on every update that touches quantity, price or fees.
type Transaction struct {
	ID           uuid.UUID
	PortfolioID  uuid.UUID
	ListingID    uuid.UUID
	Type         TransactionType
	Date         time.Time
	Quantity     decimal.Decimal
	PricePerUnit decimal.Decimal
	TotalAmount  decimal.Decimal
	Currency     string
	Fees         decimal.Decimal
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ComputeTotalAmount re-derives TotalAmount from quantity, price and fees.
func (t *Transaction) ComputeTotalAmount() {
	t.TotalAmount = t.Quantity.Mul(t.PricePerUnit).Add(t.Fees)
}

// Validate ensures the transaction adheres to domain rules.
// Returns a ValidationError with a per-field reason map if it does not.
func (t *Transaction) Validate() error {
	fields := make(map[string]string)

	if t.Type != TransactionTypeBuy && t.Type != TransactionTypeSell {
		fields["type"] = "type must be BUY or SELL"
	}

	if t.Date.IsZero() {
		fields["date"] = "date is required"
	} else if t.Date.After(time.Now()) {
		fields["date"] = "date must not be in the future"
	}

	if t.Quantity.LessThanOrEqual(decimal.Zero) {
		fields["quantity"] = "quantity must be greater than 0"
	}

	if t.PricePerUnit.LessThanOrEqual(decimal.Zero) {
		fields["pricePerUnit"] = "price per unit must be greater than 0"
	}

	if !IsSupportedCurrency(t.Currency) {
		fields["currency"] = "currency must be one of EUR, USD, GBP, PLN, CHF"
	}

	if t.Fees.IsNegative() {
		fields["fees"] = "fees must not be negative"
	}

	if len(t.Notes) > MaxNotesLength {
		fields["notes"] = "notes must not exceed 500 characters"
	}

	if len(fields) > 0 {
		return NewValidationError("transaction data is invalid", fields)
	}

	return nil
}
