package seeder

import (
	"context"

	"github.com/google/uuid"

	"github.com/etfolio/etfolio-backend/internal/domain"
)

// referenceExchanges is the venue universe the application knows about.
// MIC codes follow ISO 10383.
var referenceExchanges = []domain.Exchange{
	{MIC: "XETR", Name: "Deutsche Boerse Xetra", Country: "DE", Currency: "EUR", Timezone: "Europe/Berlin"},
	{MIC: "XLON", Name: "London Stock Exchange", Country: "GB", Currency: "GBP", Timezone: "Europe/London"},
	{MIC: "XAMS", Name: "Euronext Amsterdam", Country: "NL", Currency: "EUR", Timezone: "Europe/Amsterdam"},
	{MIC: "XPAR", Name: "Euronext Paris", Country: "FR", Currency: "EUR", Timezone: "Europe/Paris"},
	{MIC: "XMIL", Name: "Borsa Italiana", Country: "IT", Currency: "EUR", Timezone: "Europe/Rome"},
	{MIC: "XSWX", Name: "SIX Swiss Exchange", Country: "CH", Currency: "CHF", Timezone: "Europe/Zurich"},
	{MIC: "XWAR", Name: "Warsaw Stock Exchange", Country: "PL", Currency: "PLN", Timezone: "Europe/Warsaw"},
	{MIC: "XNYS", Name: "New York Stock Exchange", Country: "US", Currency: "USD", Timezone: "America/New_York"},
	{MIC: "XNAS", Name: "Nasdaq", Country: "US", Currency: "USD", Timezone: "America/New_York"},
}

// ExchangeSeeder ensures the reference exchange rows exist in the database
type ExchangeSeeder struct {
	repo domain.ExchangeRepository
}

// NewExchangeSeeder creates a new ExchangeSeeder instance
func NewExchangeSeeder(repo domain.ExchangeRepository) *ExchangeSeeder {
	return &ExchangeSeeder{
		repo: repo,
	}
}

// Seed creates every reference exchange that is not already present,
// keyed by MIC. Existing rows are left untouched.
func (s *ExchangeSeeder) Seed(ctx context.Context) error {
	for _, ref := range referenceExchanges {
		_, err := s.repo.GetByMIC(ctx, ref.MIC)
		if err == nil {
			continue
		}
		if !domain.IsNotFound(err) {
			return err
		}

		exchange := ref
		exchange.ID = uuid.New()
		if err := s.repo.Create(ctx, &exchange); err != nil {
			return err
		}
	}
	return nil
}
