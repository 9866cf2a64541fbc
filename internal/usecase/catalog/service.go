package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/etfolio/etfolio-backend/internal/domain"
)

// Service maintains the canonical instrument catalog. It is the only writer
// of instruments and listings; every external sighting, whether from a data
// feed or a user-entered transaction, passes through its upsert operations.
type Service struct {
	InstrumentRepo domain.InstrumentRepository
	ListingRepo    domain.ListingRepository
	ExchangeRepo   domain.ExchangeRepository
}

// NewService creates a new catalog Service instance
func NewService(
	instrumentRepo domain.InstrumentRepository,
	listingRepo domain.ListingRepository,
	exchangeRepo domain.ExchangeRepository,
) *Service {
	return &Service{
		InstrumentRepo: instrumentRepo,
		ListingRepo:    listingRepo,
		ExchangeRepo:   exchangeRepo,
	}
}

// UpsertInstrument creates the instrument on first sight, or applies the
// ranked-priority merge policy to an existing record:
//   - a strictly higher priority source overwrites name, source and the
//     temporary flag
//   - an equal priority source with a differing name flags a conflict without
//     overwriting
//   - anything else refreshes last-seen only
//
// The returned bool reports whether a new instrument was created.
func (s *Service) UpsertInstrument(
	ctx context.Context,
	isin, name string,
	source domain.NameSource,
	temporary bool,
) (*domain.Instrument, bool, error) {
	isin = strings.TrimSpace(isin)
	if isin == "" {
		return nil, false, domain.NewValidationError("instrument identifier is invalid", map[string]string{
			"isin": "isin must not be empty",
		})
	}

	existing, err := s.InstrumentRepo.GetByISIN(ctx, isin)
	if err != nil && !domain.IsNotFound(err) {
		return nil, false, err
	}
	if domain.IsNotFound(err) {
		existing = nil
	}

	now := time.Now()

	switch domain.DecideNameMerge(existing, name, source) {
	case domain.MergeCreate:
		instrument := &domain.Instrument{
			ISIN:          isin,
			Name:          name,
			NameSource:    source,
			ISINTemporary: temporary,
			FirstSeenAt:   now,
			LastSeenAt:    now,
		}
		if err := s.InstrumentRepo.Create(ctx, instrument); err != nil {
			return nil, false, err
		}
		return instrument, true, nil

	case domain.MergeOverwrite:
		existing.Name = name
		existing.NameSource = source
		existing.ISINTemporary = temporary
		existing.LastSeenAt = now

	case domain.MergeFlagConflict:
		existing.NameConflict = true
		existing.LastSeenAt = now

	case domain.MergeRefreshOnly:
		existing.LastSeenAt = now
	}

	if err := s.InstrumentRepo.Update(ctx, existing); err != nil {
		return nil, false, err
	}

	return existing, false, nil
}

// UpsertListing creates the listing on first sight of the (isin, exchange)
// pair, or refreshes it. Listing-level fields are expected to be stable per
// venue, so updates are last-write-wins and conflicts are not tracked.
// Fails with NotFound if the exchange is unknown. The returned bool reports
// whether a new listing was created.
func (s *Service) UpsertListing(
	ctx context.Context,
	isin string,
	exchangeID uuid.UUID,
	ticker, currency, sourceSystem string,
) (*domain.Listing, bool, error) {
	isin = strings.TrimSpace(isin)
	if isin == "" {
		return nil, false, domain.NewValidationError("instrument identifier is invalid", map[string]string{
			"isin": "isin must not be empty",
		})
	}

	// A listing cannot reference an unknown venue
	if _, err := s.ExchangeRepo.GetByID(ctx, exchangeID); err != nil {
		return nil, false, err
	}

	now := time.Now()

	existing, err := s.ListingRepo.GetByISINAndExchange(ctx, isin, exchangeID)
	if err != nil && !domain.IsNotFound(err) {
		return nil, false, err
	}

	if domain.IsNotFound(err) {
		listing := &domain.Listing{
			ID:              uuid.New(),
			ISIN:            isin,
			ExchangeID:      exchangeID,
			Ticker:          ticker,
			TradingCurrency: currency,
			Status:          domain.ListingStatusActive,
			SourceSystem:    sourceSystem,
			FirstSeenAt:     now,
			LastSeenAt:      now,
		}
		if err := s.ListingRepo.Create(ctx, listing); err != nil {
			return nil, false, err
		}
		return listing, true, nil
	}

	existing.Ticker = ticker
	existing.TradingCurrency = currency
	existing.SourceSystem = sourceSystem
	existing.LastSeenAt = now

	if err := s.ListingRepo.Update(ctx, existing); err != nil {
		return nil, false, err
	}

	return existing, false, nil
}
