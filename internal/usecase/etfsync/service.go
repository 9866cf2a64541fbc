package etfsync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/etfolio/etfolio-backend/internal/domain"
	"github.com/etfolio/etfolio-backend/internal/usecase/catalog"
)

const (
	// maxEnrichmentBatch bounds one enrichment batch per venue.
	maxEnrichmentBatch = 100

	// maxErrorMessages bounds the error detail retained in run statistics.
	maxErrorMessages = 25

	defaultRatePerMinute = 60
)

// SourceSystemFeed tags catalog entries written by the feed sync.
const SourceSystemFeed = "TWELVE_DATA"

// Config controls one sync run.
type Config struct {
	// RatePerMinute bounds outbound requests to the primary feed.
	RatePerMinute int
	// Exchanges restricts the run to these MIC codes; empty means all known.
	Exchanges []string
}

// Stats accumulates the outcome of one sync run. A run always completes and
// returns its stats, even under partial failure; the accumulator is owned by
// the single run and never shared.
type Stats struct {
	TotalRecords       int
	InstrumentsCreated int
	InstrumentsUpdated int
	ListingsCreated    int
	ListingsUpdated    int
	TemporaryISINs     int
	Enriched           int
	Errors             int
	ErrorMessages      []string
}

func (st *Stats) recordError(msg string) {
	st.Errors++
	if len(st.ErrorMessages) < maxErrorMessages {
		st.ErrorMessages = append(st.ErrorMessages, msg)
	}
}

// Service orchestrates catalog synchronization: per venue, fetch listings
// from the primary feed, enrich them in one batch, resolve each record's
// identity and upsert it into the catalog. Re-running with identical feed
// data is idempotent.
type Service struct {
	exchangeRepo domain.ExchangeRepository
	catalog      *catalog.Service
	feed         ListingFeed
	enricher     EnrichmentFeed
	log          zerolog.Logger

	// wait paces venue fetches; overridable in tests
	wait func(ctx context.Context, d time.Duration)
}

// NewService creates a new sync Service instance
func NewService(
	exchangeRepo domain.ExchangeRepository,
	catalogService *catalog.Service,
	feed ListingFeed,
	enricher EnrichmentFeed,
	log zerolog.Logger,
) *Service {
	return &Service{
		exchangeRepo: exchangeRepo,
		catalog:      catalogService,
		feed:         feed,
		enricher:     enricher,
		log:          log.With().Str("component", "etfsync").Logger(),
		wait:         defaultWait,
	}
}

func defaultWait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Run executes one sync pass over the configured venues. Per-record and
// per-venue failures are recorded in the returned stats and never abort the
// run; only context cancellation cuts it short, and even then the stats
// accumulated so far are returned.
func (s *Service) Run(ctx context.Context, cfg Config) (*Stats, error) {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = defaultRatePerMinute
	}

	stats := &Stats{}

	exchanges, err := s.exchangeRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list exchanges: %w", err)
	}
	selected := selectExchanges(exchanges, cfg.Exchanges)

	// Delay between venue fetches, not between individual records
	delay := time.Minute / time.Duration(cfg.RatePerMinute)

	s.log.Info().
		Int("exchanges", len(selected)).
		Int("rate_per_minute", cfg.RatePerMinute).
		Msg("starting ETF sync")

	for i, exchange := range selected {
		s.syncExchange(ctx, exchange, stats)

		if i < len(selected)-1 {
			s.wait(ctx, delay)
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
	}

	s.log.Info().
		Int("total_records", stats.TotalRecords).
		Int("instruments_created", stats.InstrumentsCreated).
		Int("instruments_updated", stats.InstrumentsUpdated).
		Int("listings_created", stats.ListingsCreated).
		Int("listings_updated", stats.ListingsUpdated).
		Int("temporary_isins", stats.TemporaryISINs).
		Int("enriched", stats.Enriched).
		Int("errors", stats.Errors).
		Msg("ETF sync complete")

	return stats, nil
}

func selectExchanges(all []*domain.Exchange, mics []string) []*domain.Exchange {
	if len(mics) == 0 {
		return all
	}
	wanted := make(map[string]bool, len(mics))
	for _, mic := range mics {
		wanted[mic] = true
	}
	var selected []*domain.Exchange
	for _, exchange := range all {
		if wanted[exchange.MIC] {
			selected = append(selected, exchange)
		}
	}
	return selected
}

// syncExchange processes one venue. A fetch failure aborts only this venue;
// a record failure aborts only that record.
func (s *Service) syncExchange(ctx context.Context, exchange *domain.Exchange, stats *Stats) {
	log := s.log.With().Str("mic", exchange.MIC).Logger()

	records, err := s.feed.FetchListings(ctx, exchange.MIC)
	if err != nil {
		stats.recordError(fmt.Sprintf("%s: %v", exchange.MIC, err))
		log.Warn().Err(err).Msg("venue fetch failed, skipping")
		return
	}

	// Records without a ticker cannot get a temporary identifier
	valid := records[:0:0]
	for _, record := range records {
		if record.Symbol != "" {
			valid = append(valid, record)
		}
	}
	log.Debug().Int("fetched", len(records)).Int("valid", len(valid)).Msg("fetched listings")

	enriched := s.enrich(ctx, exchange.MIC, valid, stats)

	for _, record := range valid {
		stats.TotalRecords++

		var enrichment *EnrichmentResult
		if result, ok := enriched[record.Symbol]; ok {
			enrichment = &result
		}

		identity := resolveIdentity(record, exchange.MIC, enrichment)
		if identity.Temporary {
			stats.TemporaryISINs++
		}

		_, created, err := s.catalog.UpsertInstrument(ctx, identity.ISIN, identity.Name, domain.NameSourceFallback, identity.Temporary)
		if err != nil {
			stats.recordError(fmt.Sprintf("%s: %v", record.Symbol, err))
			continue
		}
		if created {
			stats.InstrumentsCreated++
		} else {
			stats.InstrumentsUpdated++
		}

		_, created, err = s.catalog.UpsertListing(ctx, identity.ISIN, exchange.ID, record.Symbol, record.Currency, SourceSystemFeed)
		if err != nil {
			stats.recordError(fmt.Sprintf("%s: %v", record.Symbol, err))
			continue
		}
		if created {
			stats.ListingsCreated++
		} else {
			stats.ListingsUpdated++
		}
	}
}

// enrich issues one bounded lookup batch for a venue's records and returns
// successful results keyed by ticker. Enrichment failures are non-fatal.
func (s *Service) enrich(ctx context.Context, micCode string, records []FeedRecord, stats *Stats) map[string]EnrichmentResult {
	if s.enricher == nil || len(records) == 0 {
		return nil
	}

	batch := records
	if len(batch) > maxEnrichmentBatch {
		batch = batch[:maxEnrichmentBatch]
	}

	requests := make([]EnrichmentRequest, 0, len(batch))
	for _, record := range batch {
		requests = append(requests, EnrichmentRequest{
			Ticker:   record.Symbol,
			MICCode:  micCode,
			Currency: record.Currency,
		})
	}

	results, err := s.enricher.Lookup(ctx, requests)
	if err != nil {
		stats.recordError(fmt.Sprintf("%s: enrichment failed: %v", micCode, err))
		s.log.Warn().Err(err).Str("mic", micCode).Msg("enrichment failed, continuing without")
		return nil
	}

	enriched := make(map[string]EnrichmentResult, len(results))
	for _, result := range results {
		if result.Success {
			enriched[result.Ticker] = result
			stats.Enriched++
		}
	}
	return enriched
}
