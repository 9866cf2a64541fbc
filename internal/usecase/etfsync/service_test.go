package etfsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etfolio/etfolio-backend/internal/domain"
	"github.com/etfolio/etfolio-backend/internal/usecase/catalog"
)

// In-memory store fakes. The idempotence property needs real state across two
// runs, which testify mocks cannot express.

type memExchangeRepo struct {
	exchanges []*domain.Exchange
}

func (r *memExchangeRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Exchange, error) {
	for _, e := range r.exchanges {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, domain.NewNotFoundError("exchange not found")
}

func (r *memExchangeRepo) GetByMIC(_ context.Context, mic string) (*domain.Exchange, error) {
	for _, e := range r.exchanges {
		if e.MIC == mic {
			return e, nil
		}
	}
	return nil, domain.NewNotFoundError("exchange not found")
}

func (r *memExchangeRepo) Create(_ context.Context, exchange *domain.Exchange) error {
	r.exchanges = append(r.exchanges, exchange)
	return nil
}

func (r *memExchangeRepo) List(_ context.Context) ([]*domain.Exchange, error) {
	return r.exchanges, nil
}

type memInstrumentRepo struct {
	mu          sync.Mutex
	instruments map[string]*domain.Instrument
}

func newMemInstrumentRepo() *memInstrumentRepo {
	return &memInstrumentRepo{instruments: make(map[string]*domain.Instrument)}
}

func (r *memInstrumentRepo) GetByISIN(_ context.Context, isin string) (*domain.Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ins, ok := r.instruments[isin]; ok {
		copied := *ins
		return &copied, nil
	}
	return nil, domain.NewNotFoundError("instrument not found")
}

func (r *memInstrumentRepo) Create(_ context.Context, instrument *domain.Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instruments[instrument.ISIN]; ok {
		return fmt.Errorf("duplicate instrument key %s", instrument.ISIN)
	}
	copied := *instrument
	r.instruments[instrument.ISIN] = &copied
	return nil
}

func (r *memInstrumentRepo) Update(_ context.Context, instrument *domain.Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *instrument
	r.instruments[instrument.ISIN] = &copied
	return nil
}

type memListingRepo struct {
	mu       sync.Mutex
	listings map[string]*domain.Listing
}

func newMemListingRepo() *memListingRepo {
	return &memListingRepo{listings: make(map[string]*domain.Listing)}
}

func listingKey(isin string, exchangeID uuid.UUID) string {
	return isin + "|" + exchangeID.String()
}

func (r *memListingRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.listings {
		if l.ID == id {
			copied := *l
			return &copied, nil
		}
	}
	return nil, domain.NewNotFoundError("listing not found")
}

func (r *memListingRepo) GetByISINAndExchange(_ context.Context, isin string, exchangeID uuid.UUID) (*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.listings[listingKey(isin, exchangeID)]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, domain.NewNotFoundError("listing not found")
}

func (r *memListingRepo) Create(_ context.Context, listing *domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := listingKey(listing.ISIN, listing.ExchangeID)
	if _, ok := r.listings[key]; ok {
		return fmt.Errorf("duplicate listing key %s", key)
	}
	copied := *listing
	r.listings[key] = &copied
	return nil
}

func (r *memListingRepo) Update(_ context.Context, listing *domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *listing
	r.listings[listingKey(listing.ISIN, listing.ExchangeID)] = &copied
	return nil
}

func (r *memListingRepo) Search(_ context.Context, query string, limit, offset int) ([]*domain.Listing, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []*domain.Listing
	for _, l := range r.listings {
		if query == "" || strings.Contains(strings.ToUpper(l.Ticker), strings.ToUpper(query)) ||
			strings.Contains(strings.ToUpper(l.ISIN), strings.ToUpper(query)) {
			copied := *l
			matches = append(matches, &copied)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Ticker < matches[j].Ticker })
	total := len(matches)
	if offset > len(matches) {
		offset = len(matches)
	}
	matches = matches[offset:]
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	return matches, total, nil
}

// Feed fakes

type fakeListingFeed struct {
	records map[string][]FeedRecord
	errs    map[string]error
	calls   []string
}

func (f *fakeListingFeed) FetchListings(_ context.Context, micCode string) ([]FeedRecord, error) {
	f.calls = append(f.calls, micCode)
	if err := f.errs[micCode]; err != nil {
		return nil, err
	}
	return f.records[micCode], nil
}

type fakeEnrichmentFeed struct {
	results map[string]EnrichmentResult // keyed by ticker
	err     error
	batches [][]EnrichmentRequest
}

func (f *fakeEnrichmentFeed) Lookup(_ context.Context, requests []EnrichmentRequest) ([]EnrichmentResult, error) {
	f.batches = append(f.batches, requests)
	if f.err != nil {
		return nil, f.err
	}
	results := make([]EnrichmentResult, len(requests))
	for i, req := range requests {
		if r, ok := f.results[req.Ticker]; ok {
			results[i] = r
		} else {
			results[i] = EnrichmentResult{Ticker: req.Ticker, MICCode: req.MICCode, Success: false, Error: "No results"}
		}
	}
	return results, nil
}

type syncFixture struct {
	service   *Service
	exchanges *memExchangeRepo
	feed      *fakeListingFeed
	enricher  *fakeEnrichmentFeed
	xetr      *domain.Exchange
	xwar      *domain.Exchange
}

func newSyncFixture() *syncFixture {
	xetr := &domain.Exchange{ID: uuid.New(), MIC: "XETR", Name: "Deutsche Boerse Xetra", Currency: "EUR"}
	xwar := &domain.Exchange{ID: uuid.New(), MIC: "XWAR", Name: "Warsaw Stock Exchange", Currency: "PLN"}

	exchanges := &memExchangeRepo{exchanges: []*domain.Exchange{xetr, xwar}}
	catalogService := catalog.NewService(newMemInstrumentRepo(), newMemListingRepo(), exchanges)
	feed := &fakeListingFeed{records: map[string][]FeedRecord{}, errs: map[string]error{}}
	enricher := &fakeEnrichmentFeed{results: map[string]EnrichmentResult{}}

	service := NewService(exchanges, catalogService, feed, enricher, zerolog.Nop())
	service.wait = func(context.Context, time.Duration) {}

	return &syncFixture{service: service, exchanges: exchanges, feed: feed, enricher: enricher, xetr: xetr, xwar: xwar}
}

func TestRun_CreatesInstrumentsAndListings(t *testing.T) {
	fx := newSyncFixture()
	fx.feed.records["XETR"] = []FeedRecord{
		{Symbol: "EUNL", Name: "iShares Core MSCI World", Currency: "EUR", ISIN: "IE00B4L5Y983"},
		{Symbol: "VWCE", Name: "Vanguard FTSE All-World", Currency: "EUR"},
	}

	stats, err := fx.service.Run(context.Background(), Config{Exchanges: []string{"XETR"}})

	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRecords)
	assert.Equal(t, 2, stats.InstrumentsCreated)
	assert.Equal(t, 2, stats.ListingsCreated)
	assert.Equal(t, 0, stats.InstrumentsUpdated)
	assert.Equal(t, 1, stats.TemporaryISINs, "VWCE has no ISIN from any source")
	assert.Equal(t, 0, stats.Errors)
}

func TestRun_IsIdempotent(t *testing.T) {
	fx := newSyncFixture()
	fx.feed.records["XETR"] = []FeedRecord{
		{Symbol: "EUNL", Name: "iShares Core MSCI World", Currency: "EUR", ISIN: "IE00B4L5Y983"},
		{Symbol: "VWCE", Name: "Vanguard FTSE All-World", Currency: "EUR"},
	}

	first, err := fx.service.Run(context.Background(), Config{Exchanges: []string{"XETR"}})
	require.NoError(t, err)
	require.Equal(t, 2, first.InstrumentsCreated)

	second, err := fx.service.Run(context.Background(), Config{Exchanges: []string{"XETR"}})
	require.NoError(t, err)

	// Replaying identical feed data creates nothing new
	assert.Equal(t, 0, second.InstrumentsCreated)
	assert.Equal(t, 0, second.ListingsCreated)
	assert.Equal(t, 2, second.InstrumentsUpdated)
	assert.Equal(t, 2, second.ListingsUpdated)
	assert.Equal(t, 0, second.Errors)
}

func TestRun_VenueFetchFailureAbortsOnlyThatVenue(t *testing.T) {
	fx := newSyncFixture()
	fx.feed.errs["XETR"] = errors.New("HTTP 502: Bad Gateway")
	fx.feed.records["XWAR"] = []FeedRecord{
		{Symbol: "ETFBW40TR", Name: "Beta ETF WIG40TR", Currency: "PLN"},
	}

	stats, err := fx.service.Run(context.Background(), Config{})

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "XETR")
	// The other venue still got processed
	assert.Equal(t, 1, stats.TotalRecords)
	assert.Equal(t, 1, stats.ListingsCreated)
}

func TestRun_EnrichmentFailureIsNonFatal(t *testing.T) {
	fx := newSyncFixture()
	fx.feed.records["XETR"] = []FeedRecord{
		{Symbol: "VWCE", Name: "Vanguard FTSE All-World", Currency: "EUR"},
	}
	fx.enricher.err = errors.New("OpenFIGI HTTP 429: Too Many Requests")

	stats, err := fx.service.Run(context.Background(), Config{Exchanges: []string{"XETR"}})

	require.NoError(t, err)
	// The record still resolves via a temporary identifier
	assert.Equal(t, 1, stats.TotalRecords)
	assert.Equal(t, 1, stats.TemporaryISINs)
	assert.Equal(t, 1, stats.InstrumentsCreated)
	assert.Equal(t, 1, stats.Errors)
}

func TestRun_EnrichmentSuppliesISINAndName(t *testing.T) {
	fx := newSyncFixture()
	fx.feed.records["XETR"] = []FeedRecord{
		{Symbol: "EUNL", Name: "ISHS CORE MSCI WLD", Currency: "EUR"},
	}
	fx.enricher.results["EUNL"] = EnrichmentResult{
		Ticker:  "EUNL",
		MICCode: "XETR",
		ISIN:    "IE00B4L5Y983",
		Name:    "iShares Core MSCI World UCITS ETF",
		Success: true,
	}

	stats, err := fx.service.Run(context.Background(), Config{Exchanges: []string{"XETR"}})

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Enriched)
	assert.Equal(t, 0, stats.TemporaryISINs)

	instrument, err := fx.service.catalog.InstrumentRepo.GetByISIN(context.Background(), "IE00B4L5Y983")
	require.NoError(t, err)
	assert.Equal(t, "iShares Core MSCI World UCITS ETF", instrument.Name)
	assert.False(t, instrument.ISINTemporary)
}

func TestRun_RecordsWithoutTickerAreSkipped(t *testing.T) {
	fx := newSyncFixture()
	fx.feed.records["XETR"] = []FeedRecord{
		{Symbol: "", Name: "Nameless Fund", Currency: "EUR"},
		{Symbol: "VWCE", Name: "Vanguard FTSE All-World", Currency: "EUR"},
	}

	stats, err := fx.service.Run(context.Background(), Config{Exchanges: []string{"XETR"}})

	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRecords)
}

func TestRun_EnrichmentBatchIsBounded(t *testing.T) {
	fx := newSyncFixture()
	var records []FeedRecord
	for i := 0; i < maxEnrichmentBatch+20; i++ {
		records = append(records, FeedRecord{
			Symbol:   fmt.Sprintf("ETF%03d", i),
			Name:     fmt.Sprintf("Fund %03d", i),
			Currency: "EUR",
		})
	}
	fx.feed.records["XETR"] = records

	_, err := fx.service.Run(context.Background(), Config{Exchanges: []string{"XETR"}})

	require.NoError(t, err)
	require.Len(t, fx.enricher.batches, 1)
	assert.Len(t, fx.enricher.batches[0], maxEnrichmentBatch)
}

func TestRun_PacesBetweenVenueFetches(t *testing.T) {
	fx := newSyncFixture()
	fx.feed.records["XETR"] = nil
	fx.feed.records["XWAR"] = nil

	var delays []time.Duration
	fx.service.wait = func(_ context.Context, d time.Duration) {
		delays = append(delays, d)
	}

	_, err := fx.service.Run(context.Background(), Config{RatePerMinute: 30})

	require.NoError(t, err)
	// Two venues: one delay between them, 60000/30 = 2000ms
	require.Len(t, delays, 1)
	assert.Equal(t, 2*time.Second, delays[0])
}

func TestRun_ContextCancellationReturnsPartialStats(t *testing.T) {
	fx := newSyncFixture()
	fx.feed.records["XETR"] = []FeedRecord{
		{Symbol: "VWCE", Name: "Vanguard FTSE All-World", Currency: "EUR"},
	}
	fx.feed.records["XWAR"] = []FeedRecord{
		{Symbol: "ETFBW40TR", Name: "Beta ETF WIG40TR", Currency: "PLN"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	fx.service.wait = func(context.Context, time.Duration) { cancel() }

	stats, err := fx.service.Run(ctx, Config{})

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, stats)
	// The first venue completed before cancellation
	assert.Equal(t, 1, stats.TotalRecords)
}

func TestStats_ErrorMessagesAreCapped(t *testing.T) {
	stats := &Stats{}
	for i := 0; i < maxErrorMessages+10; i++ {
		stats.recordError(fmt.Sprintf("error %d", i))
	}

	assert.Equal(t, maxErrorMessages+10, stats.Errors)
	assert.Len(t, stats.ErrorMessages, maxErrorMessages)
}
