package etfsync

import (
	"context"

	"github.com/etfolio/etfolio-backend/internal/domain"
)

// FeedRecord is one raw record from the primary listing feed.
type FeedRecord struct {
	Symbol   string
	Name     string
	Currency string
	ISIN     string
}

// ListingFeed is the primary feed: all listings for one venue.
type ListingFeed interface {
	FetchListings(ctx context.Context, micCode string) ([]FeedRecord, error)
}

// EnrichmentRequest keys a batched identifier lookup.
type EnrichmentRequest struct {
	Ticker   string
	MICCode  string
	Currency string
}

// EnrichmentResult is one enrichment outcome, aligned by index with the
// request batch. A failed lookup carries Error and leaves ISIN/Name empty.
type EnrichmentResult struct {
	Ticker  string
	MICCode string
	ISIN    string
	Name    string
	Success bool
	Error   string
}

// EnrichmentFeed is the secondary feed: batched identifier lookups keyed by
// (ticker, venue, currency). Results are aligned with requests by index.
type EnrichmentFeed interface {
	Lookup(ctx context.Context, requests []EnrichmentRequest) ([]EnrichmentResult, error)
}

// The free tier of the primary feed withholds ISINs behind this placeholder.
const isinPlaceholder = "request_access_via_add_ons"

// Identity is a resolved (identifier, name, temporary) triple for one record.
type Identity struct {
	ISIN      string
	Name      string
	Temporary bool
}

// resolveIdentity guarantees every feed record some stable identifier:
//  1. a usable permanent ISIN from the primary feed is taken as-is
//  2. else a permanent ISIN from the enrichment lookup is taken as-is
//  3. else a temporary identifier is synthesized from (ticker, venue)
//
// An enriched name takes precedence over the primary feed's name.
func resolveIdentity(record FeedRecord, micCode string, enrichment *EnrichmentResult) Identity {
	name := record.Name
	if enrichment != nil && enrichment.Name != "" {
		name = enrichment.Name
	}

	if record.ISIN != "" && record.ISIN != isinPlaceholder {
		return Identity{ISIN: record.ISIN, Name: name, Temporary: false}
	}

	if enrichment != nil && enrichment.ISIN != "" {
		return Identity{ISIN: enrichment.ISIN, Name: name, Temporary: false}
	}

	return Identity{
		ISIN:      domain.TemporaryISIN(record.Symbol, micCode),
		Name:      name,
		Temporary: true,
	}
}
