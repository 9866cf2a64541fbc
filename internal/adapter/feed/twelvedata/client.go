// Package twelvedata provides the primary listing feed client. The /etfs
// endpoint returns every ETF listed on a venue, keyed by MIC code. The free
// tier withholds ISINs behind a placeholder value; identity resolution
// happens upstream.
package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/etfolio/etfolio-backend/internal/domain"
	"github.com/etfolio/etfolio-backend/internal/usecase/etfsync"
)

const defaultBaseURL = "https://api.twelvedata.com"

// Client is the Twelve Data API client. Implements etfsync.ListingFeed.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Twelve Data client
func NewClient(apiKey string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "twelvedata").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type etfRecord struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Exchange string `json:"exchange"`
	MICCode  string `json:"mic_code"`
	Country  string `json:"country"`
	ISIN     string `json:"isin,omitempty"`
}

type etfListResponse struct {
	Data []etfRecord `json:"data"`
}

// FetchListings retrieves all ETFs listed on the venue identified by micCode.
func (c *Client) FetchListings(ctx context.Context, micCode string) ([]etfsync.FeedRecord, error) {
	query := url.Values{}
	query.Set("mic_code", micCode)
	query.Set("apikey", c.apiKey)
	query.Set("format", "JSON")

	endpoint := c.baseURL + "/etfs?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.log.Debug().Str("mic_code", micCode).Msg("fetching ETF listings")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewExternalServiceError("twelvedata", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewExternalServiceError("twelvedata",
			fmt.Sprintf("unexpected status %d for %s", resp.StatusCode, micCode))
	}

	var payload etfListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domain.NewExternalServiceError("twelvedata",
			fmt.Sprintf("failed to decode response: %v", err))
	}

	records := make([]etfsync.FeedRecord, 0, len(payload.Data))
	for _, etf := range payload.Data {
		records = append(records, etfsync.FeedRecord{
			Symbol:   etf.Symbol,
			Name:     etf.Name,
			Currency: etf.Currency,
			ISIN:     etf.ISIN,
		})
	}

	c.log.Debug().Str("mic_code", micCode).Int("count", len(records)).Msg("fetched ETF listings")
	return records, nil
}
