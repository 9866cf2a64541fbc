// Package openfigi provides the enrichment feed client for Bloomberg's
// OpenFIGI mapping API. Ticker lookups return the security name but not the
// ISIN, so enrichment mainly improves names; identifier synthesis for
// unresolved records happens upstream.
package openfigi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/etfolio/etfolio-backend/internal/usecase/etfsync"
)

const (
	defaultBaseURL = "https://api.openfigi.com/v3"

	// The mapping endpoint rejects payloads above 10 jobs without an API key.
	maxJobsPerRequest = 10
)

// micToExchCode maps ISO 10383 MIC codes to OpenFIGI (Bloomberg) exchange
// codes. Venues absent from this table cannot be enriched.
var micToExchCode = map[string]string{
	"XETR": "XE",
	"XLON": "LN",
	"XAMS": "NA",
	"XPAR": "FP",
	"XMIL": "IM",
	"XSWX": "SW",
	"XNYS": "US",
	"XNAS": "US",
}

// Client is the OpenFIGI API client. Implements etfsync.EnrichmentFeed.
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

// NewClient creates a new OpenFIGI client.
// apiKey is optional but raises the rate limits when set.
func NewClient(apiKey string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "openfigi").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type mappingJob struct {
	IDType    string `json:"idType"`
	IDValue   string `json:"idValue"`
	ExchCode  string `json:"exchCode,omitempty"`
	Currency  string `json:"currency,omitempty"`
	MarketSec string `json:"marketSecDes,omitempty"`
}

type mappingResult struct {
	FIGI           string `json:"figi"`
	Name           string `json:"name"`
	Ticker         string `json:"ticker"`
	ExchCode       string `json:"exchCode"`
	CompositeFIGI  string `json:"compositeFIGI"`
	ShareClassFIGI string `json:"shareClassFIGI"`
	SecurityType   string `json:"securityType"`
	MarketSector   string `json:"marketSector"`
}

type mappingResponse struct {
	Data    []mappingResult `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Warning string          `json:"warning,omitempty"`
}

// Lookup resolves a batch of (ticker, venue, currency) requests. Results are
// aligned with requests by index. Requests for venues OpenFIGI does not cover
// fail soft per item; a transport failure fails the whole batch.
func (c *Client) Lookup(ctx context.Context, requests []etfsync.EnrichmentRequest) ([]etfsync.EnrichmentResult, error) {
	results := make([]etfsync.EnrichmentResult, len(requests))

	// Partition out venues without an exchange-code mapping
	var jobs []mappingJob
	var jobIndex []int
	for i, req := range requests {
		exchCode, ok := micToExchCode[req.MICCode]
		if !ok {
			results[i] = etfsync.EnrichmentResult{
				Ticker:  req.Ticker,
				MICCode: req.MICCode,
				Error:   fmt.Sprintf("venue %s not supported", req.MICCode),
			}
			continue
		}
		jobs = append(jobs, mappingJob{
			IDType:    "TICKER",
			IDValue:   req.Ticker,
			ExchCode:  exchCode,
			Currency:  req.Currency,
			MarketSec: "ETF",
		})
		jobIndex = append(jobIndex, i)
	}

	if len(jobs) == 0 {
		return results, nil
	}

	responses, err := c.mapJobs(ctx, jobs)
	if err != nil {
		return nil, err
	}

	for j, resp := range responses {
		i := jobIndex[j]
		req := requests[i]

		switch {
		case resp.Error != "":
			results[i] = etfsync.EnrichmentResult{
				Ticker:  req.Ticker,
				MICCode: req.MICCode,
				Error:   resp.Error,
			}
		case len(resp.Data) > 0:
			first := resp.Data[0]
			results[i] = etfsync.EnrichmentResult{
				Ticker:  req.Ticker,
				MICCode: req.MICCode,
				Name:    first.Name,
				Success: true,
			}
		default:
			results[i] = etfsync.EnrichmentResult{
				Ticker:  req.Ticker,
				MICCode: req.MICCode,
				Error:   "no results",
			}
		}
	}

	return results, nil
}

// mapJobs posts the jobs to /mapping in chunks of maxJobsPerRequest, issued
// concurrently, and reassembles the responses in job order.
func (c *Client) mapJobs(ctx context.Context, jobs []mappingJob) ([]mappingResponse, error) {
	responses := make([]mappingResponse, len(jobs))

	var wg sync.WaitGroup
	errs := make(chan error, (len(jobs)+maxJobsPerRequest-1)/maxJobsPerRequest)

	for start := 0; start < len(jobs); start += maxJobsPerRequest {
		end := start + maxJobsPerRequest
		if end > len(jobs) {
			end = len(jobs)
		}

		wg.Add(1)
		go func(start int, chunk []mappingJob) {
			defer wg.Done()
			chunkResponses, err := c.doRequest(ctx, chunk)
			if err != nil {
				errs <- err
				return
			}
			if len(chunkResponses) != len(chunk) {
				errs <- fmt.Errorf("expected %d responses, got %d", len(chunk), len(chunkResponses))
				return
			}
			copy(responses[start:], chunkResponses)
		}(start, jobs[start:end])
	}

	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return nil, err
	}

	return responses, nil
}

func (c *Client) doRequest(ctx context.Context, jobs []mappingJob) ([]mappingResponse, error) {
	body, err := json.Marshal(jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mapping", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-OPENFIGI-APIKEY", c.apiKey)
	}

	c.log.Debug().Int("jobs", len(jobs)).Msg("posting mapping jobs")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var responses []mappingResponse
	if err := json.NewDecoder(resp.Body).Decode(&responses); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return responses, nil
}
