package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/etfolio/etfolio-backend/internal/domain"
)

type holdingResponse struct {
	ListingID       string `json:"listingId"`
	Quantity        string `json:"quantity"`
	AvgPrice        string `json:"avgPrice"`
	CurrentPrice    string `json:"currentPrice"`
	MarketValue     string `json:"marketValue"`
	TotalCost       string `json:"totalCost"`
	GainLoss        string `json:"gainLoss"`
	GainLossPercent string `json:"gainLossPercent"`
	Allocation      string `json:"allocation"`
	Currency        string `json:"currency"`
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	positions, err := s.ledger.Holdings(r.Context(), userFrom(r), nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]holdingResponse, 0, len(positions))
	for _, h := range positions {
		items = append(items, holdingResponse{
			ListingID:       h.ListingID.String(),
			Quantity:        h.Quantity.String(),
			AvgPrice:        h.AvgPrice.String(),
			CurrentPrice:    h.CurrentPrice.String(),
			MarketValue:     h.MarketValue.String(),
			TotalCost:       h.TotalCost.String(),
			GainLoss:        h.GainLoss.String(),
			GainLossPercent: h.GainLossPercent.String(),
			Allocation:      h.Allocation.String(),
			Currency:        h.Currency,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"holdings": items})
}

type exchangeResponse struct {
	ID       string `json:"id"`
	MIC      string `json:"mic"`
	Name     string `json:"name"`
	Country  string `json:"country"`
	Currency string `json:"currency"`
	Timezone string `json:"timezone"`
}

func (s *Server) handleListExchanges(w http.ResponseWriter, r *http.Request) {
	exchanges, err := s.exchangeRepo.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]exchangeResponse, 0, len(exchanges))
	for _, e := range exchanges {
		items = append(items, exchangeResponse{
			ID:       e.ID.String(),
			MIC:      e.MIC,
			Name:     e.Name,
			Country:  e.Country,
			Currency: e.Currency,
			Timezone: e.Timezone,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"exchanges": items})
}

type listingResponse struct {
	ID              string    `json:"id"`
	ISIN            string    `json:"isin"`
	ExchangeID      string    `json:"exchangeId"`
	Ticker          string    `json:"ticker,omitempty"`
	TradingCurrency string    `json:"tradingCurrency"`
	Status          string    `json:"status"`
	SourceSystem    string    `json:"sourceSystem"`
	FirstSeenAt     time.Time `json:"firstSeenAt"`
	LastSeenAt      time.Time `json:"lastSeenAt"`
}

func (s *Server) handleSearchListings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, domain.CodeValidation, "query parameter q is required", nil)
		return
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, domain.CodeValidation, "invalid query parameter: limit", nil)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, domain.CodeValidation, "invalid query parameter: offset", nil)
			return
		}
		offset = parsed
	}

	listings, total, err := s.listingRepo.Search(r.Context(), query, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		items = append(items, listingResponse{
			ID:              l.ID.String(),
			ISIN:            l.ISIN,
			ExchangeID:      l.ExchangeID.String(),
			Ticker:          l.Ticker,
			TradingCurrency: l.TradingCurrency,
			Status:          string(l.Status),
			SourceSystem:    l.SourceSystem,
			FirstSeenAt:     l.FirstSeenAt,
			LastSeenAt:      l.LastSeenAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"listings": items,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if s.syncJob == nil {
		writeError(w, http.StatusServiceUnavailable, domain.CodeInternal, "sync is not configured", nil)
		return
	}

	go func() {
		if err := s.syncJob.Run(); err != nil {
			s.log.Error().Err(err).Msg("triggered sync failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}
