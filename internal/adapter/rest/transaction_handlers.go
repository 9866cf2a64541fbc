package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/etfolio/etfolio-backend/internal/domain"
	"github.com/etfolio/etfolio-backend/internal/usecase/ledger"
)

const defaultPageSize = 50

type newListingPayload struct {
	ISIN       string `json:"isin"`
	ExchangeID string `json:"exchangeId"`
	Ticker     string `json:"ticker"`
	Name       string `json:"name"`
	Currency   string `json:"currency"`
}

type createTransactionRequest struct {
	ListingID    *string            `json:"listingId"`
	ETF          *newListingPayload `json:"etf"`
	Type         string             `json:"type"`
	Date         time.Time          `json:"date"`
	Quantity     decimal.Decimal    `json:"quantity"`
	PricePerUnit decimal.Decimal    `json:"pricePerUnit"`
	Currency     string             `json:"currency"`
	Fees         decimal.Decimal    `json:"fees"`
	Notes        string             `json:"notes"`
}

type updateTransactionRequest struct {
	Type         *string          `json:"type"`
	Date         *time.Time       `json:"date"`
	Quantity     *decimal.Decimal `json:"quantity"`
	PricePerUnit *decimal.Decimal `json:"pricePerUnit"`
	Currency     *string          `json:"currency"`
	Fees         *decimal.Decimal `json:"fees"`
	Notes        *string          `json:"notes"`
}

type transactionResponse struct {
	ID           string    `json:"id"`
	PortfolioID  string    `json:"portfolioId"`
	ListingID    string    `json:"listingId"`
	Type         string    `json:"type"`
	Date         time.Time `json:"date"`
	Quantity     string    `json:"quantity"`
	PricePerUnit string    `json:"pricePerUnit"`
	TotalAmount  string    `json:"totalAmount"`
	Currency     string    `json:"currency"`
	Fees         string    `json:"fees"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toTransactionResponse(tx *domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:           tx.ID.String(),
		PortfolioID:  tx.PortfolioID.String(),
		ListingID:    tx.ListingID.String(),
		Type:         string(tx.Type),
		Date:         tx.Date,
		Quantity:     tx.Quantity.String(),
		PricePerUnit: tx.PricePerUnit.String(),
		TotalAmount:  tx.TotalAmount.String(),
		Currency:     tx.Currency,
		Fees:         tx.Fees.String(),
		Notes:        tx.Notes,
		CreatedAt:    tx.CreatedAt,
		UpdatedAt:    tx.UpdatedAt,
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeValidation, "invalid request body", nil)
		return
	}

	input := ledger.CreateTransactionInput{
		Type:         domain.TransactionType(req.Type),
		Date:         req.Date,
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
		Currency:     req.Currency,
		Fees:         req.Fees,
		Notes:        req.Notes,
	}

	if req.ListingID != nil {
		listingID, err := uuid.Parse(*req.ListingID)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.CodeValidation, "invalid listingId", nil)
			return
		}
		input.ListingID = &listingID
	}
	if req.ETF != nil {
		exchangeID, err := uuid.Parse(req.ETF.ExchangeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.CodeValidation, "invalid etf.exchangeId", nil)
			return
		}
		input.NewListing = &ledger.NewListingSpec{
			ISIN:       req.ETF.ISIN,
			ExchangeID: exchangeID,
			Ticker:     req.ETF.Ticker,
			Name:       req.ETF.Name,
			Currency:   req.ETF.Currency,
		}
	}

	tx, err := s.ledger.Create(r.Context(), userFrom(r), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeValidation, "invalid transaction id", nil)
		return
	}

	tx, err := s.ledger.Get(r.Context(), userFrom(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeValidation, "invalid transaction id", nil)
		return
	}

	var req updateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeValidation, "invalid request body", nil)
		return
	}

	input := ledger.UpdateTransactionInput{
		Date:         req.Date,
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
		Currency:     req.Currency,
		Fees:         req.Fees,
		Notes:        req.Notes,
	}
	if req.Type != nil {
		txType := domain.TransactionType(*req.Type)
		input.Type = &txType
	}

	tx, err := s.ledger.Update(r.Context(), userFrom(r), id, input)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeValidation, "invalid transaction id", nil)
		return
	}

	if err := s.ledger.Delete(r.Context(), userFrom(r), id); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTransactionFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeValidation, err.Error(), nil)
		return
	}

	transactions, total, err := s.ledger.List(r.Context(), userFrom(r), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]transactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		items = append(items, toTransactionResponse(tx))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": items,
		"total":        total,
		"limit":        filter.Limit,
		"offset":       filter.Offset,
	})
}

func parseTransactionFilter(r *http.Request) (domain.TransactionFilter, error) {
	filter := domain.TransactionFilter{Limit: defaultPageSize}
	query := r.URL.Query()

	if raw := query.Get("listingId"); raw != "" {
		listingID, err := uuid.Parse(raw)
		if err != nil {
			return filter, errInvalidParam("listingId")
		}
		filter.ListingID = &listingID
	}
	if raw := query.Get("type"); raw != "" {
		filter.Type = domain.TransactionType(raw)
	}
	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errInvalidParam("from")
		}
		filter.From = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errInvalidParam("to")
		}
		filter.To = &to
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errInvalidParam("limit")
		}
		filter.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, errInvalidParam("offset")
		}
		filter.Offset = offset
	}

	return filter, nil
}

type paramError string

func errInvalidParam(name string) paramError {
	return paramError("invalid query parameter: " + name)
}

func (e paramError) Error() string {
	return string(e)
}
