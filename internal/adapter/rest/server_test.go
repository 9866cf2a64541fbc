package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etfolio/etfolio-backend/internal/domain"
	"github.com/etfolio/etfolio-backend/internal/usecase/ledger"
)

// map-backed fakes; enough state for end-to-end handler flows

type fakePortfolioRepo struct {
	byID map[uuid.UUID]*domain.Portfolio
}

func newFakePortfolioRepo() *fakePortfolioRepo {
	return &fakePortfolioRepo{byID: make(map[uuid.UUID]*domain.Portfolio)}
}

func (r *fakePortfolioRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	if p, ok := r.byID[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, domain.NewNotFoundError("portfolio not found")
}

func (r *fakePortfolioRepo) GetByUserID(_ context.Context, userID string) (*domain.Portfolio, error) {
	for _, p := range r.byID {
		if p.UserID == userID {
			clone := *p
			return &clone, nil
		}
	}
	return nil, domain.NewNotFoundError("portfolio not found")
}

func (r *fakePortfolioRepo) Create(_ context.Context, portfolio *domain.Portfolio) error {
	clone := *portfolio
	r.byID[portfolio.ID] = &clone
	return nil
}

type fakeTransactionRepo struct {
	byID map[uuid.UUID]*domain.Transaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{byID: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *fakeTransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	if tx, ok := r.byID[id]; ok {
		clone := *tx
		return &clone, nil
	}
	return nil, domain.NewNotFoundError("transaction not found")
}

func (r *fakeTransactionRepo) Create(_ context.Context, tx *domain.Transaction) error {
	clone := *tx
	r.byID[tx.ID] = &clone
	return nil
}

func (r *fakeTransactionRepo) Update(_ context.Context, tx *domain.Transaction) error {
	if _, ok := r.byID[tx.ID]; !ok {
		return domain.NewNotFoundError("transaction not found")
	}
	clone := *tx
	r.byID[tx.ID] = &clone
	return nil
}

func (r *fakeTransactionRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.byID[id]; !ok {
		return domain.NewNotFoundError("transaction not found")
	}
	delete(r.byID, id)
	return nil
}

func (r *fakeTransactionRepo) List(_ context.Context, portfolioID uuid.UUID, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, tx := range r.byID {
		if tx.PortfolioID != portfolioID {
			continue
		}
		if filter.ListingID != nil && tx.ListingID != *filter.ListingID {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		clone := *tx
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakeTransactionRepo) Count(ctx context.Context, portfolioID uuid.UUID, filter domain.TransactionFilter) (int, error) {
	matches, err := r.List(ctx, portfolioID, filter)
	return len(matches), err
}

func (r *fakeTransactionRepo) ListByListing(_ context.Context, portfolioID, listingID uuid.UUID) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, tx := range r.byID {
		if tx.PortfolioID == portfolioID && tx.ListingID == listingID {
			clone := *tx
			out = append(out, &clone)
		}
	}
	return out, nil
}

type fakeListingRepo struct {
	byID map[uuid.UUID]*domain.Listing
}

func newFakeListingRepo() *fakeListingRepo {
	return &fakeListingRepo{byID: make(map[uuid.UUID]*domain.Listing)}
}

func (r *fakeListingRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Listing, error) {
	if l, ok := r.byID[id]; ok {
		clone := *l
		return &clone, nil
	}
	return nil, domain.NewNotFoundError("listing not found")
}

func (r *fakeListingRepo) GetByISINAndExchange(_ context.Context, isin string, exchangeID uuid.UUID) (*domain.Listing, error) {
	for _, l := range r.byID {
		if l.ISIN == isin && l.ExchangeID == exchangeID {
			clone := *l
			return &clone, nil
		}
	}
	return nil, domain.NewNotFoundError("listing not found")
}

func (r *fakeListingRepo) Create(_ context.Context, listing *domain.Listing) error {
	clone := *listing
	r.byID[listing.ID] = &clone
	return nil
}

func (r *fakeListingRepo) Update(_ context.Context, listing *domain.Listing) error {
	clone := *listing
	r.byID[listing.ID] = &clone
	return nil
}

func (r *fakeListingRepo) Search(_ context.Context, query string, limit, offset int) ([]*domain.Listing, int, error) {
	var out []*domain.Listing
	for _, l := range r.byID {
		if l.Ticker == query || l.ISIN == query {
			clone := *l
			out = append(out, &clone)
		}
	}
	return out, len(out), nil
}

type fakeExchangeRepo struct {
	byMIC map[string]*domain.Exchange
}

func newFakeExchangeRepo() *fakeExchangeRepo {
	return &fakeExchangeRepo{byMIC: make(map[string]*domain.Exchange)}
}

func (r *fakeExchangeRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Exchange, error) {
	for _, e := range r.byMIC {
		if e.ID == id {
			clone := *e
			return &clone, nil
		}
	}
	return nil, domain.NewNotFoundError("exchange not found")
}

func (r *fakeExchangeRepo) GetByMIC(_ context.Context, mic string) (*domain.Exchange, error) {
	if e, ok := r.byMIC[mic]; ok {
		clone := *e
		return &clone, nil
	}
	return nil, domain.NewNotFoundError("exchange not found")
}

func (r *fakeExchangeRepo) Create(_ context.Context, exchange *domain.Exchange) error {
	clone := *exchange
	r.byMIC[exchange.MIC] = &clone
	return nil
}

func (r *fakeExchangeRepo) List(_ context.Context) ([]*domain.Exchange, error) {
	var out []*domain.Exchange
	for _, e := range r.byMIC {
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}

type stubCatalog struct {
	listings *fakeListingRepo
}

func (c *stubCatalog) UpsertInstrument(_ context.Context, isin, name string, source domain.NameSource, temporary bool) (*domain.Instrument, bool, error) {
	return &domain.Instrument{ISIN: isin, Name: name, NameSource: source, ISINTemporary: temporary}, true, nil
}

func (c *stubCatalog) UpsertListing(_ context.Context, isin string, exchangeID uuid.UUID, ticker, currency, sourceSystem string) (*domain.Listing, bool, error) {
	listing := &domain.Listing{
		ID:              uuid.New(),
		ISIN:            isin,
		ExchangeID:      exchangeID,
		Ticker:          ticker,
		TradingCurrency: currency,
		Status:          domain.ListingStatusActive,
		SourceSystem:    sourceSystem,
	}
	_ = c.listings.Create(context.Background(), listing)
	return listing, true, nil
}

type serverFixture struct {
	server       *Server
	portfolios   *fakePortfolioRepo
	transactions *fakeTransactionRepo
	listings     *fakeListingRepo
	exchanges    *fakeExchangeRepo
}

func newServerFixture(authToken string) *serverFixture {
	portfolios := newFakePortfolioRepo()
	transactions := newFakeTransactionRepo()
	listings := newFakeListingRepo()
	exchanges := newFakeExchangeRepo()

	ledgerService := ledger.NewService(portfolios, transactions, listings, &stubCatalog{listings: listings})

	server := New(Config{
		Port:         0,
		AuthToken:    authToken,
		Log:          zerolog.Nop(),
		Ledger:       ledgerService,
		ExchangeRepo: exchanges,
		ListingRepo:  listings,
	})

	return &serverFixture{
		server:       server,
		portfolios:   portfolios,
		transactions: transactions,
		listings:     listings,
		exchanges:    exchanges,
	}
}

func (fx *serverFixture) request(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	return rec
}

func authedHeaders() map[string]string {
	return map[string]string{"X-User-ID": "user-1"}
}

func (fx *serverFixture) seedListing(t *testing.T) *domain.Listing {
	t.Helper()
	listing := &domain.Listing{
		ID:              uuid.New(),
		ISIN:            "IE00B4L5Y983",
		ExchangeID:      uuid.New(),
		Ticker:          "EUNL",
		TradingCurrency: "EUR",
		Status:          domain.ListingStatusActive,
		SourceSystem:    "TWELVE_DATA",
	}
	require.NoError(t, fx.listings.Create(context.Background(), listing))
	return listing
}

func buyBody(listingID uuid.UUID) map[string]any {
	return map[string]any{
		"listingId":    listingID.String(),
		"type":         "BUY",
		"date":         time.Now().Add(-time.Hour).Format(time.RFC3339),
		"quantity":     10,
		"pricePerUnit": 100,
		"currency":     "EUR",
		"fees":         2,
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	fx := newServerFixture("secret")

	rec := fx.request(t, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_RejectsInvalidToken(t *testing.T) {
	fx := newServerFixture("secret")

	rec := fx.request(t, http.MethodGet, "/api/exchanges", nil, map[string]string{
		"Authorization": "wrong",
		"X-User-ID":     "user-1",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_RejectsMissingUserHeader(t *testing.T) {
	fx := newServerFixture("")

	rec := fx.request(t, http.MethodGet, "/api/exchanges", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateTransaction_ReturnsCreated(t *testing.T) {
	fx := newServerFixture("")
	listing := fx.seedListing(t)

	rec := fx.request(t, http.MethodPost, "/api/transactions", buyBody(listing.ID), authedHeaders())

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp transactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, listing.ID.String(), resp.ListingID)
	assert.Equal(t, "1002", resp.TotalAmount)
}

func TestCreateTransaction_ValidationErrorEnvelope(t *testing.T) {
	fx := newServerFixture("")
	listing := fx.seedListing(t)

	body := buyBody(listing.ID)
	body["quantity"] = -1

	rec := fx.request(t, http.MethodPost, "/api/transactions", body, authedHeaders())

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, domain.CodeValidation, envelope.Error.Code)
	assert.Contains(t, envelope.Error.Details, "quantity")
}

func TestCreateTransaction_InsufficientQuantityEnvelope(t *testing.T) {
	fx := newServerFixture("")
	listing := fx.seedListing(t)

	rec := fx.request(t, http.MethodPost, "/api/transactions", buyBody(listing.ID), authedHeaders())
	require.Equal(t, http.StatusCreated, rec.Code)

	sell := buyBody(listing.ID)
	sell["type"] = "SELL"
	sell["quantity"] = 11

	rec = fx.request(t, http.MethodPost, "/api/transactions", sell, authedHeaders())

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, domain.CodeInsufficientQuantity, envelope.Error.Code)
	assert.Equal(t, "10", envelope.Error.Details["available"])
	assert.Equal(t, "11", envelope.Error.Details["requested"])
}

func TestGetTransaction_NotFoundEnvelope(t *testing.T) {
	fx := newServerFixture("")

	rec := fx.request(t, http.MethodGet, "/api/transactions/"+uuid.NewString(), nil, authedHeaders())

	require.Equal(t, http.StatusNotFound, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, domain.CodeNotFound, envelope.Error.Code)
}

func TestUpdateTransaction_ForbiddenForOtherUser(t *testing.T) {
	fx := newServerFixture("")
	listing := fx.seedListing(t)

	rec := fx.request(t, http.MethodPost, "/api/transactions", buyBody(listing.ID), authedHeaders())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created transactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = fx.request(t, http.MethodPut, "/api/transactions/"+created.ID,
		map[string]any{"quantity": 5}, map[string]string{"X-User-ID": "intruder"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteTransaction_ReturnsNoContent(t *testing.T) {
	fx := newServerFixture("")
	listing := fx.seedListing(t)

	rec := fx.request(t, http.MethodPost, "/api/transactions", buyBody(listing.ID), authedHeaders())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created transactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = fx.request(t, http.MethodDelete, "/api/transactions/"+created.ID, nil, authedHeaders())

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, fx.transactions.byID)
}

func TestListTransactions_PaginationEcho(t *testing.T) {
	fx := newServerFixture("")
	listing := fx.seedListing(t)

	for i := 0; i < 3; i++ {
		rec := fx.request(t, http.MethodPost, "/api/transactions", buyBody(listing.ID), authedHeaders())
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := fx.request(t, http.MethodGet, "/api/transactions?limit=2", nil, authedHeaders())

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Transactions []transactionResponse `json:"transactions"`
		Total        int                   `json:"total"`
		Limit        int                   `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Limit)
}

func TestHoldings_DerivedFromCreatedTransactions(t *testing.T) {
	fx := newServerFixture("")
	listing := fx.seedListing(t)

	rec := fx.request(t, http.MethodPost, "/api/transactions", buyBody(listing.ID), authedHeaders())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = fx.request(t, http.MethodGet, "/api/portfolio/holdings", nil, authedHeaders())

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Holdings []holdingResponse `json:"holdings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Holdings, 1)
	assert.Equal(t, listing.ID.String(), resp.Holdings[0].ListingID)
	assert.Equal(t, "10", resp.Holdings[0].Quantity)

	quantity, err := decimal.NewFromString(resp.Holdings[0].TotalCost)
	require.NoError(t, err)
	assert.True(t, quantity.Equal(decimal.NewFromInt(1002)))
}

func TestSearchListings_RequiresQuery(t *testing.T) {
	fx := newServerFixture("")

	rec := fx.request(t, http.MethodGet, "/api/etfs/search", nil, authedHeaders())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchListings_ReturnsMatches(t *testing.T) {
	fx := newServerFixture("")
	listing := fx.seedListing(t)

	rec := fx.request(t, http.MethodGet, "/api/etfs/search?q="+listing.Ticker, nil, authedHeaders())

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Listings []listingResponse `json:"listings"`
		Total    int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, listing.ISIN, resp.Listings[0].ISIN)
}

func TestListExchanges_ReturnsSeeded(t *testing.T) {
	fx := newServerFixture("")
	require.NoError(t, fx.exchanges.Create(context.Background(), &domain.Exchange{
		ID: uuid.New(), MIC: "XETR", Name: "Deutsche Boerse Xetra", Country: "DE", Currency: "EUR",
	}))

	rec := fx.request(t, http.MethodGet, "/api/exchanges", nil, authedHeaders())

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Exchanges []exchangeResponse `json:"exchanges"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Exchanges, 1)
	assert.Equal(t, "XETR", resp.Exchanges[0].MIC)
}

func TestTriggerSync_UnconfiguredReturns503(t *testing.T) {
	fx := newServerFixture("")

	rec := fx.request(t, http.MethodPost, "/api/admin/sync", nil, authedHeaders())

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateTransaction_InvalidListingID(t *testing.T) {
	fx := newServerFixture("")

	body := buyBody(uuid.New())
	body["listingId"] = "not-a-uuid"

	rec := fx.request(t, http.MethodPost, "/api/transactions", body, authedHeaders())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTransaction_NewListingResolvedViaCatalog(t *testing.T) {
	fx := newServerFixture("")
	exchangeID := uuid.New()

	body := map[string]any{
		"etf": map[string]any{
			"isin":       "IE00B4L5Y983",
			"exchangeId": exchangeID.String(),
			"ticker":     "EUNL",
			"name":       "iShares Core MSCI World",
			"currency":   "EUR",
		},
		"type":         "BUY",
		"date":         time.Now().Add(-time.Hour).Format(time.RFC3339),
		"quantity":     1,
		"pricePerUnit": 100,
		"currency":     "EUR",
		"fees":         0,
	}

	rec := fx.request(t, http.MethodPost, "/api/transactions", body, authedHeaders())

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp transactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	created, err := fx.listings.GetByID(context.Background(), uuid.MustParse(resp.ListingID))
	require.NoError(t, err)
	assert.Equal(t, "IE00B4L5Y983", created.ISIN)
}
