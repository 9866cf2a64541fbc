package ledger

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/etfolio/etfolio-backend/internal/domain"
	"github.com/etfolio/etfolio-backend/internal/usecase/holdings"
)

// SourceSystemManual tags catalog entries created from user-entered
// transactions rather than a data feed.
const SourceSystemManual = "MANUAL"

var isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// Catalog resolves instrument+listing pairs for user-entered securities.
// Satisfied by the catalog service.
type Catalog interface {
	UpsertInstrument(ctx context.Context, isin, name string, source domain.NameSource, temporary bool) (*domain.Instrument, bool, error)
	UpsertListing(ctx context.Context, isin string, exchangeID uuid.UUID, ticker, currency, sourceSystem string) (*domain.Listing, bool, error)
}

// Service is the transaction ledger: validated create/update/delete of
// transactions plus derived holdings. SELL validation reads the full prior
// history for a (portfolio, listing) pair, so writes on the same pair are
// serialized through a per-position mutex.
type Service struct {
	PortfolioRepo   domain.PortfolioRepository
	TransactionRepo domain.TransactionRepository
	ListingRepo     domain.ListingRepository
	Catalog         Catalog

	mu        sync.Mutex
	positions map[string]*sync.Mutex
}

// NewService creates a new ledger Service instance
func NewService(
	portfolioRepo domain.PortfolioRepository,
	transactionRepo domain.TransactionRepository,
	listingRepo domain.ListingRepository,
	catalogService Catalog,
) *Service {
	return &Service{
		PortfolioRepo:   portfolioRepo,
		TransactionRepo: transactionRepo,
		ListingRepo:     listingRepo,
		Catalog:         catalogService,
		positions:       make(map[string]*sync.Mutex),
	}
}

// NewListingSpec describes a security the user wants to transact in that is
// not in the catalog yet. The ledger resolves it through the catalog before
// recording the transaction.
type NewListingSpec struct {
	ISIN       string
	ExchangeID uuid.UUID
	Ticker     string
	Name       string
	Currency   string
}

// CreateTransactionInput carries the fields for a new ledger entry. Exactly
// one of ListingID and NewListing must be set.
type CreateTransactionInput struct {
	ListingID    *uuid.UUID
	NewListing   *NewListingSpec
	Type         domain.TransactionType
	Date         time.Time
	Quantity     decimal.Decimal
	PricePerUnit decimal.Decimal
	Currency     string
	Fees         decimal.Decimal
	Notes        string
}

// UpdateTransactionInput carries a partial update; nil fields are unchanged.
type UpdateTransactionInput struct {
	Type         *domain.TransactionType
	Date         *time.Time
	Quantity     *decimal.Decimal
	PricePerUnit *decimal.Decimal
	Currency     *string
	Fees         *decimal.Decimal
	Notes        *string
}

// Create validates and records a new transaction. The portfolio is created
// lazily on the user's first transaction. A SELL is rejected with
// InsufficientQuantityError if it exceeds the cumulative quantity held for
// that listing.
func (s *Service) Create(ctx context.Context, userID string, input CreateTransactionInput) (*domain.Transaction, error) {
	if input.ListingID == nil && input.NewListing == nil {
		return nil, domain.NewValidationError("transaction data is invalid", map[string]string{
			"listing": "a listing reference or a new listing specification is required",
		})
	}

	tx := &domain.Transaction{
		ID:           uuid.New(),
		Type:         input.Type,
		Date:         input.Date,
		Quantity:     input.Quantity,
		PricePerUnit: input.PricePerUnit,
		Currency:     input.Currency,
		Fees:         input.Fees,
		Notes:        input.Notes,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	portfolio, err := s.getOrCreatePortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	tx.PortfolioID = portfolio.ID

	listing, err := s.resolveListing(ctx, input)
	if err != nil {
		return nil, err
	}
	tx.ListingID = listing.ID

	// Serialize against concurrent writes on the same position so two SELLs
	// cannot both pass validation against a stale quantity snapshot
	unlock := s.lockPosition(portfolio.ID, listing.ID)
	defer unlock()

	if tx.Type == domain.TransactionTypeSell {
		available, err := s.availableQuantity(ctx, portfolio.ID, listing.ID, nil)
		if err != nil {
			return nil, err
		}
		if tx.Quantity.GreaterThan(available) {
			return nil, domain.NewInsufficientQuantityError(available, tx.Quantity)
		}
	}

	now := time.Now()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	tx.ComputeTotalAmount()

	if err := s.TransactionRepo.Create(ctx, tx); err != nil {
		return nil, err
	}

	return tx, nil
}

// Get retrieves a transaction after checking that it belongs to the caller.
func (s *Service) Get(ctx context.Context, userID string, transactionID uuid.UUID) (*domain.Transaction, error) {
	return s.getOwned(ctx, userID, transactionID)
}

// Update applies a partial update to an owned transaction, re-validating the
// result and re-deriving the total amount. If the updated transaction is a
// SELL, quantity sufficiency is re-checked against the rest of the ledger so
// an edit cannot retroactively drive the position negative.
func (s *Service) Update(ctx context.Context, userID string, transactionID uuid.UUID, input UpdateTransactionInput) (*domain.Transaction, error) {
	existing, err := s.getOwned(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if input.Type != nil {
		updated.Type = *input.Type
	}
	if input.Date != nil {
		updated.Date = *input.Date
	}
	if input.Quantity != nil {
		updated.Quantity = *input.Quantity
	}
	if input.PricePerUnit != nil {
		updated.PricePerUnit = *input.PricePerUnit
	}
	if input.Currency != nil {
		updated.Currency = *input.Currency
	}
	if input.Fees != nil {
		updated.Fees = *input.Fees
	}
	if input.Notes != nil {
		updated.Notes = *input.Notes
	}

	if err := updated.Validate(); err != nil {
		return nil, err
	}

	unlock := s.lockPosition(updated.PortfolioID, updated.ListingID)
	defer unlock()

	if updated.Type == domain.TransactionTypeSell {
		available, err := s.availableQuantity(ctx, updated.PortfolioID, updated.ListingID, &updated.ID)
		if err != nil {
			return nil, err
		}
		if updated.Quantity.GreaterThan(available) {
			return nil, domain.NewInsufficientQuantityError(available, updated.Quantity)
		}
	}

	updated.UpdatedAt = time.Now()
	updated.ComputeTotalAmount()

	if err := s.TransactionRepo.Update(ctx, &updated); err != nil {
		return nil, err
	}

	return &updated, nil
}

// Delete permanently removes an owned transaction. No soft delete.
func (s *Service) Delete(ctx context.Context, userID string, transactionID uuid.UUID) error {
	existing, err := s.getOwned(ctx, userID, transactionID)
	if err != nil {
		return err
	}
	return s.TransactionRepo.Delete(ctx, existing.ID)
}

// List retrieves the caller's transactions matching the filter, newest first,
// plus the total match count for pagination. A user without a portfolio has
// no transactions.
func (s *Service) List(ctx context.Context, userID string, filter domain.TransactionFilter) ([]*domain.Transaction, int, error) {
	portfolio, err := s.PortfolioRepo.GetByUserID(ctx, userID)
	if domain.IsNotFound(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	transactions, err := s.TransactionRepo.List(ctx, portfolio.ID, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.TransactionRepo.Count(ctx, portfolio.ID, filter)
	if err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

// Holdings derives the caller's current positions from the transaction log.
// Prices come from priceOf; positions without a known price are marked at
// cost. Nothing is persisted.
func (s *Service) Holdings(ctx context.Context, userID string, priceOf holdings.PriceFn) ([]domain.Holding, error) {
	portfolio, err := s.PortfolioRepo.GetByUserID(ctx, userID)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	transactions, err := s.TransactionRepo.List(ctx, portfolio.ID, domain.TransactionFilter{})
	if err != nil {
		return nil, err
	}

	return holdings.Compute(transactions, priceOf), nil
}

func (s *Service) getOrCreatePortfolio(ctx context.Context, userID string) (*domain.Portfolio, error) {
	portfolio, err := s.PortfolioRepo.GetByUserID(ctx, userID)
	if err == nil {
		return portfolio, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}

	now := time.Now()
	portfolio = &domain.Portfolio{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      domain.DefaultPortfolioName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.PortfolioRepo.Create(ctx, portfolio); err != nil {
		return nil, err
	}
	return portfolio, nil
}

func (s *Service) resolveListing(ctx context.Context, input CreateTransactionInput) (*domain.Listing, error) {
	if input.ListingID != nil {
		return s.ListingRepo.GetByID(ctx, *input.ListingID)
	}

	spec := input.NewListing
	if err := validateNewListingSpec(spec); err != nil {
		return nil, err
	}

	isin := strings.TrimSpace(spec.ISIN)
	if _, _, err := s.Catalog.UpsertInstrument(ctx, isin, spec.Name, domain.NameSourceFallback, domain.IsTemporaryISIN(isin)); err != nil {
		return nil, err
	}
	listing, _, err := s.Catalog.UpsertListing(ctx, isin, spec.ExchangeID, spec.Ticker, spec.Currency, SourceSystemManual)
	return listing, err
}

func validateNewListingSpec(spec *NewListingSpec) error {
	fields := make(map[string]string)

	isin := strings.TrimSpace(spec.ISIN)
	if isin == "" {
		fields["etf.isin"] = "isin is required"
	} else if !isinPattern.MatchString(isin) && !domain.IsTemporaryISIN(isin) {
		fields["etf.isin"] = "isin must be 2 letters, 9 alphanumerics and a check digit"
	}

	if spec.ExchangeID == uuid.Nil {
		fields["etf.exchangeId"] = "exchange is required"
	}

	if spec.Ticker == "" {
		fields["etf.ticker"] = "ticker is required"
	} else if len(spec.Ticker) > 10 {
		fields["etf.ticker"] = "ticker must not exceed 10 characters"
	}

	if spec.Name == "" {
		fields["etf.name"] = "name is required"
	} else if len(spec.Name) > 200 {
		fields["etf.name"] = "name must not exceed 200 characters"
	}

	if !domain.IsSupportedCurrency(spec.Currency) {
		fields["etf.currency"] = "currency must be one of EUR, USD, GBP, PLN, CHF"
	}

	if len(fields) > 0 {
		return domain.NewValidationError("listing data is invalid", fields)
	}
	return nil
}

// availableQuantity sums the cumulative position for one (portfolio, listing)
// pair over its whole date-ordered history, optionally excluding one
// transaction (the one being edited).
func (s *Service) availableQuantity(ctx context.Context, portfolioID, listingID uuid.UUID, exclude *uuid.UUID) (decimal.Decimal, error) {
	transactions, err := s.TransactionRepo.ListByListing(ctx, portfolioID, listingID)
	if err != nil {
		return decimal.Zero, err
	}

	available := decimal.Zero
	for _, tx := range transactions {
		if exclude != nil && tx.ID == *exclude {
			continue
		}
		switch tx.Type {
		case domain.TransactionTypeBuy:
			available = available.Add(tx.Quantity)
		case domain.TransactionTypeSell:
			available = available.Sub(tx.Quantity)
		}
	}
	return available, nil
}

func (s *Service) getOwned(ctx context.Context, userID string, transactionID uuid.UUID) (*domain.Transaction, error) {
	tx, err := s.TransactionRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	portfolio, err := s.PortfolioRepo.GetByID(ctx, tx.PortfolioID)
	if err != nil {
		return nil, err
	}
	if portfolio.UserID != userID {
		return nil, domain.NewForbiddenError("transaction does not belong to the caller")
	}
	return tx, nil
}

func (s *Service) lockPosition(portfolioID, listingID uuid.UUID) func() {
	key := portfolioID.String() + "|" + listingID.String()

	s.mu.Lock()
	lock, ok := s.positions[key]
	if !ok {
		lock = &sync.Mutex{}
		s.positions[key] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
