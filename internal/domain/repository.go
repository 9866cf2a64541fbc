package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ExchangeRepository defines the interface for exchange reference data
type ExchangeRepository interface {
	// GetByID retrieves an exchange by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Exchange, error)

	// GetByMIC retrieves an exchange by its market identifier code
	GetByMIC(ctx context.Context, mic string) (*Exchange, error)

	// Create creates a new exchange (used by the reference-data seeder only)
	Create(ctx context.Context, exchange *Exchange) error

	// List retrieves all exchanges ordered by name
	List(ctx context.Context) ([]*Exchange, error)
}

// InstrumentRepository defines the interface for instrument persistence.
// The store is assumed to enforce ISIN uniqueness and per-key atomicity.
type InstrumentRepository interface {
	// GetByISIN retrieves an instrument by its identifier
	GetByISIN(ctx context.Context, isin string) (*Instrument, error)

	// Create creates a new instrument
	Create(ctx context.Context, instrument *Instrument) error

	// Update replaces the mutable fields of an existing instrument
	Update(ctx context.Context, instrument *Instrument) error
}

// ListingRepository defines the interface for listing persistence.
// The (ISIN, exchange) key is unique.
type ListingRepository interface {
	// GetByID retrieves a listing by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Listing, error)

	// GetByISINAndExchange retrieves a listing by its natural key
	GetByISINAndExchange(ctx context.Context, isin string, exchangeID uuid.UUID) (*Listing, error)

	// Create creates a new listing
	Create(ctx context.Context, listing *Listing) error

	// Update replaces the mutable fields of an existing listing
	Update(ctx context.Context, listing *Listing) error

	// Search finds listings whose ticker, ISIN or instrument name matches the
	// query, paginated; returns the page and the total match count
	Search(ctx context.Context, query string, limit, offset int) ([]*Listing, int, error)
}

// PortfolioRepository defines the interface for portfolio persistence
type PortfolioRepository interface {
	// GetByID retrieves a portfolio by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Portfolio, error)

	// GetByUserID retrieves the portfolio owned by a user
	GetByUserID(ctx context.Context, userID string) (*Portfolio, error)

	// Create creates a new portfolio
	Create(ctx context.Context, portfolio *Portfolio) error
}

// TransactionFilter narrows a transaction listing. Zero values mean
// "no constraint"; Limit <= 0 disables pagination.
type TransactionFilter struct {
	ListingID *uuid.UUID
	Type      TransactionType
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// TransactionRepository defines the interface for ledger persistence
type TransactionRepository interface {
	// GetByID retrieves a transaction by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// Create creates a new transaction
	Create(ctx context.Context, tx *Transaction) error

	// Update replaces an existing transaction in full
	Update(ctx context.Context, tx *Transaction) error

	// Delete permanently removes a transaction
	Delete(ctx context.Context, id uuid.UUID) error

	// List retrieves a portfolio's transactions matching the filter,
	// newest first
	List(ctx context.Context, portfolioID uuid.UUID, filter TransactionFilter) ([]*Transaction, error)

	// Count returns the number of transactions matching the filter,
	// ignoring pagination
	Count(ctx context.Context, portfolioID uuid.UUID, filter TransactionFilter) (int, error)

	// ListByListing retrieves every transaction for one (portfolio, listing)
	// pair ordered by date ascending, for position derivation
	ListByListing(ctx context.Context, portfolioID, listingID uuid.UUID) ([]*Transaction, error)
}
