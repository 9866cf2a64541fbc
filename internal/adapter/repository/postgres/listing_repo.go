package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/etfolio/etfolio-backend/internal/domain"
)

// listingRepository implements domain.ListingRepository
type listingRepository struct {
	db *DB
}

// NewListingRepository creates a new listing repository
func NewListingRepository(db *DB) domain.ListingRepository {
	return &listingRepository{db: db}
}

const listingColumns = "id, isin, exchange_id, ticker, trading_currency, status, source_system, first_seen_at, last_seen_at"

func scanListing(row interface{ Scan(...any) error }) (*domain.Listing, error) {
	var listing domain.Listing
	var ticker sql.NullString
	err := row.Scan(
		&listing.ID,
		&listing.ISIN,
		&listing.ExchangeID,
		&ticker,
		&listing.TradingCurrency,
		&listing.Status,
		&listing.SourceSystem,
		&listing.FirstSeenAt,
		&listing.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	if ticker.Valid {
		listing.Ticker = ticker.String
	}
	return &listing, nil
}

// GetByID retrieves a listing by its ID
func (r *listingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE id = $1
	`

	listing, err := scanListing(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("listing not found")
		}
		return nil, fmt.Errorf("failed to get listing by ID: %w", err)
	}

	return listing, nil
}

// GetByISINAndExchange retrieves a listing by its natural key
func (r *listingRepository) GetByISINAndExchange(ctx context.Context, isin string, exchangeID uuid.UUID) (*domain.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE isin = $1 AND exchange_id = $2
	`

	listing, err := scanListing(r.db.QueryRowContext(ctx, query, isin, exchangeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("listing not found")
		}
		return nil, fmt.Errorf("failed to get listing by ISIN and exchange: %w", err)
	}

	return listing, nil
}

// Create creates a new listing
func (r *listingRepository) Create(ctx context.Context, listing *domain.Listing) error {
	query := `
		INSERT INTO listings (id, isin, exchange_id, ticker, trading_currency, status, source_system, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var ticker interface{}
	if listing.Ticker != "" {
		ticker = listing.Ticker
	}

	_, err := r.db.ExecContext(ctx, query,
		listing.ID,
		listing.ISIN,
		listing.ExchangeID,
		ticker,
		listing.TradingCurrency,
		string(listing.Status),
		listing.SourceSystem,
		listing.FirstSeenAt,
		listing.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}

	return nil
}

// Update replaces the mutable fields of an existing listing
func (r *listingRepository) Update(ctx context.Context, listing *domain.Listing) error {
	query := `
		UPDATE listings
		SET ticker = $2, trading_currency = $3, status = $4, source_system = $5, last_seen_at = $6
		WHERE id = $1
	`

	var ticker interface{}
	if listing.Ticker != "" {
		ticker = listing.Ticker
	}

	result, err := r.db.ExecContext(ctx, query,
		listing.ID,
		ticker,
		listing.TradingCurrency,
		string(listing.Status),
		listing.SourceSystem,
		listing.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFoundError("listing not found")
	}

	return nil
}

// Search finds listings whose ticker, ISIN or instrument name matches the
// query, paginated by limit/offset
func (r *listingRepository) Search(ctx context.Context, query string, limit, offset int) ([]*domain.Listing, int, error) {
	pattern := "%" + query + "%"

	countQuery := `
		SELECT COUNT(*)
		FROM listings l
		JOIN instruments i ON i.isin = l.isin
		WHERE l.ticker ILIKE $1 OR l.isin ILIKE $1 OR i.name ILIKE $1
	`

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	searchQuery := `
		SELECT l.id, l.isin, l.exchange_id, l.ticker, l.trading_currency, l.status, l.source_system, l.first_seen_at, l.last_seen_at
		FROM listings l
		JOIN instruments i ON i.isin = l.isin
		WHERE l.ticker ILIKE $1 OR l.isin ILIKE $1 OR i.name ILIKE $1
		ORDER BY l.ticker, l.isin
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, searchQuery, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search listings: %w", err)
	}
	defer rows.Close()

	var listings []*domain.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate listings: %w", err)
	}

	return listings, total, nil
}
