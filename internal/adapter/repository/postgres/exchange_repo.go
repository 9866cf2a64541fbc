package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/etfolio/etfolio-backend/internal/domain"
)

// exchangeRepository implements domain.ExchangeRepository
type exchangeRepository struct {
	db *DB
}

// NewExchangeRepository creates a new exchange repository
func NewExchangeRepository(db *DB) domain.ExchangeRepository {
	return &exchangeRepository{db: db}
}

const exchangeColumns = "id, mic, name, country, currency, timezone"

func scanExchange(row interface{ Scan(...any) error }) (*domain.Exchange, error) {
	var exchange domain.Exchange
	err := row.Scan(
		&exchange.ID,
		&exchange.MIC,
		&exchange.Name,
		&exchange.Country,
		&exchange.Currency,
		&exchange.Timezone,
	)
	if err != nil {
		return nil, err
	}
	return &exchange, nil
}

// GetByID retrieves an exchange by its ID
func (r *exchangeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Exchange, error) {
	query := `
		SELECT ` + exchangeColumns + `
		FROM exchanges
		WHERE id = $1
	`

	exchange, err := scanExchange(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("exchange not found")
		}
		return nil, fmt.Errorf("failed to get exchange by ID: %w", err)
	}

	return exchange, nil
}

// GetByMIC retrieves an exchange by its market identifier code
func (r *exchangeRepository) GetByMIC(ctx context.Context, mic string) (*domain.Exchange, error) {
	query := `
		SELECT ` + exchangeColumns + `
		FROM exchanges
		WHERE mic = $1
	`

	exchange, err := scanExchange(r.db.QueryRowContext(ctx, query, mic))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("exchange not found")
		}
		return nil, fmt.Errorf("failed to get exchange by MIC: %w", err)
	}

	return exchange, nil
}

// Create creates a new exchange
func (r *exchangeRepository) Create(ctx context.Context, exchange *domain.Exchange) error {
	query := `
		INSERT INTO exchanges (id, mic, name, country, currency, timezone)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		exchange.ID,
		exchange.MIC,
		exchange.Name,
		exchange.Country,
		exchange.Currency,
		exchange.Timezone,
	)
	if err != nil {
		return fmt.Errorf("failed to create exchange: %w", err)
	}

	return nil
}

// List retrieves all exchanges ordered by name
func (r *exchangeRepository) List(ctx context.Context) ([]*domain.Exchange, error) {
	query := `
		SELECT ` + exchangeColumns + `
		FROM exchanges
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []*domain.Exchange
	for rows.Next() {
		exchange, err := scanExchange(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		exchanges = append(exchanges, exchange)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exchanges: %w", err)
	}

	return exchanges, nil
}
