package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/etfolio/etfolio-backend/internal/domain"
)

// transactionRepository implements domain.TransactionRepository
type transactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var tx domain.Transaction
	var quantityStr, priceStr, totalStr, feesStr string
	var notes sql.NullString

	err := row.Scan(
		&tx.ID,
		&tx.PortfolioID,
		&tx.ListingID,
		&tx.Type,
		&tx.Date,
		&quantityStr,
		&priceStr,
		&totalStr,
		&feesStr,
		&tx.Currency,
		&notes,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tx.Quantity, err = decimal.NewFromString(quantityStr); err != nil {
		return nil, fmt.Errorf("failed to parse quantity: %w", err)
	}
	if tx.PricePerUnit, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("failed to parse price_per_unit: %w", err)
	}
	if tx.TotalAmount, err = decimal.NewFromString(totalStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_amount: %w", err)
	}
	if tx.Fees, err = decimal.NewFromString(feesStr); err != nil {
		return nil, fmt.Errorf("failed to parse fees: %w", err)
	}
	if notes.Valid {
		tx.Notes = notes.String
	}

	return &tx, nil
}

// GetByID retrieves a transaction by its ID
func (r *transactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `
		SELECT id, portfolio_id, listing_id, type, date, quantity, price_per_unit, total_amount, fees, currency, notes, created_at, updated_at
		FROM transactions
		WHERE id = $1
	`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("transaction not found")
		}
		return nil, fmt.Errorf("failed to get transaction by ID: %w", err)
	}

	return tx, nil
}

// Create creates a new transaction
func (r *transactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, portfolio_id, listing_id, type, date, quantity, price_per_unit, total_amount, fees, currency, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	var notes interface{}
	if tx.Notes != "" {
		notes = tx.Notes
	}

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.PortfolioID,
		tx.ListingID,
		string(tx.Type),
		tx.Date,
		tx.Quantity.String(),
		tx.PricePerUnit.String(),
		tx.TotalAmount.String(),
		tx.Fees.String(),
		tx.Currency,
		notes,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// Update replaces an existing transaction in full
func (r *transactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	query := `
		UPDATE transactions
		SET type = $2, date = $3, quantity = $4, price_per_unit = $5, total_amount = $6, fees = $7, currency = $8, notes = $9, updated_at = $10
		WHERE id = $1
	`

	var notes interface{}
	if tx.Notes != "" {
		notes = tx.Notes
	}

	result, err := r.db.ExecContext(ctx, query,
		tx.ID,
		string(tx.Type),
		tx.Date,
		tx.Quantity.String(),
		tx.PricePerUnit.String(),
		tx.TotalAmount.String(),
		tx.Fees.String(),
		tx.Currency,
		notes,
		tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFoundError("transaction not found")
	}

	return nil
}

// Delete permanently removes a transaction
func (r *transactionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM transactions WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFoundError("transaction not found")
	}

	return nil
}

// filterClauses builds the WHERE conditions for a transaction filter.
// $1 is always the portfolio ID; further placeholders are appended in order.
func filterClauses(portfolioID uuid.UUID, filter domain.TransactionFilter) (string, []interface{}) {
	conditions := []string{"portfolio_id = $1"}
	args := []interface{}{portfolioID}

	if filter.ListingID != nil {
		args = append(args, *filter.ListingID)
		conditions = append(conditions, fmt.Sprintf("listing_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)))
	}

	return strings.Join(conditions, " AND "), args
}

// List retrieves a portfolio's transactions matching the filter, newest first
func (r *transactionRepository) List(ctx context.Context, portfolioID uuid.UUID, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	where, args := filterClauses(portfolioID, filter)

	query := `
		SELECT id, portfolio_id, listing_id, type, date, quantity, price_per_unit, total_amount, fees, currency, notes, created_at, updated_at
		FROM transactions
		WHERE ` + where + `
		ORDER BY date DESC, created_at DESC
	`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// Count returns the number of transactions matching the filter, ignoring
// pagination
func (r *transactionRepository) Count(ctx context.Context, portfolioID uuid.UUID, filter domain.TransactionFilter) (int, error) {
	where, args := filterClauses(portfolioID, filter)

	query := `SELECT COUNT(*) FROM transactions WHERE ` + where

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return total, nil
}

// ListByListing retrieves every transaction for one (portfolio, listing) pair
// ordered by date ascending
func (r *transactionRepository) ListByListing(ctx context.Context, portfolioID, listingID uuid.UUID) ([]*domain.Transaction, error) {
	query := `
		SELECT id, portfolio_id, listing_id, type, date, quantity, price_per_unit, total_amount, fees, currency, notes, created_at, updated_at
		FROM transactions
		WHERE portfolio_id = $1 AND listing_id = $2
		ORDER BY date ASC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, portfolioID, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for listing: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}
