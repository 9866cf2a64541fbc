package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/etfolio/etfolio-backend/internal/domain"
)

// instrumentRepository implements domain.InstrumentRepository
type instrumentRepository struct {
	db *DB
}

// NewInstrumentRepository creates a new instrument repository
func NewInstrumentRepository(db *DB) domain.InstrumentRepository {
	return &instrumentRepository{db: db}
}

// GetByISIN retrieves an instrument by its identifier
func (r *instrumentRepository) GetByISIN(ctx context.Context, isin string) (*domain.Instrument, error) {
	query := `
		SELECT isin, name, name_source, name_conflict, isin_temporary, first_seen_at, last_seen_at
		FROM instruments
		WHERE isin = $1
	`

	var instrument domain.Instrument
	err := r.db.QueryRowContext(ctx, query, isin).Scan(
		&instrument.ISIN,
		&instrument.Name,
		&instrument.NameSource,
		&instrument.NameConflict,
		&instrument.ISINTemporary,
		&instrument.FirstSeenAt,
		&instrument.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("instrument not found")
		}
		return nil, fmt.Errorf("failed to get instrument by ISIN: %w", err)
	}

	return &instrument, nil
}

// Create creates a new instrument
func (r *instrumentRepository) Create(ctx context.Context, instrument *domain.Instrument) error {
	query := `
		INSERT INTO instruments (isin, name, name_source, name_conflict, isin_temporary, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		instrument.ISIN,
		instrument.Name,
		string(instrument.NameSource),
		instrument.NameConflict,
		instrument.ISINTemporary,
		instrument.FirstSeenAt,
		instrument.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create instrument: %w", err)
	}

	return nil
}

// Update replaces the mutable fields of an existing instrument
func (r *instrumentRepository) Update(ctx context.Context, instrument *domain.Instrument) error {
	query := `
		UPDATE instruments
		SET name = $2, name_source = $3, name_conflict = $4, isin_temporary = $5, last_seen_at = $6
		WHERE isin = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		instrument.ISIN,
		instrument.Name,
		string(instrument.NameSource),
		instrument.NameConflict,
		instrument.ISINTemporary,
		instrument.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update instrument: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFoundError("instrument not found")
	}

	return nil
}
