package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPortfolioName is used when a portfolio is created lazily on a user's
// first transaction.
const DefaultPortfolioName = "My Portfolio"

// Portfolio owns the set of transactions for one user. Each user has at most
// one portfolio; it is created lazily on the first transaction.
type Portfolio struct {
	ID        uuid.UUID
	UserID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
