package repositories

import (
	"context"

	"creditrisk-api/internal/models"
)

// PortfolioRepository defines the interface for loan portfolio persistence.
type PortfolioRepository interface {
	// Create stores a new portfolio
	Create(ctx context.Context, portfolio *models.Portfolio) error

	// GetByID retrieves a portfolio by its ID
	GetByID(ctx context.Context, id string) (*models.Portfolio, error)

	// Update replaces an existing portfolio
	Update(ctx context.Context, portfolio *models.Portfolio) error

	// Delete removes a portfolio by ID
	Delete(ctx context.Context, id string) error

	// List retrieves portfolios with pagination
	List(ctx context.Context, limit, offset int) ([]*models.Portfolio, error)
}

// DefaultRateRepository manages the default-rate reference table.
type DefaultRateRepository interface {
	// ReplaceAll swaps the whole reference table atomically
	ReplaceAll(ctx context.Context, entries []models.DefaultRateEntry) error

	// GetAll retrieves every entry of the table
	GetAll(ctx context.Context) ([]models.DefaultRateEntry, error)
}

// RatingHistoryRepository manages rating snapshot history.
type RatingHistoryRepository interface {
	// Append stores new snapshots; (loan_id, snapshot_date) must be unique
	Append(ctx context.Context, snapshots []models.RatingSnapshot) error

	// GetAll retrieves the full history ordered by snapshot date
	GetAll(ctx context.Context) ([]models.RatingSnapshot, error)

	// GetByLoanID retrieves one loan's history ordered by snapshot date
	GetByLoanID(ctx context.Context, loanID string) ([]models.RatingSnapshot, error)
}
