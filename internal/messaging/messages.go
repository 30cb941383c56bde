package messaging

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioUpdatedMessage announces that a stored loan dataset changed and
// its cached reports must be recomputed.
type PortfolioUpdatedMessage struct {
	CorrelationID string    `json:"correlation_id"`
	PortfolioID   string    `json:"portfolio_id"`
	UpdatedBy     string    `json:"updated_by"`
	Timestamp     time.Time `json:"timestamp"`
}

// CovenantBreachAlert is published when a covenant check finds at least one
// breached loan.
type CovenantBreachAlert struct {
	CorrelationID  string          `json:"correlation_id"`
	PortfolioID    string          `json:"portfolio_id"`
	BreachedLoans  int             `json:"breached_loans"`
	TotalLoans     int             `json:"total_loans"`
	BreachExposure decimal.Decimal `json:"breach_exposure"`
	CompliantPct   decimal.Decimal `json:"compliant_pct"`
	Timestamp      time.Time       `json:"timestamp"`
}
