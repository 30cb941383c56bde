package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRateEntry is one row of the default-rate reference table, keyed by
// credit rating. DefaultProbability and RecoveryRate are 0-1 fractions;
// RiskWeight is a non-negative exposure multiplier.
type DefaultRateEntry struct {
	CreditRating       string          `bson:"credit_rating" json:"credit_rating" validate:"required"`
	DefaultProbability decimal.Decimal `bson:"default_probability" json:"default_probability"`
	RecoveryRate       decimal.Decimal `bson:"recovery_rate" json:"recovery_rate"`
	RiskWeight         decimal.Decimal `bson:"risk_weight" json:"risk_weight"`
}

// Validate checks the 0-1 bounds on probability and recovery.
func (e *DefaultRateEntry) Validate() error {
	one := decimal.NewFromInt(1)
	if e.DefaultProbability.IsNegative() || e.DefaultProbability.GreaterThan(one) {
		return &SchemaError{Column: "default_probability", Reason: "must be within [0,1] for rating " + e.CreditRating}
	}
	if e.RecoveryRate.IsNegative() || e.RecoveryRate.GreaterThan(one) {
		return &SchemaError{Column: "recovery_rate", Reason: "must be within [0,1] for rating " + e.CreditRating}
	}
	if e.RiskWeight.IsNegative() {
		return &SchemaError{Column: "risk_weight", Reason: "must be non-negative for rating " + e.CreditRating}
	}
	return nil
}

// RatingSnapshot is one observation of a loan's credit rating on a date.
// Rows are unique on (loan_id, snapshot_date).
type RatingSnapshot struct {
	LoanID       string    `bson:"loan_id" json:"loan_id" validate:"required"`
	SnapshotDate time.Time `bson:"snapshot_date" json:"snapshot_date"`
	CreditRating string    `bson:"credit_rating" json:"credit_rating" validate:"required"`
}

// CovenantThresholds holds the limits a borrower's ratios are checked against.
type CovenantThresholds struct {
	MaxDebtToEquity     decimal.Decimal `json:"max_debt_to_equity"`
	MinInterestCoverage decimal.Decimal `json:"min_interest_coverage"`
	MaxLeverageRatio    decimal.Decimal `json:"max_leverage_ratio"`
}

// Validate rejects non-positive thresholds.
func (t *CovenantThresholds) Validate() error {
	if t.MaxDebtToEquity.LessThanOrEqual(decimal.Zero) {
		return InvalidParameterError("max_debt_to_equity", t.MaxDebtToEquity)
	}
	if t.MinInterestCoverage.LessThanOrEqual(decimal.Zero) {
		return InvalidParameterError("min_interest_coverage", t.MinInterestCoverage)
	}
	if t.MaxLeverageRatio.LessThanOrEqual(decimal.Zero) {
		return InvalidParameterError("max_leverage_ratio", t.MaxLeverageRatio)
	}
	return nil
}
