package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus describes the health of a single credit exposure.
type LoanStatus string

const (
	StatusPerforming    LoanStatus = "Performing"
	StatusWatchList     LoanStatus = "Watch List"
	StatusNonPerforming LoanStatus = "Non-Performing"
	StatusDefaulted     LoanStatus = "Defaulted"
)

// ValidStatus reports whether s is one of the known loan statuses.
func ValidStatus(s LoanStatus) bool {
	switch s {
	case StatusPerforming, StatusWatchList, StatusNonPerforming, StatusDefaulted:
		return true
	}
	return false
}

// LoanRecord is a single credit exposure in a portfolio.
//
// Amount is the outstanding principal in base currency units and Rate is the
// annual interest rate as a 0-100 percentage. The three covenant ratios are
// optional; a nil pointer means the ratio was not reported for the loan.
type LoanRecord struct {
	LoanID       string          `bson:"loan_id" json:"loan_id" validate:"required"`
	Borrower     string          `bson:"borrower" json:"borrower" validate:"required"`
	Amount       decimal.Decimal `bson:"amount" json:"amount"`
	Rate         decimal.Decimal `bson:"rate" json:"rate"`
	Sector       string          `bson:"sector" json:"sector" validate:"required"`
	Country      string          `bson:"country,omitempty" json:"country,omitempty"`
	MaturityDate time.Time       `bson:"maturity_date" json:"maturity_date"`
	CreditRating string          `bson:"credit_rating" json:"credit_rating" validate:"required"`
	Status       LoanStatus      `bson:"status" json:"status" validate:"required"`

	DebtToEquity     *decimal.Decimal `bson:"debt_to_equity,omitempty" json:"debt_to_equity,omitempty"`
	InterestCoverage *decimal.Decimal `bson:"interest_coverage,omitempty" json:"interest_coverage,omitempty"`
	LeverageRatio    *decimal.Decimal `bson:"leverage_ratio,omitempty" json:"leverage_ratio,omitempty"`
}

// Validate checks the per-record invariants that cannot be expressed as
// struct tags.
func (l *LoanRecord) Validate() error {
	if l.Amount.LessThanOrEqual(decimal.Zero) {
		return &SchemaError{Column: "amount", Reason: fmt.Sprintf("loan %s: amount must be positive, got %s", l.LoanID, l.Amount)}
	}
	if l.Rate.IsNegative() || l.Rate.GreaterThan(decimal.NewFromInt(100)) {
		return &SchemaError{Column: "rate", Reason: fmt.Sprintf("loan %s: rate must be in [0,100], got %s", l.LoanID, l.Rate)}
	}
	if !ValidStatus(l.Status) {
		return &SchemaError{Column: "status", Reason: fmt.Sprintf("loan %s: unknown status %q", l.LoanID, l.Status)}
	}
	if l.MaturityDate.IsZero() {
		return &SchemaError{Column: "maturity_date", Reason: fmt.Sprintf("loan %s: maturity date missing", l.LoanID)}
	}
	for name, ratio := range map[string]*decimal.Decimal{
		"debt_to_equity":    l.DebtToEquity,
		"interest_coverage": l.InterestCoverage,
		"leverage_ratio":    l.LeverageRatio,
	} {
		if ratio != nil && ratio.IsNegative() {
			return &SchemaError{Column: name, Reason: fmt.Sprintf("loan %s: %s must be non-negative, got %s", l.LoanID, name, ratio)}
		}
	}
	return nil
}

// Portfolio is an immutable collection of loan records, unique on LoanID.
// Derived views produced by the filter helpers share the underlying records
// but never mutate them.
type Portfolio struct {
	ID    string       `bson:"_id,omitempty" json:"id,omitempty"`
	Name  string       `bson:"name,omitempty" json:"name,omitempty"`
	Loans []LoanRecord `bson:"loans" json:"loans"`

	CreatedAt time.Time `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// NewPortfolio builds a portfolio after checking loan_id uniqueness and
// per-record invariants.
func NewPortfolio(id string, loans []LoanRecord) (*Portfolio, error) {
	seen := make(map[string]struct{}, len(loans))
	for i := range loans {
		if err := loans[i].Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[loans[i].LoanID]; dup {
			return nil, &SchemaError{Column: "loan_id", Reason: fmt.Sprintf("duplicate loan_id %q", loans[i].LoanID)}
		}
		seen[loans[i].LoanID] = struct{}{}
	}
	return &Portfolio{ID: id, Loans: loans, CreatedAt: time.Now(), UpdatedAt: time.Now()}, nil
}

// IsEmpty reports whether the portfolio holds no loans.
func (p *Portfolio) IsEmpty() bool {
	return p == nil || len(p.Loans) == 0
}

// Count returns the number of loans.
func (p *Portfolio) Count() int {
	if p == nil {
		return 0
	}
	return len(p.Loans)
}

// TotalExposure returns the sum of loan amounts.
func (p *Portfolio) TotalExposure() decimal.Decimal {
	total := decimal.Zero
	if p == nil {
		return total
	}
	for i := range p.Loans {
		total = total.Add(p.Loans[i].Amount)
	}
	return total
}

// WeightedAverageRate returns the exposure-weighted average rate,
// Σ(amount·rate)/Σ(amount). Zero for an empty portfolio.
func (p *Portfolio) WeightedAverageRate() decimal.Decimal {
	if p.IsEmpty() {
		return decimal.Zero
	}
	total := decimal.Zero
	weighted := decimal.Zero
	for i := range p.Loans {
		total = total.Add(p.Loans[i].Amount)
		weighted = weighted.Add(p.Loans[i].Amount.Mul(p.Loans[i].Rate))
	}
	if total.IsZero() {
		return decimal.Zero
	}
	return weighted.Div(total)
}

// FindLoan returns the loan with the given ID, or nil if absent.
func (p *Portfolio) FindLoan(loanID string) *LoanRecord {
	for i := range p.Loans {
		if p.Loans[i].LoanID == loanID {
			return &p.Loans[i]
		}
	}
	return nil
}

// subset builds a derived view holding the records that pass keep.
func (p *Portfolio) subset(keep func(*LoanRecord) bool) *Portfolio {
	out := &Portfolio{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
	for i := range p.Loans {
		if keep(&p.Loans[i]) {
			out.Loans = append(out.Loans, p.Loans[i])
		}
	}
	return out
}

// ByStatus returns the loans with the given status as a derived view.
func (p *Portfolio) ByStatus(status LoanStatus) *Portfolio {
	return p.subset(func(l *LoanRecord) bool { return l.Status == status })
}

// ByBorrower returns the loans of a single borrower as a derived view.
func (p *Portfolio) ByBorrower(borrower string) *Portfolio {
	return p.subset(func(l *LoanRecord) bool { return l.Borrower == borrower })
}

// ByRating returns the loans carrying the given credit rating.
func (p *Portfolio) ByRating(rating string) *Portfolio {
	return p.subset(func(l *LoanRecord) bool { return l.CreditRating == rating })
}

// ByRatings returns the loans whose rating is in the given set.
func (p *Portfolio) ByRatings(ratings []string) *Portfolio {
	set := make(map[string]struct{}, len(ratings))
	for _, r := range ratings {
		set[r] = struct{}{}
	}
	return p.subset(func(l *LoanRecord) bool {
		_, ok := set[l.CreditRating]
		return ok
	})
}

// BySector returns the loans in a single sector as a derived view.
func (p *Portfolio) BySector(sector string) *Portfolio {
	return p.subset(func(l *LoanRecord) bool { return l.Sector == sector })
}

// ByBorrowerExposure aggregates total exposure per borrower.
func (p *Portfolio) ByBorrowerExposure() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for i := range p.Loans {
		loan := &p.Loans[i]
		out[loan.Borrower] = out[loan.Borrower].Add(loan.Amount)
	}
	return out
}
