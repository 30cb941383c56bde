package dataset

import (
	"strings"

	"github.com/shopspring/decimal"

	"creditrisk-api/internal/models"
)

// Filter is a set of optional portfolio selection criteria. Zero-value
// fields are not applied.
type Filter struct {
	Sectors   []string          `json:"sectors,omitempty"`
	Ratings   []string          `json:"ratings,omitempty"`
	Statuses  []models.LoanStatus `json:"statuses,omitempty"`
	MinAmount *decimal.Decimal  `json:"min_amount,omitempty"`
	MaxAmount *decimal.Decimal  `json:"max_amount,omitempty"`
}

// Apply returns the derived view of loans matching every set criterion.
// The input portfolio is never mutated.
func (f Filter) Apply(portfolio *models.Portfolio) *models.Portfolio {
	out := portfolio
	if len(f.Sectors) > 0 {
		set := stringSet(f.Sectors)
		out = filterLoans(out, func(l *models.LoanRecord) bool {
			_, ok := set[l.Sector]
			return ok
		})
	}
	if len(f.Ratings) > 0 {
		out = out.ByRatings(f.Ratings)
	}
	if len(f.Statuses) > 0 {
		set := make(map[models.LoanStatus]struct{}, len(f.Statuses))
		for _, s := range f.Statuses {
			set[s] = struct{}{}
		}
		out = filterLoans(out, func(l *models.LoanRecord) bool {
			_, ok := set[l.Status]
			return ok
		})
	}
	if f.MinAmount != nil {
		out = filterLoans(out, func(l *models.LoanRecord) bool {
			return l.Amount.GreaterThanOrEqual(*f.MinAmount)
		})
	}
	if f.MaxAmount != nil {
		out = filterLoans(out, func(l *models.LoanRecord) bool {
			return l.Amount.LessThanOrEqual(*f.MaxAmount)
		})
	}
	return out
}

// SearchBorrowers returns the loans whose borrower name or loan ID contains
// the query, case-insensitively. An empty query returns the portfolio
// unchanged.
func SearchBorrowers(portfolio *models.Portfolio, query string) *models.Portfolio {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return portfolio
	}
	return filterLoans(portfolio, func(l *models.LoanRecord) bool {
		return strings.Contains(strings.ToLower(l.LoanID), query) ||
			strings.Contains(strings.ToLower(l.Borrower), query)
	})
}

func filterLoans(portfolio *models.Portfolio, keep func(*models.LoanRecord) bool) *models.Portfolio {
	out := &models.Portfolio{
		ID:        portfolio.ID,
		Name:      portfolio.Name,
		CreatedAt: portfolio.CreatedAt,
		UpdatedAt: portfolio.UpdatedAt,
	}
	for i := range portfolio.Loans {
		if keep(&portfolio.Loans[i]) {
			out.Loans = append(out.Loans, portfolio.Loans[i])
		}
	}
	return out
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
