package calculator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"creditrisk-api/internal/models"
)

// MonthlyCashFlow is one projected month of portfolio cash flows.
type MonthlyCashFlow struct {
	Month        int             `json:"month"`
	MonthStart   time.Time       `json:"month_start"`
	InterestCF   decimal.Decimal `json:"interest_cf"`
	PrincipalCF  decimal.Decimal `json:"principal_cf"`
	TotalCF      decimal.Decimal `json:"total_cf"`
	CumulativeCF decimal.Decimal `json:"cumulative_cf"`
}

// CashFlowProjection is the result of projecting a portfolio over a horizon.
// BreakEvenMonth is the first month whose cumulative cash flow is positive,
// or 0 when no month is.
type CashFlowProjection struct {
	AsOf           time.Time         `json:"as_of"`
	HorizonMonths  int               `json:"horizon_months"`
	Months         []MonthlyCashFlow `json:"months"`
	BreakEvenMonth int               `json:"break_even_month"`

	TotalInterest  decimal.Decimal `json:"total_interest"`
	TotalPrincipal decimal.Decimal `json:"total_principal"`
}

// CashFlowCalculatorConfig bounds projection horizons.
type CashFlowCalculatorConfig struct {
	MaxHorizonMonths int `json:"max_horizon_months" default:"600"`
}

// CashFlowCalculator projects monthly portfolio interest and principal cash
// flows. Stateless; every projection is a pure function of its inputs.
type CashFlowCalculator struct {
	maxHorizonMonths int
}

func NewCashFlowCalculator(config CashFlowCalculatorConfig) *CashFlowCalculator {
	maxHorizon := config.MaxHorizonMonths
	if maxHorizon <= 0 {
		maxHorizon = 600
	}
	return &CashFlowCalculator{maxHorizonMonths: maxHorizon}
}

// Project computes monthly cash flows over horizonMonths calendar months
// starting from the month containing asOf.
//
// A loan contributes monthly interest of amount*rate/100/12 for every month
// up to and including the month its maturity falls in, and its principal is
// repaid exactly once, in the calendar month of its maturity. Loans maturing
// before the as-of month contribute nothing; loans maturing after the
// horizon contribute interest only.
func (cc *CashFlowCalculator) Project(
	ctx context.Context,
	portfolio *models.Portfolio,
	horizonMonths int,
	asOf time.Time,
) (*CashFlowProjection, error) {
	if horizonMonths <= 0 || horizonMonths > cc.maxHorizonMonths {
		return nil, models.InvalidParameterError("horizon_months", horizonMonths)
	}
	if asOf.IsZero() {
		return nil, models.InvalidParameterError("as_of", asOf)
	}
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}

	projection := &CashFlowProjection{
		AsOf:          asOf,
		HorizonMonths: horizonMonths,
		Months:        make([]MonthlyCashFlow, 0, horizonMonths),
	}

	twelve := decimal.NewFromInt(12)
	hundred := decimal.NewFromInt(100)
	horizonStart := monthStart(asOf)
	cumulative := decimal.Zero

	for month := 1; month <= horizonMonths; month++ {
		windowStart := horizonStart.AddDate(0, month-1, 0)
		windowEnd := windowStart.AddDate(0, 1, 0)

		interest := decimal.Zero
		principal := decimal.Zero

		for i := range portfolio.Loans {
			loan := &portfolio.Loans[i]
			if loan.MaturityDate.Before(windowStart) {
				continue // matured before this month, no longer outstanding
			}
			interest = interest.Add(loan.Amount.Mul(loan.Rate).Div(hundred).Div(twelve))
			if loan.MaturityDate.Before(windowEnd) {
				principal = principal.Add(loan.Amount)
			}
		}

		total := interest.Add(principal)
		cumulative = cumulative.Add(total)

		projection.Months = append(projection.Months, MonthlyCashFlow{
			Month:        month,
			MonthStart:   windowStart,
			InterestCF:   interest,
			PrincipalCF:  principal,
			TotalCF:      total,
			CumulativeCF: cumulative,
		})

		projection.TotalInterest = projection.TotalInterest.Add(interest)
		projection.TotalPrincipal = projection.TotalPrincipal.Add(principal)

		if projection.BreakEvenMonth == 0 && cumulative.GreaterThan(decimal.Zero) {
			projection.BreakEvenMonth = month
		}
	}

	return projection, nil
}

// monthStart truncates a date to the first day of its calendar month.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
