package calculator

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"creditrisk-api/internal/models"
)

// AmortizationMethod selects the payment convention for a schedule. The set
// is closed; Amortize rejects anything else.
type AmortizationMethod string

const (
	MethodStraightLine AmortizationMethod = "straight_line"
	MethodAnnuity      AmortizationMethod = "annuity"
	MethodBullet       AmortizationMethod = "bullet"
)

// AmortizationPeriod is one row of a payment schedule.
type AmortizationPeriod struct {
	Period    int             `json:"period"`
	Payment   decimal.Decimal `json:"payment"`
	Principal decimal.Decimal `json:"principal"`
	Interest  decimal.Decimal `json:"interest"`
	Balance   decimal.Decimal `json:"balance"`
}

// AmortizationSchedule is a full payment schedule for one loan, generated
// fresh per request and never persisted.
type AmortizationSchedule struct {
	Method         AmortizationMethod   `json:"method"`
	Principal      decimal.Decimal      `json:"principal"`
	AnnualRatePct  decimal.Decimal      `json:"annual_rate_pct"`
	PeriodsPerYear int                  `json:"periods_per_year"`
	TotalPeriods   int                  `json:"total_periods"`
	Periods        []AmortizationPeriod `json:"periods"`

	TotalPayments  decimal.Decimal `json:"total_payments"`
	TotalInterest  decimal.Decimal `json:"total_interest"`
	InterestPctOfPrincipal decimal.Decimal `json:"interest_pct_of_principal"`
}

// MethodComparison holds the headline metrics of one amortization convention,
// used to contrast the three side by side.
type MethodComparison struct {
	Method         AmortizationMethod `json:"method"`
	TotalInterest  decimal.Decimal    `json:"total_interest"`
	AveragePayment decimal.Decimal    `json:"average_payment"`
	MaxPayment     decimal.Decimal    `json:"max_payment"`
	MinPayment     decimal.Decimal    `json:"min_payment"`
}

// AmortizationCalculatorConfig bounds schedule generation.
type AmortizationCalculatorConfig struct {
	MaxPeriods int `json:"max_periods" default:"10000"`
}

// AmortizationCalculator generates per-loan payment schedules. It holds no
// state between calls.
type AmortizationCalculator struct {
	maxPeriods int
}

func NewAmortizationCalculator(config AmortizationCalculatorConfig) *AmortizationCalculator {
	maxPeriods := config.MaxPeriods
	if maxPeriods <= 0 {
		maxPeriods = 10000
	}
	return &AmortizationCalculator{maxPeriods: maxPeriods}
}

// Amortize builds the payment schedule for a loan.
//
// Period count is floor(termYears * periodsPerYear) and the period rate is
// annualRatePct/100/periodsPerYear. The sum of principal components always
// equals the original principal and the final balance is zero; the last
// period absorbs any rounding remainder.
func (ac *AmortizationCalculator) Amortize(
	ctx context.Context,
	principal decimal.Decimal,
	annualRatePct decimal.Decimal,
	termYears float64,
	periodsPerYear int,
	method AmortizationMethod,
) (*AmortizationSchedule, error) {
	if principal.LessThanOrEqual(decimal.Zero) {
		return nil, models.InvalidParameterError("principal", principal)
	}
	if annualRatePct.IsNegative() {
		return nil, models.InvalidParameterError("annual_rate_pct", annualRatePct)
	}
	if termYears <= 0 {
		return nil, models.InvalidParameterError("term_years", termYears)
	}
	if periodsPerYear <= 0 {
		return nil, models.InvalidParameterError("periods_per_year", periodsPerYear)
	}

	totalPeriods := int(termYears * float64(periodsPerYear))
	if totalPeriods < 1 {
		return nil, models.InvalidParameterError("term_years", termYears)
	}
	if totalPeriods > ac.maxPeriods {
		return nil, fmt.Errorf("%w: %d periods exceeds limit of %d", models.ErrInvalidParameter, totalPeriods, ac.maxPeriods)
	}

	periodRate := annualRatePct.
		Div(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(periodsPerYear)))

	schedule := &AmortizationSchedule{
		Method:         method,
		Principal:      principal,
		AnnualRatePct:  annualRatePct,
		PeriodsPerYear: periodsPerYear,
		TotalPeriods:   totalPeriods,
		Periods:        make([]AmortizationPeriod, 0, totalPeriods),
	}

	switch method {
	case MethodStraightLine:
		ac.amortizeStraightLine(schedule, periodRate)
	case MethodAnnuity:
		ac.amortizeAnnuity(schedule, periodRate)
	case MethodBullet:
		ac.amortizeBullet(schedule, periodRate)
	default:
		return nil, models.InvalidParameterError("method", method)
	}

	for i := range schedule.Periods {
		schedule.TotalPayments = schedule.TotalPayments.Add(schedule.Periods[i].Payment)
		schedule.TotalInterest = schedule.TotalInterest.Add(schedule.Periods[i].Interest)
	}
	schedule.InterestPctOfPrincipal = schedule.TotalInterest.
		Div(principal).
		Mul(decimal.NewFromInt(100))

	return schedule, nil
}

// amortizeStraightLine pays equal principal each period plus interest on the
// declining balance.
func (ac *AmortizationCalculator) amortizeStraightLine(s *AmortizationSchedule, periodRate decimal.Decimal) {
	n := int64(s.TotalPeriods)
	principalPayment := s.Principal.Div(decimal.NewFromInt(n))
	balance := s.Principal

	for period := 1; period <= s.TotalPeriods; period++ {
		interest := balance.Mul(periodRate)
		pay := principalPayment
		if period == s.TotalPeriods {
			pay = balance // absorb rounding remainder
		}
		balance = balance.Sub(pay)
		if balance.IsNegative() {
			balance = decimal.Zero
		}
		s.Periods = append(s.Periods, AmortizationPeriod{
			Period:    period,
			Payment:   pay.Add(interest),
			Principal: pay,
			Interest:  interest,
			Balance:   balance,
		})
	}
}

// amortizeAnnuity holds the total payment constant using the standard
// annuity formula; the zero-rate case degrades to equal principal payments.
func (ac *AmortizationCalculator) amortizeAnnuity(s *AmortizationSchedule, periodRate decimal.Decimal) {
	n := int64(s.TotalPeriods)

	var payment decimal.Decimal
	if periodRate.IsZero() {
		payment = s.Principal.Div(decimal.NewFromInt(n))
	} else {
		r, _ := periodRate.Float64()
		pf, _ := s.Principal.Float64()
		pow := math.Pow(1+r, float64(s.TotalPeriods))
		payment = decimal.NewFromFloat(pf * r * pow / (pow - 1))
	}

	balance := s.Principal
	for period := 1; period <= s.TotalPeriods; period++ {
		interest := balance.Mul(periodRate)
		principalPayment := payment.Sub(interest)
		pay := payment
		if period == s.TotalPeriods {
			principalPayment = balance
			pay = principalPayment.Add(interest)
		}
		balance = balance.Sub(principalPayment)
		if balance.IsNegative() {
			balance = decimal.Zero
		}
		s.Periods = append(s.Periods, AmortizationPeriod{
			Period:    period,
			Payment:   pay,
			Principal: principalPayment,
			Interest:  interest,
			Balance:   balance,
		})
	}
}

// amortizeBullet pays interest on the original principal each period and the
// full principal in the final period.
func (ac *AmortizationCalculator) amortizeBullet(s *AmortizationSchedule, periodRate decimal.Decimal) {
	interest := s.Principal.Mul(periodRate)
	for period := 1; period <= s.TotalPeriods; period++ {
		principalPayment := decimal.Zero
		balance := s.Principal
		if period == s.TotalPeriods {
			principalPayment = s.Principal
			balance = decimal.Zero
		}
		s.Periods = append(s.Periods, AmortizationPeriod{
			Period:    period,
			Payment:   interest.Add(principalPayment),
			Principal: principalPayment,
			Interest:  interest,
			Balance:   balance,
		})
	}
}

// CompareMethods builds all three schedules for the same loan and returns
// their headline metrics.
func (ac *AmortizationCalculator) CompareMethods(
	ctx context.Context,
	principal decimal.Decimal,
	annualRatePct decimal.Decimal,
	termYears float64,
	periodsPerYear int,
) ([]MethodComparison, error) {
	methods := []AmortizationMethod{MethodStraightLine, MethodAnnuity, MethodBullet}
	comparisons := make([]MethodComparison, 0, len(methods))

	for _, method := range methods {
		schedule, err := ac.Amortize(ctx, principal, annualRatePct, termYears, periodsPerYear, method)
		if err != nil {
			return nil, err
		}
		cmp := MethodComparison{
			Method:        method,
			TotalInterest: schedule.TotalInterest,
			MaxPayment:    schedule.Periods[0].Payment,
			MinPayment:    schedule.Periods[0].Payment,
		}
		for i := range schedule.Periods {
			p := schedule.Periods[i].Payment
			if p.GreaterThan(cmp.MaxPayment) {
				cmp.MaxPayment = p
			}
			if p.LessThan(cmp.MinPayment) {
				cmp.MinPayment = p
			}
		}
		cmp.AveragePayment = schedule.TotalPayments.Div(decimal.NewFromInt(int64(len(schedule.Periods))))
		comparisons = append(comparisons, cmp)
	}

	return comparisons, nil
}
