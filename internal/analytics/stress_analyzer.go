package analytics

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"creditrisk-api/internal/models"
)

// BaseCaseScenarioName identifies the implicit zero-shock scenario every
// sweep includes.
const BaseCaseScenarioName = "Base Case"

// StressScenario is a named shock configuration. Zero values mean no shock;
// a zero RecoveryRatePct is treated as full recovery (no loss severity) so
// the zero-value scenario is the base case. EligibleRatings optionally
// narrows the default shock to loans in those rating buckets; empty means
// portfolio-wide.
type StressScenario struct {
	Name                   string          `json:"name"`
	RateShockBps           decimal.Decimal `json:"rate_shock_bps"`
	DefaultRateIncreasePct decimal.Decimal `json:"default_rate_increase_pct"`
	RecoveryRatePct        decimal.Decimal `json:"recovery_rate_pct"`
	EligibleRatings        []string        `json:"eligible_ratings,omitempty"`
}

// BaseCase returns the zero-shock scenario.
func BaseCase() StressScenario {
	return StressScenario{
		Name:            BaseCaseScenarioName,
		RecoveryRatePct: decimal.NewFromInt(100),
	}
}

// ScenarioResult compares the portfolio before and after one scenario.
type ScenarioResult struct {
	Scenario string `json:"scenario"`

	BaseValue     decimal.Decimal `json:"base_value"`
	StressedValue decimal.Decimal `json:"stressed_value"`
	ValueChange   decimal.Decimal `json:"value_change"`
	PctChange     decimal.Decimal `json:"pct_change"`

	BaseYield     decimal.Decimal `json:"base_yield"`
	StressedYield decimal.Decimal `json:"stressed_yield"`

	EligibleCount     int             `json:"eligible_count"`
	EstimatedDefaults int             `json:"estimated_defaults"`
	EstimatedLoss     decimal.Decimal `json:"estimated_loss"`
}

// StressAnalyzer applies shock scenarios to a portfolio. Every run is a
// pure function of the portfolio and the scenario; the input is never
// mutated.
type StressAnalyzer struct{}

func NewStressAnalyzer() *StressAnalyzer {
	return &StressAnalyzer{}
}

// RunScenario applies one scenario. The stressed yield is the
// exposure-weighted average of rates shifted by the rate shock; estimated
// defaults = round(eligible_count * default_increase / 100), half away from
// zero; estimated loss = defaults * eligible average loan size *
// (1 - recovery/100); stressed value = base value - estimated loss.
func (sa *StressAnalyzer) RunScenario(
	ctx context.Context,
	portfolio *models.Portfolio,
	scenario StressScenario,
) (*ScenarioResult, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}
	if scenario.DefaultRateIncreasePct.IsNegative() {
		return nil, models.InvalidParameterError("default_rate_increase_pct", scenario.DefaultRateIncreasePct)
	}
	recovery := scenario.RecoveryRatePct
	if recovery.IsZero() {
		recovery = decimal.NewFromInt(100)
	}
	if recovery.IsNegative() || recovery.GreaterThan(decimal.NewFromInt(100)) {
		return nil, models.InvalidParameterError("recovery_rate_pct", scenario.RecoveryRatePct)
	}

	hundred := decimal.NewFromInt(100)
	baseValue := portfolio.TotalExposure()
	baseYield := portfolio.WeightedAverageRate()
	stressedYield := baseYield.Add(scenario.RateShockBps.Div(hundred))

	eligible := portfolio
	if len(scenario.EligibleRatings) > 0 {
		eligible = portfolio.ByRatings(scenario.EligibleRatings)
	}

	result := &ScenarioResult{
		Scenario:      scenario.Name,
		BaseValue:     baseValue,
		BaseYield:     baseYield,
		StressedYield: stressedYield,
		EligibleCount: eligible.Count(),
	}

	if !eligible.IsEmpty() && scenario.DefaultRateIncreasePct.IsPositive() {
		eligibleCount := decimal.NewFromInt(int64(eligible.Count()))
		defaults := eligibleCount.Mul(scenario.DefaultRateIncreasePct).Div(hundred).Round(0)
		result.EstimatedDefaults = int(defaults.IntPart())

		if result.EstimatedDefaults > 0 {
			avgLoanSize := eligible.TotalExposure().Div(eligibleCount)
			severity := decimal.NewFromInt(1).Sub(recovery.Div(hundred))
			result.EstimatedLoss = defaults.Mul(avgLoanSize).Mul(severity)
		}
	}

	result.StressedValue = baseValue.Sub(result.EstimatedLoss)
	result.ValueChange = result.StressedValue.Sub(baseValue)
	result.PctChange = result.ValueChange.Div(baseValue).Mul(hundred)

	return result, nil
}

// RunScenarios runs a sweep, prepending the implicit base case when the
// caller did not include one. Results keep the input order.
func (sa *StressAnalyzer) RunScenarios(
	ctx context.Context,
	portfolio *models.Portfolio,
	scenarios []StressScenario,
) ([]ScenarioResult, error) {
	hasBase := false
	for _, s := range scenarios {
		if s.Name == BaseCaseScenarioName {
			hasBase = true
			break
		}
	}
	if !hasBase {
		scenarios = append([]StressScenario{BaseCase()}, scenarios...)
	}

	results := make([]ScenarioResult, 0, len(scenarios))
	for _, scenario := range scenarios {
		result, err := sa.RunScenario(ctx, portfolio, scenario)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

// BorrowerScenarioResult is the restricted-subset variant output: the shock
// hits one borrower's loans with the rest of the book held at baseline.
type BorrowerScenarioResult struct {
	Borrower string `json:"borrower"`

	LoanCount        int             `json:"loan_count"`
	BorrowerExposure decimal.Decimal `json:"borrower_exposure"`

	BaseYield     decimal.Decimal `json:"base_yield"`
	StressedYield decimal.Decimal `json:"stressed_yield"`

	DefaultLoss   decimal.Decimal `json:"default_loss"`
	BaseValue     decimal.Decimal `json:"base_value"`
	StressedValue decimal.Decimal `json:"stressed_value"`
	PctChange     decimal.Decimal `json:"pct_change"`
}

// RunBorrowerScenario shifts one borrower's rates by rateChangePct and, when
// defaultAll is set, defaults every loan of that borrower at the given
// recovery.
func (sa *StressAnalyzer) RunBorrowerScenario(
	ctx context.Context,
	portfolio *models.Portfolio,
	borrower string,
	rateChangePct decimal.Decimal,
	defaultAll bool,
	recoveryRatePct decimal.Decimal,
) (*BorrowerScenarioResult, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}
	subset := portfolio.ByBorrower(borrower)
	if subset.IsEmpty() {
		return nil, models.InvalidParameterError("borrower", borrower)
	}
	hundred := decimal.NewFromInt(100)
	if recoveryRatePct.IsNegative() || recoveryRatePct.GreaterThan(hundred) {
		return nil, models.InvalidParameterError("recovery_rate_pct", recoveryRatePct)
	}

	baseValue := portfolio.TotalExposure()
	baseYield := portfolio.WeightedAverageRate()

	// Weighted yield with only the borrower's rates shifted.
	stressedNumerator := decimal.Zero
	for i := range portfolio.Loans {
		loan := &portfolio.Loans[i]
		rate := loan.Rate
		if loan.Borrower == borrower {
			rate = rate.Add(rateChangePct)
		}
		stressedNumerator = stressedNumerator.Add(loan.Amount.Mul(rate))
	}
	stressedYield := stressedNumerator.Div(baseValue)

	result := &BorrowerScenarioResult{
		Borrower:         borrower,
		LoanCount:        subset.Count(),
		BorrowerExposure: subset.TotalExposure(),
		BaseYield:        baseYield,
		StressedYield:    stressedYield,
		BaseValue:        baseValue,
	}

	if defaultAll {
		severity := decimal.NewFromInt(1).Sub(recoveryRatePct.Div(hundred))
		result.DefaultLoss = result.BorrowerExposure.Mul(severity)
	}

	result.StressedValue = baseValue.Sub(result.DefaultLoss)
	result.PctChange = result.StressedValue.Sub(baseValue).Div(baseValue).Mul(hundred)

	return result, nil
}

// RatingDefaultResult is the single-rating default shock output. The
// defaulting loans are the largest in the bucket.
type RatingDefaultResult struct {
	CreditRating string `json:"credit_rating"`

	VulnerableCount int             `json:"vulnerable_count"`
	DefaultCount    int             `json:"default_count"`
	DefaultExposure decimal.Decimal `json:"default_exposure"`
	LossAfterRecovery decimal.Decimal `json:"loss_after_recovery"`
	LossPctOfPortfolio decimal.Decimal `json:"loss_pct_of_portfolio"`

	DefaultedLoanIDs []string `json:"defaulted_loan_ids"`
}

// RunRatingDefaultScenario defaults defaultPct of the loans in one rating
// bucket, largest exposures first, with at least one loan defaulting when
// the bucket is nonempty and defaultPct is positive.
func (sa *StressAnalyzer) RunRatingDefaultScenario(
	ctx context.Context,
	portfolio *models.Portfolio,
	rating string,
	defaultPct decimal.Decimal,
	recoveryRatePct decimal.Decimal,
) (*RatingDefaultResult, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}
	hundred := decimal.NewFromInt(100)
	if defaultPct.IsNegative() || defaultPct.GreaterThan(hundred) {
		return nil, models.InvalidParameterError("default_pct", defaultPct)
	}
	if recoveryRatePct.IsNegative() || recoveryRatePct.GreaterThan(hundred) {
		return nil, models.InvalidParameterError("recovery_rate_pct", recoveryRatePct)
	}

	vulnerable := portfolio.ByRating(rating)
	result := &RatingDefaultResult{
		CreditRating:    rating,
		VulnerableCount: vulnerable.Count(),
	}
	if vulnerable.IsEmpty() || !defaultPct.IsPositive() {
		return result, nil
	}

	count := int(decimal.NewFromInt(int64(vulnerable.Count())).Mul(defaultPct).Div(hundred).IntPart())
	if count < 1 {
		count = 1
	}
	if count > vulnerable.Count() {
		count = vulnerable.Count()
	}

	loans := make([]models.LoanRecord, len(vulnerable.Loans))
	copy(loans, vulnerable.Loans)
	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].Amount.Equal(loans[j].Amount) {
			return loans[i].Amount.GreaterThan(loans[j].Amount)
		}
		return loans[i].LoanID < loans[j].LoanID
	})

	for _, loan := range loans[:count] {
		result.DefaultCount++
		result.DefaultExposure = result.DefaultExposure.Add(loan.Amount)
		result.DefaultedLoanIDs = append(result.DefaultedLoanIDs, loan.LoanID)
	}

	severity := decimal.NewFromInt(1).Sub(recoveryRatePct.Div(hundred))
	result.LossAfterRecovery = result.DefaultExposure.Mul(severity)
	result.LossPctOfPortfolio = result.LossAfterRecovery.Div(portfolio.TotalExposure()).Mul(hundred)

	return result, nil
}
