package calculator

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"creditrisk-api/internal/models"
	"creditrisk-api/internal/ratings"
)

// LoanExpectedLoss is the per-loan outcome of the default-rate join.
type LoanExpectedLoss struct {
	LoanID             string          `json:"loan_id"`
	Borrower           string          `json:"borrower"`
	CreditRating       string          `json:"credit_rating"`
	Amount             decimal.Decimal `json:"amount"`
	DefaultProbability decimal.Decimal `json:"default_probability"`
	RecoveryRate       decimal.Decimal `json:"recovery_rate"`
	ExpectedLoss       decimal.Decimal `json:"expected_loss"`
	RiskWeightedAmount decimal.Decimal `json:"risk_weighted_amount"`
}

// RatingLossBucket aggregates matched loans sharing a credit rating.
type RatingLossBucket struct {
	CreditRating string          `json:"credit_rating"`
	LoanCount    int             `json:"loan_count"`
	Exposure     decimal.Decimal `json:"exposure"`
	AveragePD    decimal.Decimal `json:"average_pd"`
	ExpectedLoss decimal.Decimal `json:"expected_loss"`
}

// GradeSegment splits exposure between investment and speculative grade.
type GradeSegment struct {
	LoanCount int             `json:"loan_count"`
	Exposure  decimal.Decimal `json:"exposure"`
	Share     decimal.Decimal `json:"share_pct"`
}

// ExpectedLossReport is the portfolio-level default-risk view. Loans whose
// rating has no default-rate entry are excluded from every figure and
// surfaced through UnmatchedCount and UnmatchedLoanIDs.
type ExpectedLossReport struct {
	MatchedCount     int      `json:"matched_count"`
	UnmatchedCount   int      `json:"unmatched_count"`
	UnmatchedLoanIDs []string `json:"unmatched_loan_ids,omitempty"`

	MatchedExposure      decimal.Decimal `json:"matched_exposure"`
	WeightedPD           decimal.Decimal `json:"weighted_pd"`
	TotalExpectedLoss    decimal.Decimal `json:"total_expected_loss"`
	ExpectedLossRate     decimal.Decimal `json:"expected_loss_rate_pct"`
	RiskWeightedExposure decimal.Decimal `json:"risk_weighted_exposure"`

	HighRiskCount    int             `json:"high_risk_count"`
	HighRiskExposure decimal.Decimal `json:"high_risk_exposure"`

	InvestmentGrade GradeSegment `json:"investment_grade"`
	SpeculativeGrade GradeSegment `json:"speculative_grade"`

	ByRating     []RatingLossBucket `json:"by_rating"`
	RiskiestLoans []LoanExpectedLoss `json:"riskiest_loans"`
}

// ExpectedLossCalculatorConfig tunes ranking depth and the high-risk PD cut.
type ExpectedLossCalculatorConfig struct {
	TopRiskiest     int             `json:"top_riskiest" default:"10"`
	HighRiskPDFloor decimal.Decimal `json:"high_risk_pd_floor"`
}

// ExpectedLossCalculator joins a portfolio against a default-rate reference
// table and computes expected loss metrics.
type ExpectedLossCalculator struct {
	topRiskiest     int
	highRiskPDFloor decimal.Decimal
	scale           *ratings.Scale
}

func NewExpectedLossCalculator(config ExpectedLossCalculatorConfig, scale *ratings.Scale) *ExpectedLossCalculator {
	top := config.TopRiskiest
	if top <= 0 {
		top = 10
	}
	floor := config.HighRiskPDFloor
	if floor.IsZero() {
		floor = decimal.RequireFromString("0.05")
	}
	if scale == nil {
		scale = ratings.Default()
	}
	return &ExpectedLossCalculator{
		topRiskiest:     top,
		highRiskPDFloor: floor,
		scale:           scale,
	}
}

// Compute left-joins each loan to its default-rate entry by credit rating.
// Per loan: expected loss = amount * pd * (1 - recovery); risk-weighted
// amount = amount * risk_weight. Portfolio weighted PD is exposure-weighted
// over matched loans only.
func (ec *ExpectedLossCalculator) Compute(
	ctx context.Context,
	portfolio *models.Portfolio,
	defaultRates []models.DefaultRateEntry,
) (*ExpectedLossReport, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}
	if len(defaultRates) == 0 {
		return nil, models.InvalidParameterError("default_rates", "empty reference table")
	}

	byRating := make(map[string]*models.DefaultRateEntry, len(defaultRates))
	for i := range defaultRates {
		entry := &defaultRates[i]
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		byRating[entry.CreditRating] = entry
	}

	report := &ExpectedLossReport{}
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)

	matched := make([]LoanExpectedLoss, 0, portfolio.Count())
	weightedPDNumerator := decimal.Zero
	buckets := make(map[string]*RatingLossBucket)
	bucketPDSums := make(map[string]decimal.Decimal)

	for i := range portfolio.Loans {
		loan := &portfolio.Loans[i]
		entry, ok := byRating[loan.CreditRating]
		if !ok {
			report.UnmatchedCount++
			report.UnmatchedLoanIDs = append(report.UnmatchedLoanIDs, loan.LoanID)
			continue
		}

		severity := one.Sub(entry.RecoveryRate)
		expectedLoss := loan.Amount.Mul(entry.DefaultProbability).Mul(severity)
		riskWeighted := loan.Amount.Mul(entry.RiskWeight)

		matched = append(matched, LoanExpectedLoss{
			LoanID:             loan.LoanID,
			Borrower:           loan.Borrower,
			CreditRating:       loan.CreditRating,
			Amount:             loan.Amount,
			DefaultProbability: entry.DefaultProbability,
			RecoveryRate:       entry.RecoveryRate,
			ExpectedLoss:       expectedLoss,
			RiskWeightedAmount: riskWeighted,
		})

		report.MatchedExposure = report.MatchedExposure.Add(loan.Amount)
		report.TotalExpectedLoss = report.TotalExpectedLoss.Add(expectedLoss)
		report.RiskWeightedExposure = report.RiskWeightedExposure.Add(riskWeighted)
		weightedPDNumerator = weightedPDNumerator.Add(loan.Amount.Mul(entry.DefaultProbability))

		if entry.DefaultProbability.GreaterThan(ec.highRiskPDFloor) {
			report.HighRiskCount++
			report.HighRiskExposure = report.HighRiskExposure.Add(loan.Amount)
		}

		if ec.scale.IsInvestmentGrade(loan.CreditRating) {
			report.InvestmentGrade.LoanCount++
			report.InvestmentGrade.Exposure = report.InvestmentGrade.Exposure.Add(loan.Amount)
		} else {
			report.SpeculativeGrade.LoanCount++
			report.SpeculativeGrade.Exposure = report.SpeculativeGrade.Exposure.Add(loan.Amount)
		}

		bucket, exists := buckets[loan.CreditRating]
		if !exists {
			bucket = &RatingLossBucket{CreditRating: loan.CreditRating}
			buckets[loan.CreditRating] = bucket
		}
		bucket.LoanCount++
		bucket.Exposure = bucket.Exposure.Add(loan.Amount)
		bucket.ExpectedLoss = bucket.ExpectedLoss.Add(expectedLoss)
		bucketPDSums[loan.CreditRating] = bucketPDSums[loan.CreditRating].Add(entry.DefaultProbability)
	}

	report.MatchedCount = len(matched)
	if report.MatchedCount == 0 {
		// Every loan missed the reference table; return the exclusion
		// report rather than dividing by zero.
		return report, nil
	}

	report.WeightedPD = weightedPDNumerator.Div(report.MatchedExposure)
	report.ExpectedLossRate = report.TotalExpectedLoss.Div(report.MatchedExposure).Mul(hundred)
	report.InvestmentGrade.Share = report.InvestmentGrade.Exposure.Div(report.MatchedExposure).Mul(hundred)
	report.SpeculativeGrade.Share = report.SpeculativeGrade.Exposure.Div(report.MatchedExposure).Mul(hundred)

	for rating, bucket := range buckets {
		bucket.AveragePD = bucketPDSums[rating].Div(decimal.NewFromInt(int64(bucket.LoanCount)))
		report.ByRating = append(report.ByRating, *bucket)
	}
	sort.Slice(report.ByRating, func(i, j int) bool {
		ri, iKnown := ec.scale.Rank(report.ByRating[i].CreditRating)
		rj, jKnown := ec.scale.Rank(report.ByRating[j].CreditRating)
		if iKnown != jKnown {
			return iKnown
		}
		if ri != rj {
			return ri < rj
		}
		return report.ByRating[i].CreditRating < report.ByRating[j].CreditRating
	})

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ExpectedLoss.Equal(matched[j].ExpectedLoss) {
			return matched[i].ExpectedLoss.GreaterThan(matched[j].ExpectedLoss)
		}
		return matched[i].LoanID < matched[j].LoanID
	})
	if len(matched) > ec.topRiskiest {
		matched = matched[:ec.topRiskiest]
	}
	report.RiskiestLoans = matched

	return report, nil
}
