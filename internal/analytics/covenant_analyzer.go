package analytics

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"creditrisk-api/internal/models"
)

// LoanCovenantResult is the per-loan outcome of a covenant check. A nil
// ratio means the loan lacks data for that covenant and was excluded from
// that specific check.
type LoanCovenantResult struct {
	LoanID   string `json:"loan_id"`
	Borrower string `json:"borrower"`
	Sector   string `json:"sector"`
	CreditRating string `json:"credit_rating"`
	Amount   decimal.Decimal `json:"amount"`

	DebtToEquityBreach     *bool `json:"debt_to_equity_breach,omitempty"`
	InterestCoverageBreach *bool `json:"interest_coverage_breach,omitempty"`
	LeverageRatioBreach    *bool `json:"leverage_ratio_breach,omitempty"`

	AnyBreach   bool `json:"any_breach"`
	BreachCount int  `json:"breach_count"`
	DataMissing bool `json:"data_missing"`
}

// SegmentBreachRate is the share of loans in one sector or rating segment
// with at least one breach.
type SegmentBreachRate struct {
	Segment     string          `json:"segment"`
	LoanCount   int             `json:"loan_count"`
	BreachCount int             `json:"breach_count"`
	BreachRate  decimal.Decimal `json:"breach_rate_pct"`
}

// CovenantReport aggregates breach detection across the portfolio. Loans
// missing every covenant field appear only in DataUnavailableCount.
type CovenantReport struct {
	TotalLoans     int             `json:"total_loans"`
	CompliantCount int             `json:"compliant_count"`
	CompliantPct   decimal.Decimal `json:"compliant_pct"`
	BreachExposure decimal.Decimal `json:"breach_exposure"`

	DebtToEquityBreaches     int `json:"debt_to_equity_breaches"`
	InterestCoverageBreaches int `json:"interest_coverage_breaches"`
	LeverageRatioBreaches    int `json:"leverage_ratio_breaches"`
	MultipleBreachCount      int `json:"multiple_breach_count"`
	DataUnavailableCount     int `json:"data_unavailable_count"`

	BySector []SegmentBreachRate `json:"by_sector"`
	ByRating []SegmentBreachRate `json:"by_rating"`

	Loans []LoanCovenantResult `json:"loans"`
}

// CovenantAnalyzer checks portfolio loans against financial ratio
// thresholds.
type CovenantAnalyzer struct{}

func NewCovenantAnalyzer() *CovenantAnalyzer {
	return &CovenantAnalyzer{}
}

// Check evaluates every loan against the thresholds. Per loan: debt/equity
// above the max, interest coverage below the min, or leverage above the max
// each raise a breach flag; a loan missing a ratio is excluded from that
// check, neither breaching nor compliant for it.
func (ca *CovenantAnalyzer) Check(
	ctx context.Context,
	portfolio *models.Portfolio,
	thresholds models.CovenantThresholds,
) (*CovenantReport, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	report := &CovenantReport{TotalLoans: portfolio.Count()}

	sectorAccum := make(map[string]*segmentAccum)
	ratingAccum := make(map[string]*segmentAccum)

	for i := range portfolio.Loans {
		loan := &portfolio.Loans[i]
		result := LoanCovenantResult{
			LoanID:       loan.LoanID,
			Borrower:     loan.Borrower,
			Sector:       loan.Sector,
			CreditRating: loan.CreditRating,
			Amount:       loan.Amount,
		}

		checked := 0
		if loan.DebtToEquity != nil {
			breach := loan.DebtToEquity.GreaterThan(thresholds.MaxDebtToEquity)
			result.DebtToEquityBreach = &breach
			checked++
			if breach {
				result.BreachCount++
				report.DebtToEquityBreaches++
			}
		}
		if loan.InterestCoverage != nil {
			breach := loan.InterestCoverage.LessThan(thresholds.MinInterestCoverage)
			result.InterestCoverageBreach = &breach
			checked++
			if breach {
				result.BreachCount++
				report.InterestCoverageBreaches++
			}
		}
		if loan.LeverageRatio != nil {
			breach := loan.LeverageRatio.GreaterThan(thresholds.MaxLeverageRatio)
			result.LeverageRatioBreach = &breach
			checked++
			if breach {
				result.BreachCount++
				report.LeverageRatioBreaches++
			}
		}

		result.AnyBreach = result.BreachCount > 0
		result.DataMissing = checked < 3
		if checked == 0 {
			report.DataUnavailableCount++
		}

		if result.AnyBreach {
			report.BreachExposure = report.BreachExposure.Add(loan.Amount)
			if result.BreachCount >= 2 {
				report.MultipleBreachCount++
			}
		} else if checked > 0 {
			report.CompliantCount++
		}

		// Segments with no covenant data carry no signal either way.
		if checked > 0 {
			bumpSegment(sectorAccum, loan.Sector, result.AnyBreach)
			bumpSegment(ratingAccum, loan.CreditRating, result.AnyBreach)
		}

		report.Loans = append(report.Loans, result)
	}

	checkedLoans := report.TotalLoans - report.DataUnavailableCount
	if checkedLoans > 0 {
		report.CompliantPct = decimal.NewFromInt(int64(report.CompliantCount)).
			Div(decimal.NewFromInt(int64(checkedLoans))).
			Mul(decimal.NewFromInt(100))
	}

	report.BySector = breachRates(sectorAccum)
	report.ByRating = breachRates(ratingAccum)

	return report, nil
}

type segmentAccum struct {
	loans    int
	breaches int
}

func bumpSegment(accum map[string]*segmentAccum, segment string, breached bool) {
	entry, ok := accum[segment]
	if !ok {
		entry = &segmentAccum{}
		accum[segment] = entry
	}
	entry.loans++
	if breached {
		entry.breaches++
	}
}

func breachRates(accum map[string]*segmentAccum) []SegmentBreachRate {
	out := make([]SegmentBreachRate, 0, len(accum))
	for segment, entry := range accum {
		rate := decimal.NewFromInt(int64(entry.breaches)).
			Div(decimal.NewFromInt(int64(entry.loans))).
			Mul(decimal.NewFromInt(100))
		out = append(out, SegmentBreachRate{
			Segment:     segment,
			LoanCount:   entry.loans,
			BreachCount: entry.breaches,
			BreachRate:  rate,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BreachRate.Equal(out[j].BreachRate) {
			return out[i].BreachRate.GreaterThan(out[j].BreachRate)
		}
		return out[i].Segment < out[j].Segment
	})
	return out
}
