package calculator

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditrisk-api/internal/models"
)

func elLoan(id, borrower string, amount int64, rating string) models.LoanRecord {
	return models.LoanRecord{
		LoanID:       id,
		Borrower:     borrower,
		Amount:       decimal.NewFromInt(amount),
		Rate:         decimal.NewFromInt(5),
		Sector:       "Energy",
		MaturityDate: time.Date(2030, time.June, 30, 0, 0, 0, 0, time.UTC),
		CreditRating: rating,
		Status:       models.StatusPerforming,
	}
}

func defaultRateTable() []models.DefaultRateEntry {
	return []models.DefaultRateEntry{
		{CreditRating: "A", DefaultProbability: decimal.RequireFromString("0.01"), RecoveryRate: decimal.RequireFromString("0.6"), RiskWeight: decimal.RequireFromString("0.5")},
		{CreditRating: "BBB", DefaultProbability: decimal.RequireFromString("0.02"), RecoveryRate: decimal.RequireFromString("0.5"), RiskWeight: decimal.NewFromInt(1)},
		{CreditRating: "BB", DefaultProbability: decimal.RequireFromString("0.05"), RecoveryRate: decimal.RequireFromString("0.4"), RiskWeight: decimal.RequireFromString("1.5")},
		{CreditRating: "B", DefaultProbability: decimal.RequireFromString("0.10"), RecoveryRate: decimal.RequireFromString("0.3"), RiskWeight: decimal.NewFromInt(2)},
	}
}

func TestExpectedLossSingleLoan(t *testing.T) {
	portfolio, err := models.NewPortfolio("pf-el", []models.LoanRecord{
		elLoan("L-1", "Acme Corp", 1000000, "BB"),
	})
	require.NoError(t, err)

	calc := NewExpectedLossCalculator(ExpectedLossCalculatorConfig{}, nil)
	report, err := calc.Compute(context.Background(), portfolio, defaultRateTable())
	require.NoError(t, err)

	// 1,000,000 * 0.05 * (1 - 0.4) = 30,000
	assert.True(t, report.TotalExpectedLoss.Equal(decimal.NewFromInt(30000)),
		"expected loss = %s", report.TotalExpectedLoss)
	assert.True(t, report.WeightedPD.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, report.RiskWeightedExposure.Equal(decimal.NewFromInt(1500000)))
	assert.Equal(t, 1, report.MatchedCount)
	assert.Equal(t, 0, report.UnmatchedCount)
}

func TestExpectedLossWeightedPD(t *testing.T) {
	portfolio, err := models.NewPortfolio("pf-el", []models.LoanRecord{
		elLoan("L-1", "Acme Corp", 100, "A"),  // pd 0.01
		elLoan("L-2", "Borr Inc", 900, "BB"), // pd 0.05
	})
	require.NoError(t, err)

	calc := NewExpectedLossCalculator(ExpectedLossCalculatorConfig{}, nil)
	report, err := calc.Compute(context.Background(), portfolio, defaultRateTable())
	require.NoError(t, err)

	// (100*0.01 + 900*0.05) / 1000 = 0.046, not the simple mean 0.03.
	assert.True(t, report.WeightedPD.Equal(decimal.RequireFromString("0.046")),
		"weighted PD = %s", report.WeightedPD)
}

func TestExpectedLossUnmatchedRatingsExcludedAndCounted(t *testing.T) {
	portfolio, err := models.NewPortfolio("pf-el", []models.LoanRecord{
		elLoan("L-1", "Acme Corp", 500000, "BBB"),
		elLoan("L-2", "Borr Inc", 400000, "NR"),
		elLoan("L-3", "Carter LLC", 300000, "XX"),
	})
	require.NoError(t, err)

	calc := NewExpectedLossCalculator(ExpectedLossCalculatorConfig{}, nil)
	report, err := calc.Compute(context.Background(), portfolio, defaultRateTable())
	require.NoError(t, err)

	assert.Equal(t, 1, report.MatchedCount)
	assert.Equal(t, 2, report.UnmatchedCount)
	assert.ElementsMatch(t, []string{"L-2", "L-3"}, report.UnmatchedLoanIDs)

	// Unmatched exposure must not leak into the weighted figures.
	assert.True(t, report.MatchedExposure.Equal(decimal.NewFromInt(500000)))
	assert.True(t, report.WeightedPD.Equal(decimal.RequireFromString("0.02")))
}

func TestExpectedLossAllUnmatched(t *testing.T) {
	portfolio, err := models.NewPortfolio("pf-el", []models.LoanRecord{
		elLoan("L-1", "Acme Corp", 500000, "NR"),
	})
	require.NoError(t, err)

	calc := NewExpectedLossCalculator(ExpectedLossCalculatorConfig{}, nil)
	report, err := calc.Compute(context.Background(), portfolio, defaultRateTable())
	require.NoError(t, err)

	assert.Equal(t, 0, report.MatchedCount)
	assert.Equal(t, 1, report.UnmatchedCount)
	assert.True(t, report.WeightedPD.IsZero())
	assert.True(t, report.TotalExpectedLoss.IsZero())
}

func TestExpectedLossGradeSegmentation(t *testing.T) {
	portfolio, err := models.NewPortfolio("pf-el", []models.LoanRecord{
		elLoan("L-1", "Acme Corp", 600000, "A"),   // investment grade
		elLoan("L-2", "Borr Inc", 300000, "BBB"),  // investment grade
		elLoan("L-3", "Carter LLC", 100000, "B"),  // speculative
	})
	require.NoError(t, err)

	calc := NewExpectedLossCalculator(ExpectedLossCalculatorConfig{}, nil)
	report, err := calc.Compute(context.Background(), portfolio, defaultRateTable())
	require.NoError(t, err)

	assert.Equal(t, 2, report.InvestmentGrade.LoanCount)
	assert.True(t, report.InvestmentGrade.Exposure.Equal(decimal.NewFromInt(900000)))
	assert.True(t, report.InvestmentGrade.Share.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, 1, report.SpeculativeGrade.LoanCount)
	assert.True(t, report.SpeculativeGrade.Share.Equal(decimal.NewFromInt(10)))
}

func TestExpectedLossRankingAndHighRisk(t *testing.T) {
	portfolio, err := models.NewPortfolio("pf-el", []models.LoanRecord{
		elLoan("L-1", "Acme Corp", 1000000, "A"),  // EL = 4,000
		elLoan("L-2", "Borr Inc", 200000, "B"),    // EL = 14,000, PD 0.10 high risk
		elLoan("L-3", "Carter LLC", 500000, "BB"), // EL = 15,000
	})
	require.NoError(t, err)

	calc := NewExpectedLossCalculator(ExpectedLossCalculatorConfig{TopRiskiest: 2}, nil)
	report, err := calc.Compute(context.Background(), portfolio, defaultRateTable())
	require.NoError(t, err)

	require.Len(t, report.RiskiestLoans, 2)
	assert.Equal(t, "L-3", report.RiskiestLoans[0].LoanID)
	assert.Equal(t, "L-2", report.RiskiestLoans[1].LoanID)

	// High risk = PD strictly above the 5% floor; BB at exactly 0.05 stays out.
	assert.Equal(t, 1, report.HighRiskCount)
	assert.True(t, report.HighRiskExposure.Equal(decimal.NewFromInt(200000)))
}

func TestExpectedLossRatingBreakdownOrderedByScale(t *testing.T) {
	portfolio, err := models.NewPortfolio("pf-el", []models.LoanRecord{
		elLoan("L-1", "Acme Corp", 100000, "B"),
		elLoan("L-2", "Borr Inc", 200000, "A"),
		elLoan("L-3", "Carter LLC", 300000, "BB"),
		elLoan("L-4", "Delta SA", 400000, "A"),
	})
	require.NoError(t, err)

	calc := NewExpectedLossCalculator(ExpectedLossCalculatorConfig{}, nil)
	report, err := calc.Compute(context.Background(), portfolio, defaultRateTable())
	require.NoError(t, err)

	require.Len(t, report.ByRating, 3)
	assert.Equal(t, "A", report.ByRating[0].CreditRating)
	assert.Equal(t, "BB", report.ByRating[1].CreditRating)
	assert.Equal(t, "B", report.ByRating[2].CreditRating)
	assert.Equal(t, 2, report.ByRating[0].LoanCount)
	assert.True(t, report.ByRating[0].Exposure.Equal(decimal.NewFromInt(600000)))
	assert.True(t, report.ByRating[0].AveragePD.Equal(decimal.RequireFromString("0.01")))
}

func TestExpectedLossStructuralErrors(t *testing.T) {
	calc := NewExpectedLossCalculator(ExpectedLossCalculatorConfig{}, nil)

	_, err := calc.Compute(context.Background(), &models.Portfolio{}, defaultRateTable())
	assert.ErrorIs(t, err, models.ErrEmptyDataset)

	portfolio, err := models.NewPortfolio("pf-el", []models.LoanRecord{
		elLoan("L-1", "Acme Corp", 100000, "A"),
	})
	require.NoError(t, err)

	_, err = calc.Compute(context.Background(), portfolio, nil)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}
