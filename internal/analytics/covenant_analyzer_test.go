package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditrisk-api/internal/models"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func covenantLoan(id, sector, rating string, amount int64, de, ic, lev *decimal.Decimal) models.LoanRecord {
	return models.LoanRecord{
		LoanID:           id,
		Borrower:         "Borrower " + id,
		Amount:           decimal.NewFromInt(amount),
		Rate:             decimal.NewFromInt(5),
		Sector:           sector,
		MaturityDate:     time.Date(2030, time.June, 30, 0, 0, 0, 0, time.UTC),
		CreditRating:     rating,
		Status:           models.StatusPerforming,
		DebtToEquity:     de,
		InterestCoverage: ic,
		LeverageRatio:    lev,
	}
}

func standardThresholds() models.CovenantThresholds {
	return models.CovenantThresholds{
		MaxDebtToEquity:     decimal.RequireFromString("3.5"),
		MinInterestCoverage: decimal.RequireFromString("2.0"),
		MaxLeverageRatio:    decimal.RequireFromString("4.0"),
	}
}

func TestCovenantDebtToEquityBreach(t *testing.T) {
	portfolio, err := models.NewPortfolio("pf-cov", []models.LoanRecord{
		covenantLoan("L-1", "Energy", "BB", 500000, decPtr("5.0"), decPtr("3.0"), decPtr("2.0")),
	})
	require.NoError(t, err)

	analyzer := NewCovenantAnalyzer()
	report, err := analyzer.Check(context.Background(), portfolio, standardThresholds())
	require.NoError(t, err)

	require.Len(t, report.Loans, 1)
	loan := report.Loans[0]
	require.NotNil(t, loan.DebtToEquityBreach)
	assert.True(t, *loan.DebtToEquityBreach)
	require.NotNil(t, loan.InterestCoverageBreach)
	assert.False(t, *loan.InterestCoverageBreach)
	assert.True(t, loan.AnyBreach)
	assert.Equal(t, 1, loan.BreachCount)
	assert.Equal(t, 1, report.DebtToEquityBreaches)
	assert.True(t, report.BreachExposure.Equal(decimal.NewFromInt(500000)))
}

func TestCovenantMissingFieldExcludedFromCheck(t *testing.T) {
	portfolio, err := models.NewPortfolio("pf-cov", []models.LoanRecord{
		covenantLoan("L-1", "Energy", "BB", 100000, decPtr("2.0"), nil, decPtr("2.0")),
	})
	require.NoError(t, err)

	analyzer := NewCovenantAnalyzer()
	report, err := analyzer.Check(context.Background(), portfolio, standardThresholds())
	require.NoError(t, err)

	loan := report.Loans[0]
	assert.Nil(t, loan.InterestCoverageBreach)
	assert.True(t, loan.DataMissing)
	assert.False(t, loan.AnyBreach)
	assert.Equal(t, 0, report.InterestCoverageBreaches)
	// Still compliant on the checks it did have data for.
	assert.Equal(t, 1, report.CompliantCount)
	assert.Equal(t, 0, report.DataUnavailableCount)
}

func TestCovenantNoDataAtAll(t *testing.T) {
	portfolio, err := models.NewPortfolio("pf-cov", []models.LoanRecord{
		covenantLoan("L-1", "Energy", "BB", 100000, nil, nil, nil),
		covenantLoan("L-2", "Energy", "BB", 200000, decPtr("2.0"), decPtr("3.0"), decPtr("2.0")),
	})
	require.NoError(t, err)

	analyzer := NewCovenantAnalyzer()
	report, err := analyzer.Check(context.Background(), portfolio, standardThresholds())
	require.NoError(t, err)

	assert.Equal(t, 1, report.DataUnavailableCount)
	assert.Equal(t, 1, report.CompliantCount)
	// Compliance rate over checked loans only: 1 of 1.
	assert.True(t, report.CompliantPct.Equal(decimal.NewFromInt(100)))
}

func TestCovenantMultipleBreaches(t *testing.T) {
	portfolio, err := models.NewPortfolio("pf-cov", []models.LoanRecord{
		covenantLoan("L-1", "Energy", "B", 300000, decPtr("6.0"), decPtr("1.0"), decPtr("5.0")),
		covenantLoan("L-2", "Retail", "BBB", 200000, decPtr("1.0"), decPtr("4.0"), decPtr("2.0")),
	})
	require.NoError(t, err)

	analyzer := NewCovenantAnalyzer()
	report, err := analyzer.Check(context.Background(), portfolio, standardThresholds())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Loans[0].BreachCount)
	assert.Equal(t, 1, report.MultipleBreachCount)
	assert.Equal(t, 1, report.CompliantCount)
	assert.True(t, report.CompliantPct.Equal(decimal.NewFromInt(50)))
}

func TestCovenantSegmentBreachRates(t *testing.T) {
	portfolio, err := models.NewPortfolio("pf-cov", []models.LoanRecord{
		covenantLoan("L-1", "Energy", "BB", 100, decPtr("6.0"), nil, nil),
		covenantLoan("L-2", "Energy", "BB", 100, decPtr("1.0"), nil, nil),
		covenantLoan("L-3", "Retail", "A", 100, decPtr("1.0"), nil, nil),
	})
	require.NoError(t, err)

	analyzer := NewCovenantAnalyzer()
	report, err := analyzer.Check(context.Background(), portfolio, standardThresholds())
	require.NoError(t, err)

	require.Len(t, report.BySector, 2)
	assert.Equal(t, "Energy", report.BySector[0].Segment)
	assert.True(t, report.BySector[0].BreachRate.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "Retail", report.BySector[1].Segment)
	assert.True(t, report.BySector[1].BreachRate.IsZero())

	require.Len(t, report.ByRating, 2)
	assert.Equal(t, "BB", report.ByRating[0].Segment)
}

func TestCovenantStructuralErrors(t *testing.T) {
	analyzer := NewCovenantAnalyzer()

	_, err := analyzer.Check(context.Background(), &models.Portfolio{}, standardThresholds())
	assert.ErrorIs(t, err, models.ErrEmptyDataset)

	portfolio, err := models.NewPortfolio("pf-cov", []models.LoanRecord{
		covenantLoan("L-1", "Energy", "BB", 100, nil, nil, nil),
	})
	require.NoError(t, err)

	_, err = analyzer.Check(context.Background(), portfolio, models.CovenantThresholds{})
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}
