package analytics

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditrisk-api/internal/models"
)

func TestClassifyHHIBands(t *testing.T) {
	assert.Equal(t, ConcentrationLow, ClassifyHHI(decimal.NewFromInt(1499)))
	assert.Equal(t, ConcentrationModerate, ClassifyHHI(decimal.NewFromInt(1500)))
	assert.Equal(t, ConcentrationModerate, ClassifyHHI(decimal.NewFromInt(2499)))
	assert.Equal(t, ConcentrationHigh, ClassifyHHI(decimal.NewFromInt(2500)))
}

func TestAnalyzeSingleSectorMaxHHI(t *testing.T) {
	portfolio := buildPortfolio(t, []loanSpec{
		{id: "L-1", borrower: "Acme", amount: 400, rate: "5", sector: "Energy", rating: "A", status: models.StatusPerforming},
		{id: "L-2", borrower: "Borr", amount: 600, rate: "5", sector: "Energy", rating: "BB", status: models.StatusPerforming},
	})

	analyzer := NewConcentrationAnalyzer(ConcentrationAnalyzerConfig{})
	report, err := analyzer.Analyze(context.Background(), portfolio)
	require.NoError(t, err)

	assert.True(t, report.SectorHHI.Score.Equal(decimal.NewFromInt(10000)),
		"sector HHI = %s", report.SectorHHI.Score)
	assert.Equal(t, ConcentrationHigh, report.SectorHHI.Level)
}

func TestAnalyzeFourEqualSectorsHHI(t *testing.T) {
	sectors := []string{"Energy", "Retail", "Tech", "Healthcare"}
	specs := make([]loanSpec, 0, 4)
	for i, sector := range sectors {
		specs = append(specs, loanSpec{
			id: fmt.Sprintf("L-%d", i+1), borrower: fmt.Sprintf("B-%d", i+1),
			amount: 250, rate: "5", sector: sector, rating: "BBB", status: models.StatusPerforming,
		})
	}
	portfolio := buildPortfolio(t, specs)

	analyzer := NewConcentrationAnalyzer(ConcentrationAnalyzerConfig{})
	report, err := analyzer.Analyze(context.Background(), portfolio)
	require.NoError(t, err)

	// 4 * 25^2 = 2500
	assert.True(t, report.SectorHHI.Score.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, ConcentrationHigh, report.SectorHHI.Level)
}

func TestAnalyzeTopSingleNames(t *testing.T) {
	specs := make([]loanSpec, 0, 15)
	for i := 0; i < 15; i++ {
		specs = append(specs, loanSpec{
			id:       fmt.Sprintf("L-%02d", i+1),
			borrower: fmt.Sprintf("Borrower-%02d", i+1),
			amount:   int64(1500 - i*100), // strictly decreasing
			rate:     "5",
			sector:   "Energy",
			rating:   "BBB",
			status:   models.StatusPerforming,
		})
	}
	portfolio := buildPortfolio(t, specs)

	analyzer := NewConcentrationAnalyzer(ConcentrationAnalyzerConfig{})
	report, err := analyzer.Analyze(context.Background(), portfolio)
	require.NoError(t, err)

	require.Len(t, report.SingleNameTop, 10)
	pctSum := decimal.Zero
	for i, entry := range report.SingleNameTop {
		assert.Equal(t, fmt.Sprintf("L-%02d", i+1), entry.LoanID)
		if i > 0 {
			assert.True(t, entry.Amount.LessThan(report.SingleNameTop[i-1].Amount))
		}
		pctSum = pctSum.Add(entry.PctOfPortfolio)
	}
	assert.True(t, pctSum.LessThanOrEqual(decimal.NewFromInt(100)))

	// Largest loan is 1500/12000 = 12.5% of the book, over the 10% limit.
	assert.True(t, report.SingleNameTop[0].OverLimit)
	assert.GreaterOrEqual(t, report.OverLimitCount, 1)
}

func TestAnalyzeGeographicStats(t *testing.T) {
	specs := []loanSpec{
		{id: "L-1", borrower: "Acme", amount: 600, rate: "4", sector: "Energy", rating: "A", status: models.StatusPerforming},
		{id: "L-2", borrower: "Borr", amount: 200, rate: "8", sector: "Retail", rating: "BB", status: models.StatusPerforming},
		{id: "L-3", borrower: "Carter", amount: 200, rate: "6", sector: "Tech", rating: "BBB", status: models.StatusPerforming},
	}
	loans := make([]models.LoanRecord, 0, len(specs))
	countries := []string{"GB", "GB", "DE"}
	for i, s := range specs {
		portfolioLoans := buildPortfolio(t, []loanSpec{s}).Loans
		loan := portfolioLoans[0]
		loan.Country = countries[i]
		loans = append(loans, loan)
	}
	portfolio, err := models.NewPortfolio("pf-geo", loans)
	require.NoError(t, err)

	analyzer := NewConcentrationAnalyzer(ConcentrationAnalyzerConfig{})
	report, err := analyzer.Analyze(context.Background(), portfolio)
	require.NoError(t, err)

	require.Len(t, report.Geographic, 2)
	gb := report.Geographic[0]
	assert.Equal(t, "GB", gb.Country)
	assert.Equal(t, 2, gb.LoanCount)
	assert.Equal(t, 2, gb.BorrowerCount)
	assert.True(t, gb.Exposure.Equal(decimal.NewFromInt(800)))
	// (600*4 + 200*8) / 800 = 5
	assert.True(t, gb.AverageRate.Equal(decimal.NewFromInt(5)))
	assert.True(t, gb.PctOfValue.Equal(decimal.NewFromInt(80)))

	// 80^2 + 20^2 = 6800
	assert.True(t, report.CountryHHI.Score.Equal(decimal.NewFromInt(6800)))
}

func TestAnalyzeEmptyPortfolio(t *testing.T) {
	analyzer := NewConcentrationAnalyzer(ConcentrationAnalyzerConfig{})
	_, err := analyzer.Analyze(context.Background(), &models.Portfolio{})
	assert.ErrorIs(t, err, models.ErrEmptyDataset)
}
