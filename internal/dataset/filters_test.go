package dataset

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditrisk-api/internal/models"
)

func filterFixture(t *testing.T) *models.Portfolio {
	t.Helper()
	maturity := time.Date(2030, time.June, 30, 0, 0, 0, 0, time.UTC)
	portfolio, err := models.NewPortfolio("pf-filter", []models.LoanRecord{
		{LoanID: "L-001", Borrower: "Acme Corp", Amount: decimal.NewFromInt(1000000), Rate: decimal.NewFromInt(5),
			Sector: "Energy", MaturityDate: maturity, CreditRating: "BBB", Status: models.StatusPerforming},
		{LoanID: "L-002", Borrower: "Borr Industries", Amount: decimal.NewFromInt(500000), Rate: decimal.NewFromInt(7),
			Sector: "Retail", MaturityDate: maturity, CreditRating: "BB", Status: models.StatusWatchList},
		{LoanID: "L-003", Borrower: "Acme Holdings", Amount: decimal.NewFromInt(250000), Rate: decimal.NewFromInt(9),
			Sector: "Energy", MaturityDate: maturity, CreditRating: "B", Status: models.StatusNonPerforming},
	})
	require.NoError(t, err)
	return portfolio
}

func TestFilterBySector(t *testing.T) {
	portfolio := filterFixture(t)

	out := Filter{Sectors: []string{"Energy"}}.Apply(portfolio)
	assert.Equal(t, 2, out.Count())
	// Source portfolio untouched.
	assert.Equal(t, 3, portfolio.Count())
}

func TestFilterCombined(t *testing.T) {
	portfolio := filterFixture(t)
	minAmount := decimal.NewFromInt(300000)

	out := Filter{
		Sectors:   []string{"Energy", "Retail"},
		Statuses:  []models.LoanStatus{models.StatusPerforming, models.StatusWatchList},
		MinAmount: &minAmount,
	}.Apply(portfolio)

	require.Equal(t, 2, out.Count())
	assert.NotNil(t, out.FindLoan("L-001"))
	assert.NotNil(t, out.FindLoan("L-002"))
}

func TestFilterByRatingAndAmountRange(t *testing.T) {
	portfolio := filterFixture(t)
	maxAmount := decimal.NewFromInt(600000)

	out := Filter{
		Ratings:   []string{"BB", "B"},
		MaxAmount: &maxAmount,
	}.Apply(portfolio)

	assert.Equal(t, 2, out.Count())
	assert.Nil(t, out.FindLoan("L-001"))
}

func TestFilterZeroValuePassesEverything(t *testing.T) {
	portfolio := filterFixture(t)
	out := Filter{}.Apply(portfolio)
	assert.Equal(t, 3, out.Count())
}

func TestSearchBorrowers(t *testing.T) {
	portfolio := filterFixture(t)

	out := SearchBorrowers(portfolio, "acme")
	assert.Equal(t, 2, out.Count())

	out = SearchBorrowers(portfolio, "L-002")
	require.Equal(t, 1, out.Count())
	assert.Equal(t, "Borr Industries", out.Loans[0].Borrower)

	out = SearchBorrowers(portfolio, "  ")
	assert.Equal(t, 3, out.Count())

	out = SearchBorrowers(portfolio, "zebra")
	assert.Equal(t, 0, out.Count())
}
