package analytics

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"creditrisk-api/internal/models"
)

// ConcentrationLevel classifies an HHI value per the standard bands.
type ConcentrationLevel string

const (
	ConcentrationLow      ConcentrationLevel = "Low Concentration"
	ConcentrationModerate ConcentrationLevel = "Moderate Concentration"
	ConcentrationHigh     ConcentrationLevel = "High Concentration"
)

// ClassifyHHI maps an HHI score (0-10,000 scale) to its concentration band:
// below 1500 low, below 2500 moderate, otherwise high.
func ClassifyHHI(hhi decimal.Decimal) ConcentrationLevel {
	switch {
	case hhi.LessThan(decimal.NewFromInt(1500)):
		return ConcentrationLow
	case hhi.LessThan(decimal.NewFromInt(2500)):
		return ConcentrationModerate
	default:
		return ConcentrationHigh
	}
}

// HHIReport is a Herfindahl-Hirschman index over one grouping dimension.
type HHIReport struct {
	Score decimal.Decimal    `json:"score"`
	Level ConcentrationLevel `json:"level"`
}

// SingleNameEntry is one loan of the single-name concentration ranking.
type SingleNameEntry struct {
	LoanID         string            `json:"loan_id"`
	Borrower       string            `json:"borrower"`
	Amount         decimal.Decimal   `json:"amount"`
	PctOfPortfolio decimal.Decimal   `json:"pct_of_portfolio"`
	CreditRating   string            `json:"credit_rating"`
	Sector         string            `json:"sector"`
	Status         models.LoanStatus `json:"status"`
	OverLimit      bool              `json:"over_limit"`
}

// CountryStat is the per-country slice of the geographic analysis. Loans
// without a country are grouped under the empty string.
type CountryStat struct {
	Country       string          `json:"country"`
	LoanCount     int             `json:"loan_count"`
	BorrowerCount int             `json:"borrower_count"`
	Exposure      decimal.Decimal `json:"exposure"`
	AverageRate   decimal.Decimal `json:"average_rate"`
	PctOfValue    decimal.Decimal `json:"pct_of_value"`
}

// ConcentrationReport bundles single-name, sector, borrower, country and
// rating concentration views.
type ConcentrationReport struct {
	SingleNameTop    []SingleNameEntry `json:"single_name_top"`
	OverLimitCount   int               `json:"over_limit_count"`
	SingleNameLimit  decimal.Decimal   `json:"single_name_limit_pct"`

	SectorHHI   HHIReport `json:"sector_hhi"`
	BorrowerHHI HHIReport `json:"borrower_hhi"`
	CountryHHI  HHIReport `json:"country_hhi"`

	RatingConcentration []SegmentStat `json:"rating_concentration"`
	Geographic          []CountryStat `json:"geographic"`
}

// ConcentrationAnalyzerConfig tunes ranking depth and the single-name limit.
type ConcentrationAnalyzerConfig struct {
	TopSingleNames     int             `json:"top_single_names" default:"10"`
	SingleNameLimitPct decimal.Decimal `json:"single_name_limit_pct"`
}

// ConcentrationAnalyzer computes concentration risk metrics: top single-name
// exposures against a limit, and HHI over sector, borrower and country
// shares.
type ConcentrationAnalyzer struct {
	topSingleNames     int
	singleNameLimitPct decimal.Decimal
}

func NewConcentrationAnalyzer(config ConcentrationAnalyzerConfig) *ConcentrationAnalyzer {
	top := config.TopSingleNames
	if top <= 0 {
		top = 10
	}
	limit := config.SingleNameLimitPct
	if limit.IsZero() {
		limit = decimal.NewFromInt(10)
	}
	return &ConcentrationAnalyzer{topSingleNames: top, singleNameLimitPct: limit}
}

// Analyze computes the full concentration report. HHI over a grouping is
// the sum of squared percentage shares (0-100), giving the standard
// 0-10,000 scale; a single-group portfolio scores exactly 10,000.
func (ca *ConcentrationAnalyzer) Analyze(ctx context.Context, portfolio *models.Portfolio) (*ConcentrationReport, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}

	total := portfolio.TotalExposure()
	hundred := decimal.NewFromInt(100)

	report := &ConcentrationReport{SingleNameLimit: ca.singleNameLimitPct}

	entries := make([]SingleNameEntry, 0, portfolio.Count())
	sectorExposure := make(map[string]decimal.Decimal)
	countryExposure := make(map[string]decimal.Decimal)
	ratingExposure := make(map[string]decimal.Decimal)
	ratingCount := make(map[string]int)
	countryCount := make(map[string]int)
	countryRateWeighted := make(map[string]decimal.Decimal)
	countryBorrowers := make(map[string]map[string]struct{})

	for i := range portfolio.Loans {
		loan := &portfolio.Loans[i]
		pct := loan.Amount.Div(total).Mul(hundred)
		entries = append(entries, SingleNameEntry{
			LoanID:         loan.LoanID,
			Borrower:       loan.Borrower,
			Amount:         loan.Amount,
			PctOfPortfolio: pct,
			CreditRating:   loan.CreditRating,
			Sector:         loan.Sector,
			Status:         loan.Status,
			OverLimit:      pct.GreaterThan(ca.singleNameLimitPct),
		})

		sectorExposure[loan.Sector] = sectorExposure[loan.Sector].Add(loan.Amount)
		countryExposure[loan.Country] = countryExposure[loan.Country].Add(loan.Amount)
		ratingExposure[loan.CreditRating] = ratingExposure[loan.CreditRating].Add(loan.Amount)
		ratingCount[loan.CreditRating]++
		countryCount[loan.Country]++
		countryRateWeighted[loan.Country] = countryRateWeighted[loan.Country].Add(loan.Amount.Mul(loan.Rate))
		if countryBorrowers[loan.Country] == nil {
			countryBorrowers[loan.Country] = make(map[string]struct{})
		}
		countryBorrowers[loan.Country][loan.Borrower] = struct{}{}
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Amount.Equal(entries[j].Amount) {
			return entries[i].Amount.GreaterThan(entries[j].Amount)
		}
		return entries[i].LoanID < entries[j].LoanID
	})
	if len(entries) > ca.topSingleNames {
		entries = entries[:ca.topSingleNames]
	}
	report.SingleNameTop = entries
	for _, e := range entries {
		if e.OverLimit {
			report.OverLimitCount++
		}
	}

	report.SectorHHI = hhiReport(sectorExposure, total)
	report.BorrowerHHI = hhiReport(portfolio.ByBorrowerExposure(), total)
	report.CountryHHI = hhiReport(countryExposure, total)

	for rating, exposure := range ratingExposure {
		report.RatingConcentration = append(report.RatingConcentration, SegmentStat{
			Segment:    rating,
			LoanCount:  ratingCount[rating],
			Exposure:   exposure,
			PctOfValue: exposure.Div(total).Mul(hundred),
		})
	}
	sortSegments(report.RatingConcentration)

	for country, exposure := range countryExposure {
		report.Geographic = append(report.Geographic, CountryStat{
			Country:       country,
			LoanCount:     countryCount[country],
			BorrowerCount: len(countryBorrowers[country]),
			Exposure:      exposure,
			AverageRate:   countryRateWeighted[country].Div(exposure),
			PctOfValue:    exposure.Div(total).Mul(hundred),
		})
	}
	sort.Slice(report.Geographic, func(i, j int) bool {
		a, b := report.Geographic[i], report.Geographic[j]
		if !a.Exposure.Equal(b.Exposure) {
			return a.Exposure.GreaterThan(b.Exposure)
		}
		return a.Country < b.Country
	})

	return report, nil
}

func hhiReport(exposureByGroup map[string]decimal.Decimal, total decimal.Decimal) HHIReport {
	hundred := decimal.NewFromInt(100)
	score := decimal.Zero
	for _, exposure := range exposureByGroup {
		share := exposure.Div(total).Mul(hundred)
		score = score.Add(share.Mul(share))
	}
	return HHIReport{Score: score, Level: ClassifyHHI(score)}
}
