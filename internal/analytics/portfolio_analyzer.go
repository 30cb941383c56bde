package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"creditrisk-api/internal/models"
	"creditrisk-api/internal/ratings"
)

// PortfolioAnalyzer computes portfolio-level aggregation reports: summary
// statistics, status and sector breakdowns, maturity profiles, watch-list
// and borrower views, and the composite health score. Every method is a pure
// function of its inputs; time-dependent views take an explicit as-of date.
type PortfolioAnalyzer struct {
	scale        *ratings.Scale
	topExposures int
}

type PortfolioAnalyzerConfig struct {
	TopExposures int `json:"top_exposures" default:"5"`
}

func NewPortfolioAnalyzer(config PortfolioAnalyzerConfig, scale *ratings.Scale) *PortfolioAnalyzer {
	top := config.TopExposures
	if top <= 0 {
		top = 5
	}
	if scale == nil {
		scale = ratings.Default()
	}
	return &PortfolioAnalyzer{scale: scale, topExposures: top}
}

// QualityMixEntry is one credit-rating bucket of the summary quality mix.
type QualityMixEntry struct {
	CreditRating string          `json:"credit_rating"`
	LoanCount    int             `json:"loan_count"`
	PctOfLoans   decimal.Decimal `json:"pct_of_loans"`
	Exposure     decimal.Decimal `json:"exposure"`
	PctOfValue   decimal.Decimal `json:"pct_of_value"`
}

// PortfolioSummary is the headline portfolio view: totals, exposure-weighted
// yield, and the quality mix sorted by exposure share descending.
type PortfolioSummary struct {
	TotalExposure   decimal.Decimal   `json:"total_exposure"`
	LoanCount       int               `json:"loan_count"`
	BorrowerCount   int               `json:"borrower_count"`
	AverageLoanSize decimal.Decimal   `json:"average_loan_size"`
	WeightedYield   decimal.Decimal   `json:"weighted_yield"`
	QualityMix      []QualityMixEntry `json:"quality_mix"`
}

// Summarize computes the portfolio summary. The yield is exposure-weighted,
// never a simple mean of rates.
func (pa *PortfolioAnalyzer) Summarize(ctx context.Context, portfolio *models.Portfolio) (*PortfolioSummary, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}

	total := portfolio.TotalExposure()
	count := portfolio.Count()
	hundred := decimal.NewFromInt(100)

	summary := &PortfolioSummary{
		TotalExposure:   total,
		LoanCount:       count,
		BorrowerCount:   len(portfolio.ByBorrowerExposure()),
		AverageLoanSize: total.Div(decimal.NewFromInt(int64(count))),
		WeightedYield:   portfolio.WeightedAverageRate(),
	}

	type mixAccum struct {
		count    int
		exposure decimal.Decimal
	}
	mix := make(map[string]*mixAccum)
	for i := range portfolio.Loans {
		loan := &portfolio.Loans[i]
		entry, ok := mix[loan.CreditRating]
		if !ok {
			entry = &mixAccum{}
			mix[loan.CreditRating] = entry
		}
		entry.count++
		entry.exposure = entry.exposure.Add(loan.Amount)
	}

	for rating, entry := range mix {
		summary.QualityMix = append(summary.QualityMix, QualityMixEntry{
			CreditRating: rating,
			LoanCount:    entry.count,
			PctOfLoans:   decimal.NewFromInt(int64(entry.count)).Div(decimal.NewFromInt(int64(count))).Mul(hundred),
			Exposure:     entry.exposure,
			PctOfValue:   entry.exposure.Div(total).Mul(hundred),
		})
	}
	sort.Slice(summary.QualityMix, func(i, j int) bool {
		a, b := summary.QualityMix[i], summary.QualityMix[j]
		if !a.PctOfValue.Equal(b.PctOfValue) {
			return a.PctOfValue.GreaterThan(b.PctOfValue)
		}
		return a.CreditRating < b.CreditRating
	})

	return summary, nil
}

// SegmentStat is one group of a status or sector breakdown.
type SegmentStat struct {
	Segment    string          `json:"segment"`
	LoanCount  int             `json:"loan_count"`
	Exposure   decimal.Decimal `json:"exposure"`
	PctOfValue decimal.Decimal `json:"pct_of_value"`
}

// RiskBreakdown groups the portfolio by loan status and by sector.
type RiskBreakdown struct {
	StatusBreakdown     []SegmentStat `json:"status_breakdown"`
	SectorConcentration []SegmentStat `json:"sector_concentration"`
}

// BreakdownByRisk computes status and sector breakdowns with exposure shares.
// The sector table is sorted descending by share; status rows keep the
// severity order Performing, Watch List, Non-Performing, Defaulted.
func (pa *PortfolioAnalyzer) BreakdownByRisk(ctx context.Context, portfolio *models.Portfolio) (*RiskBreakdown, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}

	total := portfolio.TotalExposure()

	statusOrder := []models.LoanStatus{
		models.StatusPerforming,
		models.StatusWatchList,
		models.StatusNonPerforming,
		models.StatusDefaulted,
	}

	breakdown := &RiskBreakdown{}
	for _, status := range statusOrder {
		sub := portfolio.ByStatus(status)
		if sub.IsEmpty() {
			continue
		}
		breakdown.StatusBreakdown = append(breakdown.StatusBreakdown, segmentStat(string(status), sub, total))
	}

	sectors := make(map[string]*models.Portfolio)
	for i := range portfolio.Loans {
		sector := portfolio.Loans[i].Sector
		if _, seen := sectors[sector]; !seen {
			sectors[sector] = portfolio.BySector(sector)
		}
	}
	for sector, sub := range sectors {
		breakdown.SectorConcentration = append(breakdown.SectorConcentration, segmentStat(sector, sub, total))
	}
	sort.Slice(breakdown.SectorConcentration, func(i, j int) bool {
		a, b := breakdown.SectorConcentration[i], breakdown.SectorConcentration[j]
		if !a.PctOfValue.Equal(b.PctOfValue) {
			return a.PctOfValue.GreaterThan(b.PctOfValue)
		}
		return a.Segment < b.Segment
	})

	return breakdown, nil
}

func segmentStat(name string, sub *models.Portfolio, total decimal.Decimal) SegmentStat {
	exposure := sub.TotalExposure()
	return SegmentStat{
		Segment:    name,
		LoanCount:  sub.Count(),
		Exposure:   exposure,
		PctOfValue: exposure.Div(total).Mul(decimal.NewFromInt(100)),
	}
}

// ExposureEntry is one loan of the top-exposure ranking.
type ExposureEntry struct {
	LoanID         string          `json:"loan_id"`
	Borrower       string          `json:"borrower"`
	Amount         decimal.Decimal `json:"amount"`
	Rate           decimal.Decimal `json:"rate"`
	Sector         string          `json:"sector"`
	CreditRating   string          `json:"credit_rating"`
	Status         models.LoanStatus `json:"status"`
	PctOfPortfolio decimal.Decimal `json:"pct_of_portfolio"`
}

// TopExposures returns the n largest loans by amount, descending, with each
// loan's share of total exposure. n <= 0 falls back to the configured depth.
func (pa *PortfolioAnalyzer) TopExposures(ctx context.Context, portfolio *models.Portfolio, n int) ([]ExposureEntry, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}
	if n <= 0 {
		n = pa.topExposures
	}

	total := portfolio.TotalExposure()
	hundred := decimal.NewFromInt(100)

	entries := make([]ExposureEntry, 0, portfolio.Count())
	for i := range portfolio.Loans {
		loan := &portfolio.Loans[i]
		entries = append(entries, ExposureEntry{
			LoanID:         loan.LoanID,
			Borrower:       loan.Borrower,
			Amount:         loan.Amount,
			Rate:           loan.Rate,
			Sector:         loan.Sector,
			CreditRating:   loan.CreditRating,
			Status:         loan.Status,
			PctOfPortfolio: loan.Amount.Div(total).Mul(hundred),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Amount.Equal(entries[j].Amount) {
			return entries[i].Amount.GreaterThan(entries[j].Amount)
		}
		return entries[i].LoanID < entries[j].LoanID
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// BorrowerDetail is the per-borrower exposure view.
type BorrowerDetail struct {
	Borrower       string             `json:"borrower"`
	LoanCount      int                `json:"loan_count"`
	TotalExposure  decimal.Decimal    `json:"total_exposure"`
	WeightedRate   decimal.Decimal    `json:"weighted_rate"`
	PctOfPortfolio decimal.Decimal    `json:"pct_of_portfolio"`
	Loans          []models.LoanRecord `json:"loans"`
}

// AnalyzeBorrower returns the detail view for one borrower, or an
// ErrEmptyDataset when the borrower has no loans in the portfolio.
func (pa *PortfolioAnalyzer) AnalyzeBorrower(ctx context.Context, portfolio *models.Portfolio, borrower string) (*BorrowerDetail, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}

	sub := portfolio.ByBorrower(borrower)
	if sub.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}

	exposure := sub.TotalExposure()
	return &BorrowerDetail{
		Borrower:       borrower,
		LoanCount:      sub.Count(),
		TotalExposure:  exposure,
		WeightedRate:   sub.WeightedAverageRate(),
		PctOfPortfolio: exposure.Div(portfolio.TotalExposure()).Mul(decimal.NewFromInt(100)),
		Loans:          sub.Loans,
	}, nil
}

// WatchListReport summarizes the loans flagged Watch List.
type WatchListReport struct {
	LoanCount        int                 `json:"loan_count"`
	Exposure         decimal.Decimal     `json:"exposure"`
	PctOfPortfolio   decimal.Decimal     `json:"pct_of_portfolio"`
	WeightedRate     decimal.Decimal     `json:"weighted_rate"`
	BorrowerCount    int                 `json:"borrower_count"`
	RatingBreakdown  []SegmentStat       `json:"rating_breakdown"`
	SectorBreakdown  []SegmentStat       `json:"sector_breakdown"`
	Loans            []models.LoanRecord `json:"loans"`
	ThresholdPct     decimal.Decimal     `json:"threshold_pct"`
	ThresholdBreached bool               `json:"threshold_breached"`
}

// WatchList builds the watch-list report. thresholdPct is the share of
// total exposure above which the report raises the breach flag; zero or
// negative disables the alert.
func (pa *PortfolioAnalyzer) WatchList(ctx context.Context, portfolio *models.Portfolio, thresholdPct decimal.Decimal) (*WatchListReport, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}

	watch := portfolio.ByStatus(models.StatusWatchList)
	report := &WatchListReport{ThresholdPct: thresholdPct}
	if watch.IsEmpty() {
		return report, nil
	}

	watchExposure := watch.TotalExposure()
	report.LoanCount = watch.Count()
	report.Exposure = watchExposure
	report.PctOfPortfolio = watchExposure.Div(portfolio.TotalExposure()).Mul(decimal.NewFromInt(100))
	report.WeightedRate = watch.WeightedAverageRate()
	report.BorrowerCount = len(watch.ByBorrowerExposure())
	report.Loans = watch.Loans
	if thresholdPct.IsPositive() {
		report.ThresholdBreached = report.PctOfPortfolio.GreaterThan(thresholdPct)
	}

	byRating := make(map[string]*models.Portfolio)
	bySector := make(map[string]*models.Portfolio)
	for i := range watch.Loans {
		loan := &watch.Loans[i]
		if _, seen := byRating[loan.CreditRating]; !seen {
			byRating[loan.CreditRating] = watch.ByRating(loan.CreditRating)
		}
		if _, seen := bySector[loan.Sector]; !seen {
			bySector[loan.Sector] = watch.BySector(loan.Sector)
		}
	}
	for rating, sub := range byRating {
		report.RatingBreakdown = append(report.RatingBreakdown, segmentStat(rating, sub, watchExposure))
	}
	for sector, sub := range bySector {
		report.SectorBreakdown = append(report.SectorBreakdown, segmentStat(sector, sub, watchExposure))
	}
	sortSegments(report.RatingBreakdown)
	sortSegments(report.SectorBreakdown)

	return report, nil
}

func sortSegments(stats []SegmentStat) {
	sort.Slice(stats, func(i, j int) bool {
		if !stats[i].PctOfValue.Equal(stats[j].PctOfValue) {
			return stats[i].PctOfValue.GreaterThan(stats[j].PctOfValue)
		}
		return stats[i].Segment < stats[j].Segment
	})
}

// MaturityBucket is one year-quarter of the maturity profile.
type MaturityBucket struct {
	Year       int             `json:"year"`
	Quarter    int             `json:"quarter"`
	Period     string          `json:"period"`
	LoanCount  int             `json:"loan_count"`
	Exposure   decimal.Decimal `json:"exposure"`
	PctOfValue decimal.Decimal `json:"pct_of_value"`
}

// MaturityAnalysis is the time profile of the portfolio against an explicit
// as-of date.
type MaturityAnalysis struct {
	AsOf                  time.Time           `json:"as_of"`
	WeightedAvgMaturityYears decimal.Decimal  `json:"weighted_avg_maturity_years"`
	Profile               []MaturityBucket    `json:"profile"`
	Upcoming6M            []models.LoanRecord `json:"upcoming_6m"`
	Upcoming12M           []models.LoanRecord `json:"upcoming_12m"`
	Upcoming6MExposure    decimal.Decimal     `json:"upcoming_6m_exposure"`
	Upcoming12MExposure   decimal.Decimal     `json:"upcoming_12m_exposure"`
}

const daysPerYear = 365.25

// AnalyzeMaturity computes WAM, the year-quarter maturity profile, and the
// upcoming 6- and 12-month maturity lists, all relative to asOf.
func (pa *PortfolioAnalyzer) AnalyzeMaturity(ctx context.Context, portfolio *models.Portfolio, asOf time.Time) (*MaturityAnalysis, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}
	if asOf.IsZero() {
		return nil, models.InvalidParameterError("as_of", asOf)
	}

	total := portfolio.TotalExposure()
	analysis := &MaturityAnalysis{AsOf: asOf}

	horizon6M := asOf.AddDate(0, 6, 0)
	horizon12M := asOf.AddDate(1, 0, 0)

	weightedYears := decimal.Zero
	buckets := make(map[[2]int]*MaturityBucket)

	for i := range portfolio.Loans {
		loan := &portfolio.Loans[i]

		years := decimal.NewFromFloat(loan.MaturityDate.Sub(asOf).Hours() / 24 / daysPerYear)
		weightedYears = weightedYears.Add(loan.Amount.Mul(years))

		year := loan.MaturityDate.Year()
		quarter := (int(loan.MaturityDate.Month())-1)/3 + 1
		key := [2]int{year, quarter}
		bucket, ok := buckets[key]
		if !ok {
			bucket = &MaturityBucket{Year: year, Quarter: quarter}
			buckets[key] = bucket
		}
		bucket.LoanCount++
		bucket.Exposure = bucket.Exposure.Add(loan.Amount)

		if !loan.MaturityDate.Before(asOf) {
			if !loan.MaturityDate.After(horizon6M) {
				analysis.Upcoming6M = append(analysis.Upcoming6M, *loan)
				analysis.Upcoming6MExposure = analysis.Upcoming6MExposure.Add(loan.Amount)
			}
			if !loan.MaturityDate.After(horizon12M) {
				analysis.Upcoming12M = append(analysis.Upcoming12M, *loan)
				analysis.Upcoming12MExposure = analysis.Upcoming12MExposure.Add(loan.Amount)
			}
		}
	}

	analysis.WeightedAvgMaturityYears = weightedYears.Div(total)

	hundred := decimal.NewFromInt(100)
	for _, bucket := range buckets {
		bucket.PctOfValue = bucket.Exposure.Div(total).Mul(hundred)
		bucket.Period = quarterLabel(bucket.Year, bucket.Quarter)
		analysis.Profile = append(analysis.Profile, *bucket)
	}
	sort.Slice(analysis.Profile, func(i, j int) bool {
		a, b := analysis.Profile[i], analysis.Profile[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Quarter < b.Quarter
	})

	sortLoansByMaturity(analysis.Upcoming6M)
	sortLoansByMaturity(analysis.Upcoming12M)

	return analysis, nil
}

func quarterLabel(year, quarter int) string {
	return fmt.Sprintf("%d-Q%d", year, quarter)
}

func sortLoansByMaturity(loans []models.LoanRecord) {
	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].MaturityDate.Equal(loans[j].MaturityDate) {
			return loans[i].MaturityDate.Before(loans[j].MaturityDate)
		}
		return loans[i].LoanID < loans[j].LoanID
	})
}

// HealthScore is the composite 0-100 portfolio health view. Component
// weights: performance 30%, quality 30%, concentration 25%, maturity 15%.
type HealthScore struct {
	Overall            decimal.Decimal `json:"overall"`
	PerformanceScore   decimal.Decimal `json:"performance_score"`
	QualityScore       decimal.Decimal `json:"quality_score"`
	ConcentrationScore decimal.Decimal `json:"concentration_score"`
	MaturityScore      decimal.Decimal `json:"maturity_score"`
	BorrowerHHI        decimal.Decimal `json:"borrower_hhi"`
	Status             string          `json:"status"`
}

// ratingQualityScore maps a rating rank to a 0-100 quality contribution,
// linear from best (100) to worst (0) across the configured scale. Ratings
// outside the scale contribute 0.
func (pa *PortfolioAnalyzer) ratingQualityScore(rating string) decimal.Decimal {
	rank, ok := pa.scale.Rank(rating)
	if !ok {
		return decimal.Zero
	}
	worst := pa.scale.Len() - 1
	if worst == 0 {
		return decimal.NewFromInt(100)
	}
	return decimal.NewFromInt(int64(worst - rank)).
		Div(decimal.NewFromInt(int64(worst))).
		Mul(decimal.NewFromInt(100))
}

// ScoreHealth computes the composite health score against an explicit as-of
// date. Performance is the performing share of loan count; quality is the
// rating-weighted average score; concentration maps borrower HHI to a banded
// score (100 below 1500, 80 below 2500, 60 otherwise); maturity penalizes
// loans maturing within a year of asOf.
func (pa *PortfolioAnalyzer) ScoreHealth(ctx context.Context, portfolio *models.Portfolio, asOf time.Time) (*HealthScore, error) {
	if portfolio.IsEmpty() {
		return nil, models.ErrEmptyDataset
	}
	if asOf.IsZero() {
		return nil, models.InvalidParameterError("as_of", asOf)
	}

	count := decimal.NewFromInt(int64(portfolio.Count()))
	hundred := decimal.NewFromInt(100)

	performing := portfolio.ByStatus(models.StatusPerforming).Count()
	performanceScore := decimal.NewFromInt(int64(performing)).Div(count).Mul(hundred)

	qualityScore := decimal.Zero
	nearTerm := 0
	oneYearOut := asOf.AddDate(1, 0, 0)
	for i := range portfolio.Loans {
		loan := &portfolio.Loans[i]
		qualityScore = qualityScore.Add(pa.ratingQualityScore(loan.CreditRating))
		if !loan.MaturityDate.After(oneYearOut) {
			nearTerm++
		}
	}
	qualityScore = qualityScore.Div(count)

	total := portfolio.TotalExposure()
	borrowerHHI := decimal.Zero
	for _, exposure := range portfolio.ByBorrowerExposure() {
		share := exposure.Div(total).Mul(hundred)
		borrowerHHI = borrowerHHI.Add(share.Mul(share))
	}

	var concentrationScore decimal.Decimal
	switch {
	case borrowerHHI.LessThan(decimal.NewFromInt(1500)):
		concentrationScore = decimal.NewFromInt(100)
	case borrowerHHI.LessThan(decimal.NewFromInt(2500)):
		concentrationScore = decimal.NewFromInt(80)
	default:
		concentrationScore = decimal.NewFromInt(60)
	}

	maturityScore := hundred.Sub(decimal.NewFromInt(int64(nearTerm)).Div(count).Mul(decimal.NewFromInt(50)))
	if maturityScore.IsNegative() {
		maturityScore = decimal.Zero
	}

	overall := performanceScore.Mul(decimal.RequireFromString("0.30")).
		Add(qualityScore.Mul(decimal.RequireFromString("0.30"))).
		Add(concentrationScore.Mul(decimal.RequireFromString("0.25"))).
		Add(maturityScore.Mul(decimal.RequireFromString("0.15")))

	status := "At Risk"
	switch {
	case overall.GreaterThanOrEqual(decimal.NewFromInt(75)):
		status = "Healthy"
	case overall.GreaterThanOrEqual(decimal.NewFromInt(50)):
		status = "Monitor"
	}

	return &HealthScore{
		Overall:            overall,
		PerformanceScore:   performanceScore,
		QualityScore:       qualityScore,
		ConcentrationScore: concentrationScore,
		MaturityScore:      maturityScore,
		BorrowerHHI:        borrowerHHI,
		Status:             status,
	}, nil
}
