package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"creditrisk-api/internal/analytics"
	"creditrisk-api/internal/calculator"
	"creditrisk-api/internal/middleware"
	"creditrisk-api/internal/models"
	"creditrisk-api/internal/repositories"
)

// Interfaces for testing
type CacheInterface interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

type AlertPublisherInterface interface {
	PublishCovenantBreach(ctx context.Context, portfolioID string, report *analytics.CovenantReport) error
}

type PortfolioAnalyzerInterface interface {
	Summarize(ctx context.Context, portfolio *models.Portfolio) (*analytics.PortfolioSummary, error)
	BreakdownByRisk(ctx context.Context, portfolio *models.Portfolio) (*analytics.RiskBreakdown, error)
	TopExposures(ctx context.Context, portfolio *models.Portfolio, n int) ([]analytics.ExposureEntry, error)
	AnalyzeBorrower(ctx context.Context, portfolio *models.Portfolio, borrower string) (*analytics.BorrowerDetail, error)
	WatchList(ctx context.Context, portfolio *models.Portfolio, thresholdPct decimal.Decimal) (*analytics.WatchListReport, error)
	AnalyzeMaturity(ctx context.Context, portfolio *models.Portfolio, asOf time.Time) (*analytics.MaturityAnalysis, error)
	ScoreHealth(ctx context.Context, portfolio *models.Portfolio, asOf time.Time) (*analytics.HealthScore, error)
}

type ConcentrationAnalyzerInterface interface {
	Analyze(ctx context.Context, portfolio *models.Portfolio) (*analytics.ConcentrationReport, error)
}

type CovenantAnalyzerInterface interface {
	Check(ctx context.Context, portfolio *models.Portfolio, thresholds models.CovenantThresholds) (*analytics.CovenantReport, error)
}

type MigrationAnalyzerInterface interface {
	Analyze(ctx context.Context, history []models.RatingSnapshot, portfolio *models.Portfolio) (*analytics.MigrationReport, error)
}

type StressAnalyzerInterface interface {
	RunScenarios(ctx context.Context, portfolio *models.Portfolio, scenarios []analytics.StressScenario) ([]analytics.ScenarioResult, error)
	RunBorrowerScenario(ctx context.Context, portfolio *models.Portfolio, borrower string, rateChangePct decimal.Decimal, defaultAll bool, recoveryRatePct decimal.Decimal) (*analytics.BorrowerScenarioResult, error)
	RunRatingDefaultScenario(ctx context.Context, portfolio *models.Portfolio, rating string, defaultPct decimal.Decimal, recoveryRatePct decimal.Decimal) (*analytics.RatingDefaultResult, error)
}

type CashFlowCalculatorInterface interface {
	Project(ctx context.Context, portfolio *models.Portfolio, horizonMonths int, asOf time.Time) (*calculator.CashFlowProjection, error)
}

type ExpectedLossCalculatorInterface interface {
	Compute(ctx context.Context, portfolio *models.Portfolio, defaultRates []models.DefaultRateEntry) (*calculator.ExpectedLossReport, error)
}

type AmortizationCalculatorInterface interface {
	Amortize(ctx context.Context, principal, annualRatePct decimal.Decimal, termYears float64, periodsPerYear int, method calculator.AmortizationMethod) (*calculator.AmortizationSchedule, error)
	CompareMethods(ctx context.Context, principal, annualRatePct decimal.Decimal, termYears float64, periodsPerYear int) ([]calculator.MethodComparison, error)
}

const (
	reportKeyPrefix  = "creditrisk:report"
	defaultReportTTL = 5 * time.Minute
)

// AnalyticsService orchestrates the analytics engines over stored datasets
// and memoizes reports on (portfolio fingerprint, parameters).
type AnalyticsService struct {
	portfolioRepo   repositories.PortfolioRepository
	defaultRateRepo repositories.DefaultRateRepository
	historyRepo     repositories.RatingHistoryRepository
	cache           CacheInterface
	alerts          AlertPublisherInterface

	analyzer      PortfolioAnalyzerInterface
	concentration ConcentrationAnalyzerInterface
	covenants     CovenantAnalyzerInterface
	migrations    MigrationAnalyzerInterface
	stress        StressAnalyzerInterface
	cashFlows     CashFlowCalculatorInterface
	expectedLoss  ExpectedLossCalculatorInterface
	amortization  AmortizationCalculatorInterface

	reportTTL time.Duration
}

func NewAnalyticsService(
	portfolioRepo repositories.PortfolioRepository,
	defaultRateRepo repositories.DefaultRateRepository,
	historyRepo repositories.RatingHistoryRepository,
	cache CacheInterface,
	alerts AlertPublisherInterface,
	analyzer PortfolioAnalyzerInterface,
	concentration ConcentrationAnalyzerInterface,
	covenants CovenantAnalyzerInterface,
	migrations MigrationAnalyzerInterface,
	stress StressAnalyzerInterface,
	cashFlows CashFlowCalculatorInterface,
	expectedLoss ExpectedLossCalculatorInterface,
	amortization AmortizationCalculatorInterface,
	reportTTL time.Duration,
) *AnalyticsService {
	if reportTTL <= 0 {
		reportTTL = defaultReportTTL
	}
	return &AnalyticsService{
		portfolioRepo:   portfolioRepo,
		defaultRateRepo: defaultRateRepo,
		historyRepo:     historyRepo,
		cache:           cache,
		alerts:          alerts,
		analyzer:        analyzer,
		concentration:   concentration,
		covenants:       covenants,
		migrations:      migrations,
		stress:          stress,
		cashFlows:       cashFlows,
		expectedLoss:    expectedLoss,
		amortization:    amortization,
		reportTTL:       reportTTL,
	}
}

// Summary returns the aggregate portfolio summary, cached on the dataset
// fingerprint.
func (as *AnalyticsService) Summary(ctx context.Context, portfolioID string) (*analytics.PortfolioSummary, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	key := as.reportKey("summary", portfolio, "")
	var cached analytics.PortfolioSummary
	if err := as.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	report, err := as.analyzer.Summarize(ctx, portfolio)
	if err != nil {
		return nil, err
	}
	as.storeReport(ctx, "summary", key, report)
	return report, nil
}

// RiskBreakdown returns status and sector groupings.
func (as *AnalyticsService) RiskBreakdown(ctx context.Context, portfolioID string) (*analytics.RiskBreakdown, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	key := as.reportKey("risk", portfolio, "")
	var cached analytics.RiskBreakdown
	if err := as.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	report, err := as.analyzer.BreakdownByRisk(ctx, portfolio)
	if err != nil {
		return nil, err
	}
	as.storeReport(ctx, "risk", key, report)
	return report, nil
}

// Concentration returns single-name, HHI and geographic concentration.
func (as *AnalyticsService) Concentration(ctx context.Context, portfolioID string) (*analytics.ConcentrationReport, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	key := as.reportKey("concentration", portfolio, "")
	var cached analytics.ConcentrationReport
	if err := as.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	report, err := as.concentration.Analyze(ctx, portfolio)
	if err != nil {
		return nil, err
	}
	as.storeReport(ctx, "concentration", key, report)
	return report, nil
}

// TopExposures returns the n largest loans by amount.
func (as *AnalyticsService) TopExposures(ctx context.Context, portfolioID string, n int) ([]analytics.ExposureEntry, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return as.analyzer.TopExposures(ctx, portfolio, n)
}

// BorrowerDetail returns one borrower's loans and aggregates.
func (as *AnalyticsService) BorrowerDetail(ctx context.Context, portfolioID, borrower string) (*analytics.BorrowerDetail, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return as.analyzer.AnalyzeBorrower(ctx, portfolio, borrower)
}

// WatchList returns the watch-list report against an exposure threshold.
func (as *AnalyticsService) WatchList(ctx context.Context, portfolioID string, thresholdPct decimal.Decimal) (*analytics.WatchListReport, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return as.analyzer.WatchList(ctx, portfolio, thresholdPct)
}

// Maturity returns the maturity profile against an explicit as-of date.
func (as *AnalyticsService) Maturity(ctx context.Context, portfolioID string, asOf time.Time) (*analytics.MaturityAnalysis, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	key := as.reportKey("maturity", portfolio, asOf.Format("2006-01-02"))
	var cached analytics.MaturityAnalysis
	if err := as.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	report, err := as.analyzer.AnalyzeMaturity(ctx, portfolio, asOf)
	if err != nil {
		return nil, err
	}
	as.storeReport(ctx, "maturity", key, report)
	return report, nil
}

// Health returns the composite health score.
func (as *AnalyticsService) Health(ctx context.Context, portfolioID string, asOf time.Time) (*analytics.HealthScore, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	key := as.reportKey("health", portfolio, asOf.Format("2006-01-02"))
	var cached analytics.HealthScore
	if err := as.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	report, err := as.analyzer.ScoreHealth(ctx, portfolio, asOf)
	if err != nil {
		return nil, err
	}
	as.storeReport(ctx, "health", key, report)
	return report, nil
}

// CashFlows projects monthly interest and principal over the horizon.
func (as *AnalyticsService) CashFlows(ctx context.Context, portfolioID string, horizonMonths int, asOf time.Time) (*calculator.CashFlowProjection, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	key := as.reportKey("cashflows", portfolio, fmt.Sprintf("%d:%s", horizonMonths, asOf.Format("2006-01-02")))
	var cached calculator.CashFlowProjection
	if err := as.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	report, err := as.cashFlows.Project(ctx, portfolio, horizonMonths, asOf)
	if err != nil {
		return nil, err
	}
	as.storeReport(ctx, "cashflows", key, report)
	return report, nil
}

// ExpectedLoss joins the portfolio against the stored default-rate table.
func (as *AnalyticsService) ExpectedLoss(ctx context.Context, portfolioID string) (*calculator.ExpectedLossReport, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	rates, err := as.defaultRateRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load default rates: %w", err)
	}

	key := as.reportKey("expected-loss", portfolio, fingerprintDefaultRates(rates))
	var cached calculator.ExpectedLossReport
	if err := as.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	report, err := as.expectedLoss.Compute(ctx, portfolio, rates)
	if err != nil {
		return nil, err
	}
	as.storeReport(ctx, "expected-loss", key, report)
	return report, nil
}

// Covenants checks the portfolio against thresholds and publishes a breach
// alert when any loan breaches.
func (as *AnalyticsService) Covenants(ctx context.Context, portfolioID string, thresholds models.CovenantThresholds) (*analytics.CovenantReport, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	report, err := as.covenants.Check(ctx, portfolio, thresholds)
	if err != nil {
		return nil, err
	}

	breached := report.TotalLoans - report.CompliantCount - report.DataUnavailableCount
	if as.alerts != nil && breached > 0 {
		if err := as.alerts.PublishCovenantBreach(ctx, portfolioID, report); err != nil {
			logrus.WithError(err).WithField("portfolio_id", portfolioID).
				Warn("Failed to publish covenant breach alert")
		}
	}
	return report, nil
}

// Migrations analyzes the stored rating history for the portfolio's loans.
func (as *AnalyticsService) Migrations(ctx context.Context, portfolioID string) (*analytics.MigrationReport, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	history, err := as.historyRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rating history: %w", err)
	}

	return as.migrations.Analyze(ctx, history, portfolio)
}

// Stress runs the given scenarios plus the base case.
func (as *AnalyticsService) Stress(ctx context.Context, portfolioID string, scenarios []analytics.StressScenario) ([]analytics.ScenarioResult, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return as.stress.RunScenarios(ctx, portfolio, scenarios)
}

// BorrowerStress runs a single-borrower what-if.
func (as *AnalyticsService) BorrowerStress(ctx context.Context, portfolioID, borrower string, rateChangePct decimal.Decimal, defaultAll bool, recoveryRatePct decimal.Decimal) (*analytics.BorrowerScenarioResult, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return as.stress.RunBorrowerScenario(ctx, portfolio, borrower, rateChangePct, defaultAll, recoveryRatePct)
}

// RatingDefaultStress defaults a share of one rating bucket.
func (as *AnalyticsService) RatingDefaultStress(ctx context.Context, portfolioID, rating string, defaultPct, recoveryRatePct decimal.Decimal) (*analytics.RatingDefaultResult, error) {
	portfolio, err := as.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return as.stress.RunRatingDefaultScenario(ctx, portfolio, rating, defaultPct, recoveryRatePct)
}

// Amortize builds a repayment schedule; no portfolio involved.
func (as *AnalyticsService) Amortize(ctx context.Context, principal, annualRatePct decimal.Decimal, termYears float64, periodsPerYear int, method calculator.AmortizationMethod) (*calculator.AmortizationSchedule, error) {
	return as.amortization.Amortize(ctx, principal, annualRatePct, termYears, periodsPerYear, method)
}

// CompareAmortization builds the headline metrics of all three methods.
func (as *AnalyticsService) CompareAmortization(ctx context.Context, principal, annualRatePct decimal.Decimal, termYears float64, periodsPerYear int) ([]calculator.MethodComparison, error) {
	return as.amortization.CompareMethods(ctx, principal, annualRatePct, termYears, periodsPerYear)
}

// RefreshReports drops every cached report for a portfolio and re-warms the
// dataset-only ones. Used by the scheduler and the update consumer.
func (as *AnalyticsService) RefreshReports(ctx context.Context, portfolioID string) error {
	pattern := fmt.Sprintf("%s:*:%s:*", reportKeyPrefix, portfolioID)
	keys, err := as.cache.Keys(ctx, pattern)
	if err == nil && len(keys) > 0 {
		_ = as.cache.Delete(ctx, keys...)
	}

	if _, err := as.Summary(ctx, portfolioID); err != nil {
		return fmt.Errorf("failed to refresh summary: %w", err)
	}
	if _, err := as.RiskBreakdown(ctx, portfolioID); err != nil {
		return fmt.Errorf("failed to refresh risk breakdown: %w", err)
	}
	if _, err := as.Concentration(ctx, portfolioID); err != nil {
		return fmt.Errorf("failed to refresh concentration: %w", err)
	}
	return nil
}

func (as *AnalyticsService) loadPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	portfolio, err := as.portfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return portfolio, nil
}

func (as *AnalyticsService) reportKey(report string, portfolio *models.Portfolio, params string) string {
	key := fmt.Sprintf("%s:%s:%s:%s", reportKeyPrefix, report, portfolio.ID, fingerprintPortfolio(portfolio))
	if params != "" {
		key += ":" + params
	}
	return key
}

func (as *AnalyticsService) storeReport(ctx context.Context, name, key string, report interface{}) {
	middleware.CountReportComputation(name)
	if err := as.cache.Set(ctx, key, report, as.reportTTL); err != nil {
		logrus.WithError(err).WithField("key", key).Debug("Failed to cache report")
	}
}

// fingerprintPortfolio hashes the loan records so cached reports go stale the
// moment the dataset changes.
func fingerprintPortfolio(portfolio *models.Portfolio) string {
	h := sha256.New()
	for i := range portfolio.Loans {
		loan := &portfolio.Loans[i]
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s",
			loan.LoanID, loan.Borrower, loan.Amount.String(), loan.Rate.String(),
			loan.Sector, loan.Country, loan.MaturityDate.Format("2006-01-02"), loan.CreditRating)
		fmt.Fprintf(h, "|%s", loan.Status)
		for _, ratio := range []*decimal.Decimal{loan.DebtToEquity, loan.InterestCoverage, loan.LeverageRatio} {
			if ratio != nil {
				fmt.Fprintf(h, "|%s", ratio.String())
			} else {
				fmt.Fprint(h, "|-")
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func fingerprintDefaultRates(entries []models.DefaultRateEntry) string {
	h := sha256.New()
	for i := range entries {
		fmt.Fprintf(h, "%s|%s|%s|%s", entries[i].CreditRating,
			entries[i].DefaultProbability.String(), entries[i].RecoveryRate.String(),
			entries[i].RiskWeight.String())
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
