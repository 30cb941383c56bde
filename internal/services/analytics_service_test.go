package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"creditrisk-api/internal/analytics"
	"creditrisk-api/internal/calculator"
	"creditrisk-api/internal/models"
)

// Mock implementations
type MockPortfolioRepository struct {
	mock.Mock
}

func (m *MockPortfolioRepository) Create(ctx context.Context, portfolio *models.Portfolio) error {
	args := m.Called(ctx, portfolio)
	return args.Error(0)
}

func (m *MockPortfolioRepository) GetByID(ctx context.Context, id string) (*models.Portfolio, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Portfolio), args.Error(1)
}

func (m *MockPortfolioRepository) Update(ctx context.Context, portfolio *models.Portfolio) error {
	args := m.Called(ctx, portfolio)
	return args.Error(0)
}

func (m *MockPortfolioRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPortfolioRepository) List(ctx context.Context, limit, offset int) ([]*models.Portfolio, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Portfolio), args.Error(1)
}

type MockDefaultRateRepository struct {
	mock.Mock
}

func (m *MockDefaultRateRepository) ReplaceAll(ctx context.Context, entries []models.DefaultRateEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockDefaultRateRepository) GetAll(ctx context.Context) ([]models.DefaultRateEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DefaultRateEntry), args.Error(1)
}

type MockRatingHistoryRepository struct {
	mock.Mock
}

func (m *MockRatingHistoryRepository) Append(ctx context.Context, snapshots []models.RatingSnapshot) error {
	args := m.Called(ctx, snapshots)
	return args.Error(0)
}

func (m *MockRatingHistoryRepository) GetAll(ctx context.Context) ([]models.RatingSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RatingSnapshot), args.Error(1)
}

func (m *MockRatingHistoryRepository) GetByLoanID(ctx context.Context, loanID string) ([]models.RatingSnapshot, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RatingSnapshot), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *MockCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	args := m.Called(ctx, pattern)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockAlertPublisher struct {
	mock.Mock
}

func (m *MockAlertPublisher) PublishCovenantBreach(ctx context.Context, portfolioID string, report *analytics.CovenantReport) error {
	args := m.Called(ctx, portfolioID, report)
	return args.Error(0)
}

var errCacheMiss = errors.New("key not found in cache")

type serviceFixture struct {
	portfolioRepo *MockPortfolioRepository
	rateRepo      *MockDefaultRateRepository
	historyRepo   *MockRatingHistoryRepository
	cache         *MockCache
	alerts        *MockAlertPublisher
	service       *AnalyticsService
}

// newServiceFixture wires the service with mocked collaborators and real
// engines; engines are deterministic so report contents can be asserted.
func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		portfolioRepo: new(MockPortfolioRepository),
		rateRepo:      new(MockDefaultRateRepository),
		historyRepo:   new(MockRatingHistoryRepository),
		cache:         new(MockCache),
		alerts:        new(MockAlertPublisher),
	}
	f.service = NewAnalyticsService(
		f.portfolioRepo,
		f.rateRepo,
		f.historyRepo,
		f.cache,
		f.alerts,
		analytics.NewPortfolioAnalyzer(analytics.PortfolioAnalyzerConfig{}, nil),
		analytics.NewConcentrationAnalyzer(analytics.ConcentrationAnalyzerConfig{}),
		analytics.NewCovenantAnalyzer(),
		analytics.NewMigrationAnalyzer(analytics.MigrationAnalyzerConfig{}, nil),
		analytics.NewStressAnalyzer(),
		calculator.NewCashFlowCalculator(calculator.CashFlowCalculatorConfig{}),
		calculator.NewExpectedLossCalculator(calculator.ExpectedLossCalculatorConfig{}, nil),
		calculator.NewAmortizationCalculator(calculator.AmortizationCalculatorConfig{}),
		time.Minute,
	)
	return f
}

func servicePortfolio(t *testing.T) *models.Portfolio {
	t.Helper()
	maturity := time.Date(2030, 6, 30, 0, 0, 0, 0, time.UTC)
	portfolio, err := models.NewPortfolio("pf-1", []models.LoanRecord{
		{
			LoanID: "L-001", Borrower: "Acme Corp",
			Amount: decimal.NewFromInt(600000), Rate: decimal.NewFromInt(5),
			Sector: "Technology", Country: "US", MaturityDate: maturity,
			CreditRating: "BBB", Status: models.StatusPerforming,
		},
		{
			LoanID: "L-002", Borrower: "Beta Industries",
			Amount: decimal.NewFromInt(400000), Rate: decimal.NewFromInt(7),
			Sector: "Energy", Country: "GB", MaturityDate: maturity,
			CreditRating: "BB", Status: models.StatusWatchList,
		},
	})
	require.NoError(t, err)
	return portfolio
}

func TestAnalyticsService_Summary_CacheMiss(t *testing.T) {
	f := newServiceFixture()
	portfolio := servicePortfolio(t)

	f.portfolioRepo.On("GetByID", mock.Anything, "pf-1").Return(portfolio, nil)
	f.cache.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(errCacheMiss)
	f.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, time.Minute).Return(nil)

	summary, err := f.service.Summary(context.Background(), "pf-1")

	require.NoError(t, err)
	assert.Equal(t, 2, summary.LoanCount)
	assert.True(t, summary.TotalExposure.Equal(decimal.NewFromInt(1000000)))
	// 600k @ 5% + 400k @ 7% -> 5.8% weighted
	assert.True(t, summary.WeightedYield.Equal(decimal.NewFromFloat(5.8)),
		"weighted yield = %s", summary.WeightedYield)
	f.cache.AssertCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, time.Minute)
}

func TestAnalyticsService_Summary_CacheHit(t *testing.T) {
	f := newServiceFixture()
	portfolio := servicePortfolio(t)

	f.portfolioRepo.On("GetByID", mock.Anything, "pf-1").Return(portfolio, nil)
	f.cache.On("Get", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			dest := args.Get(2).(*analytics.PortfolioSummary)
			dest.LoanCount = 2
			dest.TotalExposure = decimal.NewFromInt(1000000)
		}).Return(nil)

	summary, err := f.service.Summary(context.Background(), "pf-1")

	require.NoError(t, err)
	assert.Equal(t, 2, summary.LoanCount)
	f.cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyticsService_Summary_RepositoryError(t *testing.T) {
	f := newServiceFixture()

	f.portfolioRepo.On("GetByID", mock.Anything, "missing").
		Return(nil, errors.New("portfolio not found"))

	_, err := f.service.Summary(context.Background(), "missing")

	assert.ErrorContains(t, err, "failed to get portfolio")
}

func TestAnalyticsService_ExpectedLoss_JoinsStoredRates(t *testing.T) {
	f := newServiceFixture()
	portfolio := servicePortfolio(t)
	rates := []models.DefaultRateEntry{
		{CreditRating: "BBB", DefaultProbability: decimal.NewFromFloat(0.02), RecoveryRate: decimal.NewFromFloat(0.5), RiskWeight: decimal.NewFromInt(1)},
		{CreditRating: "BB", DefaultProbability: decimal.NewFromFloat(0.05), RecoveryRate: decimal.NewFromFloat(0.4), RiskWeight: decimal.NewFromFloat(1.5)},
	}

	f.portfolioRepo.On("GetByID", mock.Anything, "pf-1").Return(portfolio, nil)
	f.rateRepo.On("GetAll", mock.Anything).Return(rates, nil)
	f.cache.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(errCacheMiss)
	f.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, time.Minute).Return(nil)

	report, err := f.service.ExpectedLoss(context.Background(), "pf-1")

	require.NoError(t, err)
	assert.Equal(t, 2, report.MatchedCount)
	assert.Equal(t, 0, report.UnmatchedCount)
	// 600k*0.02*0.5 + 400k*0.05*0.6 = 6000 + 12000
	assert.True(t, report.TotalExpectedLoss.Equal(decimal.NewFromInt(18000)),
		"expected loss = %s", report.TotalExpectedLoss)
}

func TestAnalyticsService_Covenants_PublishesBreachAlert(t *testing.T) {
	f := newServiceFixture()
	maturity := time.Date(2030, 6, 30, 0, 0, 0, 0, time.UTC)
	de := decimal.NewFromInt(9)
	portfolio, err := models.NewPortfolio("pf-1", []models.LoanRecord{{
		LoanID: "L-001", Borrower: "Acme Corp",
		Amount: decimal.NewFromInt(500000), Rate: decimal.NewFromInt(5),
		Sector: "Technology", MaturityDate: maturity,
		CreditRating: "BBB", Status: models.StatusPerforming,
		DebtToEquity: &de,
	}})
	require.NoError(t, err)

	f.portfolioRepo.On("GetByID", mock.Anything, "pf-1").Return(portfolio, nil)
	f.alerts.On("PublishCovenantBreach", mock.Anything, "pf-1", mock.Anything).Return(nil)

	report, err := f.service.Covenants(context.Background(), "pf-1", models.CovenantThresholds{
		MaxDebtToEquity:     decimal.NewFromFloat(3.5),
		MinInterestCoverage: decimal.NewFromInt(2),
		MaxLeverageRatio:    decimal.NewFromInt(4),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.DebtToEquityBreaches)
	assert.Equal(t, 0, report.CompliantCount)
	f.alerts.AssertCalled(t, "PublishCovenantBreach", mock.Anything, "pf-1", mock.Anything)
}

func TestAnalyticsService_Covenants_NoAlertWhenCompliant(t *testing.T) {
	f := newServiceFixture()
	maturity := time.Date(2030, 6, 30, 0, 0, 0, 0, time.UTC)
	de := decimal.NewFromInt(1)
	portfolio, err := models.NewPortfolio("pf-1", []models.LoanRecord{{
		LoanID: "L-001", Borrower: "Acme Corp",
		Amount: decimal.NewFromInt(500000), Rate: decimal.NewFromInt(5),
		Sector: "Technology", MaturityDate: maturity,
		CreditRating: "BBB", Status: models.StatusPerforming,
		DebtToEquity: &de,
	}})
	require.NoError(t, err)

	f.portfolioRepo.On("GetByID", mock.Anything, "pf-1").Return(portfolio, nil)

	report, err := f.service.Covenants(context.Background(), "pf-1", models.CovenantThresholds{
		MaxDebtToEquity:     decimal.NewFromFloat(3.5),
		MinInterestCoverage: decimal.NewFromInt(2),
		MaxLeverageRatio:    decimal.NewFromInt(4),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.CompliantCount)
	f.alerts.AssertNotCalled(t, "PublishCovenantBreach", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyticsService_Migrations_UsesStoredHistory(t *testing.T) {
	f := newServiceFixture()
	portfolio := servicePortfolio(t)
	history := []models.RatingSnapshot{
		{LoanID: "L-001", SnapshotDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), CreditRating: "BBB"},
		{LoanID: "L-001", SnapshotDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), CreditRating: "BB+"},
	}

	f.portfolioRepo.On("GetByID", mock.Anything, "pf-1").Return(portfolio, nil)
	f.historyRepo.On("GetAll", mock.Anything).Return(history, nil)

	report, err := f.service.Migrations(context.Background(), "pf-1")

	require.NoError(t, err)
	assert.Equal(t, 1, report.Downgrades)
}

func TestAnalyticsService_Stress_PrependsBaseCase(t *testing.T) {
	f := newServiceFixture()
	portfolio := servicePortfolio(t)

	f.portfolioRepo.On("GetByID", mock.Anything, "pf-1").Return(portfolio, nil)

	results, err := f.service.Stress(context.Background(), "pf-1", []analytics.StressScenario{
		{Name: "Rate Shock", RateShockBps: decimal.NewFromInt(200)},
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, analytics.BaseCaseScenarioName, results[0].Scenario)
	assert.Equal(t, "Rate Shock", results[1].Scenario)
}

func TestAnalyticsService_RefreshReports_DropsCachedKeys(t *testing.T) {
	f := newServiceFixture()
	portfolio := servicePortfolio(t)
	stale := []string{
		"creditrisk:report:summary:pf-1:abc",
		"creditrisk:report:risk:pf-1:abc",
	}

	f.portfolioRepo.On("GetByID", mock.Anything, "pf-1").Return(portfolio, nil)
	f.cache.On("Keys", mock.Anything, "creditrisk:report:*:pf-1:*").Return(stale, nil)
	f.cache.On("Delete", mock.Anything, stale).Return(nil)
	f.cache.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(errCacheMiss)
	f.cache.On("Set", mock.Anything, mock.Anything, mock.Anything, time.Minute).Return(nil)

	err := f.service.RefreshReports(context.Background(), "pf-1")

	require.NoError(t, err)
	f.cache.AssertCalled(t, "Delete", mock.Anything, stale)
	f.cache.AssertNumberOfCalls(t, "Set", 3)
}

func TestAnalyticsService_FingerprintChangesWithDataset(t *testing.T) {
	a := servicePortfolio(t)
	b := servicePortfolio(t)
	b.Loans[0].Amount = decimal.NewFromInt(700000)

	assert.NotEqual(t, fingerprintPortfolio(a), fingerprintPortfolio(b))
	assert.Equal(t, fingerprintPortfolio(a), fingerprintPortfolio(servicePortfolio(t)))
}
