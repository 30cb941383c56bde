package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"creditrisk-api/internal/analytics"
	"creditrisk-api/internal/calculator"
	"creditrisk-api/internal/models"
	"creditrisk-api/internal/services"
)

const dateLayout = "2006-01-02"

// AnalyticsController exposes the analytics engines over HTTP. Every
// endpoint passes explicit inputs down; the engines never touch a clock
// or a datastore themselves.
type AnalyticsController struct {
	logger             *logrus.Logger
	service            *services.AnalyticsService
	watchListThreshold decimal.Decimal
}

func NewAnalyticsController(logger *logrus.Logger, service *services.AnalyticsService, watchListThresholdPct float64) *AnalyticsController {
	return &AnalyticsController{
		logger:             logger,
		service:            service,
		watchListThreshold: decimal.NewFromFloat(watchListThresholdPct),
	}
}

func (c *AnalyticsController) RegisterRoutes(r *gin.RouterGroup) {
	portfolios := r.Group("/portfolios")
	portfolios.GET("/:id/summary", c.GetSummary)
	portfolios.GET("/:id/risk", c.GetRiskBreakdown)
	portfolios.GET("/:id/concentration", c.GetConcentration)
	portfolios.GET("/:id/top-exposures", c.GetTopExposures)
	portfolios.GET("/:id/borrowers/:borrower", c.GetBorrowerDetail)
	portfolios.GET("/:id/watch-list", c.GetWatchList)
	portfolios.GET("/:id/maturity", c.GetMaturity)
	portfolios.GET("/:id/health-score", c.GetHealthScore)
	portfolios.GET("/:id/cashflows", c.GetCashFlows)
	portfolios.GET("/:id/expected-loss", c.GetExpectedLoss)
	portfolios.POST("/:id/covenants", c.CheckCovenants)
	portfolios.GET("/:id/migrations", c.GetMigrations)
	portfolios.POST("/:id/stress", c.RunStress)
	portfolios.POST("/:id/stress/borrower", c.RunBorrowerStress)
	portfolios.POST("/:id/stress/rating-default", c.RunRatingDefaultStress)

	r.POST("/amortization", c.Amortize)
	r.POST("/amortization/compare", c.CompareAmortization)
}

func (c *AnalyticsController) GetSummary(ctx *gin.Context) {
	report, err := c.service.Summary(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

func (c *AnalyticsController) GetRiskBreakdown(ctx *gin.Context) {
	report, err := c.service.RiskBreakdown(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

func (c *AnalyticsController) GetConcentration(ctx *gin.Context) {
	report, err := c.service.Concentration(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

func (c *AnalyticsController) GetTopExposures(ctx *gin.Context) {
	n, err := strconv.Atoi(ctx.DefaultQuery("n", "5"))
	if err != nil || n <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid n"})
		return
	}

	entries, err := c.service.TopExposures(ctx.Request.Context(), ctx.Param("id"), n)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"top_exposures": entries})
}

func (c *AnalyticsController) GetBorrowerDetail(ctx *gin.Context) {
	detail, err := c.service.BorrowerDetail(ctx.Request.Context(), ctx.Param("id"), ctx.Param("borrower"))
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, detail)
}

func (c *AnalyticsController) GetWatchList(ctx *gin.Context) {
	threshold := c.watchListThreshold
	if raw, ok := ctx.GetQuery("threshold_pct"); ok {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold_pct"})
			return
		}
		threshold = parsed
	}

	report, err := c.service.WatchList(ctx.Request.Context(), ctx.Param("id"), threshold)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

func (c *AnalyticsController) GetMaturity(ctx *gin.Context) {
	asOf, ok := c.parseAsOf(ctx)
	if !ok {
		return
	}

	report, err := c.service.Maturity(ctx.Request.Context(), ctx.Param("id"), asOf)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

func (c *AnalyticsController) GetHealthScore(ctx *gin.Context) {
	asOf, ok := c.parseAsOf(ctx)
	if !ok {
		return
	}

	score, err := c.service.Health(ctx.Request.Context(), ctx.Param("id"), asOf)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, score)
}

func (c *AnalyticsController) GetCashFlows(ctx *gin.Context) {
	horizon, err := strconv.Atoi(ctx.DefaultQuery("horizon_months", "12"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid horizon_months"})
		return
	}
	asOf, ok := c.parseAsOf(ctx)
	if !ok {
		return
	}

	projection, err := c.service.CashFlows(ctx.Request.Context(), ctx.Param("id"), horizon, asOf)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, projection)
}

func (c *AnalyticsController) GetExpectedLoss(ctx *gin.Context) {
	report, err := c.service.ExpectedLoss(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

// CovenantRequest carries the thresholds loans are checked against.
type CovenantRequest struct {
	MaxDebtToEquity     decimal.Decimal `json:"max_debt_to_equity" binding:"required"`
	MinInterestCoverage decimal.Decimal `json:"min_interest_coverage" binding:"required"`
	MaxLeverageRatio    decimal.Decimal `json:"max_leverage_ratio" binding:"required"`
}

func (c *AnalyticsController) CheckCovenants(ctx *gin.Context) {
	var req CovenantRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := c.service.Covenants(ctx.Request.Context(), ctx.Param("id"), models.CovenantThresholds{
		MaxDebtToEquity:     req.MaxDebtToEquity,
		MinInterestCoverage: req.MinInterestCoverage,
		MaxLeverageRatio:    req.MaxLeverageRatio,
	})
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

func (c *AnalyticsController) GetMigrations(ctx *gin.Context) {
	report, err := c.service.Migrations(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

// StressRequest wraps the scenario list; the base case is always included
// in the response.
type StressRequest struct {
	Scenarios []analytics.StressScenario `json:"scenarios"`
}

func (c *AnalyticsController) RunStress(ctx *gin.Context) {
	var req StressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := c.service.Stress(ctx.Request.Context(), ctx.Param("id"), req.Scenarios)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": results})
}

type BorrowerStressRequest struct {
	Borrower        string          `json:"borrower" binding:"required"`
	RateChangePct   decimal.Decimal `json:"rate_change_pct"`
	DefaultAll      bool            `json:"default_all"`
	RecoveryRatePct decimal.Decimal `json:"recovery_rate_pct"`
}

func (c *AnalyticsController) RunBorrowerStress(ctx *gin.Context) {
	var req BorrowerStressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := c.service.BorrowerStress(ctx.Request.Context(), ctx.Param("id"),
		req.Borrower, req.RateChangePct, req.DefaultAll, req.RecoveryRatePct)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

type RatingDefaultStressRequest struct {
	Rating          string          `json:"rating" binding:"required"`
	DefaultPct      decimal.Decimal `json:"default_pct"`
	RecoveryRatePct decimal.Decimal `json:"recovery_rate_pct"`
}

func (c *AnalyticsController) RunRatingDefaultStress(ctx *gin.Context) {
	var req RatingDefaultStressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := c.service.RatingDefaultStress(ctx.Request.Context(), ctx.Param("id"),
		req.Rating, req.DefaultPct, req.RecoveryRatePct)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// AmortizationRequest describes one loan to schedule.
type AmortizationRequest struct {
	Principal      decimal.Decimal `json:"principal" binding:"required"`
	AnnualRatePct  decimal.Decimal `json:"annual_rate_pct"`
	TermYears      float64         `json:"term_years" binding:"required"`
	PeriodsPerYear int             `json:"periods_per_year" binding:"required"`
	Method         string          `json:"method"`
}

func (c *AnalyticsController) Amortize(ctx *gin.Context) {
	var req AmortizationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	method := calculator.AmortizationMethod(req.Method)
	if req.Method == "" {
		method = calculator.MethodAnnuity
	}

	schedule, err := c.service.Amortize(ctx.Request.Context(),
		req.Principal, req.AnnualRatePct, req.TermYears, req.PeriodsPerYear, method)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, schedule)
}

func (c *AnalyticsController) CompareAmortization(ctx *gin.Context) {
	var req AmortizationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comparisons, err := c.service.CompareAmortization(ctx.Request.Context(),
		req.Principal, req.AnnualRatePct, req.TermYears, req.PeriodsPerYear)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"methods": comparisons})
}

// parseAsOf reads the as_of query parameter; the engines take the date
// explicitly, so the clock lives only here at the boundary.
func (c *AnalyticsController) parseAsOf(ctx *gin.Context) (time.Time, bool) {
	raw := ctx.Query("as_of")
	if raw == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), true
	}
	asOf, err := time.Parse(dateLayout, raw)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid as_of, expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	return asOf, true
}

func (c *AnalyticsController) respondError(ctx *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		c.logger.Errorf("Analytics request failed: %v", err)
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}

func statusForError(err error) int {
	var schemaErr *models.SchemaError
	switch {
	case errors.Is(err, models.ErrInvalidParameter), errors.As(err, &schemaErr):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrEmptyDataset):
		return http.StatusUnprocessableEntity
	case isNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
