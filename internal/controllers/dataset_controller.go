package controllers

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"creditrisk-api/internal/dataset"
	"creditrisk-api/internal/models"
	"creditrisk-api/internal/services"
)

// DatasetController handles dataset ingestion and retrieval: portfolio CSV
// uploads, the default-rate table and rating history.
type DatasetController struct {
	logger  *logrus.Logger
	service *services.DatasetService
}

func NewDatasetController(logger *logrus.Logger, service *services.DatasetService) *DatasetController {
	return &DatasetController{
		logger:  logger,
		service: service,
	}
}

func (c *DatasetController) RegisterRoutes(r *gin.RouterGroup) {
	portfolios := r.Group("/portfolios")
	portfolios.POST("", c.ImportPortfolio)
	portfolios.GET("", c.ListPortfolios)
	portfolios.GET("/:id", c.GetPortfolio)
	portfolios.DELETE("/:id", c.DeletePortfolio)
	portfolios.GET("/:id/loans", c.FilterLoans)
	portfolios.GET("/:id/search", c.SearchBorrowers)

	reference := r.Group("/reference")
	reference.PUT("/default-rates", c.ReplaceDefaultRates)
	reference.POST("/rating-history", c.AppendRatingHistory)
}

// ImportPortfolio ingests a loan dataset uploaded as a CSV file.
func (c *DatasetController) ImportPortfolio(ctx *gin.Context) {
	id := ctx.PostForm("id")
	if id == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	name := ctx.DefaultPostForm("name", id)

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "failed to open upload"})
		return
	}
	defer file.Close()

	portfolio, err := c.service.ImportPortfolio(ctx.Request.Context(), id, name, file)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"id":    portfolio.ID,
		"name":  portfolio.Name,
		"loans": portfolio.Count(),
	})
}

func (c *DatasetController) ListPortfolios(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := strconv.Atoi(ctx.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	portfolios, err := c.service.ListPortfolios(ctx.Request.Context(), limit, offset)
	if err != nil {
		c.respondError(ctx, err)
		return
	}

	summaries := make([]gin.H, 0, len(portfolios))
	for _, p := range portfolios {
		summaries = append(summaries, gin.H{
			"id":         p.ID,
			"name":       p.Name,
			"loans":      p.Count(),
			"created_at": p.CreatedAt,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"portfolios": summaries})
}

func (c *DatasetController) GetPortfolio(ctx *gin.Context) {
	portfolio, err := c.service.GetPortfolio(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, portfolio)
}

func (c *DatasetController) DeletePortfolio(ctx *gin.Context) {
	if err := c.service.DeletePortfolio(ctx.Request.Context(), ctx.Param("id")); err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "portfolio deleted"})
}

// FilterLoans returns a filtered view of the dataset. Filters compose: every
// provided criterion must match.
func (c *DatasetController) FilterLoans(ctx *gin.Context) {
	filter := dataset.Filter{
		Sectors: splitParam(ctx.Query("sectors")),
		Ratings: splitParam(ctx.Query("ratings")),
	}
	for _, s := range splitParam(ctx.Query("statuses")) {
		filter.Statuses = append(filter.Statuses, models.LoanStatus(s))
	}

	if raw := ctx.Query("min_amount"); raw != "" {
		min, err := decimal.NewFromString(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_amount"})
			return
		}
		filter.MinAmount = &min
	}
	if raw := ctx.Query("max_amount"); raw != "" {
		max, err := decimal.NewFromString(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_amount"})
			return
		}
		filter.MaxAmount = &max
	}

	view, err := c.service.FilterLoans(ctx.Request.Context(), ctx.Param("id"), filter)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"loans": view.Loans, "count": view.Count()})
}

func (c *DatasetController) SearchBorrowers(ctx *gin.Context) {
	view, err := c.service.SearchBorrowers(ctx.Request.Context(), ctx.Param("id"), ctx.Query("q"))
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"loans": view.Loans, "count": view.Count()})
}

// ReplaceDefaultRates swaps the default-rate reference table from a CSV
// upload.
func (c *DatasetController) ReplaceDefaultRates(ctx *gin.Context) {
	file, ok := c.openUpload(ctx)
	if !ok {
		return
	}
	defer file.Close()

	count, err := c.service.ReplaceDefaultRates(ctx.Request.Context(), file)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "default rates replaced", "entries": count})
}

func (c *DatasetController) AppendRatingHistory(ctx *gin.Context) {
	file, ok := c.openUpload(ctx)
	if !ok {
		return
	}
	defer file.Close()

	count, err := c.service.AppendRatingHistory(ctx.Request.Context(), file)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"message": "rating history appended", "snapshots": count})
}

func (c *DatasetController) openUpload(ctx *gin.Context) (multipart.File, bool) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return nil, false
	}
	file, err := fileHeader.Open()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "failed to open upload"})
		return nil, false
	}
	return file, true
}

func (c *DatasetController) respondError(ctx *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		c.logger.Errorf("Dataset request failed: %v", err)
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
