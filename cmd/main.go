package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"creditrisk-api/internal/analytics"
	"creditrisk-api/internal/calculator"
	"creditrisk-api/internal/config"
	"creditrisk-api/internal/controllers"
	"creditrisk-api/internal/dataset"
	"creditrisk-api/internal/messaging"
	"creditrisk-api/internal/middleware"
	"creditrisk-api/internal/ratings"
	repomongo "creditrisk-api/internal/repositories/mongo"
	"creditrisk-api/internal/scheduler"
	"creditrisk-api/internal/services"
	"creditrisk-api/pkg/cache"
	"creditrisk-api/pkg/database"
	"creditrisk-api/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logrus.Fatal("Invalid configuration: ", err)
	}

	// Initialize logger
	logger.Init(cfg.Logger)
	log := logrus.WithField("service", "creditrisk-api")

	log.Info("Starting Credit Risk API service...")

	// Initialize database connection
	db, err := database.NewMongoDB(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB: ", err)
	}
	defer db.Disconnect()

	// Initialize Redis cache
	cacheClient, err := cache.NewRedisClient(cfg.Cache)
	if err != nil {
		log.Fatal("Failed to connect to Redis: ", err)
	}
	defer cacheClient.Close()

	// Initialize repositories
	portfolioRepo := repomongo.NewPortfolioRepository(db.GetDatabase())
	defaultRateRepo := repomongo.NewDefaultRateRepository(db.GetDatabase())
	historyRepo := repomongo.NewRatingHistoryRepository(db.GetDatabase())

	// Initialize analytics engines
	scale := ratings.Default()
	analyzer := analytics.NewPortfolioAnalyzer(analytics.PortfolioAnalyzerConfig{
		TopExposures: cfg.Analytics.TopExposures,
	}, scale)
	concentration := analytics.NewConcentrationAnalyzer(analytics.ConcentrationAnalyzerConfig{
		TopSingleNames:     cfg.Analytics.TopSingleNames,
		SingleNameLimitPct: decimal.NewFromFloat(cfg.Analytics.SingleNameLimitPct),
	})
	covenants := analytics.NewCovenantAnalyzer()
	migrations := analytics.NewMigrationAnalyzer(analytics.MigrationAnalyzerConfig{
		MajorDowngradeNotches: cfg.Analytics.MajorDowngradeNotches,
	}, scale)
	stress := analytics.NewStressAnalyzer()
	cashFlows := calculator.NewCashFlowCalculator(calculator.CashFlowCalculatorConfig{
		MaxHorizonMonths: cfg.Analytics.MaxCashFlowHorizon,
	})
	expectedLoss := calculator.NewExpectedLossCalculator(calculator.ExpectedLossCalculatorConfig{
		TopRiskiest:     cfg.Analytics.TopRiskiestLoans,
		HighRiskPDFloor: decimal.NewFromFloat(cfg.Analytics.HighRiskPDFloor),
	}, scale)
	amortization := calculator.NewAmortizationCalculator(calculator.AmortizationCalculatorConfig{
		MaxPeriods: cfg.Analytics.MaxAmortizationPeriods,
	})

	// Initialize RabbitMQ alert publisher
	var alertPublisher *messaging.AlertPublisher
	if cfg.RabbitMQ.Enabled {
		alertPublisher, err = messaging.NewAlertPublisher(
			cfg.RabbitMQ.GetRabbitMQURL(),
			cfg.RabbitMQ.AlertExchange,
			cfg.RabbitMQ.AlertRoutingKey,
			logrus.StandardLogger(),
		)
		if err != nil {
			log.Error("Failed to initialize alert publisher: ", err)
			alertPublisher = nil
		} else {
			defer alertPublisher.Close()
		}
	}

	// Initialize services
	var alerts services.AlertPublisherInterface
	if alertPublisher != nil {
		alerts = alertPublisher
	}
	analyticsService := services.NewAnalyticsService(
		portfolioRepo, defaultRateRepo, historyRepo, cacheClient, alerts,
		analyzer, concentration, covenants, migrations, stress,
		cashFlows, expectedLoss, amortization,
		cfg.Cache.ReportTTL,
	)
	datasetService := services.NewDatasetService(
		portfolioRepo, defaultRateRepo, historyRepo, cacheClient,
		dataset.NewLoader(), cfg.Cache.PortfolioTTL,
	)

	// Initialize controllers
	analyticsController := controllers.NewAnalyticsController(logrus.StandardLogger(), analyticsService, cfg.Analytics.WatchListThresholdPct)
	datasetController := controllers.NewDatasetController(logrus.StandardLogger(), datasetService)

	// Initialize RabbitMQ update consumer
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()
	var updateConsumer *messaging.PortfolioUpdateConsumer
	if cfg.RabbitMQ.Enabled {
		updateConsumer, err = messaging.NewPortfolioUpdateConsumer(
			cfg.RabbitMQ.GetRabbitMQURL(),
			cfg.RabbitMQ.UpdateExchange,
			cfg.RabbitMQ.UpdateQueue,
			analyticsService,
			logrus.StandardLogger(),
		)
		if err != nil {
			log.Error("Failed to initialize update consumer: ", err)
		} else if err := updateConsumer.Start(consumerCtx); err != nil {
			log.Error("Failed to start update consumer: ", err)
		}
	}

	// Initialize scheduler
	sweepScheduler := scheduler.NewScheduler(
		cfg.Scheduler.SweepSchedule,
		datasetService,
		analyticsService,
		cfg.Scheduler.JobTimeout,
		logrus.StandardLogger(),
	)
	if cfg.Scheduler.Enabled {
		if err := sweepScheduler.Start(); err != nil {
			log.Error("Failed to start scheduler: ", err)
		}
	}

	// Setup HTTP server
	router := setupRouter(cfg, analyticsController, datasetController)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: ", err)
	}

	// Close RabbitMQ consumer
	cancelConsumer()
	if updateConsumer != nil {
		updateConsumer.Close()
	}

	// Stop scheduler
	if cfg.Scheduler.Enabled {
		sweepScheduler.Stop()
	}

	log.Info("Server exited")
}

func setupRouter(cfg *config.Config,
	analyticsController *controllers.AnalyticsController,
	datasetController *controllers.DatasetController) *gin.Engine {

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logrus.StandardLogger()))
	router.Use(middleware.Metrics())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "creditrisk-api",
			"timestamp": time.Now().UTC(),
		})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api")
	datasetController.RegisterRoutes(api)
	analyticsController.RegisterRoutes(api)

	return router
}
