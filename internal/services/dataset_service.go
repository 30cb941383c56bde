package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"creditrisk-api/internal/dataset"
	"creditrisk-api/internal/models"
	"creditrisk-api/internal/repositories"
)

type LoaderInterface interface {
	LoadPortfolio(id string, r io.Reader) (*models.Portfolio, error)
	LoadDefaultRates(r io.Reader) ([]models.DefaultRateEntry, error)
	LoadRatingHistory(r io.Reader) ([]models.RatingSnapshot, error)
}

const portfolioKeyPrefix = "creditrisk:portfolio"

// DatasetService owns dataset ingestion and retrieval: portfolios, the
// default-rate reference table and rating snapshot history.
type DatasetService struct {
	portfolioRepo   repositories.PortfolioRepository
	defaultRateRepo repositories.DefaultRateRepository
	historyRepo     repositories.RatingHistoryRepository
	cache           CacheInterface
	loader          LoaderInterface
	portfolioTTL    time.Duration
}

func NewDatasetService(
	portfolioRepo repositories.PortfolioRepository,
	defaultRateRepo repositories.DefaultRateRepository,
	historyRepo repositories.RatingHistoryRepository,
	cache CacheInterface,
	loader LoaderInterface,
	portfolioTTL time.Duration,
) *DatasetService {
	if portfolioTTL <= 0 {
		portfolioTTL = 15 * time.Minute
	}
	return &DatasetService{
		portfolioRepo:   portfolioRepo,
		defaultRateRepo: defaultRateRepo,
		historyRepo:     historyRepo,
		cache:           cache,
		loader:          loader,
		portfolioTTL:    portfolioTTL,
	}
}

// ImportPortfolio parses a loan dataset from CSV, validates it and stores it.
func (ds *DatasetService) ImportPortfolio(ctx context.Context, id, name string, r io.Reader) (*models.Portfolio, error) {
	portfolio, err := ds.loader.LoadPortfolio(id, r)
	if err != nil {
		return nil, err
	}
	portfolio.Name = name

	if err := ds.portfolioRepo.Create(ctx, portfolio); err != nil {
		return nil, fmt.Errorf("failed to store portfolio: %w", err)
	}

	_ = ds.cache.Set(ctx, portfolioKey(id), portfolio, ds.portfolioTTL)

	logrus.WithFields(logrus.Fields{
		"portfolio_id": id,
		"loans":        portfolio.Count(),
	}).Info("Portfolio imported")

	return portfolio, nil
}

// GetPortfolio retrieves a portfolio by ID, cache first.
func (ds *DatasetService) GetPortfolio(ctx context.Context, id string) (*models.Portfolio, error) {
	var cached models.Portfolio
	if err := ds.cache.Get(ctx, portfolioKey(id), &cached); err == nil {
		return &cached, nil
	}

	portfolio, err := ds.portfolioRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	_ = ds.cache.Set(ctx, portfolioKey(id), portfolio, ds.portfolioTTL)
	return portfolio, nil
}

// ListPortfolios pages over stored portfolios, newest first.
func (ds *DatasetService) ListPortfolios(ctx context.Context, limit, offset int) ([]*models.Portfolio, error) {
	return ds.portfolioRepo.List(ctx, limit, offset)
}

// DeletePortfolio removes the stored dataset and every cached view of it.
func (ds *DatasetService) DeletePortfolio(ctx context.Context, id string) error {
	if err := ds.portfolioRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}

	keys := []string{portfolioKey(id)}
	if reportKeys, err := ds.cache.Keys(ctx, fmt.Sprintf("%s:*:%s:*", reportKeyPrefix, id)); err == nil {
		keys = append(keys, reportKeys...)
	}
	_ = ds.cache.Delete(ctx, keys...)
	return nil
}

// FilterLoans applies a filter to a stored portfolio and returns the derived
// view. The stored dataset is never mutated.
func (ds *DatasetService) FilterLoans(ctx context.Context, id string, filter dataset.Filter) (*models.Portfolio, error) {
	portfolio, err := ds.GetPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	return filter.Apply(portfolio), nil
}

// SearchBorrowers returns the loans whose ID or borrower contains the query.
func (ds *DatasetService) SearchBorrowers(ctx context.Context, id, query string) (*models.Portfolio, error) {
	portfolio, err := ds.GetPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	return dataset.SearchBorrowers(portfolio, query), nil
}

// ReplaceDefaultRates parses and swaps the whole default-rate table.
func (ds *DatasetService) ReplaceDefaultRates(ctx context.Context, r io.Reader) (int, error) {
	entries, err := ds.loader.LoadDefaultRates(r)
	if err != nil {
		return 0, err
	}
	if err := ds.defaultRateRepo.ReplaceAll(ctx, entries); err != nil {
		return 0, fmt.Errorf("failed to store default rates: %w", err)
	}
	return len(entries), nil
}

// AppendRatingHistory parses and appends rating snapshots.
func (ds *DatasetService) AppendRatingHistory(ctx context.Context, r io.Reader) (int, error) {
	snapshots, err := ds.loader.LoadRatingHistory(r)
	if err != nil {
		return 0, err
	}
	if err := ds.historyRepo.Append(ctx, snapshots); err != nil {
		return 0, fmt.Errorf("failed to store rating history: %w", err)
	}
	return len(snapshots), nil
}

func portfolioKey(id string) string {
	return fmt.Sprintf("%s:%s", portfolioKeyPrefix, id)
}
