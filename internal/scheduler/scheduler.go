package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"creditrisk-api/internal/models"
)

// PortfolioLister pages over stored portfolios.
type PortfolioLister interface {
	ListPortfolios(ctx context.Context, limit, offset int) ([]*models.Portfolio, error)
}

// ReportRefresher recomputes the cached reports of one portfolio.
type ReportRefresher interface {
	RefreshReports(ctx context.Context, portfolioID string) error
}

const sweepPageSize = 50

// Scheduler runs the nightly report recalculation sweep over every stored
// portfolio.
type Scheduler struct {
	cron      *cron.Cron
	schedule  string
	lister    PortfolioLister
	refresher ReportRefresher
	timeout   time.Duration
	logger    *logrus.Logger
}

func NewScheduler(schedule string, lister PortfolioLister, refresher ReportRefresher, timeout time.Duration, logger *logrus.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		cron:      cron.New(),
		schedule:  schedule,
		lister:    lister,
		refresher: refresher,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start registers the sweep job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.runSweep)
	if err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}
	s.cron.Start()
	s.logger.Infof("Scheduler started (sweep schedule: %s)", s.schedule)
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// RunSweepNow triggers the sweep outside its schedule.
func (s *Scheduler) RunSweepNow() {
	s.runSweep()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	refreshed, failed := 0, 0

	for offset := 0; ; offset += sweepPageSize {
		portfolios, err := s.lister.ListPortfolios(ctx, sweepPageSize, offset)
		if err != nil {
			s.logger.Errorf("Sweep aborted, failed to list portfolios: %v", err)
			return
		}
		if len(portfolios) == 0 {
			break
		}

		for _, p := range portfolios {
			if err := s.refresher.RefreshReports(ctx, p.ID); err != nil {
				s.logger.Errorf("Sweep failed for portfolio %s: %v", p.ID, err)
				failed++
				continue
			}
			refreshed++
		}

		if len(portfolios) < sweepPageSize {
			break
		}
	}

	s.logger.WithFields(logrus.Fields{
		"refreshed": refreshed,
		"failed":    failed,
		"elapsed":   time.Since(start).String(),
	}).Info("Report recalculation sweep finished")
}
