package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"creditrisk-api/internal/models"
)

type fakeLister struct {
	portfolios []*models.Portfolio
}

func (f *fakeLister) ListPortfolios(ctx context.Context, limit, offset int) ([]*models.Portfolio, error) {
	if offset >= len(f.portfolios) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.portfolios) {
		end = len(f.portfolios)
	}
	return f.portfolios[offset:end], nil
}

type fakeRefresher struct {
	refreshed []string
	failOn    string
}

func (f *fakeRefresher) RefreshReports(ctx context.Context, portfolioID string) error {
	if portfolioID == f.failOn {
		return errors.New("refresh failed")
	}
	f.refreshed = append(f.refreshed, portfolioID)
	return nil
}

func TestScheduler_SweepVisitsEveryPortfolio(t *testing.T) {
	lister := &fakeLister{portfolios: []*models.Portfolio{
		{ID: "pf-1"}, {ID: "pf-2"}, {ID: "pf-3"},
	}}
	refresher := &fakeRefresher{}
	s := NewScheduler("0 2 * * *", lister, refresher, time.Minute, logrus.New())

	s.RunSweepNow()

	assert.Equal(t, []string{"pf-1", "pf-2", "pf-3"}, refresher.refreshed)
}

func TestScheduler_SweepContinuesPastFailures(t *testing.T) {
	lister := &fakeLister{portfolios: []*models.Portfolio{
		{ID: "pf-1"}, {ID: "pf-bad"}, {ID: "pf-3"},
	}}
	refresher := &fakeRefresher{failOn: "pf-bad"}
	s := NewScheduler("0 2 * * *", lister, refresher, time.Minute, logrus.New())

	s.RunSweepNow()

	assert.Equal(t, []string{"pf-1", "pf-3"}, refresher.refreshed)
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler("not a schedule", &fakeLister{}, &fakeRefresher{}, time.Minute, logrus.New())

	err := s.Start()

	assert.Error(t, err)
}
