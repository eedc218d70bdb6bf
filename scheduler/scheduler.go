// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger deletes history older than a cutoff.
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler manages cron tasks.
type Scheduler struct {
	Cron   *cron.Cron
	logger *zap.Logger
	now    func() time.Time
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Cron:   cron.New(cron.WithSeconds()),
		logger: logger.Named("scheduler"),
		now:    time.Now,
	}
}

// AddRetention schedules a purge of history older than retention.
func (s *Scheduler) AddRetention(ctx context.Context, spec string, retention time.Duration, purger Purger) error {
	_, err := s.Cron.AddFunc(spec, func() { s.RunRetention(ctx, retention, purger) })
	if err != nil {
		return err
	}
	s.logger.Info("retention job scheduled", zap.String("spec", spec), zap.Duration("retention", retention))
	return nil
}

// RunRetention purges once and returns the number of rows removed.
func (s *Scheduler) RunRetention(ctx context.Context, retention time.Duration, purger Purger) int64 {
	cutoff := s.now().Add(-retention)
	n, err := purger.Purge(ctx, cutoff)
	if err != nil {
		s.logger.Warn("history purge failed", zap.Error(err))
		return 0
	}
	s.logger.Info("history purged", zap.Int64("rows", n), zap.Time("before", cutoff))
	return n
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
