// Package maintenance removes expired publish keys and stale login handoffs
// on a cron schedule.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Expirer deletes records that are no longer valid at now.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Chain runs each Expirer in turn and sums the deletions. It stops at the
// first error.
type Chain []Expirer

func (c Chain) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, e := range c {
		n, err := e.DeleteExpired(ctx, now)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Sweeper runs Expirer.DeleteExpired on a schedule.
type Sweeper struct {
	store   Expirer
	logger  logrus.FieldLogger
	cron    *cron.Cron
	timeout time.Duration
	now     func() time.Time
}

// NewSweeper parses schedule (standard cron or a descriptor such as
// "@every 10m") and prepares the job. Call Start to run it.
func NewSweeper(store Expirer, schedule string, logger logrus.FieldLogger) (*Sweeper, error) {
	s := &Sweeper{
		store:   store,
		logger:  logger.WithField("component", "sweeper"),
		cron:    cron.New(),
		timeout: time.Minute,
		now:     time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("failed to schedule sweeper: %w", err)
	}
	return s, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.SweepOnce(ctx); err != nil {
		s.logger.WithError(err).Error("sweep failed")
	}
}

// SweepOnce deletes everything expired as of now and returns the count.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return n, fmt.Errorf("failed to delete expired records: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"deleted":     n,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("sweep completed")
	return n, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
