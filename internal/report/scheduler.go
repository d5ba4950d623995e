package report

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type sender interface {
	SendDaily(ctx context.Context)
	SendWeekly(ctx context.Context)
}

// Scheduler fires the daily report every day at dailyAt and the weekly report
// every Sunday at weeklyAt, both in loc.
type Scheduler struct {
	reporter sender
	dailyAt  time.Duration
	weeklyAt time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewScheduler creates a scheduler. dailyAt and weeklyAt are offsets from midnight.
func NewScheduler(r sender, dailyAt, weeklyAt time.Duration, loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		reporter: r,
		dailyAt:  dailyAt,
		weeklyAt: weeklyAt,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("report scheduler started",
		zap.Duration("daily_at", s.dailyAt),
		zap.Duration("weekly_at", s.weeklyAt),
		zap.String("tz", s.loc.String()),
	)

	for {
		now := s.now()
		daily := NextDaily(now, s.dailyAt, s.loc)
		weekly := NextWeekly(now, s.weeklyAt, s.loc)

		next := daily
		if weekly.Before(next) {
			next = weekly
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if !daily.After(next) {
			s.reporter.SendDaily(ctx)
		}
		if !weekly.After(next) {
			s.reporter.SendWeekly(ctx)
		}
	}
}

// NextDaily returns the first occurrence of offset after now.
func NextDaily(now time.Time, offset time.Duration, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, 0, 0, 0, 0, loc).Add(offset)
	if !next.After(local) {
		next = time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(offset)
	}
	return next
}

// NextWeekly returns the first Sunday occurrence of offset after now.
func NextWeekly(now time.Time, offset time.Duration, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	daysUntil := (7 - int(local.Weekday())) % 7

	next := time.Date(y, m, d+daysUntil, 0, 0, 0, 0, loc).Add(offset)
	if !next.After(local) {
		next = time.Date(y, m, d+daysUntil+7, 0, 0, 0, 0, loc).Add(offset)
	}
	return next
}
