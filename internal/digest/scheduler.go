package digest

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/mailwatch/internal/triage"
)

// Schedule says when digests go out: daily at Hour, weekly on Weekday at
// Hour. Local time of the process.
type Schedule struct {
	Hour    int
	Weekday time.Weekday
}

// Scheduler sends digests on a fixed schedule until its context ends.
type Scheduler struct {
	builder *Builder
	sender  Sender
	sched   Schedule
	logger  log.Logger
	metrics *triage.Metrics
	now     func() time.Time
}

// NewScheduler creates a scheduler. sender may be a no-op mailer in dev.
func NewScheduler(b *Builder, sender Sender, sched Schedule, logger log.Logger, metrics *triage.Metrics) *Scheduler {
	return &Scheduler{
		builder: b,
		sender:  sender,
		sched:   sched,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run blocks, firing the daily digest every day at the scheduled hour and
// the weekly digest additionally on the scheduled weekday.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info(ctx, "digest scheduler started",
		"hour", s.sched.Hour, "weekday", s.sched.Weekday.String())

	for {
		next := s.nextRun(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info(ctx, "digest scheduler stopped")
			return
		case <-timer.C:
		}

		period := PeriodDaily
		if next.Weekday() == s.sched.Weekday {
			period = PeriodWeekly
		}
		s.send(ctx, period, next)
	}
}

// Send builds and delivers one digest immediately.
func (s *Scheduler) Send(ctx context.Context, period Period) error {
	return s.sendErr(ctx, period, s.now())
}

func (s *Scheduler) send(ctx context.Context, period Period, now time.Time) {
	if err := s.sendErr(ctx, period, now); err != nil {
		s.logger.Error(ctx, err, "digest send failed", "period", period)
	}
}

func (s *Scheduler) sendErr(ctx context.Context, period Period, now time.Time) error {
	result := "ok"
	defer func() {
		if s.metrics != nil {
			s.metrics.DigestsTotal.WithLabelValues(string(period), result).Inc()
		}
	}()

	subject, html, err := s.builder.Build(ctx, period, now)
	if err != nil {
		result = "build_error"
		return err
	}
	if err := s.sender.SendHTML(ctx, subject, html); err != nil {
		result = "send_error"
		return err
	}

	s.logger.Info(ctx, "digest sent", "period", period, "subject", subject)
	return nil
}

// nextRun finds the next scheduled hour boundary strictly after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.sched.Hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
