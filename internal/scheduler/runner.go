package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// StartRunner drives ProcessDueJobs on the given 5-field cron expression
// (minute hour day-of-month month day-of-week); "* * * * *" polls every
// minute. The loop stops when ctx is cancelled.
func (s *Scheduler) StartRunner(ctx context.Context, schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return err
	}
	s.log.WithField("cron", schedule).Info("scheduler runner started")

	go func() {
		for {
			now := s.now()
			next := sched.Next(now)
			wait := next.Sub(now)

			select {
			case <-ctx.Done():
				s.log.Info("scheduler runner stopped")
				return
			case <-time.After(wait):
			}

			processed, err := s.ProcessDueJobs(ctx)
			if err != nil {
				s.log.WithError(err).Error("due-job sweep failed")
				continue
			}
			if processed > 0 {
				s.log.WithField("processed", processed).Info("due-job sweep complete")
			}
		}
	}()
	return nil
}
