package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"scorecard-ingest-go/internal/types"
)

// parseTimeOfDay parses "HH:MM".
func parseTimeOfDay(s string) (hour, min int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time %q not in HH:MM form", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	min, err = strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, min, nil
}

// nextOccurrence is the nearest future slot for the weekday and time, rolling
// forward 7 days when today's slot has already passed. Always strictly after
// now.
func nextOccurrence(now time.Time, day time.Weekday, hour, min int) time.Time {
	daysUntil := (int(day) - int(now.Weekday()) + 7) % 7
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location()).
		AddDate(0, 0, daysUntil)
	if !target.After(now) {
		target = target.AddDate(0, 0, 7)
	}
	return target
}

// SetupWeeklySchedule registers a recurring run at dayOfWeek (0=Sunday) and
// "HH:MM", computing the first next_run_at.
func (s *Scheduler) SetupWeeklySchedule(ctx context.Context, programID, managerID, filePath string, dayOfWeek int, timeOfDay string) (types.WeeklySchedule, error) {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return types.WeeklySchedule{}, fmt.Errorf("day_of_week %d out of range [0,6]", dayOfWeek)
	}
	hour, min, err := parseTimeOfDay(timeOfDay)
	if err != nil {
		return types.WeeklySchedule{}, err
	}

	now := s.now().UTC()
	ws := types.WeeklySchedule{
		ID:        uuid.New().String(),
		ProgramID: programID,
		ManagerID: managerID,
		FilePath:  filePath,
		DayOfWeek: dayOfWeek,
		TimeOfDay: timeOfDay,
		NextRunAt: nextOccurrence(now, time.Weekday(dayOfWeek), hour, min),
		Enabled:   true,
		CreatedAt: now,
	}
	if err := s.store.InsertWeeklySchedule(ctx, ws); err != nil {
		return types.WeeklySchedule{}, fmt.Errorf("insert schedule: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"schedule_id": ws.ID,
		"day_of_week": dayOfWeek,
		"time_of_day": timeOfDay,
		"next_run_at": ws.NextRunAt,
	}).Info("weekly schedule registered")
	return ws, nil
}

// ProcessDueJobs spawns jobs for due weekly schedules, then runs every due
// job. Returns the number of jobs processed.
func (s *Scheduler) ProcessDueJobs(ctx context.Context) (int, error) {
	now := s.now().UTC()

	schedules, err := s.store.ListDueSchedules(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due schedules: %w", err)
	}
	for _, ws := range schedules {
		if _, err := s.ScheduleJob(ctx, ws.ProgramID, ws.ManagerID, ws.FilePath, now, types.DefaultProcessingConfig()); err != nil {
			s.log.WithField("schedule_id", ws.ID).WithError(err).Error("spawning scheduled job failed")
			continue
		}
		hour, min, perr := parseTimeOfDay(ws.TimeOfDay)
		if perr != nil {
			s.log.WithField("schedule_id", ws.ID).WithError(perr).Error("schedule has invalid time_of_day")
			continue
		}
		next := nextOccurrence(now, time.Weekday(ws.DayOfWeek), hour, min)
		if err := s.store.UpdateScheduleNextRun(ctx, ws.ID, next); err != nil {
			s.log.WithField("schedule_id", ws.ID).WithError(err).Error("rolling schedule forward failed")
		}
	}

	jobs, err := s.store.ListDueJobs(ctx, now, 20)
	if err != nil {
		return 0, fmt.Errorf("list due jobs: %w", err)
	}
	processed := 0
	for _, job := range jobs {
		if _, err := s.ProcessJob(ctx, job.ID); err != nil {
			s.log.WithField("job_id", job.ID).WithError(err).Error("processing due job failed")
			continue
		}
		processed++
	}
	return processed, nil
}
