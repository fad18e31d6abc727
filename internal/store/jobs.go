package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scorecard-ingest-go/internal/types"
)

var ErrJobNotFound = errors.New("job not found")

func (s *Store) InsertJob(ctx context.Context, job types.BatchProcessingJob) error {
	config, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batch_jobs (id, program_id, manager_id, file_path, status, scheduled_for, retry_count, last_error, config, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ProgramID, job.ManagerID, job.FilePath, job.Status,
		job.ScheduledFor, job.RetryCount, job.LastError, string(config), job.CreatedAt,
	)
	return err
}

// UpdateJob persists the mutable job fields.
func (s *Store) UpdateJob(ctx context.Context, job types.BatchProcessingJob) error {
	var results any
	if job.Results != nil {
		data, err := json.Marshal(job.Results)
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
		results = string(data)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_jobs
		 SET status = ?, scheduled_for = ?, started_at = ?, completed_at = ?, retry_count = ?, last_error = ?, results = ?
		 WHERE id = ?`,
		job.Status, job.ScheduledFor, job.StartedAt, job.CompletedAt,
		job.RetryCount, job.LastError, results, job.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

const jobColumns = `id, program_id, manager_id, file_path, status, scheduled_for, started_at, completed_at, retry_count, last_error, config, results, created_at`

func scanJob(scan func(dest ...any) error) (types.BatchProcessingJob, error) {
	var job types.BatchProcessingJob
	var started, completed sql.NullTime
	var lastError sql.NullString
	var config string
	var results sql.NullString

	err := scan(&job.ID, &job.ProgramID, &job.ManagerID, &job.FilePath, &job.Status,
		&job.ScheduledFor, &started, &completed, &job.RetryCount, &lastError,
		&config, &results, &job.CreatedAt)
	if err != nil {
		return job, err
	}
	if started.Valid {
		t := started.Time
		job.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	job.LastError = lastError.String
	if err := json.Unmarshal([]byte(config), &job.Config); err != nil {
		return job, fmt.Errorf("unmarshal config: %w", err)
	}
	if results.Valid && results.String != "" {
		job.Results = &types.JobResults{}
		if err := json.Unmarshal([]byte(results.String), job.Results); err != nil {
			return job, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	return job, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (types.BatchProcessingJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM batch_jobs WHERE id = ?`, id)
	job, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return job, ErrJobNotFound
	}
	return job, err
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]types.BatchProcessingJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.BatchProcessingJob
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// ListDueJobs returns scheduled jobs whose scheduled_for has passed.
func (s *Store) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]types.BatchProcessingJob, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs WHERE status = ? AND scheduled_for <= ? ORDER BY scheduled_for ASC LIMIT ?`,
		types.JobScheduled, now, limit)
}

func (s *Store) ListJobsCreatedSince(ctx context.Context, since time.Time) ([]types.BatchProcessingJob, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs WHERE created_at >= ? ORDER BY created_at DESC`, since)
}

// ListRecentFinished returns the latest completed or failed jobs.
func (s *Store) ListRecentFinished(ctx context.Context, limit int) ([]types.BatchProcessingJob, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs WHERE status IN (?, ?) ORDER BY completed_at DESC LIMIT ?`,
		types.JobCompleted, types.JobFailed, limit)
}

// ListUpcoming returns the soonest scheduled jobs.
func (s *Store) ListUpcoming(ctx context.Context, limit int) ([]types.BatchProcessingJob, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM batch_jobs WHERE status = ? ORDER BY scheduled_for ASC LIMIT ?`,
		types.JobScheduled, limit)
}

func (s *Store) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM batch_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}

// AvgCompletionMs is the mean latency over jobs carrying both timestamps.
func (s *Store) AvgCompletionMs(ctx context.Context) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG((julianday(completed_at) - julianday(started_at)) * 86400000.0)
		 FROM batch_jobs WHERE started_at IS NOT NULL AND completed_at IS NOT NULL`).Scan(&avg)
	if err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

func (s *Store) InsertWeeklySchedule(ctx context.Context, ws types.WeeklySchedule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weekly_schedules (id, program_id, manager_id, file_path, day_of_week, time_of_day, next_run_at, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ws.ID, ws.ProgramID, ws.ManagerID, ws.FilePath, ws.DayOfWeek, ws.TimeOfDay,
		ws.NextRunAt, ws.Enabled, ws.CreatedAt,
	)
	return err
}

// ListDueSchedules returns enabled schedules whose next run has passed.
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]types.WeeklySchedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, program_id, manager_id, file_path, day_of_week, time_of_day, next_run_at, enabled, created_at
		 FROM weekly_schedules WHERE enabled = 1 AND next_run_at <= ? ORDER BY next_run_at ASC`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.WeeklySchedule
	for rows.Next() {
		var ws types.WeeklySchedule
		if err := rows.Scan(&ws.ID, &ws.ProgramID, &ws.ManagerID, &ws.FilePath, &ws.DayOfWeek,
			&ws.TimeOfDay, &ws.NextRunAt, &ws.Enabled, &ws.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (s *Store) UpdateScheduleNextRun(ctx context.Context, id string, next time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE weekly_schedules SET next_run_at = ? WHERE id = ?`, next, id)
	return err
}
