package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorecard-ingest-go/internal/logger"
	"scorecard-ingest-go/internal/pipeline"
	"scorecard-ingest-go/internal/store"
	"scorecard-ingest-go/internal/transformer"
	"scorecard-ingest-go/internal/types"
)

type fakeRunner struct {
	result pipeline.Result
	calls  int
}

func (f *fakeRunner) Run(_ context.Context, _ pipeline.RunInput) pipeline.Result {
	f.calls++
	return f.result
}

type failNotifier struct {
	calls int
}

func (n *failNotifier) JobFinished(types.BatchProcessingJob) error {
	n.calls++
	return errors.New("webhook down")
}

func successResult() pipeline.Result {
	return pipeline.Result{
		Success: true,
		BatchID: "batch-1",
		Summary: transformer.Summary{TotalInput: 3, Matched: 2, DataQualityScore: 88},
	}
}

func parseFailure() pipeline.Result {
	return pipeline.Result{
		Success:     false,
		FailedPhase: pipeline.PhaseParse,
		Errors: []types.IngestionError{
			{Type: types.ErrTypeParseError, Phase: pipeline.PhaseParse, Message: "file unreadable"},
		},
	}
}

// mondayMorning is a fixed Monday 09:00 UTC used as the test clock origin.
var mondayMorning = time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, runner PipelineRunner, notifier *failNotifier) (*Scheduler, *store.Store, *time.Time) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := mondayMorning
	var s *Scheduler
	if notifier != nil {
		s = New(logger.New(), st, runner, notifier, nil)
	} else {
		s = New(logger.New(), st, runner, nil, nil)
	}
	s.now = func() time.Time { return clock }
	return s, st, &clock
}

func TestScheduleJobNormalizesMaxRetries(t *testing.T) {
	s, st, clock := newTestScheduler(t, &fakeRunner{result: successResult()}, nil)
	ctx := context.Background()

	cfg := types.DefaultProcessingConfig()
	cfg.MaxRetries = 0
	id, err := s.ScheduleJob(ctx, "bdr-coaching", "mgr-1", "/data/weekly.xlsx", *clock, cfg)
	require.NoError(t, err)

	job, err := st.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, job.Config.MaxRetries)
	assert.Equal(t, types.JobScheduled, job.Status)
}

func TestProcessJobSuccess(t *testing.T) {
	runner := &fakeRunner{result: successResult()}
	notifier := &failNotifier{}
	s, _, clock := newTestScheduler(t, runner, notifier)
	ctx := context.Background()

	id, err := s.ScheduleJob(ctx, "bdr-coaching", "mgr-1", "/data/weekly.xlsx", *clock, types.DefaultProcessingConfig())
	require.NoError(t, err)

	job, err := s.ProcessJob(ctx, id)
	require.NoError(t, err, "a failing notifier never fails the job")
	assert.Equal(t, types.JobCompleted, job.Status)
	require.NotNil(t, job.Results)
	assert.Equal(t, "batch-1", job.Results.BatchID)
	assert.Equal(t, 88.0, job.Results.DataQuality)
	assert.Equal(t, 1, notifier.calls)
	require.NotNil(t, job.CompletedAt)

	// A finished job cannot be processed again.
	_, err = s.ProcessJob(ctx, id)
	assert.ErrorIs(t, err, ErrJobNotProcessable)
	assert.Equal(t, 1, runner.calls)
}

func TestRetryBackoffDoublesThenFailsTerminally(t *testing.T) {
	runner := &fakeRunner{result: parseFailure()}
	notifier := &failNotifier{}
	s, st, clock := newTestScheduler(t, runner, notifier)
	ctx := context.Background()

	id, err := s.ScheduleJob(ctx, "bdr-coaching", "mgr-1", "/data/missing.xlsx", *clock, types.DefaultProcessingConfig())
	require.NoError(t, err)

	wantDelays := []time.Duration{2 * time.Minute, 4 * time.Minute, 8 * time.Minute}
	for attempt, wantDelay := range wantDelays {
		job, err := s.ProcessJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, types.JobScheduled, job.Status, "attempt %d reschedules", attempt+1)
		assert.Equal(t, attempt+1, job.RetryCount)
		assert.Equal(t, clock.Add(wantDelay), job.ScheduledFor, "attempt %d delay", attempt+1)
		assert.Nil(t, job.StartedAt, "retry resets the processing timestamps")
		assert.Equal(t, "file unreadable", job.LastError)
		assert.Equal(t, 0, notifier.calls, "no notification until the terminal state")

		*clock = job.ScheduledFor
	}

	// Fourth attempt exhausts max_retries = 3.
	job, err := s.ProcessJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, job.Status)
	assert.Equal(t, 3, job.RetryCount)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.Results)
	assert.Equal(t, pipeline.PhaseParse, job.Results.FailedPhase)
	assert.Equal(t, "file unreadable", job.Results.FirstErrMessage)
	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, 4, runner.calls)

	stored, err := st.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, stored.Status)
}

func TestRetryDisabledFailsImmediately(t *testing.T) {
	runner := &fakeRunner{result: parseFailure()}
	s, _, clock := newTestScheduler(t, runner, nil)
	ctx := context.Background()

	cfg := types.DefaultProcessingConfig()
	cfg.RetryOnFailure = false
	id, err := s.ScheduleJob(ctx, "bdr-coaching", "mgr-1", "/data/missing.xlsx", *clock, cfg)
	require.NoError(t, err)

	job, err := s.ProcessJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, job.Status)
	assert.Equal(t, 0, job.RetryCount)
}

func TestCancelJobOwnership(t *testing.T) {
	s, st, clock := newTestScheduler(t, &fakeRunner{result: successResult()}, nil)
	ctx := context.Background()

	id, err := s.ScheduleJob(ctx, "bdr-coaching", "mgr-1", "/data/weekly.xlsx", clock.Add(time.Hour), types.DefaultProcessingConfig())
	require.NoError(t, err)

	err = s.CancelJob(ctx, id, "intruder")
	assert.ErrorIs(t, err, ErrNotJobOwner)

	job, err := st.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.JobScheduled, job.Status, "a rejected cancellation changes nothing")

	require.NoError(t, s.CancelJob(ctx, id, "mgr-1"))
	job, err = st.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, job.Status)
	require.NotNil(t, job.CompletedAt)

	err = s.CancelJob(ctx, id, "mgr-1")
	assert.ErrorIs(t, err, ErrJobNotCancellable)

	err = s.CancelJob(ctx, "missing", "mgr-1")
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestSetupWeeklyScheduleNextRun(t *testing.T) {
	s, _, clock := newTestScheduler(t, &fakeRunner{}, nil)
	ctx := context.Background()

	// The clock sits at Monday 09:00; the same slot rolls a full week out.
	ws, err := s.SetupWeeklySchedule(ctx, "bdr-coaching", "mgr-1", "/data/weekly.xlsx", 1, "09:00")
	require.NoError(t, err)
	assert.Equal(t, clock.AddDate(0, 0, 7), ws.NextRunAt)

	ws, err = s.SetupWeeklySchedule(ctx, "bdr-coaching", "mgr-1", "/data/weekly.xlsx", 1, "09:01")
	require.NoError(t, err)
	assert.Equal(t, clock.Add(time.Minute), ws.NextRunAt, "later today stays today")

	ws, err = s.SetupWeeklySchedule(ctx, "bdr-coaching", "mgr-1", "/data/weekly.xlsx", 2, "10:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 4, 10, 30, 0, 0, time.UTC), ws.NextRunAt)
	assert.True(t, ws.Enabled)
}

func TestSetupWeeklyScheduleRejectsBadInput(t *testing.T) {
	s, _, _ := newTestScheduler(t, &fakeRunner{}, nil)
	ctx := context.Background()

	_, err := s.SetupWeeklySchedule(ctx, "p", "m", "/data/a.xlsx", 7, "09:00")
	assert.Error(t, err)
	_, err = s.SetupWeeklySchedule(ctx, "p", "m", "/data/a.xlsx", 1, "9am")
	assert.Error(t, err)
	_, err = s.SetupWeeklySchedule(ctx, "p", "m", "/data/a.xlsx", 1, "25:00")
	assert.Error(t, err)
}

func TestProcessDueJobsSpawnsFromSchedules(t *testing.T) {
	runner := &fakeRunner{result: successResult()}
	s, st, clock := newTestScheduler(t, runner, nil)
	ctx := context.Background()

	ws := types.WeeklySchedule{
		ID: "ws-1", ProgramID: "bdr-coaching", ManagerID: "mgr-1", FilePath: "/data/weekly.xlsx",
		DayOfWeek: 1, TimeOfDay: "09:00", NextRunAt: clock.Add(-time.Minute), Enabled: true,
		CreatedAt: clock.AddDate(0, 0, -7),
	}
	require.NoError(t, st.InsertWeeklySchedule(ctx, ws))

	processed, err := s.ProcessDueJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 1, runner.calls)

	counts, err := st.CountJobsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.JobCompleted])

	due, err := st.ListDueSchedules(ctx, *clock)
	require.NoError(t, err)
	assert.Empty(t, due, "the schedule rolled forward to next week")
}

func TestHealthCheckVerdicts(t *testing.T) {
	ctx := context.Background()

	insertJobWithStatus := func(t *testing.T, st *store.Store, clock time.Time, status string) string {
		t.Helper()
		job := types.BatchProcessingJob{
			ID:        uuid.New().String(),
			ProgramID: "p", ManagerID: "m", FilePath: "/data/a.xlsx",
			Status: status, ScheduledFor: clock, Config: types.DefaultProcessingConfig(),
			CreatedAt: clock,
		}
		require.NoError(t, st.InsertJob(ctx, job))
		return job.ID
	}

	t.Run("healthy", func(t *testing.T) {
		s, st, clock := newTestScheduler(t, &fakeRunner{}, nil)
		insertJobWithStatus(t, st, *clock, types.JobCompleted)
		insertJobWithStatus(t, st, *clock, types.JobCompleted)

		health, err := s.HealthCheck(ctx)
		require.NoError(t, err)
		assert.Equal(t, HealthHealthy, health.Status)
		assert.Zero(t, health.FailureRate)
	})

	t.Run("degraded on failures", func(t *testing.T) {
		s, st, clock := newTestScheduler(t, &fakeRunner{}, nil)
		insertJobWithStatus(t, st, *clock, types.JobFailed)
		insertJobWithStatus(t, st, *clock, types.JobCompleted)
		insertJobWithStatus(t, st, *clock, types.JobCompleted)
		insertJobWithStatus(t, st, *clock, types.JobCompleted)

		health, err := s.HealthCheck(ctx)
		require.NoError(t, err)
		assert.Equal(t, HealthDegraded, health.Status)
		assert.InDelta(t, 0.25, health.FailureRate, 1e-9)
		assert.NotEmpty(t, health.Issues)
	})

	t.Run("critical above half failed", func(t *testing.T) {
		s, st, clock := newTestScheduler(t, &fakeRunner{}, nil)
		insertJobWithStatus(t, st, *clock, types.JobFailed)
		insertJobWithStatus(t, st, *clock, types.JobFailed)
		insertJobWithStatus(t, st, *clock, types.JobCompleted)

		health, err := s.HealthCheck(ctx)
		require.NoError(t, err)
		assert.Equal(t, HealthCritical, health.Status)
	})

	t.Run("stuck processing job", func(t *testing.T) {
		s, st, clock := newTestScheduler(t, &fakeRunner{}, nil)
		id := insertJobWithStatus(t, st, *clock, types.JobProcessing)

		job, err := st.GetJob(ctx, id)
		require.NoError(t, err)
		started := clock.Add(-40 * time.Minute)
		job.StartedAt = &started
		require.NoError(t, st.UpdateJob(ctx, job))

		health, err := s.HealthCheck(ctx)
		require.NoError(t, err)
		assert.Equal(t, HealthDegraded, health.Status)
		assert.Contains(t, health.StuckJobs, id)
	})
}

func TestGetMonitoringMetrics(t *testing.T) {
	runner := &fakeRunner{result: successResult()}
	s, _, clock := newTestScheduler(t, runner, nil)
	ctx := context.Background()

	id, err := s.ScheduleJob(ctx, "bdr-coaching", "mgr-1", "/data/weekly.xlsx", *clock, types.DefaultProcessingConfig())
	require.NoError(t, err)
	_, err = s.ProcessJob(ctx, id)
	require.NoError(t, err)
	_, err = s.ScheduleJob(ctx, "bdr-coaching", "mgr-1", "/data/next.xlsx", clock.Add(time.Hour), types.DefaultProcessingConfig())
	require.NoError(t, err)

	metrics, err := s.GetMonitoringMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.TotalJobs)
	assert.Equal(t, 1, metrics.ByStatus[types.JobCompleted])
	assert.Equal(t, 1, metrics.ByStatus[types.JobScheduled])
	assert.Equal(t, 1.0, metrics.SuccessRate)
	assert.Len(t, metrics.Recent, 1)
	assert.Len(t, metrics.Upcoming, 1)
	assert.Equal(t, HealthHealthy, metrics.Health.Status)
}
