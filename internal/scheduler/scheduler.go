// Package scheduler owns batch job state: scheduling, execution, retry with
// exponential backoff, cancellation and monitoring.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"scorecard-ingest-go/internal/logger"
	"scorecard-ingest-go/internal/notify"
	"scorecard-ingest-go/internal/pipeline"
	"scorecard-ingest-go/internal/store"
	"scorecard-ingest-go/internal/types"
)

var (
	ErrNotJobOwner       = errors.New("requester does not own this job")
	ErrJobNotCancellable = errors.New("only scheduled jobs can be cancelled")
	ErrJobNotProcessable = errors.New("job is not in the scheduled state")
)

// defaultMaxRetries applies when a job config leaves max_retries unset.
const defaultMaxRetries = 3

// stuckAfter marks a processing job as stuck for the health verdict.
const stuckAfter = 30 * time.Minute

// PipelineRunner is the pure ingestion function the scheduler re-invokes.
// Retry state lives here, never inside the pipeline.
type PipelineRunner interface {
	Run(ctx context.Context, in pipeline.RunInput) pipeline.Result
}

// ProgramResolver maps a program id to its definition.
type ProgramResolver interface {
	Resolve(ctx context.Context, programID string) (types.ProgramDefinition, error)
}

// DefaultPrograms resolves every program to the standard BDR criterion set
// with equal weights.
type DefaultPrograms struct{}

func (DefaultPrograms) Resolve(_ context.Context, programID string) (types.ProgramDefinition, error) {
	def := types.ProgramDefinition{ID: programID, Name: programID}
	for _, key := range types.CriterionKeys {
		def.Criteria = append(def.Criteria, types.WeightedCriterion{Key: key, Label: key, Weight: 1})
	}
	return def, nil
}

type Scheduler struct {
	store    *store.Store
	runner   PipelineRunner
	notifier notify.Notifier
	programs ProgramResolver
	log      *logrus.Entry
	now      func() time.Time
}

func New(log *logger.Logger, st *store.Store, runner PipelineRunner, notifier notify.Notifier, programs ProgramResolver) *Scheduler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if programs == nil {
		programs = DefaultPrograms{}
	}
	return &Scheduler{
		store:    st,
		runner:   runner,
		notifier: notifier,
		programs: programs,
		log:      log.WithComponent("scheduler"),
		now:      time.Now,
	}
}

// ScheduleJob persists a new scheduled job and returns its id.
func (s *Scheduler) ScheduleJob(ctx context.Context, programID, managerID, filePath string, when time.Time, cfg types.ProcessingConfig) (string, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	job := types.BatchProcessingJob{
		ID:           uuid.New().String(),
		ProgramID:    programID,
		ManagerID:    managerID,
		FilePath:     filePath,
		Status:       types.JobScheduled,
		ScheduledFor: when.UTC(),
		Config:       cfg,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.InsertJob(ctx, job); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"job_id":        job.ID,
		"program_id":    programID,
		"scheduled_for": job.ScheduledFor,
	}).Info("job scheduled")
	return job.ID, nil
}

// ProcessJob runs one job synchronously. Callers must not invoke it
// concurrently for the same job id.
func (s *Scheduler) ProcessJob(ctx context.Context, jobID string) (types.BatchProcessingJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return job, err
	}
	if job.Status != types.JobScheduled {
		return job, fmt.Errorf("%w: status=%s", ErrJobNotProcessable, job.Status)
	}

	started := s.now().UTC()
	job.Status = types.JobProcessing
	job.StartedAt = &started
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return job, fmt.Errorf("mark processing: %w", err)
	}

	log := s.log.WithField("job_id", job.ID).WithField("attempt", job.RetryCount+1)
	log.Info("processing job")

	program, err := s.programs.Resolve(ctx, job.ProgramID)
	if err != nil {
		return s.handleFailure(ctx, job, fmt.Sprintf("resolve program: %v", err), "")
	}

	result := s.runner.Run(ctx, pipeline.RunInput{
		FilePath:  job.FilePath,
		Program:   program,
		ManagerID: job.ManagerID,
		Config:    job.Config,
	})

	if !result.Success {
		msg := "pipeline failed"
		if len(result.Errors) > 0 {
			msg = result.Errors[0].Message
		}
		return s.handleFailure(ctx, job, msg, result.FailedPhase)
	}

	completed := s.now().UTC()
	job.Status = types.JobCompleted
	job.CompletedAt = &completed
	job.LastError = ""
	job.Results = &types.JobResults{
		BatchID:        result.BatchID,
		TotalRecords:   result.Summary.TotalInput,
		MatchedRecords: result.Summary.Matched,
		DatasetRows:    len(result.DatasetRows),
		DataQuality:    result.Summary.DataQualityScore,
		WarningCount:   len(result.Warnings),
		ProcessingMs:   completed.Sub(started).Milliseconds(),
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return job, fmt.Errorf("mark completed: %w", err)
	}
	log.WithField("batch_id", result.BatchID).Info("job completed")

	// Notification failure never fails the job.
	if err := s.notifier.JobFinished(job); err != nil {
		log.WithError(err).Warn("completion notification failed")
	}
	return job, nil
}

// handleFailure either reschedules the job with doubled delay or fails it
// terminally once retries are exhausted.
func (s *Scheduler) handleFailure(ctx context.Context, job types.BatchProcessingJob, msg, failedPhase string) (types.BatchProcessingJob, error) {
	now := s.now().UTC()
	job.LastError = msg

	if job.Config.RetryOnFailure && job.RetryCount < job.Config.MaxRetries {
		job.RetryCount++
		delay := time.Duration(1<<job.RetryCount) * time.Minute
		job.Status = types.JobScheduled
		job.ScheduledFor = now.Add(delay)
		job.StartedAt = nil
		job.CompletedAt = nil
		if err := s.store.UpdateJob(ctx, job); err != nil {
			return job, fmt.Errorf("reschedule job: %w", err)
		}
		s.log.WithFields(logrus.Fields{
			"job_id":      job.ID,
			"retry_count": job.RetryCount,
			"delay_min":   int(delay.Minutes()),
			"error":       msg,
		}).Warn("job failed, retry scheduled")
		return job, nil
	}

	job.Status = types.JobFailed
	job.CompletedAt = &now
	job.Results = &types.JobResults{
		ErrorCount:      1,
		FailedPhase:     failedPhase,
		FirstErrMessage: msg,
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return job, fmt.Errorf("mark failed: %w", err)
	}
	s.log.WithField("job_id", job.ID).WithField("error", msg).Error("job failed terminally")

	if err := s.notifier.JobFinished(job); err != nil {
		s.log.WithField("job_id", job.ID).WithError(err).Warn("failure notification failed")
	}
	return job, nil
}

// CancelJob cancels a not-yet-started job owned by the requester.
func (s *Scheduler) CancelJob(ctx context.Context, jobID, requesterID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.ManagerID != requesterID {
		return ErrNotJobOwner
	}
	if job.Status != types.JobScheduled {
		return fmt.Errorf("%w: status=%s", ErrJobNotCancellable, job.Status)
	}

	now := s.now().UTC()
	job.Status = types.JobCancelled
	job.CompletedAt = &now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	s.log.WithField("job_id", jobID).WithField("requester", requesterID).Info("job cancelled")
	return nil
}
