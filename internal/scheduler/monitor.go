package scheduler

import (
	"context"
	"fmt"
	"time"

	"scorecard-ingest-go/internal/types"
)

// Health statuses.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthCritical = "critical"
)

// HealthReport is the verdict over the last 24 hours of jobs.
type HealthReport struct {
	Status      string   `json:"status"`
	FailureRate float64  `json:"failure_rate"`
	StuckJobs   []string `json:"stuck_jobs,omitempty"`
	Issues      []string `json:"issues,omitempty"`
}

// Metrics is the monitoring snapshot for the scheduler.
type Metrics struct {
	TotalJobs       int                        `json:"total_jobs"`
	ByStatus        map[string]int             `json:"by_status"`
	AvgCompletionMs float64                    `json:"avg_completion_ms"`
	SuccessRate     float64                    `json:"success_rate"`
	Recent          []types.BatchProcessingJob `json:"recent"`
	Upcoming        []types.BatchProcessingJob `json:"upcoming"`
	Health          HealthReport               `json:"health"`
}

const monitorViewLimit = 10

// GetMonitoringMetrics aggregates counts, latency, success rate, bounded
// recent/upcoming views and the health verdict.
func (s *Scheduler) GetMonitoringMetrics(ctx context.Context) (Metrics, error) {
	byStatus, err := s.store.CountJobsByStatus(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("count jobs: %w", err)
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}

	avgMs, err := s.store.AvgCompletionMs(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("avg completion: %w", err)
	}

	completed := byStatus[types.JobCompleted]
	failed := byStatus[types.JobFailed]
	successRate := 0.0
	if completed+failed > 0 {
		successRate = float64(completed) / float64(completed+failed)
	}

	recent, err := s.store.ListRecentFinished(ctx, monitorViewLimit)
	if err != nil {
		return Metrics{}, fmt.Errorf("recent jobs: %w", err)
	}
	upcoming, err := s.store.ListUpcoming(ctx, monitorViewLimit)
	if err != nil {
		return Metrics{}, fmt.Errorf("upcoming jobs: %w", err)
	}

	health, err := s.HealthCheck(ctx)
	if err != nil {
		return Metrics{}, err
	}

	return Metrics{
		TotalJobs:       total,
		ByStatus:        byStatus,
		AvgCompletionMs: avgMs,
		SuccessRate:     successRate,
		Recent:          recent,
		Upcoming:        upcoming,
		Health:          health,
	}, nil
}

// HealthCheck inspects jobs created in the last 24h: critical above 50%
// failures, degraded on any issue (failures or stuck jobs), healthy otherwise.
func (s *Scheduler) HealthCheck(ctx context.Context) (HealthReport, error) {
	now := s.now().UTC()
	jobs, err := s.store.ListJobsCreatedSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return HealthReport{}, fmt.Errorf("list recent jobs: %w", err)
	}

	report := HealthReport{Status: HealthHealthy}
	failed := 0
	for _, job := range jobs {
		if job.Status == types.JobFailed {
			failed++
		}
		if job.Status == types.JobProcessing && job.StartedAt != nil && now.Sub(*job.StartedAt) > stuckAfter {
			report.StuckJobs = append(report.StuckJobs, job.ID)
		}
	}
	if len(jobs) > 0 {
		report.FailureRate = float64(failed) / float64(len(jobs))
	}
	if failed > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("%d job(s) failed in the last 24h", failed))
	}
	for _, id := range report.StuckJobs {
		report.Issues = append(report.Issues, fmt.Sprintf("job %s processing for over %s", id, stuckAfter))
	}

	switch {
	case report.FailureRate > 0.5:
		report.Status = HealthCritical
	case len(report.Issues) > 0:
		report.Status = HealthDegraded
	}
	return report, nil
}
