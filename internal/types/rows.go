package types

import "time"

// Validation statuses produced by the transformer cascade.
const (
	StatusValidated   = "validated"
	StatusNeedsReview = "needs_review"
	StatusRejected    = "rejected"
	StatusPending     = "pending"
)

// TrainingBatchRow is the persisted batch header for one ingestion run.
type TrainingBatchRow struct {
	ID             string    `json:"id"`
	ProgramID      string    `json:"program_id"`
	ManagerID      string    `json:"manager_id"`
	SourceFilename string    `json:"source_filename"`
	Status         string    `json:"status"`
	TotalRecords   int       `json:"total_records"`
	MatchedRecords int       `json:"matched_records"`
	CreatedAt      time.Time `json:"created_at"`
}

// TrainingDatasetRow is one matched, weighted training example.
type TrainingDatasetRow struct {
	ID               string             `json:"id"`
	BatchID          string             `json:"batch_id"`
	RecordingID      string             `json:"recording_id"`
	CallIdentifier   string             `json:"call_identifier"`
	AgentName        string             `json:"agent_name"`
	Scores           map[string]float64 `json:"scores"`
	OverallScore     float64            `json:"overall_score"`
	ValidationStatus string             `json:"validation_status"`
	TrainingWeight   float64            `json:"training_weight"`
	MatchConfidence  float64            `json:"match_confidence"`
	CreatedAt        time.Time          `json:"created_at"`
}

// ScorecardEvaluationRow is the audit row written for every validated record,
// matched or not.
type ScorecardEvaluationRow struct {
	ID                 string             `json:"id"`
	BatchID            string             `json:"batch_id"`
	CallIdentifier     string             `json:"call_identifier"`
	AgentName          string             `json:"agent_name"`
	Scores             map[string]float64 `json:"scores"`
	OverallScore       float64            `json:"overall_score"`
	MatchConfidence    float64            `json:"match_confidence"`
	MatchedRecordingID string             `json:"matched_recording_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// CallClassificationRow labels a matched recording as scored material for the
// program, mirroring the dataset row's status.
type CallClassificationRow struct {
	ID               string    `json:"id"`
	BatchID          string    `json:"batch_id"`
	RecordingID      string    `json:"recording_id"`
	CallIdentifier   string    `json:"call_identifier"`
	ProgramID        string    `json:"program_id"`
	ValidationStatus string    `json:"validation_status"`
	Confidence       float64   `json:"confidence"`
	CreatedAt        time.Time `json:"created_at"`
}

// Job statuses.
const (
	JobScheduled  = "scheduled"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCancelled  = "cancelled"
)

// StatusThresholds drive the validation-status cascade, evaluated in order:
// auto-approve, requires-review, auto-reject, else pending.
type StatusThresholds struct {
	AutoApprove    float64 `json:"auto_approve" yaml:"auto_approve"`
	RequiresReview float64 `json:"requires_review" yaml:"requires_review"`
	AutoReject     float64 `json:"auto_reject" yaml:"auto_reject"`
}

// ProcessingConfig is the per-job transform configuration.
type ProcessingConfig struct {
	DefaultTrainingWeight float64          `json:"default_training_weight" yaml:"default_training_weight"`
	Thresholds            StatusThresholds `json:"thresholds" yaml:"thresholds"`
	IncludeUnmatched      bool             `json:"include_unmatched" yaml:"include_unmatched"`
	GenerateMetrics       bool             `json:"generate_metrics" yaml:"generate_metrics"`
	ValidateIntegrity     bool             `json:"validate_integrity" yaml:"validate_integrity"`
	RetryOnFailure        bool             `json:"retry_on_failure" yaml:"retry_on_failure"`
	MaxRetries            int              `json:"max_retries" yaml:"max_retries"`
}

// DefaultProcessingConfig mirrors the production defaults.
func DefaultProcessingConfig() ProcessingConfig {
	return ProcessingConfig{
		DefaultTrainingWeight: 1.0,
		Thresholds: StatusThresholds{
			AutoApprove:    0.9,
			RequiresReview: 0.6,
			AutoReject:     0.3,
		},
		IncludeUnmatched:  true,
		GenerateMetrics:   true,
		ValidateIntegrity: true,
		RetryOnFailure:    true,
		MaxRetries:        3,
	}
}

// JobResults is the compact outcome stored on a finished job.
type JobResults struct {
	BatchID         string  `json:"batch_id,omitempty"`
	TotalRecords    int     `json:"total_records"`
	MatchedRecords  int     `json:"matched_records"`
	DatasetRows     int     `json:"dataset_rows"`
	DataQuality     float64 `json:"data_quality"`
	ErrorCount      int     `json:"error_count"`
	WarningCount    int     `json:"warning_count"`
	ProcessingMs    int64   `json:"processing_ms"`
	FailedPhase     string  `json:"failed_phase,omitempty"`
	FirstErrMessage string  `json:"first_error,omitempty"`
}

// BatchProcessingJob is one scheduled run of the ingestion pipeline.
type BatchProcessingJob struct {
	ID             string           `json:"id"`
	ProgramID      string           `json:"program_id"`
	ManagerID      string           `json:"manager_id"`
	FilePath       string           `json:"file_path"`
	Status         string           `json:"status"`
	ScheduledFor   time.Time        `json:"scheduled_for"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	RetryCount     int              `json:"retry_count"`
	LastError      string           `json:"last_error,omitempty"`
	Config         ProcessingConfig `json:"processing_config"`
	Results        *JobResults      `json:"results,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// WeeklySchedule is a recurrence descriptor; next_run_at is recomputed after
// each spawned run.
type WeeklySchedule struct {
	ID        string    `json:"id"`
	ProgramID string    `json:"program_id"`
	ManagerID string    `json:"manager_id"`
	FilePath  string    `json:"file_path"`
	DayOfWeek int       `json:"day_of_week"` // 0 = Sunday
	TimeOfDay string    `json:"time_of_day"` // "HH:MM"
	NextRunAt time.Time `json:"next_run_at"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}
