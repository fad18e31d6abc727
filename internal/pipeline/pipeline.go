// Package pipeline sequences parse, validate, match, transform and store into
// one deterministic ingestion run.
package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"scorecard-ingest-go/internal/logger"
	"scorecard-ingest-go/internal/matcher"
	"scorecard-ingest-go/internal/scanner"
	"scorecard-ingest-go/internal/transformer"
	"scorecard-ingest-go/internal/types"
	"scorecard-ingest-go/internal/validator"
)

// Phase names tag every error with where it happened.
const (
	PhaseParse     = "parse"
	PhaseValidate  = "validate"
	PhaseFetch     = "fetch_candidate_recordings"
	PhaseMatch     = "match"
	PhaseTransform = "transform"
	PhaseStore     = "store"
)

// Store is the durable-store surface the pipeline needs; only the fetch and
// store phases touch it.
type Store interface {
	ListCallRecordings(ctx context.Context, ownerID string) ([]types.CallRecording, error)
	SaveIngestion(ctx context.Context, batch types.TrainingBatchRow,
		dataset []types.TrainingDatasetRow, evaluations []types.ScorecardEvaluationRow,
		classifications []types.CallClassificationRow) error
}

// RunInput is everything one run needs; given identical inputs the run is
// deterministic.
type RunInput struct {
	FilePath  string
	Program   types.ProgramDefinition
	ManagerID string
	Config    types.ProcessingConfig
}

// Result is always structured: a failure carries empty output rows and a
// non-empty phase-tagged error list, never a partial success.
type Result struct {
	Success            bool                           `json:"success"`
	FailedPhase        string                         `json:"failed_phase,omitempty"`
	BatchID            string                         `json:"batch_id,omitempty"`
	DatasetRows        []types.TrainingDatasetRow     `json:"dataset_rows,omitempty"`
	EvaluationRows     []types.ScorecardEvaluationRow `json:"evaluation_rows,omitempty"`
	ClassificationRows []types.CallClassificationRow  `json:"classification_rows,omitempty"`
	Errors             []types.IngestionError         `json:"errors,omitempty"`
	Warnings           []types.IngestionWarning       `json:"warnings,omitempty"`
	Summary            transformer.Summary            `json:"summary"`
}

type Orchestrator struct {
	scanner     *scanner.Scanner
	validator   validator.RecordValidator
	matcher     matcher.CallMatcher
	transformer *transformer.Transformer
	store       Store
	log         *logrus.Entry
}

func New(log *logger.Logger, sc *scanner.Scanner, val validator.RecordValidator,
	mat matcher.CallMatcher, tr *transformer.Transformer, st Store) *Orchestrator {
	return &Orchestrator{
		scanner:     sc,
		validator:   val,
		matcher:     mat,
		transformer: tr,
		store:       st,
		log:         log.WithComponent("pipeline"),
	}
}

func failure(phase string, warnings []types.IngestionWarning, errs ...types.IngestionError) Result {
	for i := range errs {
		if errs[i].Phase == "" {
			errs[i].Phase = phase
		}
	}
	return Result{FailedPhase: phase, Errors: errs, Warnings: warnings}
}

// Run executes the pipeline. Any phase failure short-circuits; retries belong
// to the scheduler, not here.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) Result {
	log := o.log.WithFields(logrus.Fields{
		"file":       in.FilePath,
		"program_id": in.Program.ID,
		"manager_id": in.ManagerID,
	})
	var warnings []types.IngestionWarning

	// Phase 1: parse
	scanned := o.scanner.ScanFile(in.FilePath)
	warnings = append(warnings, scanned.Warnings...)
	if len(scanned.Errors) > 0 && len(scanned.Records) == 0 {
		log.WithField("phase", PhaseParse).Warn("parse failed")
		return failure(PhaseParse, warnings, scanned.Errors...)
	}
	if len(scanned.Records) == 0 {
		return failure(PhaseParse, warnings, types.IngestionError{
			Type:    types.ErrTypeParseError,
			Message: fmt.Sprintf("no records extracted from %s (format %s)", in.FilePath, scanned.Result.DetectedFormat),
		})
	}
	// Row-level scan errors on a sheet that still produced records are
	// demoted to warnings so the batch proceeds.
	for _, e := range scanned.Errors {
		warnings = append(warnings, types.IngestionWarning{
			Type:    e.Type,
			Message: e.Message,
			Row:     e.Row,
			Impact:  types.ImpactMedium,
		})
	}

	// Phase 2: validate
	validated := o.validator.Validate(scanned.Records, in.Program)
	for _, w := range validated.Warnings {
		warnings = append(warnings, types.IngestionWarning{
			Type:             types.ErrTypeValidation,
			Message:          w.Message,
			RecordIdentifier: w.RecordIdentifier,
			Impact:           w.Impact,
		})
	}
	if !validated.IsValid || len(validated.ValidRecords) == 0 {
		errs := make([]types.IngestionError, 0, len(validated.Errors))
		for _, e := range validated.Errors {
			errs = append(errs, types.IngestionError{
				Type:             types.ErrTypeValidation,
				Message:          e.Message,
				RecordIdentifier: e.RecordIdentifier,
			})
		}
		if len(errs) == 0 {
			errs = append(errs, types.IngestionError{
				Type:    types.ErrTypeValidation,
				Message: "no records passed validation",
			})
		}
		log.WithField("phase", PhaseValidate).Warn("validation failed")
		return failure(PhaseValidate, warnings, errs...)
	}

	// Phase 3: fetch candidate recordings
	candidates, err := o.store.ListCallRecordings(ctx, in.ManagerID)
	if err != nil {
		log.WithField("phase", PhaseFetch).WithError(err).Error("candidate fetch failed")
		return failure(PhaseFetch, warnings, types.IngestionError{
			Type:    types.ErrTypeDatabase,
			Message: fmt.Sprintf("fetch candidate recordings: %v", err),
		})
	}

	// Phase 4: match
	matched := o.matcher.Match(validated.ValidRecords, candidates, in.ManagerID)
	matchesByID := make(map[string]types.CallMatchResult, len(matched.Matches))
	for _, m := range matched.Matches {
		matchesByID[m.Entry.CallIdentifier] = m
	}

	// Phase 5: transform
	transformed := o.transformer.Transform(transformer.Input{
		Records:        validated.ValidRecords,
		Matches:        matchesByID,
		Program:        in.Program,
		ManagerID:      in.ManagerID,
		SourceFilename: in.FilePath,
		Config:         in.Config,
	})
	warnings = append(warnings, transformed.Warnings...)
	if !transformed.Success {
		errs := transformed.Errors
		if len(errs) == 0 {
			errs = []types.IngestionError{{Type: types.ErrTypeBusinessRule, Message: "transform produced no result"}}
		}
		log.WithField("phase", PhaseTransform).Warn("transform failed")
		return failure(PhaseTransform, warnings, errs...)
	}

	// Phase 6: store
	if err := o.store.SaveIngestion(ctx, transformed.Batch, transformed.DatasetRows,
		transformed.EvaluationRows, transformed.ClassificationRows); err != nil {
		log.WithField("phase", PhaseStore).WithError(err).Error("persist failed")
		return failure(PhaseStore, warnings, types.IngestionError{
			Type:    types.ErrTypeDatabase,
			Message: fmt.Sprintf("persist ingestion: %v", err),
		})
	}

	log.WithFields(logrus.Fields{
		"batch_id":     transformed.Batch.ID,
		"dataset_rows": len(transformed.DatasetRows),
		"matched":      transformed.Summary.Matched,
		"unmatched":    transformed.Summary.Unmatched,
	}).Info("ingestion succeeded")

	return Result{
		Success:            true,
		BatchID:            transformed.Batch.ID,
		DatasetRows:        transformed.DatasetRows,
		EvaluationRows:     transformed.EvaluationRows,
		ClassificationRows: transformed.ClassificationRows,
		Warnings:           warnings,
		Summary:            transformed.Summary,
	}
}
