// Package transformer converts validated, matched scorecard records into
// persisted training rows.
package transformer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"scorecard-ingest-go/internal/logger"
	"scorecard-ingest-go/internal/types"
)

// Summary is the aggregate outcome of one transform run.
type Summary struct {
	TotalInput           int     `json:"total_input"`
	SuccessfulTransforms int     `json:"successful_transforms"`
	Matched              int     `json:"matched"`
	Unmatched            int     `json:"unmatched"`
	DataQualityScore     float64 `json:"data_quality_score"`
	ElapsedMs            int64   `json:"elapsed_ms"`
}

// Result is everything a transform run produces.
type Result struct {
	Batch              types.TrainingBatchRow         `json:"batch"`
	DatasetRows        []types.TrainingDatasetRow     `json:"dataset_rows"`
	EvaluationRows     []types.ScorecardEvaluationRow `json:"evaluation_rows"`
	ClassificationRows []types.CallClassificationRow  `json:"classification_rows"`
	Success            bool                           `json:"success"`
	Errors             []types.IngestionError         `json:"errors"`
	Warnings           []types.IngestionWarning       `json:"warnings"`
	Summary            Summary                        `json:"summary"`
}

// Input carries one transform request.
type Input struct {
	Records        []types.ParsedScoreRecord
	Matches        map[string]types.CallMatchResult // keyed by call identifier
	Program        types.ProgramDefinition
	ManagerID      string
	SourceFilename string
	Config         types.ProcessingConfig
}

type Transformer struct {
	log *logrus.Entry
	now func() time.Time
}

func New(log *logger.Logger) *Transformer {
	return &Transformer{log: log.WithComponent("transformer"), now: time.Now}
}

// Transform applies the status cascade and weight rules to every record.
// Per-record failures are reported without aborting the rest.
func (t *Transformer) Transform(in Input) Result {
	start := t.now()
	batchID := uuid.New().String()

	res := Result{
		Batch: types.TrainingBatchRow{
			ID:             batchID,
			ProgramID:      in.Program.ID,
			ManagerID:      in.ManagerID,
			SourceFilename: in.SourceFilename,
			Status:         "completed",
			TotalRecords:   len(in.Records),
			CreatedAt:      start,
		},
	}

	var confidences, completions []float64

	for _, rec := range in.Records {
		conf, completeness, err := t.transformRecord(&res, rec, in)
		if err != nil {
			res.Errors = append(res.Errors, types.IngestionError{
				Type:             types.ErrTypeBusinessRule,
				Message:          err.Error(),
				RecordIdentifier: rec.CallIdentifier,
			})
			continue
		}
		res.Summary.SuccessfulTransforms++
		confidences = append(confidences, conf)
		completions = append(completions, completeness)
	}

	if in.Config.ValidateIntegrity {
		t.checkIntegrity(&res)
	}

	res.Summary.TotalInput = len(in.Records)
	res.Summary.Matched = len(res.DatasetRows)
	res.Summary.Unmatched = res.Summary.SuccessfulTransforms - res.Summary.Matched
	res.Batch.MatchedRecords = res.Summary.Matched
	res.Summary.DataQualityScore = dataQualityScore(res.Errors, res.Warnings, confidences, completions, in.Config.GenerateMetrics)
	res.Summary.ElapsedMs = t.now().Sub(start).Milliseconds()
	res.Success = len(res.Errors) == 0
	if !res.Success {
		res.Batch.Status = "completed_with_errors"
	}

	t.log.WithFields(logrus.Fields{
		"batch_id":     batchID,
		"total":        res.Summary.TotalInput,
		"matched":      res.Summary.Matched,
		"errors":       len(res.Errors),
		"data_quality": res.Summary.DataQualityScore,
	}).Info("transform complete")
	return res
}

func (t *Transformer) transformRecord(res *Result, rec types.ParsedScoreRecord, in Input) (confidence, completeness float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transform %s: %v", rec.CallIdentifier, r)
		}
	}()

	match, hasMatch := in.Matches[rec.CallIdentifier]
	var recording *types.CallRecording
	if hasMatch {
		recording = match.MatchedRecording
		confidence = match.Confidence
	}
	completeness = recordCompleteness(rec)
	overall := overallScore(rec, in.Program)
	now := t.now()

	eval := types.ScorecardEvaluationRow{
		ID:              uuid.New().String(),
		BatchID:         res.Batch.ID,
		CallIdentifier:  rec.CallIdentifier,
		AgentName:       rec.AgentName,
		Scores:          rec.Scores,
		OverallScore:    overall,
		MatchConfidence: confidence,
		CreatedAt:       now,
	}
	if recording != nil {
		eval.MatchedRecordingID = recording.ID
	}
	res.EvaluationRows = append(res.EvaluationRows, eval)

	if recording == nil {
		if in.Config.IncludeUnmatched {
			res.Warnings = append(res.Warnings, types.IngestionWarning{
				Message:          fmt.Sprintf("no matched recording for %q; evaluation recorded without dataset row", rec.CallIdentifier),
				RecordIdentifier: rec.CallIdentifier,
				Impact:           types.ImpactMedium,
			})
		}
		return confidence, completeness, nil
	}

	status := StatusForConfidence(confidence, in.Config.Thresholds)
	weight := TrainingWeight(in.Config.DefaultTrainingWeight, confidence, completeness)

	res.DatasetRows = append(res.DatasetRows, types.TrainingDatasetRow{
		ID:               uuid.New().String(),
		BatchID:          res.Batch.ID,
		RecordingID:      recording.ID,
		CallIdentifier:   rec.CallIdentifier,
		AgentName:        rec.AgentName,
		Scores:           rec.Scores,
		OverallScore:     overall,
		ValidationStatus: status,
		TrainingWeight:   weight,
		MatchConfidence:  confidence,
		CreatedAt:        now,
	})
	res.ClassificationRows = append(res.ClassificationRows, types.CallClassificationRow{
		ID:               uuid.New().String(),
		BatchID:          res.Batch.ID,
		RecordingID:      recording.ID,
		CallIdentifier:   rec.CallIdentifier,
		ProgramID:        in.Program.ID,
		ValidationStatus: status,
		Confidence:       confidence,
		CreatedAt:        now,
	})
	return confidence, completeness, nil
}

// StatusForConfidence is the validation-status cascade. Order matters and is
// fixed: auto-approve, requires-review, auto-reject, pending.
func StatusForConfidence(confidence float64, th types.StatusThresholds) string {
	switch {
	case confidence >= th.AutoApprove:
		return types.StatusValidated
	case confidence >= th.RequiresReview:
		return types.StatusNeedsReview
	case confidence <= th.AutoReject:
		return types.StatusRejected
	default:
		return types.StatusPending
	}
}

// TrainingWeight scales the configured default by match confidence and record
// completeness, clamped to [0,1].
func TrainingWeight(defaultWeight, confidence, completeness float64) float64 {
	w := defaultWeight * confidence * completeness
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// recordCompleteness rewards optional evidence on top of a 0.6 base.
func recordCompleteness(rec types.ParsedScoreRecord) float64 {
	c := 0.6
	if rec.CallDate != nil {
		c += 0.2
	}
	if rec.DurationMinutes != nil {
		c += 0.1
	}
	if len(rec.Notes) > 10 {
		c += 0.1
	}
	if c > 1 {
		c = 1
	}
	return c
}

// overallScore uses the sheet's overall score when present, otherwise a
// program-weighted mean of criterion scores.
func overallScore(rec types.ParsedScoreRecord, program types.ProgramDefinition) float64 {
	if rec.OverallScore != nil {
		return *rec.OverallScore
	}
	weightOf := map[string]float64{}
	for _, crit := range program.Criteria {
		weightOf[crit.Key] = crit.Weight
	}
	sum, total := 0.0, 0.0
	for key, score := range rec.Scores {
		w, ok := weightOf[key]
		if !ok || w <= 0 {
			w = 1
		}
		sum += score * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// checkIntegrity requires a classification row for every dataset row's
// recording; violations become missing_data errors.
func (t *Transformer) checkIntegrity(res *Result) {
	classified := map[string]bool{}
	for _, row := range res.ClassificationRows {
		classified[row.RecordingID] = true
	}
	for _, row := range res.DatasetRows {
		if !classified[row.RecordingID] {
			res.Errors = append(res.Errors, types.IngestionError{
				Type:             types.ErrTypeMissingData,
				Message:          fmt.Sprintf("dataset row %s has no classification for recording %s", row.ID, row.RecordingID),
				RecordIdentifier: row.CallIdentifier,
			})
		}
	}
}

// dataQualityScore starts at 100, deducts per error and per warning by
// impact, then adjusts by mean confidence and completeness when metrics are
// enabled. Clamped to [0,100].
func dataQualityScore(errs []types.IngestionError, warns []types.IngestionWarning, confidences, completions []float64, metrics bool) float64 {
	score := 100.0
	score -= 10 * float64(len(errs))
	for _, w := range warns {
		switch w.Impact {
		case types.ImpactHigh:
			score -= 5
		case types.ImpactMedium:
			score -= 3
		default:
			score -= 1
		}
	}
	if metrics && len(confidences) > 0 {
		score += (mean(confidences) - 0.5) * 20
		score += (mean(completions) - 0.7) * 30
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
