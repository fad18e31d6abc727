// Package validator checks parsed score records against the program rubric.
package validator

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"scorecard-ingest-go/internal/logger"
	"scorecard-ingest-go/internal/types"
)

// RecordValidator is the contract the pipeline consumes; implementations may
// live outside this service.
type RecordValidator interface {
	Validate(records []types.ParsedScoreRecord, program types.ProgramDefinition) types.ValidationOutcome
}

// RubricValidator is the default rubric-conformance implementation.
type RubricValidator struct {
	log *logrus.Entry
}

func New(log *logger.Logger) *RubricValidator {
	return &RubricValidator{log: log.WithComponent("validator")}
}

func (v *RubricValidator) Validate(records []types.ParsedScoreRecord, program types.ProgramDefinition) types.ValidationOutcome {
	outcome := types.ValidationOutcome{}
	seen := map[string]bool{}

	for _, rec := range records {
		issues := 0

		if rec.CallIdentifier == "" {
			outcome.Errors = append(outcome.Errors, types.ValidationIssue{
				Message:          "record has no call identifier",
				RecordIdentifier: rec.CallIdentifier,
			})
			issues++
		}

		for key, score := range rec.Scores {
			if score < types.MinScore || score > types.MaxScore {
				outcome.Errors = append(outcome.Errors, types.ValidationIssue{
					Message:          fmt.Sprintf("score %q=%.2f outside rubric range", key, score),
					RecordIdentifier: rec.CallIdentifier,
				})
				issues++
			}
		}

		for _, crit := range program.Criteria {
			if _, ok := rec.Scores[crit.Key]; !ok {
				outcome.Warnings = append(outcome.Warnings, types.ValidationIssue{
					Message:          fmt.Sprintf("criterion %q has no score", crit.Key),
					RecordIdentifier: rec.CallIdentifier,
					Impact:           types.ImpactLow,
				})
			}
		}

		if seen[rec.CallIdentifier] {
			outcome.Warnings = append(outcome.Warnings, types.ValidationIssue{
				Message:          "duplicate call identifier in batch",
				RecordIdentifier: rec.CallIdentifier,
				Impact:           types.ImpactMedium,
			})
		}
		seen[rec.CallIdentifier] = true

		if rec.OverallScore == nil && len(rec.Scores) == 0 {
			outcome.Errors = append(outcome.Errors, types.ValidationIssue{
				Message:          "record carries no scores at all",
				RecordIdentifier: rec.CallIdentifier,
			})
			issues++
		}

		if issues == 0 {
			outcome.ValidRecords = append(outcome.ValidRecords, rec)
		}
	}

	outcome.IsValid = len(outcome.Errors) == 0
	v.log.WithFields(logrus.Fields{
		"input":    len(records),
		"valid":    len(outcome.ValidRecords),
		"errors":   len(outcome.Errors),
		"warnings": len(outcome.Warnings),
	}).Debug("validation finished")
	return outcome
}
