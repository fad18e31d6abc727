// Package scanner infers the layout of a scorecard sheet and extracts score
// records without any manual column mapping.
package scanner

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"scorecard-ingest-go/internal/grid"
	"scorecard-ingest-go/internal/logger"
	"scorecard-ingest-go/internal/types"
)

// Options tune scanning behavior.
type Options struct {
	// RequireKnownColumns restores the strict legacy behavior: a tabular
	// sheet missing a criterion column is an error instead of a gap.
	RequireKnownColumns bool
}

// Output bundles the structural verdict with everything extracted from it.
type Output struct {
	Result   types.ScanResult         `json:"result"`
	Records  []types.ParsedScoreRecord `json:"records"`
	Errors   []types.IngestionError    `json:"errors"`
	Warnings []types.IngestionWarning  `json:"warnings"`
}

type Scanner struct {
	log  *logrus.Entry
	opts Options
}

func New(log *logger.Logger, opts Options) *Scanner {
	return &Scanner{log: log.WithComponent("scanner"), opts: opts}
}

// ScanFile validates, decodes and scans a scorecard file.
func (s *Scanner) ScanFile(path string) Output {
	if err := grid.ValidateFile(path); err != nil {
		s.log.WithField("path", path).WithError(err).Warn("file rejected")
		return Output{
			Result: types.ScanResult{DetectedFormat: FormatUnknown, FieldMappings: map[string]types.FieldDetection{}},
			Errors: []types.IngestionError{{Type: types.ErrTypeFileFormat, Message: err.Error()}},
		}
	}
	cells, err := grid.Load(path)
	if err != nil {
		s.log.WithField("path", path).WithError(err).Error("decode failed")
		return Output{
			Result: types.ScanResult{DetectedFormat: FormatUnknown, FieldMappings: map[string]types.FieldDetection{}},
			Errors: []types.IngestionError{{Type: types.ErrTypeParseError, Message: err.Error()}},
		}
	}
	return s.Scan(cells, path)
}

// Scan runs spatial analysis, format detection, field detection and record
// extraction over an in-memory grid.
func (s *Scanner) Scan(cells [][]string, filename string) Output {
	start := time.Now()

	spatial := analyzeSpatial(cells)
	format := detectFormat(cells, spatial)
	mappings := detectFields(cells, spatial)

	// The filename is a guaranteed identifier fallback; the fold keeps it
	// unless content detection was more certain. Tabular sheets keep their
	// per-row identifier column instead.
	if format != FormatTabular {
		filenameDet := types.FieldDetection{
			Row: -1, Col: -1,
			Value:      identifierFromFilename(filename),
			Confidence: 0.9,
			Method:     "filename",
		}
		if prev, ok := mappings[FieldCallIdentifier]; !ok || prev.Confidence < filenameDet.Confidence {
			if ok {
				filenameDet.Alternatives = append(filenameDet.Alternatives, prev)
			}
			mappings[FieldCallIdentifier] = filenameDet
		}
	}

	out := Output{
		Result: types.ScanResult{
			DetectedFormat:  format,
			FieldMappings:   mappings,
			SpatialAnalysis: spatial,
		},
	}

	switch format {
	case FormatTemplate:
		out.Records = append(out.Records, extractTemplateRecord(cells, filename))
	case FormatTabular:
		s.extractTabular(cells, filename, mappings, spatial, &out)
	default:
		s.extractFallback(cells, filename, mappings, &out)
	}

	out.Result.Confidence = aggregateConfidence(mappings, format, spatial)

	s.log.WithFields(logrus.Fields{
		"filename":    filename,
		"format":      format,
		"layout":      spatial.Layout,
		"records":     len(out.Records),
		"errors":      len(out.Errors),
		"confidence":  out.Result.Confidence,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("scan complete")

	return out
}

// aggregateConfidence blends field, format and spatial certainty.
func aggregateConfidence(mappings map[string]types.FieldDetection, format string, spatial types.SpatialAnalysis) float64 {
	meanField := 0.0
	if len(mappings) > 0 {
		sum := 0.0
		for _, det := range mappings {
			sum += det.Confidence
		}
		meanField = sum / float64(len(mappings))
	}
	formatConf := 0.2
	if format != FormatUnknown {
		formatConf = 0.8
	}
	conf := 0.5*meanField + 0.3*formatConf + 0.2*spatial.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}

func rowIsEmpty(row []string) bool {
	for _, cell := range row {
		if len(cell) > 0 && cell != " " {
			return false
		}
	}
	return true
}

// extractTabular walks data rows, reading each field by its detected column.
// A bad row is reported and skipped; it never drops the rest of the batch.
func (s *Scanner) extractTabular(cells [][]string, filename string, mappings map[string]types.FieldDetection, spatial types.SpatialAnalysis, out *Output) {
	if s.opts.RequireKnownColumns {
		for _, key := range types.CriterionKeys {
			if _, ok := mappings[key]; !ok {
				out.Errors = append(out.Errors, types.IngestionError{
					Type:    types.ErrTypeMissingColumns,
					Message: fmt.Sprintf("required column %q not found", key),
				})
			}
		}
	}

	colOf := func(field string) (int, bool) {
		det, ok := mappings[field]
		if !ok || det.Col < 0 {
			return 0, false
		}
		return det.Col, true
	}

	for r := spatial.DataStartRow; r < len(cells); r++ {
		if rowIsEmpty(cells[r]) {
			continue
		}
		record, err := s.parseTabularRow(cells, r, filename, colOf)
		if err != nil {
			out.Errors = append(out.Errors, types.IngestionError{
				Type:    types.ErrTypeInvalidData,
				Message: err.Error(),
				Row:     r + 1,
			})
			continue
		}
		out.Records = append(out.Records, record)
	}
}

func (s *Scanner) parseTabularRow(cells [][]string, r int, filename string, colOf func(string) (int, bool)) (record types.ParsedScoreRecord, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("row %d: %v", r+1, rec)
		}
	}()

	record = types.ParsedScoreRecord{
		Scores:         map[string]float64{},
		SourceFilename: filename,
		RowNumber:      r + 1,
	}

	if col, ok := colOf(FieldCallIdentifier); ok {
		record.CallIdentifier = cellAt(cells, r, col)
	}
	if record.CallIdentifier == "" {
		record.CallIdentifier = fmt.Sprintf("Call_%d", r+1)
	}

	for _, key := range types.CriterionKeys {
		if col, ok := colOf(key); ok {
			record.Scores[key] = clampScore(cellAt(cells, r, col))
		}
	}

	if col, ok := colOf(FieldOverallScore); ok {
		if v, parsed := parseScore(cellAt(cells, r, col)); parsed {
			record.OverallScore = &v
		}
	}
	if col, ok := colOf(FieldAgentName); ok {
		record.AgentName = cellAt(cells, r, col)
	}
	if col, ok := colOf(FieldNotes); ok {
		record.Notes = cellAt(cells, r, col)
	}
	if col, ok := colOf(FieldCallDate); ok {
		if t, ok := parseDateCell(cellAt(cells, r, col)); ok {
			record.CallDate = &t
		}
	}
	if col, ok := colOf(FieldDuration); ok {
		if v, perr := parseFloatCell(cellAt(cells, r, col)); perr == nil && v > 0 {
			record.DurationMinutes = &v
		}
	}
	return record, nil
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", "2006/01/02", "02-01-2006"}

func parseDateCell(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// extractFallback handles unknown formats: no usable mappings emit nothing,
// partial mappings emit one best-effort record so detected signal still
// yields output.
func (s *Scanner) extractFallback(cells [][]string, filename string, mappings map[string]types.FieldDetection, out *Output) {
	var overall *float64
	if det, ok := mappings[FieldOverallScore]; ok {
		if v, parsed := parseScore(det.Value); parsed {
			overall = &v
		}
	}
	if overall == nil {
		for _, key := range types.CriterionKeys {
			if det, ok := mappings[key]; ok {
				if v, parsed := parseScore(det.Value); parsed {
					overall = &v
					break
				}
			}
		}
	}
	if overall == nil {
		s.log.WithField("filename", filename).Warn("unknown format, nothing extractable")
		return
	}

	record := types.ParsedScoreRecord{
		CallIdentifier: identifierFromFilename(filename),
		Scores:         map[string]float64{},
		OverallScore:   overall,
		SourceFilename: filename,
		RowNumber:      1,
	}
	for _, key := range types.CriterionKeys {
		record.Scores[key] = *overall
	}
	out.Records = append(out.Records, record)
	out.Warnings = append(out.Warnings, types.IngestionWarning{
		Message: "unknown sheet format; emitted a best-effort record from detected fields",
		Impact:  types.ImpactLow,
	})
}
