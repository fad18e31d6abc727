package scanner

import (
	"regexp"
	"strconv"
	"strings"

	"scorecard-ingest-go/internal/types"
)

func parseFloatCell(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Detected formats.
const (
	FormatTabular  = "tabular"
	FormatTemplate = "template"
	FormatUnknown  = "unknown"
)

// Named fields the content detector looks for.
const (
	FieldCallIdentifier = "call_identifier"
	FieldOverallScore   = "overall_score"
	FieldAgentName      = "agent_name"
	FieldNotes          = "notes"
	FieldCallDate       = "call_date"
	FieldDuration       = "duration_minutes"
)

// fieldKeywords map each named field to the header tokens that identify it.
var fieldKeywords = map[string][]string{
	FieldCallIdentifier:                {"call id", "call_id", "callid", "call", "id"},
	FieldOverallScore:                  {"overall", "total score", "final score"},
	FieldAgentName:                     {"agent", "rep name", "bdr"},
	FieldNotes:                         {"notes", "comments", "feedback"},
	FieldCallDate:                      {"call date", "date"},
	FieldDuration:                      {"duration", "minutes", "length"},
	types.CriterionOpening:             {"opening"},
	types.CriterionObjectionHandling:   {"objection"},
	types.CriterionQualification:       {"qualification", "qualify"},
	types.CriterionToneEnergy:          {"tone", "energy"},
	types.CriterionAssertivenessControl: {"assertiveness", "control"},
	types.CriterionBusinessAcumen:      {"business", "acumen"},
	types.CriterionClosing:             {"closing"},
	types.CriterionTalkTime:            {"talk"},
}

// bdrCategoryKeywords are scorecard-specific tokens that mark a horizontal
// sheet as a tabular scorecard export.
var bdrCategoryKeywords = []string{
	"opening", "objection", "qualification", "tone", "assertiveness",
	"business acumen", "closing", "talk time",
}

var identifierShape = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{4,49}$`)

func isScoreField(field string) bool {
	if field == FieldOverallScore {
		return true
	}
	for _, k := range types.CriterionKeys {
		if field == k {
			return true
		}
	}
	return false
}

// gridContains reports whether any cell contains the token (case-insensitive).
func gridContains(grid [][]string, token string) bool {
	for _, row := range grid {
		for _, cell := range row {
			if strings.Contains(strings.ToLower(cell), token) {
				return true
			}
		}
	}
	return false
}

// detectFormat combines content tokens with the spatial layout verdict.
func detectFormat(grid [][]string, spatial types.SpatialAnalysis) string {
	if spatial.Layout == layoutVertical &&
		gridContains(grid, "sections") && gridContains(grid, "expectations") {
		return FormatTemplate
	}
	if spatial.Layout == layoutHorizontal {
		for _, kw := range bdrCategoryKeywords {
			if gridContains(grid, kw) {
				return FormatTabular
			}
		}
	}
	// A header row naming most criteria is tabular even when the sheet is
	// too short for column statistics to settle.
	if spatial.HeaderRow >= 0 && criterionHeaderMatches(grid, spatial.HeaderRow) >= 5 {
		return FormatTabular
	}
	return FormatUnknown
}

// criterionHeaderMatches counts distinct criteria named in the header row.
func criterionHeaderMatches(grid [][]string, headerRow int) int {
	if headerRow < 0 || headerRow >= len(grid) {
		return 0
	}
	found := 0
	for _, key := range types.CriterionKeys {
		for _, cell := range grid[headerRow] {
			l := strings.ToLower(cell)
			matched := false
			for _, kw := range fieldKeywords[key] {
				if strings.Contains(l, kw) {
					matched = true
					break
				}
			}
			if matched {
				found++
				break
			}
		}
	}
	return found
}

// matchesShape checks a cell value against the field's expected value shape.
func matchesShape(field, value string) bool {
	switch {
	case isScoreField(field):
		_, ok := parseScore(value)
		return ok
	case field == FieldCallIdentifier:
		return identifierShape.MatchString(value)
	case field == FieldAgentName:
		return len(value) >= 3 && len(value) <= 60 && !strings.ContainsAny(value, "0123456789")
	case field == FieldNotes:
		return len(value) > 10
	case field == FieldCallDate:
		return strings.Count(value, "/") == 2 || strings.Count(value, "-") == 2
	case field == FieldDuration:
		_, err := parseFloatCell(value)
		return err == nil
	}
	return false
}

// detectFields folds over every non-empty cell, keeping the single highest
// confidence detection per field. Detections below 0.5 are discarded.
func detectFields(grid [][]string, spatial types.SpatialAnalysis) map[string]types.FieldDetection {
	scoreCol := make(map[int]bool, len(spatial.ScoreColumns))
	for _, c := range spatial.ScoreColumns {
		scoreCol[c] = true
	}

	rowLimit := len(grid)
	if rowLimit > spatialRowLimit {
		rowLimit = spatialRowLimit
	}

	best := map[string]types.FieldDetection{}
	for r := 0; r < rowLimit; r++ {
		for c := range grid[r] {
			value := cellAt(grid, r, c)
			if value == "" {
				continue
			}
			lower := strings.ToLower(value)
			for field, keywords := range fieldKeywords {
				conf := 0.0
				method := ""
				for _, kw := range keywords {
					if strings.Contains(lower, kw) {
						conf += 0.6
						method = "keyword"
						break
					}
				}
				if matchesShape(field, value) {
					conf += 0.4
					if method == "" {
						method = "shape"
					}
				}
				if conf == 0 {
					continue
				}
				if scoreCol[c] {
					conf += 0.2
				}
				if conf > 1 {
					conf = 1
				}
				if conf < 0.5 {
					continue
				}
				det := types.FieldDetection{Row: r, Col: c, Value: value, Confidence: conf, Method: method}
				prev, seen := best[field]
				if !seen {
					best[field] = det
					continue
				}
				if det.Confidence > prev.Confidence {
					det.Alternatives = append(det.Alternatives, prev)
					best[field] = det
				} else {
					prev.Alternatives = append(prev.Alternatives, det)
					best[field] = prev
				}
			}
		}
	}
	return best
}
