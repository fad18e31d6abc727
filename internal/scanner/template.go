package scanner

import (
	"path/filepath"
	"strings"

	"scorecard-ingest-go/internal/types"
)

// The coaching template is extracted through a declarative band table rather
// than scattered cell coordinates, so a template revision only touches the
// descriptors below.

type cellRef struct {
	Row int
	Col int
}

type rowBand struct {
	Criterion string
	StartRow  int
	EndRow    int // inclusive
}

// Column roles inside a criterion band.
const (
	colExpectations = 1 // B: expectation text
	colScores       = 2 // C: individual scores
	colAvgScore     = 3 // D: averaged score
	colNotes        = 4 // E: manager notes
)

type templateLayout struct {
	RubricStartRow int
	RubricEndRow   int
	RubricLabelCol int
	RubricDescCol  int
	CriterionBands []rowBand
	OverallCells   []cellRef // read in priority order, first valid wins
	AgentNameCell  cellRef
}

// currentTemplate describes the scorecard template in circulation.
var currentTemplate = templateLayout{
	RubricStartRow: 2,
	RubricEndRow:   8,
	RubricLabelCol: 0,
	RubricDescCol:  1,
	CriterionBands: []rowBand{
		{types.CriterionOpening, 10, 13},
		{types.CriterionObjectionHandling, 14, 17},
		{types.CriterionQualification, 18, 21},
		{types.CriterionToneEnergy, 22, 25},
		{types.CriterionAssertivenessControl, 26, 29},
		{types.CriterionBusinessAcumen, 30, 33},
		{types.CriterionClosing, 34, 37},
		{types.CriterionTalkTime, 38, 41},
	},
	OverallCells:  []cellRef{{44, 2}, {45, 2}},
	AgentNameCell: cellRef{1, 2},
}

var rubricLabels = map[string]float64{
	"0":     0,
	"1":     1,
	"2":     2,
	"3":     3,
	"4":     4,
	"BLANK": types.RubricBlankScore,
}

const (
	minRubricDescLength = 10
	minExpectationLength = 10
	minNotesLength       = 3
)

// extractRubric reads the scoring scale table. Labels outside {0..4, BLANK}
// are ignored.
func extractRubric(grid [][]string, layout templateLayout) *types.Rubric {
	var levels []types.RubricLevel
	for r := layout.RubricStartRow; r <= layout.RubricEndRow; r++ {
		label := strings.ToUpper(cellAt(grid, r, layout.RubricLabelCol))
		score, ok := rubricLabels[label]
		if !ok {
			continue
		}
		desc := cellAt(grid, r, layout.RubricDescCol)
		if len(desc) <= minRubricDescLength {
			continue
		}
		levels = append(levels, types.RubricLevel{Score: score, Label: label, Description: desc})
	}
	if len(levels) == 0 {
		return nil
	}
	return &types.Rubric{Levels: levels}
}

// extractCriterionDetail reads one criterion band.
func extractCriterionDetail(grid [][]string, band rowBand) types.CriterionDetail {
	detail := types.CriterionDetail{}
	var scores []float64
	for r := band.StartRow; r <= band.EndRow; r++ {
		if exp := cellAt(grid, r, colExpectations); len(exp) > minExpectationLength {
			detail.Expectations = append(detail.Expectations, exp)
		}
		if v, ok := parseScore(cellAt(grid, r, colScores)); ok {
			scores = append(scores, v)
		}
		if detail.AvgScore == nil {
			if v, ok := parseScore(cellAt(grid, r, colAvgScore)); ok {
				avg := v
				detail.AvgScore = &avg
			}
		}
		if detail.Notes == "" {
			if n := cellAt(grid, r, colNotes); len(n) > minNotesLength {
				detail.Notes = n
			}
		}
	}
	if len(scores) > 0 {
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		mean := sum / float64(len(scores))
		detail.Score = &mean
	}
	return detail
}

// extractOverallScore reads the fixed candidate cells in priority order; the
// first valid 0-4 numeric wins and the second is never merged in.
func extractOverallScore(grid [][]string, layout templateLayout) *float64 {
	for _, ref := range layout.OverallCells {
		if v, ok := parseScore(cellAt(grid, ref.Row, ref.Col)); ok {
			score := v
			return &score
		}
	}
	return nil
}

// identifierFromFilename strips the extension; the filename is the guaranteed
// identifier fallback independent of sheet content.
func identifierFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// extractTemplateRecord emits the single record a template sheet carries,
// backfilling missing criterion scores with the overall score.
func extractTemplateRecord(grid [][]string, filename string) types.ParsedScoreRecord {
	layout := currentTemplate

	record := types.ParsedScoreRecord{
		CallIdentifier:   identifierFromFilename(filename),
		Scores:           map[string]float64{},
		CriterionDetails: map[string]types.CriterionDetail{},
		SourceFilename:   filename,
		RowNumber:        1,
	}

	record.Rubric = extractRubric(grid, layout)
	record.OverallScore = extractOverallScore(grid, layout)
	record.AgentName = cellAt(grid, layout.AgentNameCell.Row, layout.AgentNameCell.Col)

	for _, band := range layout.CriterionBands {
		detail := extractCriterionDetail(grid, band)
		record.CriterionDetails[band.Criterion] = detail

		switch {
		case detail.AvgScore != nil:
			record.Scores[band.Criterion] = *detail.AvgScore
		case detail.Score != nil:
			record.Scores[band.Criterion] = *detail.Score
		case record.OverallScore != nil:
			record.Scores[band.Criterion] = *record.OverallScore
		}
	}
	return record
}
