package scanner

import (
	"strconv"
	"strings"

	"scorecard-ingest-go/internal/types"
)

// Layout values produced by spatial analysis.
const (
	layoutHorizontal = "horizontal"
	layoutVertical   = "vertical"
	layoutMixed      = "mixed"
)

const (
	spatialRowLimit    = 50
	headerSearchLimit  = 20
	minScoreCellsPerCol = 3
	minTextCellsPerCol  = 3
	minTextCellLength   = 5
)

// headerKeywords mark a row as the column-header row.
var headerKeywords = []string{"section", "expectation", "score", "opening", "closing", "call", "id"}

func cellAt(grid [][]string, row, col int) string {
	if row < 0 || row >= len(grid) {
		return ""
	}
	r := grid[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// parseScore parses a numeric cell and reports whether it lies in [0,4].
func parseScore(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if v < types.MinScore || v > types.MaxScore {
		return 0, false
	}
	return v, true
}

// clampScore coerces any cell into the [0,4] score range; non-numeric cells
// become 0.
func clampScore(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return types.MinScore
	}
	if v < types.MinScore {
		return types.MinScore
	}
	if v > types.MaxScore {
		return types.MaxScore
	}
	return v
}

// analyzeSpatial classifies columns and locates the header row over the first
// 50 rows of the grid.
func analyzeSpatial(grid [][]string) types.SpatialAnalysis {
	rowCount := len(grid)
	if rowCount > spatialRowLimit {
		rowCount = spatialRowLimit
	}
	colCount := 0
	for i := 0; i < rowCount; i++ {
		if len(grid[i]) > colCount {
			colCount = len(grid[i])
		}
	}

	var scoreCols, textCols []int
	for c := 0; c < colCount; c++ {
		numeric := 0
		text := 0
		for r := 0; r < rowCount; r++ {
			cell := cellAt(grid, r, c)
			if cell == "" {
				continue
			}
			if _, ok := parseScore(cell); ok {
				numeric++
			} else if len(cell) > minTextCellLength {
				text++
			}
		}
		if numeric >= minScoreCellsPerCol {
			scoreCols = append(scoreCols, c)
		}
		if text >= minTextCellsPerCol {
			textCols = append(textCols, c)
		}
	}

	layout := layoutMixed
	switch {
	case len(scoreCols) >= 5:
		layout = layoutHorizontal
	case len(scoreCols) <= 2 && len(textCols) >= 1:
		layout = layoutVertical
	}

	headerRow := -1
	limit := len(grid)
	if limit > headerSearchLimit {
		limit = headerSearchLimit
	}
	for r := 0; r < limit && headerRow == -1; r++ {
		for _, cell := range grid[r] {
			l := strings.ToLower(strings.TrimSpace(cell))
			if l == "" {
				continue
			}
			for _, kw := range headerKeywords {
				if strings.Contains(l, kw) {
					headerRow = r
					break
				}
			}
			if headerRow != -1 {
				break
			}
		}
	}

	headerBonus := 0.0
	if headerRow != -1 {
		headerBonus = 0.3
	}
	conf := 0.2*float64(len(scoreCols)) + 0.1*float64(len(textCols)) + headerBonus
	if conf > 1 {
		conf = 1
	}

	return types.SpatialAnalysis{
		ScoreColumns: scoreCols,
		TextColumns:  textCols,
		Layout:       layout,
		HeaderRow:    headerRow,
		DataStartRow: headerRow + 1,
		Confidence:   conf,
	}
}
