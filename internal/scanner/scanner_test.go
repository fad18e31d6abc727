package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scorecard-ingest-go/internal/logger"
	"scorecard-ingest-go/internal/types"
)

func newScanner(t *testing.T, opts Options) *Scanner {
	t.Helper()
	return New(logger.New(), opts)
}

var tabularHeader = []string{
	"Call ID", "Opening", "Objection Handling", "Qualification", "Tone & Energy",
	"Assertiveness & Control", "Business Acumen", "Closing", "Talk Time",
}

func TestTabularSingleRow(t *testing.T) {
	s := newScanner(t, Options{})
	cells := [][]string{
		tabularHeader,
		{"C-100", "3", "2", "4", "3", "2", "3", "4", "2"},
	}

	out := s.Scan(cells, "weekly_scores.xlsx")

	require.Equal(t, FormatTabular, out.Result.DetectedFormat)
	require.Len(t, out.Records, 1)
	rec := out.Records[0]
	assert.Equal(t, "C-100", rec.CallIdentifier)
	assert.Equal(t, 2, rec.RowNumber)
	assert.Equal(t, 3.0, rec.Scores[types.CriterionOpening])
	assert.Equal(t, 2.0, rec.Scores[types.CriterionObjectionHandling])
	assert.Equal(t, 4.0, rec.Scores[types.CriterionQualification])
	assert.Equal(t, 3.0, rec.Scores[types.CriterionToneEnergy])
	assert.Equal(t, 2.0, rec.Scores[types.CriterionAssertivenessControl])
	assert.Equal(t, 3.0, rec.Scores[types.CriterionBusinessAcumen])
	assert.Equal(t, 4.0, rec.Scores[types.CriterionClosing])
	assert.Equal(t, 2.0, rec.Scores[types.CriterionTalkTime])
}

func TestTabularClampsEveryScore(t *testing.T) {
	s := newScanner(t, Options{})
	cells := [][]string{
		tabularHeader,
		{"C-1", "7", "-3", "abc", "3.5", "", "4", "0", "2"},
	}

	out := s.Scan(cells, "weekly_scores.xlsx")
	require.Len(t, out.Records, 1)
	rec := out.Records[0]

	assert.Equal(t, 4.0, rec.Scores[types.CriterionOpening], "above range clamps to 4")
	assert.Equal(t, 0.0, rec.Scores[types.CriterionObjectionHandling], "below range clamps to 0")
	assert.Equal(t, 0.0, rec.Scores[types.CriterionQualification], "non-numeric defaults to 0")
	assert.Equal(t, 3.5, rec.Scores[types.CriterionToneEnergy])
	for _, v := range rec.Scores {
		assert.GreaterOrEqual(t, v, types.MinScore)
		assert.LessOrEqual(t, v, types.MaxScore)
	}
}

func TestTabularSkipsEmptyAndDefaultsIdentifier(t *testing.T) {
	s := newScanner(t, Options{})
	cells := [][]string{
		tabularHeader,
		{"C-1", "3", "2", "4", "3", "2", "3", "4", "2"},
		{"", "", "", "", "", "", "", "", ""},
		{"", "1", "1", "2", "2", "1", "2", "1", "3"},
		{"C-4", "2", "2", "2", "2", "2", "2", "2", "2"},
	}

	out := s.Scan(cells, "weekly_scores.xlsx")
	require.Len(t, out.Records, 3, "empty row skipped, bad rows isolated")
	assert.Equal(t, "C-1", out.Records[0].CallIdentifier)
	assert.Equal(t, "Call_4", out.Records[1].CallIdentifier, "missing identifier defaults to Call_<row>")
	assert.Equal(t, "C-4", out.Records[2].CallIdentifier)
}

func TestStrictModeReportsMissingColumns(t *testing.T) {
	s := newScanner(t, Options{RequireKnownColumns: true})
	cells := [][]string{
		{"Call ID", "Opening", "Objection Handling", "Qualification", "Tone & Energy", "Assertiveness & Control"},
		{"C-1", "3", "2", "4", "3", "2"},
		{"C-2", "1", "2", "3", "2", "1"},
	}

	out := s.Scan(cells, "weekly_scores.xlsx")
	require.Equal(t, FormatTabular, out.Result.DetectedFormat)

	var missing []string
	for _, e := range out.Errors {
		if e.Type == types.ErrTypeMissingColumns {
			missing = append(missing, e.Message)
		}
	}
	assert.Len(t, missing, 3, "business_acumen, closing and talk_time columns are absent")
	assert.Len(t, out.Records, 2, "missing columns do not block extraction")
}

func templateGrid() [][]string {
	cells := make([][]string, 46)
	for i := range cells {
		cells[i] = make([]string, 5)
	}
	cells[0] = []string{"Scorecard Sections", "Expectations Overview", ""}
	cells[1] = []string{"Agent", "", "Jordan Lee"}

	rubric := [][2]string{
		{"4", "Exceptional execution across the call"},
		{"3", "Strong with minor gaps in delivery"},
		{"2", "Mixed execution, coaching needed"},
		{"1", "Weak execution throughout the call"},
		{"0", "Did not attempt this section"},
		{"BLANK", "Call too short to evaluate fairly"},
	}
	for i, level := range rubric {
		cells[2+i][0] = level[0]
		cells[2+i][1] = level[1]
	}

	// Expectation text only; scores left for the manager.
	for i, band := range currentTemplate.CriterionBands {
		cells[band.StartRow][1] = fmt.Sprintf("Expectation text for criterion band %d", i+1)
	}

	cells[44][1] = "Overall"
	cells[44][2] = "1.8"
	return cells
}

func TestTemplateExtraction(t *testing.T) {
	s := newScanner(t, Options{})
	out := s.Scan(templateGrid(), "Scorecard_JordanLee_Call789.xlsx")

	require.Equal(t, FormatTemplate, out.Result.DetectedFormat)
	require.Len(t, out.Records, 1)
	rec := out.Records[0]

	assert.Equal(t, "Scorecard_JordanLee_Call789", rec.CallIdentifier)
	assert.Equal(t, "Jordan Lee", rec.AgentName)
	require.NotNil(t, rec.OverallScore)
	assert.Equal(t, 1.8, *rec.OverallScore)

	require.NotNil(t, rec.Rubric)
	require.Len(t, rec.Rubric.Levels, 6)
	blank := rec.Rubric.Levels[5]
	assert.Equal(t, "BLANK", blank.Label)
	assert.Equal(t, types.RubricBlankScore, blank.Score)

	// Missing criterion scores backfill from the overall score.
	for _, key := range types.CriterionKeys {
		assert.Equal(t, 1.8, rec.Scores[key], key)
	}
}

func TestRubricIgnoresUnknownLabels(t *testing.T) {
	cells := templateGrid()
	cells[8][0] = "5"
	cells[8][1] = "An out-of-scale label that must be ignored"

	rubric := extractRubric(cells, currentTemplate)
	require.NotNil(t, rubric)
	assert.Len(t, rubric.Levels, 6)
	for _, level := range rubric.Levels {
		assert.NotEqual(t, "5", level.Label)
	}
}

func TestSecondOverallCellIsFallbackOnly(t *testing.T) {
	cells := templateGrid()
	cells[45] = []string{"", "Adjusted", "2.6"}

	score := extractOverallScore(cells, currentTemplate)
	require.NotNil(t, score)
	assert.Equal(t, 1.8, *score, "first cell wins, never merged")

	cells[44][2] = "not a number"
	score = extractOverallScore(cells, currentTemplate)
	require.NotNil(t, score)
	assert.Equal(t, 2.6, *score)
}

func TestUnknownFormatFallbackRecord(t *testing.T) {
	s := newScanner(t, Options{})
	cells := [][]string{
		{"3.5"},
		{"3.5"},
		{"3.5"},
	}

	out := s.Scan(cells, "mystery_export.xlsx")
	require.Equal(t, FormatUnknown, out.Result.DetectedFormat)
	require.Len(t, out.Records, 1, "partial mappings still yield a best-effort record")
	rec := out.Records[0]
	assert.Equal(t, "mystery_export", rec.CallIdentifier)
	for _, key := range types.CriterionKeys {
		assert.Equal(t, 3.5, rec.Scores[key])
	}
	assert.NotEmpty(t, out.Warnings)
}

func TestUnknownFormatNoSignalNoRecords(t *testing.T) {
	s := newScanner(t, Options{})
	out := s.Scan([][]string{{"hello"}, {"world"}}, "noise.xlsx")
	assert.Empty(t, out.Records)
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	s := newScanner(t, Options{})
	grids := [][][]string{
		{},
		{{}},
		{{""}},
		{{"x"}},
		templateGrid(),
		{tabularHeader, {"C-1", "3", "2", "4", "3", "2", "3", "4", "2"}},
		{{"9999", "-42", "##"}, {"1e300", "NaN", ""}},
	}
	for i, cells := range grids {
		out := s.Scan(cells, "any.xlsx")
		assert.GreaterOrEqual(t, out.Result.Confidence, 0.0, "grid %d", i)
		assert.LessOrEqual(t, out.Result.Confidence, 1.0, "grid %d", i)
	}
}

func TestScanFileRejectsBadExtension(t *testing.T) {
	s := newScanner(t, Options{})
	out := s.ScanFile(filepath.Join(t.TempDir(), "scores.txt"))
	require.Len(t, out.Errors, 1)
	assert.Equal(t, types.ErrTypeFileFormat, out.Errors[0].Type)
	assert.Empty(t, out.Records)
}

func TestScanFileReadsCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weekly.csv")
	content := "Call ID,Opening,Objection Handling,Qualification,Tone & Energy,Assertiveness & Control,Business Acumen,Closing,Talk Time\n" +
		"C-100,3,2,4,3,2,3,4,2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := newScanner(t, Options{})
	out := s.ScanFile(path)
	require.Empty(t, out.Errors)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "C-100", out.Records[0].CallIdentifier)
}
