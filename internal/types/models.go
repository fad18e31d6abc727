package types

import "time"

// Criterion keys for the BDR coaching scorecard, in sheet order.
const (
	CriterionOpening              = "opening"
	CriterionObjectionHandling    = "objection_handling"
	CriterionQualification        = "qualification"
	CriterionToneEnergy           = "tone_energy"
	CriterionAssertivenessControl = "assertiveness_control"
	CriterionBusinessAcumen       = "business_acumen"
	CriterionClosing              = "closing"
	CriterionTalkTime             = "talk_time"
)

// CriterionKeys is the canonical ordering used by the scanner and transformer.
var CriterionKeys = []string{
	CriterionOpening,
	CriterionObjectionHandling,
	CriterionQualification,
	CriterionToneEnergy,
	CriterionAssertivenessControl,
	CriterionBusinessAcumen,
	CriterionClosing,
	CriterionTalkTime,
}

// MinScore/MaxScore bound every criterion and overall score.
const (
	MinScore = 0.0
	MaxScore = 4.0
)

// RubricBlankScore is the sentinel for a "BLANK" rubric level (call too short to score).
const RubricBlankScore = -1.0

// FieldDetection is one located candidate for a named field on the sheet.
type FieldDetection struct {
	Row          int              `json:"row"`
	Col          int              `json:"col"`
	Value        string           `json:"value"`
	Confidence   float64          `json:"confidence"`
	Method       string           `json:"method"` // keyword|shape|fixed_cell|filename
	Alternatives []FieldDetection `json:"alternatives,omitempty"`
}

// SpatialAnalysis describes inferred sheet geometry.
type SpatialAnalysis struct {
	ScoreColumns []int   `json:"score_columns"`
	TextColumns  []int   `json:"text_columns"`
	Layout       string  `json:"layout"`     // horizontal|vertical|mixed
	HeaderRow    int     `json:"header_row"` // -1 when no header row was found
	DataStartRow int     `json:"data_start_row"`
	Confidence   float64 `json:"confidence"`
}

// ScanResult is the scanner's structural verdict on one sheet.
type ScanResult struct {
	Confidence      float64                   `json:"confidence"`
	DetectedFormat  string                    `json:"detected_format"` // tabular|template|unknown
	FieldMappings   map[string]FieldDetection `json:"field_mappings"`
	SpatialAnalysis SpatialAnalysis           `json:"spatial_analysis"`
}

// RubricLevel is one row of the extracted scoring rubric.
type RubricLevel struct {
	Score       float64 `json:"score"` // -1 for BLANK
	Label       string  `json:"label"`
	Description string  `json:"description"`
}

// Rubric is the scoring scale table extracted from a template sheet.
type Rubric struct {
	Levels []RubricLevel `json:"levels"`
}

// CriterionDetail holds per-criterion evidence from a template sheet.
type CriterionDetail struct {
	Score        *float64 `json:"score,omitempty"`
	AvgScore     *float64 `json:"avg_score,omitempty"`
	Expectations []string `json:"expectations,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// ParsedScoreRecord is one scored call as read from the sheet.
type ParsedScoreRecord struct {
	CallIdentifier   string                     `json:"call_identifier"`
	CallDate         *time.Time                 `json:"call_date,omitempty"`
	DurationMinutes  *float64                   `json:"duration_minutes,omitempty"`
	Scores           map[string]float64         `json:"scores"`
	OverallScore     *float64                   `json:"overall_score,omitempty"`
	CriterionDetails map[string]CriterionDetail `json:"criterion_details,omitempty"`
	Rubric           *Rubric                    `json:"rubric,omitempty"`
	AgentName        string                     `json:"agent_name,omitempty"`
	Notes            string                     `json:"notes,omitempty"`
	SourceFilename   string                     `json:"source_filename"`
	RowNumber        int                        `json:"row_number"`
}

// Error type taxonomy shared by scanner, transformer and orchestrator.
const (
	ErrTypeFileFormat     = "file_format"
	ErrTypeMissingColumns = "missing_columns"
	ErrTypeInvalidData    = "invalid_data"
	ErrTypeParseError     = "parse_error"
	ErrTypeValidation     = "validation_error"
	ErrTypeBusinessRule   = "business_rule_error"
	ErrTypeMatch          = "match_error"
	ErrTypeDatabase       = "database_error"
	ErrTypeMissingData    = "missing_data"
)

// Warning impact levels.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// IngestionError is a collected (not thrown) pipeline fault.
type IngestionError struct {
	Type             string `json:"type"`
	Phase            string `json:"phase,omitempty"`
	Message          string `json:"message"`
	Row              int    `json:"row,omitempty"`
	RecordIdentifier string `json:"record_identifier,omitempty"`
}

// IngestionWarning is a non-fatal finding with a severity bucket.
type IngestionWarning struct {
	Type             string `json:"type,omitempty"`
	Message          string `json:"message"`
	Row              int    `json:"row,omitempty"`
	RecordIdentifier string `json:"record_identifier,omitempty"`
	Impact           string `json:"impact"` // high|medium|low
}

// WeightedCriterion is one rubric criterion with its program weight.
type WeightedCriterion struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// ProgramDefinition describes the coaching program a batch belongs to.
type ProgramDefinition struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Criteria []WeightedCriterion `json:"criteria"`
}

// CallRecording is the read surface over a previously recorded conversation.
type CallRecording struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	OwnerID         string    `json:"owner_id"`
	HasTranscript   bool      `json:"has_transcript"`
	DurationMinutes float64   `json:"duration_minutes"`
	CallDate        time.Time `json:"call_date"`
}

// ValidationIssue is one validator finding tied to a record.
type ValidationIssue struct {
	Message          string `json:"message"`
	RecordIdentifier string `json:"record_identifier"`
	Impact           string `json:"impact,omitempty"`
}

// ValidationOutcome is the RecordValidator contract output.
type ValidationOutcome struct {
	IsValid      bool                `json:"is_valid"`
	ValidRecords []ParsedScoreRecord `json:"valid_records"`
	Errors       []ValidationIssue   `json:"errors"`
	Warnings     []ValidationIssue   `json:"warnings"`
}

// CallMatchResult associates a scorecard entry with a candidate recording.
type CallMatchResult struct {
	Entry            ParsedScoreRecord `json:"scorecard_entry"`
	MatchedRecording *CallRecording    `json:"matched_recording,omitempty"`
	Confidence       float64           `json:"confidence"`
	MatchCriteria    []string          `json:"match_criteria"`
}

// MatchOutcome is the CallMatcher contract output.
type MatchOutcome struct {
	Matches   []CallMatchResult   `json:"matches"`
	Unmatched []ParsedScoreRecord `json:"unmatched"`
}
