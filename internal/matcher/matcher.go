// Package matcher fuzzy-matches scorecard entries to candidate recordings.
package matcher

import (
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"scorecard-ingest-go/internal/logger"
	"scorecard-ingest-go/internal/types"
)

// CallMatcher is the contract the pipeline consumes.
type CallMatcher interface {
	Match(entries []types.ParsedScoreRecord, candidates []types.CallRecording, ownerScope string) types.MatchOutcome
}

// MinMatchConfidence is the floor below which a best candidate still counts
// as unmatched.
const MinMatchConfidence = 0.3

// FuzzyMatcher scores candidates by identifier containment, title token
// overlap and call-date proximity.
type FuzzyMatcher struct {
	log *logrus.Entry
}

func New(log *logger.Logger) *FuzzyMatcher {
	return &FuzzyMatcher{log: log.WithComponent("matcher")}
}

func (m *FuzzyMatcher) Match(entries []types.ParsedScoreRecord, candidates []types.CallRecording, ownerScope string) types.MatchOutcome {
	outcome := types.MatchOutcome{}

	for _, entry := range entries {
		best, criteria := m.bestCandidate(entry, candidates, ownerScope)
		if best == nil {
			outcome.Unmatched = append(outcome.Unmatched, entry)
			continue
		}
		outcome.Matches = append(outcome.Matches, types.CallMatchResult{
			Entry:            entry,
			MatchedRecording: &best.rec,
			Confidence:       best.score,
			MatchCriteria:    criteria,
		})
	}

	m.log.WithFields(logrus.Fields{
		"entries":   len(entries),
		"unmatched": len(outcome.Unmatched),
	}).Debug("matching finished")
	return outcome
}

type scored struct {
	rec   types.CallRecording
	score float64
}

func (m *FuzzyMatcher) bestCandidate(entry types.ParsedScoreRecord, candidates []types.CallRecording, ownerScope string) (*scored, []string) {
	var best *scored
	var bestCriteria []string

	for _, rec := range candidates {
		if ownerScope != "" && rec.OwnerID != ownerScope {
			continue
		}
		score, criteria := scoreCandidate(entry, rec)
		if score < MinMatchConfidence {
			continue
		}
		if best == nil || score > best.score {
			best = &scored{rec: rec, score: score}
			bestCriteria = criteria
		}
	}
	return best, bestCriteria
}

func scoreCandidate(entry types.ParsedScoreRecord, rec types.CallRecording) (float64, []string) {
	score := 0.0
	var criteria []string

	id := normalize(entry.CallIdentifier)
	title := normalize(rec.Title)

	if id != "" && (id == normalize(rec.ID) || strings.Contains(title, id)) {
		score += 0.6
		criteria = append(criteria, "identifier")
	} else if overlap := tokenOverlap(id, title); overlap > 0 {
		score += 0.3 * overlap
		criteria = append(criteria, "title_tokens")
	}

	if entry.CallDate != nil && !rec.CallDate.IsZero() {
		days := math.Abs(entry.CallDate.Sub(rec.CallDate).Hours() / 24)
		switch {
		case days < 1:
			score += 0.2
			criteria = append(criteria, "call_date")
		case days <= 3:
			score += 0.1
			criteria = append(criteria, "call_date_near")
		}
	}

	if entry.DurationMinutes != nil && rec.DurationMinutes > 0 {
		if math.Abs(*entry.DurationMinutes-rec.DurationMinutes) <= 2 {
			score += 0.1
			criteria = append(criteria, "duration")
		}
	}

	if rec.HasTranscript {
		score += 0.1
		criteria = append(criteria, "transcript")
	}

	if score > 1 {
		score = 1
	}
	return score, criteria
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// tokenOverlap is the fraction of entry tokens present in the title.
func tokenOverlap(id, title string) float64 {
	idTokens := strings.Fields(id)
	if len(idTokens) == 0 {
		return 0
	}
	titleTokens := map[string]bool{}
	for _, t := range strings.Fields(title) {
		titleTokens[t] = true
	}
	hit := 0
	for _, t := range idTokens {
		if titleTokens[t] {
			hit++
		}
	}
	return float64(hit) / float64(len(idTokens))
}
