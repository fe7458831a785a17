package matcher

import (
	"errors"
	"fmt"
	"math"

	"github.com/wisprlabs/voiceid/internal/config"
	"github.com/wisprlabs/voiceid/internal/voicedb"
)

// ErrZeroNorm is returned when cosine similarity is undefined because one of
// the vectors has zero magnitude.
var ErrZeroNorm = errors.New("zero-norm embedding")

// Result is the outcome of a database scan. Matched is false when the
// database is empty or the best similarity stayed below the threshold; Score
// then still carries the raw best value so callers can report it.
type Result struct {
	Speaker string
	Score   float64
	Matched bool
}

// Matcher applies the confidence-threshold decision rule over a voice
// database.
type Matcher struct {
	threshold float64
}

func New(cfg config.MatcherConfig) *Matcher {
	return &Matcher{threshold: cfg.Threshold}
}

// Threshold returns the configured confidence cutoff.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Identify scans every enrolled vector of every speaker, in enrollment order,
// and returns the best cosine match. Strict greater-than comparison keeps the
// first-enrolled speaker on ties. A best score below the threshold demotes
// the result to unmatched without clamping the score. An empty database short
// circuits to an unmatched zero-score result.
func (m *Matcher) Identify(query voicedb.Vector, db *voicedb.DB) (Result, error) {
	if db.Empty() {
		return Result{Score: 0}, nil
	}

	best := Result{Score: -1}
	for _, speaker := range db.Speakers() {
		for _, enrolled := range db.Vectors(speaker) {
			score, err := Cosine(query, enrolled)
			if err != nil {
				return Result{}, fmt.Errorf("compare against %q: %w", speaker, err)
			}
			if score > best.Score {
				best = Result{Speaker: speaker, Score: score, Matched: true}
			}
		}
	}

	if best.Score < m.threshold {
		best.Speaker = ""
		best.Matched = false
	}
	return best, nil
}

// Cosine computes dot(a, b) / (||a|| * ||b||). Both vectors must have the
// same dimension and nonzero magnitude.
func Cosine(a, b voicedb.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, ErrZeroNorm
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
