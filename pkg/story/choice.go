package story

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultMatchThreshold is the minimum Jaro-Winkler similarity for treating
// free-form input as a pick of an existing choice.
const DefaultMatchThreshold = 0.86

// ChoiceMatcher resolves free-form user input against a node's declared
// choice texts, so "go left!" selects the "Go left" branch instead of being
// treated as a brand-new action.
type ChoiceMatcher struct {
	threshold float64
}

// NewChoiceMatcher creates a matcher. A threshold of zero or less selects
// [DefaultMatchThreshold].
func NewChoiceMatcher(threshold float64) *ChoiceMatcher {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &ChoiceMatcher{threshold: threshold}
}

// Match returns the best-matching choice and its similarity score. ok is
// false when no choice clears the threshold. Comparison is case-insensitive
// and ignores surrounding whitespace; an exact match short-circuits with a
// score of 1.
func (m *ChoiceMatcher) Match(input string, choices []string) (choice string, score float64, ok bool) {
	in := normalise(input)
	if in == "" || len(choices) == 0 {
		return "", 0, false
	}

	best := ""
	bestScore := 0.0
	for _, c := range choices {
		cand := normalise(c)
		if cand == in {
			return c, 1, true
		}
		s := matchr.JaroWinkler(in, cand, false)
		if s > bestScore {
			best, bestScore = c, s
		}
	}
	if bestScore >= m.threshold {
		return best, bestScore, true
	}
	return "", bestScore, false
}

func normalise(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), "!.?")))
}
