package matching

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// TextSimilarity scores two already-normalized names in [0,1].
//
// Containment earns the fixed boost when the shorter name occurs in the
// longer one on whitespace boundaries, or covers at least minCoverage of its
// runes. Otherwise the score is a Levenshtein ratio over runes.
func TextSimilarity(a, b string, boost, minCoverage float64) float64 {
	if a == "" || b == "" {
		return 0
	}
	short, long := a, b
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}
	if strings.Contains(long, short) {
		if strings.Contains(" "+long+" ", " "+short+" ") {
			return boost
		}
		coverage := float64(utf8.RuneCountInString(short)) / float64(utf8.RuneCountInString(long))
		if coverage >= minCoverage {
			return boost
		}
	}
	return ratio(a, b)
}

func ratio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return clamp01(1 - float64(dist)/float64(maxLen))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
