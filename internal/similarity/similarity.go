// Package similarity scores how alike two category names are.
package similarity

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// longNameLength is the length above which strongly mismatched names are
// rejected without computing the edit distance.
const longNameLength = 100

// maxLengthRatioGap is the relative length difference beyond which two long
// names are considered unrelated.
const maxLengthRatioGap = 0.5

// Normalize prepares a name for comparison: Unicode NFC, lower case, trimmed.
// Two names with the same normalized form are an exact match.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// Score returns the similarity of a and b in [0, 1].
//
// Both names are normalized first. Equal names score 1, an empty name scores
// 0 against anything else, and otherwise the score is
// 1 - levenshtein(a, b) / max(len(a), len(b)) measured in runes.
func Score(a, b string) float64 {
	return ScoreNormalized(Normalize(a), Normalize(b))
}

// ScoreNormalized is Score for names that are already normalized.
// The matcher normalizes each name once and calls this in its scan loops.
func ScoreNormalized(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	ra := []rune(a)
	rb := []rune(b)
	la, lb := len(ra), len(rb)
	maxLen := max(la, lb)

	if la > longNameLength && lb > longNameLength {
		gap := float64(abs(la-lb)) / float64(maxLen)
		if gap > maxLengthRatioGap {
			return 0
		}
	}

	return 1.0 - float64(Levenshtein(ra, rb))/float64(maxLen)
}

// Levenshtein computes the edit distance between a and b with unit cost for
// insertion, deletion, and substitution, using the full DP matrix.
func Levenshtein(a, b []rune) int {
	la, lb := len(a), len(b)
	cols := lb + 1

	// dp[i*cols+j] is the distance between a[:i] and b[:j].
	dp := make([]int, (la+1)*cols)
	for i := 0; i <= la; i++ {
		dp[i*cols] = i
	}
	for j := 0; j <= lb; j++ {
		dp[j] = j
	}

	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			dp[i*cols+j] = min(
				dp[(i-1)*cols+j]+1,      // deletion
				dp[i*cols+j-1]+1,        // insertion
				dp[(i-1)*cols+j-1]+cost, // substitution
			)
		}
	}

	return dp[la*cols+lb]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
