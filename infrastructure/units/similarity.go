package units

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// fold case-folds s. A Caser carries state, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// normalize composes Vietnamese diacritics, folds case and collapses runs of
// whitespace so formatting differences do not count as edits.
func normalize(s string) string {
	s = norm.NFC.String(s)
	s = fold(s)
	return strings.Join(strings.Fields(s), " ")
}

// Similarity returns the normalized Levenshtein similarity of a and b in
// [0, 1], where 1 means identical after normalization. It is reported next
// to the judge's verdict and never affects it.
func Similarity(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == b {
		return 1.0
	}

	// Distance is computed over runes, so the denominator must be too.
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1.0
	}

	sim := 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
	return max(sim, 0)
}
