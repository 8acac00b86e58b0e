package memstore

import (
	"strings"
	"unicode"
)

// Trigrams returns the pg_trgm trigram set of s: the text is lower-cased and
// split into alphanumeric words, each word is padded with two leading blanks
// and one trailing blank, and every three-character window is collected.
func Trigrams(s string) map[string]struct{} {
	set := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// Similarity returns the pg_trgm similarity of a and b: the number of shared
// trigrams divided by the size of the union. Identical non-empty strings have
// similarity 1.
func Similarity(a, b string) float64 {
	ta, tb := Trigrams(a), Trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(ta)+len(tb)-shared)
}
