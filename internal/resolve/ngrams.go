package resolve

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// Clean removes every character that is not an ASCII letter, digit or
// whitespace and collapses whitespace runs to single spaces.
func Clean(text string) string {
	return strings.Join(strings.Fields(nonAlnum.ReplaceAllString(text, "")), " ")
}

// NGrams returns every distinct contiguous word n-gram of the cleaned text
// for n in [minN, maxN], shortest first and left to right within a length.
// With filterStopwords, n-grams that start with a stopword or are shorter
// than three characters are skipped, as are purely numeric ones.
func NGrams(text string, minN, maxN int, filterStopwords bool) []string {
	words := strings.Fields(Clean(text))
	if minN < 1 {
		minN = 1
	}
	var out []string
	seen := make(map[string]bool)
	for n := minN; n <= maxN && n <= len(words); n++ {
		for i := 0; i+n <= len(words); i++ {
			if filterStopwords && stopwords[strings.ToLower(words[i])] {
				continue
			}
			phrase := strings.Join(words[i:i+n], " ")
			if filterStopwords && (utf8.RuneCountInString(phrase) < 3 || isNumeric(phrase)) {
				continue
			}
			if seen[phrase] {
				continue
			}
			seen[phrase] = true
			out = append(out, phrase)
		}
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r != ' ' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
