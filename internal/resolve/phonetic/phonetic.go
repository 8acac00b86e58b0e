// Package phonetic matches misspelt or mis-heard names against a list of
// known aliases using Double Metaphone phonetic encoding combined with
// Jaro-Winkler string similarity.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the phrase and of every candidate. A candidate whose code
//     set overlaps the phrase's becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the one with the highest
//     Jaro-Winkler similarity (case-insensitive) is selected, provided it
//     reaches the phonetic threshold. Without any phonetic candidate a pure
//     Jaro-Winkler pass with a higher fuzzy threshold is used instead.
//
// Multi-word names (e.g., "Tower of Whispers") are supported: the best
// pairwise word score is considered alongside full-string comparison.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched candidate to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the index in candidates of the name that best matches phrase
// together with its Jaro-Winkler confidence. ok is false when nothing clears
// the thresholds.
func (m *Matcher) Match(phrase string, candidates []string) (index int, confidence float64, ok bool) {
	phraseLower := strings.ToLower(strings.TrimSpace(phrase))
	if len(candidates) == 0 || phraseLower == "" {
		return -1, 0, false
	}
	phraseTokens := strings.Fields(phraseLower)
	inputCodes := codesForTokens(phraseTokens)

	best, bestScore, bestPhonetic := -1, 0.0, false
	for i, c := range candidates {
		cLower := strings.ToLower(strings.TrimSpace(c))
		if cLower == "" {
			continue
		}
		cTokens := strings.Fields(cLower)
		phonetic := codesOverlap(inputCodes, codesForTokens(cTokens))
		score := bestJWScore(phraseTokens, cTokens, phraseLower, cLower)

		switch {
		case phonetic && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = i, score, true
			}
		case !phonetic && !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return -1, 0, false
	}
	return best, bestScore, true
}

// codesForTokens returns the union of all Double Metaphone codes of tokens.
// Empty codes (words without consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the maximum of the full-string, space-stripped and best
// pairwise-token Jaro-Winkler similarities.
func bestJWScore(inputTokens, candTokens []string, inputFull, candFull string) float64 {
	score := matchr.JaroWinkler(inputFull, candFull, false)

	if len(inputTokens) > 1 || len(candTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(candTokens, ""), false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, ct := range candTokens {
			if s := matchr.JaroWinkler(it, ct, false); s > score {
				score = s
			}
		}
	}
	return score
}
