// Package keywords extracts salient terms from entity descriptions for
// lexical search.
//
// Terms are nouns and adjectives found by part-of-speech tagging, lower-cased,
// stripped of stopwords and deduplicated in order of first appearance.
package keywords

import (
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

// DefaultPerText is the number of keywords kept per description.
const DefaultPerText = 5

// minLength is the shortest term worth searching for.
const minLength = 3

// Extract returns at most n salient terms from text. A non-positive n means
// [DefaultPerText]. Tagging failures yield no keywords.
func Extract(text string, n int) []string {
	if n <= 0 {
		n = DefaultPerText
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, tok := range doc.Tokens() {
		if !salientTag(tok.Tag) {
			continue
		}
		w := strings.ToLower(strings.TrimFunc(tok.Text, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		if len([]rune(w)) < minLength || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == n {
			break
		}
	}
	return out
}

// FromAll extracts up to n keywords from each text and returns the
// concatenation, deduplicated across texts.
func FromAll(texts []string, n int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range texts {
		for _, k := range Extract(t, n) {
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// Terms splits a free-text question into lower-case search terms, dropping
// stopwords, question words and words shorter than three characters. Order of
// first appearance is kept and duplicates are removed. Unlike [Extract] no
// tagging is done, so verbs such as "fought" survive.
func Terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	seen := make(map[string]bool)
	for _, w := range words {
		if len([]rune(w)) < minLength || stopwords[w] || questionWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// salientTag reports whether a Penn Treebank tag marks a noun or adjective.
func salientTag(tag string) bool {
	return strings.HasPrefix(tag, "NN") || strings.HasPrefix(tag, "JJ")
}

// stopwords are common English words that the tagger occasionally labels as
// nouns or adjectives but carry no search value.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "any": true, "can": true, "her": true, "was": true,
	"one": true, "our": true, "out": true, "his": true, "has": true, "had": true,
	"him": true, "she": true, "they": true, "them": true, "their": true, "this": true,
	"that": true, "these": true, "those": true, "with": true, "from": true,
	"into": true, "over": true, "such": true, "some": true, "other": true,
	"many": true, "much": true, "more": true, "most": true, "few": true,
	"own": true, "same": true, "each": true, "every": true, "several": true,
	"thing": true, "things": true, "lot": true, "way": true, "time": true,
	"times": true, "kind": true, "sort": true, "part": true, "first": true,
	"last": true, "new": true, "old": true, "other's": true, "something": true,
	"anything": true, "everything": true, "nothing": true, "someone": true,
	"anyone": true, "everyone": true, "who": true, "what": true, "which": true,
}

// questionWords frame a question without naming anything in the lore.
var questionWords = map[string]bool{
	"where": true, "when": true, "why": true, "how": true, "whom": true, "whose": true,
	"happened": true, "happen": true, "did": true, "does": true, "were": true,
	"been": true, "have": true, "about": true, "tell": true, "know": true,
	"there": true, "then": true, "after": true, "before": true, "during": true,
}
