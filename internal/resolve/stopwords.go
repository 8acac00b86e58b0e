package resolve

// stopwords are question words, articles, prepositions and common verbs that
// rarely begin an entity name. With the stopword filter enabled, n-grams
// starting with one of them are not looked up.
var stopwords = map[string]bool{
	"what": true, "when": true, "where": true, "why": true, "how": true, "who": true,
	"which": true, "that": true, "this": true, "these": true, "those": true,

	"a": true, "an": true, "and": true, "or": true, "but": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "of": true, "with": true, "by": true, "from": true,
	"about": true, "into": true, "through": true, "during": true, "before": true,
	"after": true, "above": true, "below": true, "between": true, "among": true,
	"against": true, "under": true, "over": true, "up": true, "down": true, "out": true,
	"off": true, "near": true, "far": true,

	"happened": true, "fight": true, "brokered": true, "went": true, "came": true,
	"said": true, "told": true, "asked": true, "gave": true, "took": true, "made": true,
	"did": true, "was": true, "were": true, "is": true, "are": true, "been": true,
	"being": true, "have": true, "has": true, "had": true,

	"all": true, "some": true, "any": true, "each": true, "every": true, "other": true,
	"another": true, "such": true, "same": true, "different": true, "more": true,
	"most": true, "less": true, "few": true, "many": true, "much": true,
	"several": true, "both": true, "either": true, "neither": true,
}

// IsStopword reports whether w (lower-case) is in the stopword list.
func IsStopword(w string) bool { return stopwords[w] }
