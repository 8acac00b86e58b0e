// Package resolve maps free text onto known entities by fuzzy-matching word
// n-grams of the text against the alias index.
//
// Every contiguous n-gram of the cleaned text (1 to 5 words by default) is
// looked up in a [lore.AliasIndex] with a trigram similarity threshold. The
// per-n-gram matches are pooled, ordered by similarity, and walked once so
// that each entity appears at most once: the first, highest-scoring
// occurrence of an entity wins.
//
// An optional phonetic fallback (see package phonetic) catches single-word
// misspellings that share too few trigrams with any alias.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lorekeeper/internal/resolve/phonetic"
	"github.com/MrWong99/lorekeeper/pkg/lore"
)

const (
	defaultMinN        = 1
	defaultMaxN        = 5
	defaultThreshold   = 0.3
	defaultPerNGram    = 5
	defaultCap         = 50
	defaultConcurrency = 8
	ngramCacheSize     = 500

	// phoneticMinLength is the shortest single word tried against the
	// phonetic fallback.
	phoneticMinLength = 4

	// phoneticWeight scales a Jaro-Winkler confidence into the trigram
	// similarity range so phonetic hits never outrank direct matches.
	phoneticWeight = 0.5
)

// Resolution is one entity found in the text.
type Resolution struct {
	Entity lore.Entity

	// Alias is the alias string that matched.
	Alias string

	// Similarity is the trigram similarity between the alias and the
	// matching n-gram, in (threshold, 1].
	Similarity float64

	// Phonetic is true when the match came from the phonetic fallback.
	Phonetic bool
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithNGramRange sets the inclusive word count range of generated n-grams.
func WithNGramRange(minN, maxN int) Option {
	return func(r *Resolver) {
		r.minN, r.maxN = minN, maxN
	}
}

// WithThreshold sets the exclusive lower bound on trigram similarity.
func WithThreshold(t float64) Option {
	return func(r *Resolver) { r.threshold = t }
}

// WithPerNGram caps the number of alias matches kept per n-gram.
func WithPerNGram(k int) Option {
	return func(r *Resolver) { r.perNGram = k }
}

// WithCap caps the number of resolved entities.
func WithCap(n int) Option {
	return func(r *Resolver) { r.cap = n }
}

// WithMinAliasLength ignores aliases shorter than n characters.
func WithMinAliasLength(n int) Option {
	return func(r *Resolver) { r.minAliasLength = n }
}

// WithStopwordFilter skips n-grams that start with a stopword, are very
// short, or are purely numeric.
func WithStopwordFilter(enabled bool) Option {
	return func(r *Resolver) { r.filterStopwords = enabled }
}

// WithPhonetic enables the phonetic fallback for single words that produced
// no trigram match. A nil matcher disables it.
func WithPhonetic(m *phonetic.Matcher) Option {
	return func(r *Resolver) { r.phonetic = m }
}

// WithConcurrency bounds the number of alias lookups in flight.
func WithConcurrency(n int) Option {
	return func(r *Resolver) { r.concurrency = n }
}

// Resolver is safe for concurrent use.
type Resolver struct {
	aliases  lore.AliasIndex
	entities lore.EntityStore

	minN, maxN      int
	threshold       float64
	perNGram        int
	cap             int
	minAliasLength  int
	filterStopwords bool
	concurrency     int
	phonetic        *phonetic.Matcher

	// ngrams caches the n-gram expansion of recently seen texts.
	ngrams *lru.Cache
}

// New returns a Resolver backed by the given alias index and entity store.
func New(aliases lore.AliasIndex, entities lore.EntityStore, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		aliases:     aliases,
		entities:    entities,
		minN:        defaultMinN,
		maxN:        defaultMaxN,
		threshold:   defaultThreshold,
		perNGram:    defaultPerNGram,
		cap:         defaultCap,
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o(r)
	}
	if r.minN < 1 || r.maxN < r.minN {
		return nil, fmt.Errorf("resolve: invalid n-gram range [%d, %d]", r.minN, r.maxN)
	}
	if r.threshold < 0 || r.threshold >= 1 {
		return nil, fmt.Errorf("resolve: threshold %v outside [0, 1)", r.threshold)
	}
	cache, err := lru.New(ngramCacheSize)
	if err != nil {
		return nil, fmt.Errorf("resolve: create n-gram cache: %w", err)
	}
	r.ngrams = cache
	return r, nil
}

// candidate is an alias match before entity hydration.
type candidate struct {
	lore.AliasMatch
	phonetic bool
}

// Resolve returns the entities mentioned in text, ordered by similarity
// descending. Empty text yields an empty, non-nil slice.
func (r *Resolver) Resolve(ctx context.Context, text string) ([]Resolution, error) {
	grams := r.expand(text)
	if len(grams) == 0 {
		return []Resolution{}, nil
	}

	perGram := make([][]lore.AliasMatch, len(grams))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	q := lore.AliasQuery{Threshold: r.threshold, Limit: r.perNGram, MinLength: r.minAliasLength}
	for i, gram := range grams {
		g.Go(func() error {
			m, err := r.aliases.MatchAliases(gctx, gram, q)
			if err != nil {
				return fmt.Errorf("resolve: match %q: %w", gram, err)
			}
			perGram[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pool []candidate
	for _, ms := range perGram {
		for _, m := range ms {
			pool = append(pool, candidate{AliasMatch: m})
		}
	}

	if r.phonetic != nil {
		extra, err := r.phoneticCandidates(ctx, grams, perGram)
		if err != nil {
			// The fallback is best-effort; trigram matches still stand.
			slog.Warn("resolve: phonetic fallback failed", "err", err)
		}
		pool = append(pool, extra...)
	}

	slices.SortStableFunc(pool, func(a, b candidate) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})

	var picked []candidate
	seen := make(map[string]bool)
	for _, c := range pool {
		key := c.Entity.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		picked = append(picked, c)
		if r.cap > 0 && len(picked) >= r.cap {
			break
		}
	}
	return r.hydrate(ctx, picked)
}

// Entities is a convenience wrapper returning only the resolved entities.
func (r *Resolver) Entities(ctx context.Context, text string) ([]lore.Entity, error) {
	res, err := r.Resolve(ctx, text)
	if err != nil {
		return nil, err
	}
	out := make([]lore.Entity, len(res))
	for i, x := range res {
		out[i] = x.Entity
	}
	return out, nil
}

func (r *Resolver) expand(text string) []string {
	key := strings.TrimSpace(text)
	if key == "" {
		return nil
	}
	if v, ok := r.ngrams.Get(key); ok {
		return v.([]string)
	}
	grams := NGrams(key, r.minN, r.maxN, r.filterStopwords)
	r.ngrams.Add(key, grams)
	return grams
}

// hydrate loads the entities behind picked, dropping aliases whose entity no
// longer exists.
func (r *Resolver) hydrate(ctx context.Context, picked []candidate) ([]Resolution, error) {
	out := make([]Resolution, 0, len(picked))
	if len(picked) == 0 {
		return out, nil
	}
	refs := make([]lore.Ref, len(picked))
	for i, c := range picked {
		refs[i] = c.Entity
	}
	ents, err := r.entities.Entities(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("resolve: load entities: %w", err)
	}
	byKey := make(map[string]lore.Entity, len(ents))
	for _, e := range ents {
		byKey[e.Ref().Key()] = e
	}
	for _, c := range picked {
		e, ok := byKey[c.Entity.Key()]
		if !ok {
			continue
		}
		out = append(out, Resolution{
			Entity:     e,
			Alias:      c.Alias,
			Similarity: c.Similarity,
			Phonetic:   c.phonetic,
		})
	}
	return out, nil
}

// phoneticCandidates matches single-word n-grams that found nothing against
// every known alias.
func (r *Resolver) phoneticCandidates(ctx context.Context, grams []string, perGram [][]lore.AliasMatch) ([]candidate, error) {
	var words []string
	for i, gram := range grams {
		if len(perGram[i]) > 0 || strings.Contains(gram, " ") || len(gram) < phoneticMinLength {
			continue
		}
		if IsStopword(gram) {
			continue
		}
		words = append(words, gram)
	}
	if len(words) == 0 {
		return nil, nil
	}

	all, err := r.entities.ListEntities(ctx, lore.EntityFilter{})
	if err != nil {
		return nil, err
	}
	var names []string
	var owners []lore.Ref
	for _, e := range all {
		for _, a := range e.AllAliases() {
			names = append(names, a.Name)
			owners = append(owners, a.Entity)
		}
	}

	var out []candidate
	for _, w := range words {
		idx, conf, ok := r.phonetic.Match(w, names)
		if !ok {
			continue
		}
		out = append(out, candidate{
			AliasMatch: lore.AliasMatch{
				Alias:      names[idx],
				Entity:     owners[idx],
				Similarity: conf * phoneticWeight,
			},
			phonetic: true,
		})
	}
	return out, nil
}
