// Package enhance runs the two-pass retrieval loop of a chat turn.
//
// Pass 1 gathers weak entity evidence for the raw question (trigram matches,
// a semantic search over entity chunks with the conversation history, and
// the entities earlier turns were answered from) and asks the generation
// service to rewrite the question into an explicit, disambiguated query.
//
// Pass 2 fans out the trigram resolver, the full-text search and one semantic
// search over every content type, all with the rewritten query. The full-text
// search is seeded with the pass-1 entities and the semantic search text is
// the rewritten query enriched with them. Semantic results are split into
// logs and entities; entities are fused from the semantic (weight 0.6) and
// trigram (0.1) signals, logs from the semantic (0.6) and full-text (0.3)
// signals. Both fused lists are trimmed of low outliers and capped.
//
// Every stage has a fallback: a failed signal contributes nothing and a failed
// rewrite keeps the raw query. Only cancellation of ctx aborts the loop.
package enhance

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/internal/rank"
	"github.com/MrWong99/lorekeeper/internal/resolve"
	"github.com/MrWong99/lorekeeper/internal/search"
	"github.com/MrWong99/lorekeeper/pkg/lore"
	"github.com/MrWong99/lorekeeper/pkg/provider/llm"
)

// Resolver finds entities mentioned in free text.
type Resolver interface {
	Resolve(ctx context.Context, text string) ([]resolve.Resolution, error)
}

// SemanticSearcher runs a vector search over content chunks.
type SemanticSearcher interface {
	Search(ctx context.Context, query string, q search.SemanticQuery) ([]search.SemanticResult, error)
}

// LogSearcher runs a weighted lexical search over game logs.
type LogSearcher interface {
	Search(ctx context.Context, query string, entities []lore.Entity, limit int) ([]search.LogHit, error)
}

// Weights are the fusion weights of the retrieval signals.
type Weights struct {
	Semantic float64
	FullText float64
	Trigram  float64
}

// DefaultWeights are the production fusion weights.
var DefaultWeights = Weights{Semantic: 0.6, FullText: 0.3, Trigram: 0.1}

// Config tunes an [Enhancer]. Zero fields take the documented defaults.
type Config struct {
	// SimilarityThreshold is the semantic search threshold. Zero is a valid
	// threshold and is used as-is.
	SimilarityThreshold float64

	// MaxContextChunks caps each semantic search. Default 8.
	MaxContextChunks int

	// FullTextLimit caps the full-text search. Default 20.
	FullTextLimit int

	// MaxLogs and MaxEntities cap the fused results. Defaults 10 and 15.
	MaxLogs     int
	MaxEntities int

	// Weights are the fusion weights. The zero value selects DefaultWeights.
	Weights Weights

	// RewriteTemperature is forwarded to the rewrite call. Default 0.
	RewriteTemperature float64

	// RewriteTimeout bounds the rewrite call. Default 30s.
	RewriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxContextChunks <= 0 {
		c.MaxContextChunks = 8
	}
	if c.FullTextLimit <= 0 {
		c.FullTextLimit = 20
	}
	if c.MaxLogs <= 0 {
		c.MaxLogs = 10
	}
	if c.MaxEntities <= 0 {
		c.MaxEntities = 15
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights
	}
	if c.RewriteTimeout <= 0 {
		c.RewriteTimeout = 30 * time.Second
	}
	return c
}

// Session is the per-turn context of a question.
type Session struct {
	// History is the prior conversation as "role: content" lines. Empty for
	// a session-less question.
	History string

	// Sources are the records earlier turns of the session were answered
	// from. Only entity refs are used.
	Sources []lore.Ref

	// SimilarityThreshold overrides [Config.SimilarityThreshold] for this
	// turn when non-nil.
	SimilarityThreshold *float64
}

// Result is the outcome of [Enhancer.EnhanceAndRetrieve].
type Result struct {
	// EnhancedQuery is the query pass 2 retrieved with: the rewrite, or the
	// raw query when the rewrite failed or came back empty.
	EnhancedQuery string

	// Entities and Logs are the fused, trimmed and capped results in rank
	// order.
	Entities []lore.Entity
	Logs     []lore.GameLog

	// NotFound is true when no signal found anything. Entities and Logs are
	// empty and no answer should be generated.
	NotFound bool
}

// Enhancer runs the two-pass retrieval loop. It is safe for concurrent use.
type Enhancer struct {
	resolver Resolver
	semantic SemanticSearcher
	fulltext LogSearcher
	entities lore.EntityStore
	llm      llm.Provider
	cfg      Config
	metrics  *observe.Metrics
}

// New creates an [Enhancer]. entities loads the entities referenced by
// earlier turns; provider rewrites the query.
func New(resolver Resolver, semantic SemanticSearcher, fulltext LogSearcher, entities lore.EntityStore, provider llm.Provider, cfg Config) *Enhancer {
	return &Enhancer{
		resolver: resolver,
		semantic: semantic,
		fulltext: fulltext,
		entities: entities,
		llm:      provider,
		cfg:      cfg.withDefaults(),
		metrics:  observe.DefaultMetrics(),
	}
}

// SimilarityThreshold returns the default semantic search threshold.
func (e *Enhancer) SimilarityThreshold() float64 { return e.cfg.SimilarityThreshold }

// SetMetrics replaces the metrics sink. It must be called before first use.
func (e *Enhancer) SetMetrics(m *observe.Metrics) { e.metrics = m }

// EnhanceAndRetrieve rewrites rawQuery with the help of sess and retrieves the
// fused entities and logs for it. The only error it returns is ctx's.
func (e *Enhancer) EnhanceAndRetrieve(ctx context.Context, rawQuery string, sess Session) (Result, error) {
	if t := sess.SimilarityThreshold; t != nil && *t != e.cfg.SimilarityThreshold {
		turn := *e
		turn.cfg.SimilarityThreshold = *t
		e = &turn
	}

	ctx, span := observe.StartSpan(ctx, "enhance.retrieve")
	defer span.End()
	start := time.Now()
	defer e.metrics.RecordStage(ctx, "enhance", start)

	hints := e.gather(ctx, rawQuery, sess)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	query := e.rewrite(ctx, rawQuery, sess.History, hints)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res, err := e.retrieve(ctx, query, hints)
	if err != nil {
		return Result{}, err
	}
	res.EnhancedQuery = query
	return res, nil
}

// gather collects pass-1 entity evidence in precedence order trigram,
// semantic, history, deduplicated by key.
func (e *Enhancer) gather(ctx context.Context, rawQuery string, sess Session) []lore.Entity {
	var trigram, semantic, history []lore.Entity

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, r := range e.resolveSignal(gctx, rawQuery) {
			trigram = append(trigram, r.Entity)
		}
		return nil
	})
	g.Go(func() error {
		text := rawQuery
		if sess.History != "" {
			text = sess.History + "\n\nQuestion: " + rawQuery
		}
		for _, r := range e.semanticSignal(gctx, text, lore.EntityTypes) {
			if ent, ok := r.Object.(lore.Entity); ok {
				semantic = append(semantic, ent)
			}
		}
		return nil
	})
	g.Go(func() error {
		history = e.historyEntities(gctx, sess.Sources)
		return nil
	})
	_ = g.Wait()

	return mergeEntities(trigram, semantic, history)
}

// retrieve is pass 2: the three signals run concurrently with query, and
// their results are fused into ranked entities and logs.
func (e *Enhancer) retrieve(ctx context.Context, query string, hints []lore.Entity) (Result, error) {
	var (
		trigram  []resolve.Resolution
		hits     []search.LogHit
		semantic []search.SemanticResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		trigram = e.resolveSignal(gctx, query)
		return nil
	})
	g.Go(func() error {
		hits = e.fullTextSignal(gctx, query, hints)
		return nil
	})
	g.Go(func() error {
		semantic = e.semanticSignal(gctx, EnrichedQuery(query, hints), nil)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if len(trigram) == 0 && len(hits) == 0 && len(semantic) == 0 {
		observe.Logger(ctx).Info("enhance: no evidence", "query", query)
		return Result{NotFound: true, Entities: []lore.Entity{}, Logs: []lore.GameLog{}}, nil
	}

	var logChunks, entityChunks []search.SemanticResult
	for _, r := range semantic {
		if r.ContentType() == lore.TypeGameLog {
			logChunks = append(logChunks, r)
		} else {
			entityChunks = append(entityChunks, r)
		}
	}

	trigramList := make([]rank.Scored[lore.Entity], 0, len(trigram))
	for _, r := range trigram {
		trigramList = append(trigramList, rank.Scored[lore.Entity]{
			Key:   r.Entity.Ref().Key(),
			Item:  r.Entity,
			Score: r.Similarity,
		})
	}

	// Full-text hits enter fusion by position, not by backend rank.
	n := float64(len(hits))
	fullText := make([]rank.Scored[lore.GameLog], len(hits))
	for i, h := range hits {
		fullText[i] = rank.Scored[lore.GameLog]{
			Key:   h.Log.Ref().Key(),
			Item:  h.Log,
			Score: (n - float64(i)) / n,
		}
	}

	fusedEntities := rank.Trim(rank.Fuse(
		rank.Weighted[lore.Entity]{List: bestPerOwner[lore.Entity](entityChunks), Weight: e.cfg.Weights.Semantic},
		rank.Weighted[lore.Entity]{List: trigramList, Weight: e.cfg.Weights.Trigram},
	))
	fusedLogs := rank.Trim(rank.Fuse(
		rank.Weighted[lore.GameLog]{List: bestPerOwner[lore.GameLog](logChunks), Weight: e.cfg.Weights.Semantic},
		rank.Weighted[lore.GameLog]{List: fullText, Weight: e.cfg.Weights.FullText},
	))

	ents := rank.Items(rank.Top(fusedEntities, e.cfg.MaxEntities))
	logs := rank.Items(rank.Top(fusedLogs, e.cfg.MaxLogs))
	e.metrics.RecordFused(ctx, "logs", len(logs))
	e.metrics.RecordFused(ctx, "entities", len(ents))
	return Result{Entities: ents, Logs: logs}, nil
}

func (e *Enhancer) resolveSignal(ctx context.Context, text string) []resolve.Resolution {
	start := time.Now()
	defer e.metrics.RecordStage(ctx, "trigram", start)
	res, err := e.resolver.Resolve(ctx, text)
	if err != nil {
		observe.Logger(ctx).Warn("enhance: trigram signal failed", "err", err)
		return nil
	}
	return res
}

func (e *Enhancer) semanticSignal(ctx context.Context, text string, types []lore.ContentType) []search.SemanticResult {
	res, err := e.semantic.Search(ctx, text, search.SemanticQuery{
		Limit:        e.cfg.MaxContextChunks,
		Threshold:    e.cfg.SimilarityThreshold,
		ContentTypes: types,
	})
	if err != nil {
		observe.Logger(ctx).Warn("enhance: semantic signal failed", "err", err)
		return nil
	}
	return res
}

func (e *Enhancer) fullTextSignal(ctx context.Context, query string, entities []lore.Entity) []search.LogHit {
	hits, err := e.fulltext.Search(ctx, query, entities, e.cfg.FullTextLimit)
	if err != nil {
		observe.Logger(ctx).Warn("enhance: full-text signal failed", "err", err)
		return nil
	}
	return hits
}

func (e *Enhancer) historyEntities(ctx context.Context, sources []lore.Ref) []lore.Entity {
	var refs []lore.Ref
	for _, r := range sources {
		if r.Type.IsEntity() {
			refs = append(refs, r)
		}
	}
	if len(refs) == 0 || e.entities == nil {
		return nil
	}
	ents, err := e.entities.Entities(ctx, refs)
	if err != nil {
		observe.Logger(ctx).Warn("enhance: load history entities", "err", err)
		return nil
	}
	return ents
}

// bestPerOwner turns chunk results into one scored item per owner, keeping
// the owner's most similar chunk. Owners whose loaded object is not a T are
// skipped.
func bestPerOwner[T any](results []search.SemanticResult) []rank.Scored[T] {
	idx := make(map[string]int, len(results))
	var out []rank.Scored[T]
	for _, r := range results {
		item, ok := r.Object.(T)
		if !ok {
			continue
		}
		key := r.Owner.Key()
		if i, seen := idx[key]; seen {
			if r.Similarity > out[i].Score {
				out[i].Score = r.Similarity
			}
			continue
		}
		idx[key] = len(out)
		out = append(out, rank.Scored[T]{Key: key, Item: item, Score: r.Similarity})
	}
	return out
}

// mergeEntities concatenates lists in order, keeping the first occurrence of
// every entity.
func mergeEntities(lists ...[]lore.Entity) []lore.Entity {
	seen := make(map[string]bool)
	var out []lore.Entity
	for _, l := range lists {
		for _, e := range l {
			k := e.Ref().Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, e)
		}
	}
	return out
}
