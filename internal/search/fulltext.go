package search

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lorekeeper/internal/keywords"
	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/pkg/lore"
)

const (
	defaultRawWeight     = 3.0
	defaultNameWeight    = 2.0
	defaultKeywordWeight = 1.0
	defaultRankFloor     = 0.1

	// candidatePool is how many logs each sub-query may contribute before
	// combination.
	candidatePool = 100
)

// LogHit is one game log found by [FullText.Search].
type LogHit struct {
	Log   lore.GameLog
	Score float64
}

// FullTextOption configures a [FullText].
type FullTextOption func(*FullText)

// WithWeights sets the weights of the raw, name and keyword sub-queries.
func WithWeights(raw, names, keywords float64) FullTextOption {
	return func(f *FullText) { f.weights = [3]float64{raw, names, keywords} }
}

// WithRankFloor drops logs whose combined rank is below floor.
func WithRankFloor(floor float64) FullTextOption {
	return func(f *FullText) { f.floor = floor }
}

// WithKeywordsPerEntity caps the description keywords taken per entity.
func WithKeywordsPerEntity(n int) FullTextOption {
	return func(f *FullText) { f.perEntity = n }
}

// WithFullTextMetrics records stage latency to m.
func WithFullTextMetrics(m *observe.Metrics) FullTextOption {
	return func(f *FullText) { f.metrics = m }
}

// FullText is the weighted lexical signal over game logs. It is safe for
// concurrent use.
type FullText struct {
	index     lore.TextIndex
	logs      lore.LogStore
	weights   [3]float64
	floor     float64
	perEntity int
	metrics   *observe.Metrics
}

// NewFullText returns a FullText ranking logs with index and loading them
// from logs.
func NewFullText(index lore.TextIndex, logs lore.LogStore, opts ...FullTextOption) *FullText {
	f := &FullText{
		index:     index,
		logs:      logs,
		weights:   [3]float64{defaultRawWeight, defaultNameWeight, defaultKeywordWeight},
		floor:     defaultRankFloor,
		perEntity: keywords.DefaultPerText,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Queries builds the three sub-queries for query and entities: the terms of
// the question, every entity name and alias, and salient description
// keywords. Each matches a log that contains any of its terms.
func (f *FullText) Queries(query string, entities []lore.Entity) [3]lore.TextQuery {
	var names, descs []string
	seen := make(map[string]bool)
	for _, e := range entities {
		for _, a := range e.AllAliases() {
			if seen[a.Name] {
				continue
			}
			seen[a.Name] = true
			names = append(names, a.Name)
		}
		if e.Description != "" {
			descs = append(descs, e.Description)
		}
	}
	return [3]lore.TextQuery{
		{AnyOf: keywords.Terms(query)},
		{AnyOf: names},
		{AnyOf: keywords.FromAll(descs, f.perEntity)},
	}
}

// Search ranks game logs for query, boosted by the names and description
// keywords of entities. Each log's combined score is the weighted sum of its
// rank under the three sub-queries. Logs below the rank floor are dropped and
// the rest returned in descending score order, at most limit of them.
func (f *FullText) Search(ctx context.Context, query string, entities []lore.Entity, limit int) ([]LogHit, error) {
	ctx, span := observe.StartSpan(ctx, "search.fulltext")
	defer span.End()
	if f.metrics != nil {
		defer f.metrics.RecordStage(ctx, "fulltext", time.Now())
	}

	queries := f.Queries(query, entities)
	ranks := make([][]lore.LogRank, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		if q.IsEmpty() {
			continue
		}
		g.Go(func() error {
			r, err := f.index.RankLogs(gctx, q, candidatePool)
			if err != nil {
				return fmt.Errorf("full-text search: sub-query %d: %w", i+1, err)
			}
			ranks[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined := make(map[string]float64)
	var order []string
	for i, rs := range ranks {
		for _, r := range rs {
			if _, ok := combined[r.LogID]; !ok {
				order = append(order, r.LogID)
			}
			combined[r.LogID] += f.weights[i] * r.Rank
		}
	}

	ids := order[:0]
	for _, id := range order {
		if combined[id] >= f.floor {
			ids = append(ids, id)
		}
	}
	slices.SortStableFunc(ids, func(a, b string) int {
		if c := cmp.Compare(combined[b], combined[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	if len(ids) == 0 {
		return []LogHit{}, nil
	}

	logs, err := f.logs.GameLogs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("full-text search: load logs: %w", err)
	}
	byID := make(map[string]lore.GameLog, len(logs))
	for _, g := range logs {
		byID[g.ID] = g
	}
	out := make([]LogHit, 0, len(ids))
	for _, id := range ids {
		g, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, LogHit{Log: g, Score: combined[id]})
	}
	return out, nil
}
