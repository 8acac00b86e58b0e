// Package search implements the two stand-alone retrieval signals: vector
// similarity over content chunks ([Semantic]) and weighted lexical search over
// game logs ([FullText]).
package search

import (
	"context"
	"slices"
	"time"

	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/pkg/lore"
	"github.com/MrWong99/lorekeeper/pkg/provider/embeddings"
)

// defaultEmbedTimeout bounds a single query embedding call.
const defaultEmbedTimeout = 15 * time.Second

// SemanticQuery configures a [Semantic.Search].
type SemanticQuery struct {
	// Limit caps the number of results. Zero means no cap.
	Limit int

	// Threshold is the inclusive lower bound on similarity.
	Threshold float64

	// ContentTypes restricts results to chunks owned by these types. Empty
	// means all types.
	ContentTypes []lore.ContentType
}

// SemanticResult is one chunk found by [Semantic.Search].
type SemanticResult struct {
	ChunkID    string
	ChunkText  string
	Metadata   map[string]any
	Similarity float64
	Owner      lore.Ref

	// Object is the loaded owner: a [lore.Entity] or a [lore.GameLog] with
	// the default loaders.
	Object any
}

// ContentType returns the type of the chunk's owner.
func (r SemanticResult) ContentType() lore.ContentType { return r.Owner.Type }

// overFetch multiplies the index limit to make room for orphaned chunks.
const overFetch = 2

// SemanticOption configures a [Semantic].
type SemanticOption func(*Semantic)

// WithEmbedTimeout sets the per-call embedding timeout.
func WithEmbedTimeout(d time.Duration) SemanticOption {
	return func(s *Semantic) { s.embedTimeout = d }
}

// WithSemanticMetrics records stage latency to m.
func WithSemanticMetrics(m *observe.Metrics) SemanticOption {
	return func(s *Semantic) { s.metrics = m }
}

// Semantic is the vector similarity signal. It is safe for concurrent use.
type Semantic struct {
	embedder     embeddings.Provider
	index        lore.ChunkIndex
	loaders      *Loaders
	embedTimeout time.Duration
	metrics      *observe.Metrics
}

// NewSemantic returns a Semantic searching index with query vectors from
// embedder and resolving chunk owners through loaders.
func NewSemantic(embedder embeddings.Provider, index lore.ChunkIndex, loaders *Loaders, opts ...SemanticOption) *Semantic {
	s := &Semantic{
		embedder:     embedder,
		index:        index,
		loaders:      loaders,
		embedTimeout: defaultEmbedTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search embeds query and returns the most similar chunks whose owner still
// exists, ordered by similarity descending.
//
// An embedding failure is logged and yields an empty result without error so
// that the other retrieval signals can still answer. Index and loader
// failures are returned.
func (s *Semantic) Search(ctx context.Context, query string, q SemanticQuery) ([]SemanticResult, error) {
	ctx, span := observe.StartSpan(ctx, "search.semantic")
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.RecordStage(ctx, "semantic", time.Now())
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		observe.Logger(ctx).Warn("semantic search: embed query failed", "err", err)
		return []SemanticResult{}, nil
	}

	// Chunks of deleted owners are dropped after the index query, so fetch
	// extra candidates to still fill limit.
	matches, err := s.index.SearchChunks(ctx, vec, lore.ChunkQuery{
		Limit:         q.Limit * overFetch,
		MinSimilarity: q.Threshold,
		ContentTypes:  q.ContentTypes,
	})
	if err != nil {
		return nil, err
	}

	// The backend applies the same filters; re-applying them keeps the
	// contract independent of the backend.
	kept := matches[:0]
	for _, m := range matches {
		if m.Similarity < q.Threshold {
			continue
		}
		if len(q.ContentTypes) > 0 && !slices.Contains(q.ContentTypes, m.Chunk.Owner.Type) {
			continue
		}
		kept = append(kept, m)
	}
	slices.SortStableFunc(kept, func(a, b lore.ChunkMatch) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})

	refs := make([]lore.Ref, len(kept))
	for i, m := range kept {
		refs[i] = m.Chunk.Owner
	}
	owners, err := s.loaders.Resolve(ctx, refs)
	if err != nil {
		return nil, err
	}

	out := make([]SemanticResult, 0, len(kept))
	for _, m := range kept {
		obj, ok := owners[m.Chunk.Owner.Key()]
		if !ok {
			continue
		}
		out = append(out, SemanticResult{
			ChunkID:    m.Chunk.ID,
			ChunkText:  m.Chunk.Text,
			Metadata:   m.Chunk.Metadata,
			Similarity: m.Similarity,
			Owner:      m.Chunk.Owner,
			Object:     obj,
		})
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (s *Semantic) embed(ctx context.Context, query string) ([]float32, error) {
	if s.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.embedTimeout)
		defer cancel()
	}
	if s.metrics != nil {
		defer s.metrics.RecordEmbedding(ctx, "query", time.Now())
	}
	return s.embedder.Embed(ctx, query)
}
