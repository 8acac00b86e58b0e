// Package ingest turns entities and game logs into embedded chunks and writes
// them to the chunk index.
//
// Texts longer than the split threshold are cut into overlapping word chunks
// (see [Split]); shorter texts become a single chunk. Chunks are embedded in
// batches, each batch retried with exponential back-off, and every chunk of an
// owner is replaced in one go so re-indexing never leaves stale chunks behind.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/pkg/lore"
	"github.com/MrWong99/lorekeeper/pkg/provider/embeddings"
)

const (
	defaultBatchSize = 32
	defaultAttempts  = 3
	defaultDelay     = 500 * time.Millisecond
)

// Option is a functional option for [NewIndexer].
type Option func(*Indexer)

// WithChunking sets the chunk size, overlap and split threshold in words.
// Non-positive values keep the defaults.
func WithChunking(size, overlap, threshold int) Option {
	return func(ix *Indexer) {
		if size > 0 {
			ix.size = size
		}
		if overlap >= 0 {
			ix.overlap = overlap
		}
		if threshold > 0 {
			ix.threshold = threshold
		}
	}
}

// WithBatchSize caps the number of texts per embedding request.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batch = n
		}
	}
}

// WithRetry sets the attempts per batch and the initial back-off delay.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(ix *Indexer) {
		if attempts > 0 {
			ix.attempts = attempts
		}
		ix.delay = delay
	}
}

// WithMetrics records embedding latency to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(ix *Indexer) { ix.metrics = m }
}

// Indexer embeds and indexes campaign content. It is safe for concurrent use.
type Indexer struct {
	index    lore.ChunkIndex
	embedder embeddings.Provider
	metrics  *observe.Metrics

	size, overlap, threshold int
	batch                    int
	attempts                 uint
	delay                    time.Duration
}

// NewIndexer creates an [Indexer] writing to index.
func NewIndexer(index lore.ChunkIndex, embedder embeddings.Provider, opts ...Option) *Indexer {
	ix := &Indexer{
		index:     index,
		embedder:  embedder,
		size:      DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		threshold: DefaultSplitThreshold,
		batch:     defaultBatchSize,
		attempts:  defaultAttempts,
		delay:     defaultDelay,
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// EntityText is the text embedded for an entity.
func EntityText(e lore.Entity) string {
	parts := []string{e.Type.Label() + " Name: " + e.Name}
	if len(e.Aliases) > 0 {
		parts = append(parts, "Also known as: "+strings.Join(e.Aliases, ", "))
	}
	if d := strings.TrimSpace(e.Description); d != "" {
		parts = append(parts, "Description: "+d)
	}
	return strings.Join(parts, "\n\n")
}

// IndexEntity replaces the chunks of e. It returns the number of chunks
// written.
func (ix *Indexer) IndexEntity(ctx context.Context, e lore.Entity) (int, error) {
	return ix.indexOwner(ctx, e.Ref(), EntityText(e), map[string]any{"name": e.Name})
}

// IndexGameLog replaces the chunks of g. It returns the number of chunks
// written.
func (ix *Indexer) IndexGameLog(ctx context.Context, g lore.GameLog) (int, error) {
	meta := map[string]any{
		"title":          g.Title,
		"session_number": g.SessionNumber,
	}
	if g.GameDate != "" {
		meta["game_date"] = g.GameDate
	}
	return ix.indexOwner(ctx, g.Ref(), g.FullText, meta)
}

func (ix *Indexer) indexOwner(ctx context.Context, owner lore.Ref, text string, meta map[string]any) (int, error) {
	ctx, span := observe.StartSpan(ctx, "ingest.index")
	defer span.End()

	texts := ix.chunks(text)
	if err := ix.index.DeleteChunks(ctx, owner); err != nil {
		return 0, fmt.Errorf("ingest: delete chunks of %s: %w", owner, err)
	}
	if len(texts) == 0 {
		return 0, nil
	}

	vectors, err := ix.embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("ingest: embed %s: %w", owner, err)
	}

	chunks := make([]lore.Chunk, len(texts))
	for i, t := range texts {
		m := make(map[string]any, len(meta)+2)
		for k, v := range meta {
			m[k] = v
		}
		m["chunk_index"] = i
		m["chunk_count"] = len(texts)
		chunks[i] = lore.Chunk{
			ID:        ChunkID(owner, i),
			Owner:     owner,
			Index:     i,
			Text:      t,
			Embedding: vectors[i],
			Metadata:  m,
		}
	}
	if err := ix.index.IndexChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("ingest: index chunks of %s: %w", owner, err)
	}
	observe.Logger(ctx).Debug("ingest: indexed", "owner", owner.Key(), "chunks", len(chunks))
	return len(chunks), nil
}

// chunks cleans text and splits it when it exceeds the split threshold.
func (ix *Indexer) chunks(text string) []string {
	text = Clean(text)
	if text == "" {
		return nil
	}
	if len(strings.Fields(text)) <= ix.threshold {
		return []string{text}
	}
	return Split(text, ix.size, ix.overlap)
}

// embed embeds texts in batches, retrying each batch independently.
func (ix *Indexer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += ix.batch {
		batch := texts[start:min(start+ix.batch, len(texts))]

		var vecs [][]float32
		err := retry.Do(
			func() error {
				if ix.metrics != nil {
					defer ix.metrics.RecordEmbedding(ctx, "document", time.Now())
				}
				v, err := ix.embedder.EmbedBatch(ctx, batch)
				if err != nil {
					return err
				}
				if len(v) != len(batch) {
					return retry.Unrecoverable(fmt.Errorf("got %d vectors for %d texts", len(v), len(batch)))
				}
				vecs = v
				return nil
			},
			retry.Context(ctx),
			retry.Attempts(ix.attempts),
			retry.Delay(ix.delay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				observe.Logger(ctx).Warn("ingest: embedding batch failed, retrying", "attempt", n+1, "err", err)
			}),
		)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// ChunkID returns the deterministic ID of the i-th chunk of owner.
func ChunkID(owner lore.Ref, i int) string {
	sum := sha256.Sum256([]byte(owner.Key() + "#" + strconv.Itoa(i)))
	return hex.EncodeToString(sum[:16])
}
