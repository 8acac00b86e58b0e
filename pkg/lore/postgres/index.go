package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// IndexChunks implements [lore.ChunkIndex]. Chunks are upserted in a single
// batch; a chunk with an existing ID is completely replaced.
func (s *Store) IndexChunks(ctx context.Context, chunks []lore.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	const q = `
		INSERT INTO chunks
		    (id, owner_type, owner_id, chunk_index, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    owner_type  = EXCLUDED.owner_type,
		    owner_id    = EXCLUDED.owner_id,
		    chunk_index = EXCLUDED.chunk_index,
		    content     = EXCLUDED.content,
		    embedding   = EXCLUDED.embedding,
		    metadata    = EXCLUDED.metadata`

	batch := &pgx.Batch{}
	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("chunk index: encode metadata of %q: %w", c.ID, err)
		}
		if c.Metadata == nil {
			meta = []byte("{}")
		}
		batch.Queue(q,
			c.ID,
			string(c.Owner.Type),
			c.Owner.ID,
			c.Index,
			c.Text,
			pgvector.NewVector(c.Embedding),
			meta,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("chunk index: index chunks: %w", err)
	}
	return nil
}

// DeleteChunks implements [lore.ChunkIndex].
func (s *Store) DeleteChunks(ctx context.Context, owner lore.Ref) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM chunks WHERE owner_type = $1 AND owner_id = $2`,
		string(owner.Type), owner.ID,
	)
	if err != nil {
		return fmt.Errorf("chunk index: delete chunks of %s: %w", owner, err)
	}
	return nil
}

// SearchChunks implements [lore.ChunkIndex]. Similarity is 1 − cosine
// distance (the pgvector <=> operator).
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, q lore.ChunkQuery) ([]lore.ChunkMatch, error) {
	args := []any{pgvector.NewVector(embedding)} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"1 - (embedding <=> $1) >= " + next(q.MinSimilarity)}
	if len(q.ContentTypes) > 0 {
		types := make([]string, len(q.ContentTypes))
		for i, t := range q.ContentTypes {
			types[i] = string(t)
		}
		conditions = append(conditions, "owner_type = ANY("+next(types)+")")
	}
	limitClause := ""
	if q.Limit > 0 {
		limitClause = "LIMIT " + next(q.Limit)
	}

	query := fmt.Sprintf(`
		SELECT id, owner_type, owner_id, chunk_index, content, metadata,
		       1 - (embedding <=> $1) AS similarity
		FROM   chunks
		WHERE  %s
		ORDER  BY embedding <=> $1, id
		%s`, strings.Join(conditions, "\n  AND "), limitClause)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chunk index: search: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (lore.ChunkMatch, error) {
		var (
			m    lore.ChunkMatch
			typ  string
			meta []byte
		)
		if err := row.Scan(&m.Chunk.ID, &typ, &m.Chunk.Owner.ID, &m.Chunk.Index, &m.Chunk.Text, &meta, &m.Similarity); err != nil {
			return lore.ChunkMatch{}, err
		}
		m.Chunk.Owner.Type = lore.ContentType(typ)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Chunk.Metadata); err != nil {
				return lore.ChunkMatch{}, fmt.Errorf("decode metadata: %w", err)
			}
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("chunk index: scan rows: %w", err)
	}
	if results == nil {
		results = []lore.ChunkMatch{}
	}
	return results, nil
}

// RankLogs implements [lore.TextIndex] with ts_rank over the generated
// 'simple' tsvector. Terms are sanitised and OR'ed, multi-word terms becoming
// phrase queries.
func (s *Store) RankLogs(ctx context.Context, q lore.TextQuery, limit int) ([]lore.LogRank, error) {
	text := orQuery(q.AnyOf)
	if text == "" {
		return []lore.LogRank{}, nil
	}
	const tsquery = "to_tsquery('simple', $1)"

	args := []any{text}
	limitClause := ""
	if limit > 0 {
		args = append(args, limit)
		limitClause = "LIMIT $2"
	}
	query := fmt.Sprintf(`
		SELECT id, ts_rank(search, %[1]s) AS rank
		FROM   game_logs
		WHERE  search @@ %[1]s
		ORDER  BY rank DESC, id
		%[2]s`, tsquery, limitClause)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("text index: rank logs: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (lore.LogRank, error) {
		var (
			r    lore.LogRank
			rank float32
		)
		err := row.Scan(&r.LogID, &rank)
		r.Rank = float64(rank)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("text index: scan rows: %w", err)
	}
	if out == nil {
		out = []lore.LogRank{}
	}
	return out, nil
}

// orQuery builds a to_tsquery expression matching any of terms. Every
// character outside letters and digits is treated as a separator so user text
// cannot inject tsquery operators.
func orQuery(terms []string) string {
	var parts []string
	seen := make(map[string]bool)
	for _, t := range terms {
		words := strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(words) == 0 {
			continue
		}
		p := strings.Join(words, " <-> ")
		if len(words) > 1 {
			p = "(" + p + ")"
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		parts = append(parts, p)
	}
	return strings.Join(parts, " | ")
}
