package memstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// IndexChunks implements [lore.ChunkIndex].
func (s *Store) IndexChunks(_ context.Context, chunks []lore.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("memstore: index chunk: empty id")
		}
		c.Embedding = slices.Clone(c.Embedding)
		c.Metadata = maps.Clone(c.Metadata)
		s.chunks[c.ID] = c
	}
	return nil
}

// DeleteChunks implements [lore.ChunkIndex].
func (s *Store) DeleteChunks(_ context.Context, owner lore.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.Owner == owner {
			delete(s.chunks, id)
		}
	}
	return nil
}

// SearchChunks implements [lore.ChunkIndex] with exact cosine similarity.
func (s *Store) SearchChunks(_ context.Context, embedding []float32, q lore.ChunkQuery) ([]lore.ChunkMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []lore.ChunkMatch{}
	for _, c := range s.chunks {
		if len(q.ContentTypes) > 0 && !slices.Contains(q.ContentTypes, c.Owner.Type) {
			continue
		}
		sim := cosine(embedding, c.Embedding)
		if sim < q.MinSimilarity {
			continue
		}
		out = append(out, lore.ChunkMatch{Chunk: c, Similarity: sim})
	}
	slices.SortFunc(out, func(a, b lore.ChunkMatch) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.ID, b.Chunk.ID)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RankLogs implements [lore.TextIndex]. A log's rank is the number of
// occurrences of all query terms, normalised by document length.
func (s *Store) RankLogs(_ context.Context, q lore.TextQuery, limit int) ([]lore.LogRank, error) {
	if q.IsEmpty() {
		return []lore.LogRank{}, nil
	}
	terms := make([][]string, 0, len(q.AnyOf))
	for _, t := range q.AnyOf {
		if w := words(t); len(w) > 0 {
			terms = append(terms, w)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []lore.LogRank{}
	for _, g := range s.logs {
		doc := words(g.Title + " " + g.Summary + " " + g.FullText)
		var rank float64
		for _, term := range terms {
			rank += float64(occurrences(doc, term))
		}
		if rank <= 0 {
			continue
		}
		out = append(out, lore.LogRank{LogID: g.ID, Rank: rank / (1 + math.Log(float64(1+len(doc))))})
	}
	slices.SortFunc(out, func(a, b lore.LogRank) int {
		if c := cmp.Compare(b.Rank, a.Rank); c != 0 {
			return c
		}
		return cmp.Compare(a.LogID, b.LogID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// occurrences counts how often the word sequence phrase occurs in doc.
func occurrences(doc, phrase []string) int {
	if len(phrase) == 0 || len(phrase) > len(doc) {
		return 0
	}
	n := 0
	for i := 0; i+len(phrase) <= len(doc); i++ {
		if slices.Equal(doc[i:i+len(phrase)], phrase) {
			n++
		}
	}
	return n
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
