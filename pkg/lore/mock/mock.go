// Package mock provides test doubles for the retrieval indexes in package lore.
//
// The doubles return canned results and record every call so tests can assert
// on the queries the retrieval pipeline issues. For stateful stores (entities,
// logs, chat, cache) use memstore instead.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// AliasCall records a single invocation of MatchAliases.
type AliasCall struct {
	Phrase string
	Query  lore.AliasQuery
}

// AliasIndex is a mock implementation of [lore.AliasIndex].
type AliasIndex struct {
	mu sync.Mutex

	// Matches maps a phrase to the matches returned for it. Phrases without an
	// entry return an empty slice.
	Matches map[string][]lore.AliasMatch

	// Err, if non-nil, is returned by every call.
	Err error

	// Calls records every invocation in order.
	Calls []AliasCall
}

// MatchAliases records the call and returns Matches[phrase], Err.
func (m *AliasIndex) MatchAliases(_ context.Context, phrase string, q lore.AliasQuery) ([]lore.AliasMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, AliasCall{Phrase: phrase, Query: q})
	if m.Err != nil {
		return nil, m.Err
	}
	out := append([]lore.AliasMatch{}, m.Matches[phrase]...)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Phrases returns the phrases queried so far. Thread-safe.
func (m *AliasIndex) Phrases() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Phrase
	}
	return out
}

// SearchCall records a single invocation of SearchChunks.
type SearchCall struct {
	Embedding []float32
	Query     lore.ChunkQuery
}

// ChunkIndex is a mock implementation of [lore.ChunkIndex]. SearchChunks
// returns Results unfiltered; the threshold and type filters are the backend's
// job and are only recorded here.
type ChunkIndex struct {
	mu sync.Mutex

	// Results is returned by SearchChunks.
	Results []lore.ChunkMatch

	// SearchErr, if non-nil, is returned by SearchChunks.
	SearchErr error

	// IndexErr, if non-nil, is returned by IndexChunks.
	IndexErr error

	// Indexed accumulates chunks passed to IndexChunks.
	Indexed []lore.Chunk

	// Deleted records owners passed to DeleteChunks.
	Deleted []lore.Ref

	// SearchCalls records every invocation of SearchChunks.
	SearchCalls []SearchCall
}

// IndexChunks records the chunks and returns IndexErr.
func (m *ChunkIndex) IndexChunks(_ context.Context, chunks []lore.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IndexErr != nil {
		return m.IndexErr
	}
	m.Indexed = append(m.Indexed, chunks...)
	return nil
}

// DeleteChunks records the owner.
func (m *ChunkIndex) DeleteChunks(_ context.Context, owner lore.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, owner)
	return nil
}

// SearchChunks records the call and returns Results, SearchErr.
func (m *ChunkIndex) SearchChunks(_ context.Context, embedding []float32, q lore.ChunkQuery) ([]lore.ChunkMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchCalls = append(m.SearchCalls, SearchCall{Embedding: embedding, Query: q})
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	return append([]lore.ChunkMatch{}, m.Results...), nil
}

// TextIndex is a mock implementation of [lore.TextIndex].
type TextIndex struct {
	mu sync.Mutex

	// RankFunc, if set, computes the result for each query.
	RankFunc func(q lore.TextQuery) []lore.LogRank

	// Err, if non-nil, is returned by every call.
	Err error

	// Calls records every query in order.
	Calls []lore.TextQuery
}

// RankLogs records the call and returns RankFunc(q), Err.
func (m *TextIndex) RankLogs(_ context.Context, q lore.TextQuery, limit int) ([]lore.LogRank, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, q)
	fn, err := m.RankFunc, m.Err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return []lore.LogRank{}, nil
	}
	out := fn(q)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ lore.AliasIndex = (*AliasIndex)(nil)
	_ lore.ChunkIndex = (*ChunkIndex)(nil)
	_ lore.TextIndex  = (*TextIndex)(nil)
)
