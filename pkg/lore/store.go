package lore

import (
	"context"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fuzzy name matching
// ─────────────────────────────────────────────────────────────────────────────

// AliasQuery configures a trigram alias lookup.
type AliasQuery struct {
	// Threshold is the exclusive lower bound on trigram similarity.
	Threshold float64

	// Limit caps the number of matches. Zero means no cap.
	Limit int

	// MinLength, when positive, ignores aliases shorter than this many
	// characters.
	MinLength int
}

// AliasMatch is one alias matched by an [AliasIndex].
type AliasMatch struct {
	Alias      string
	Entity     Ref
	Similarity float64
}

// AliasIndex finds entity aliases similar to a phrase using trigram
// similarity.
type AliasIndex interface {
	// MatchAliases returns aliases whose trigram similarity with phrase is
	// strictly greater than q.Threshold, ordered by similarity descending.
	MatchAliases(ctx context.Context, phrase string, q AliasQuery) ([]AliasMatch, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Content stores
// ─────────────────────────────────────────────────────────────────────────────

// EntityFilter narrows [EntityStore.ListEntities].
type EntityFilter struct {
	// Type restricts results to one entity type. Empty means all types.
	Type ContentType
}

// EntityStore persists entities and their aliases.
type EntityStore interface {
	// UpsertEntity inserts or replaces e together with its alias set.
	UpsertEntity(ctx context.Context, e Entity) error

	// Entities loads the entities referenced by refs in the order given.
	// Refs that do not resolve are silently omitted.
	Entities(ctx context.Context, refs []Ref) ([]Entity, error)

	// ListEntities returns every entity matching f, ordered by type and name.
	ListEntities(ctx context.Context, f EntityFilter) ([]Entity, error)
}

// LogStore persists game logs.
type LogStore interface {
	// UpsertGameLog inserts or replaces g.
	UpsertGameLog(ctx context.Context, g GameLog) error

	// GameLogs loads the logs with the given IDs in the order given. IDs that
	// do not resolve are silently omitted.
	GameLogs(ctx context.Context, ids []string) ([]GameLog, error)

	// AllGameLogs returns every log ordered by session number.
	AllGameLogs(ctx context.Context) ([]GameLog, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Retrieval indexes
// ─────────────────────────────────────────────────────────────────────────────

// ChunkQuery configures a vector search.
type ChunkQuery struct {
	// Limit caps the number of results. Zero means no cap.
	Limit int

	// MinSimilarity is the inclusive lower bound on 1 − cosine distance.
	MinSimilarity float64

	// ContentTypes restricts results to chunks owned by these types. Empty
	// means all types.
	ContentTypes []ContentType
}

// ChunkMatch is a chunk returned by [ChunkIndex.SearchChunks].
type ChunkMatch struct {
	Chunk Chunk

	// Similarity is 1 − cosine distance to the query embedding.
	Similarity float64
}

// ChunkIndex is a vector index over embedded chunks.
type ChunkIndex interface {
	// IndexChunks upserts pre-embedded chunks.
	IndexChunks(ctx context.Context, chunks []Chunk) error

	// DeleteChunks removes every chunk owned by owner.
	DeleteChunks(ctx context.Context, owner Ref) error

	// SearchChunks returns chunks ordered by similarity descending.
	SearchChunks(ctx context.Context, embedding []float32, q ChunkQuery) ([]ChunkMatch, error)
}

// TextQuery is a lexical query matching logs that contain any of its terms.
// A multi-word term matches as a phrase. Logs matching more terms, or the
// same terms more often, rank higher.
type TextQuery struct {
	AnyOf []string
}

// IsEmpty reports whether q has nothing to search for.
func (q TextQuery) IsEmpty() bool {
	return len(q.AnyOf) == 0
}

// LogRank is one game log matched by a [TextIndex].
type LogRank struct {
	LogID string
	Rank  float64
}

// TextIndex ranks game logs lexically over their title, summary and full text.
type TextIndex interface {
	// RankLogs returns matching logs ordered by rank descending.
	RankLogs(ctx context.Context, q TextQuery, limit int) ([]LogRank, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Conversation and cache state
// ─────────────────────────────────────────────────────────────────────────────

// ChatStore persists chat sessions and their messages.
type ChatStore interface {
	// CreateSession creates and returns a new empty session.
	CreateSession(ctx context.Context, userID, title string) (ChatSession, error)

	// Session returns the session with the given ID or [ErrNotFound].
	Session(ctx context.Context, id string) (ChatSession, error)

	// AppendMessage stores m and returns it with ID and CreatedAt populated.
	AppendMessage(ctx context.Context, m ChatMessage) (ChatMessage, error)

	// Messages returns the session's messages in chronological order. A
	// positive limit keeps only the newest limit messages.
	Messages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error)

	// UpdateMemory runs fn with a consistent snapshot of the session's memory
	// state and atomically persists the returned update. Concurrent calls for
	// the same session are serialised. If fn returns an error nothing is
	// persisted and the error is returned.
	UpdateMemory(ctx context.Context, sessionID string, fn func(MemorySnapshot) (MemoryUpdate, error)) error
}

// CacheStore is the key/value store behind the response cache.
type CacheStore interface {
	// GetCached returns the entry for key. The boolean is false when no entry
	// exists. Expiry is the caller's concern.
	GetCached(ctx context.Context, key string) (CacheEntry, bool, error)

	// PutCached stores e, replacing any entry with the same key.
	PutCached(ctx context.Context, e CacheEntry) error

	// IncrementHits adds one to the entry's hit count. Missing keys are
	// ignored.
	IncrementHits(ctx context.Context, key string) error

	// DeleteExpired removes entries that expired at or before now and returns
	// how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Store bundles every storage concern behind one backend.
type Store interface {
	AliasIndex
	EntityStore
	LogStore
	ChunkIndex
	TextIndex
	ChatStore
	CacheStore

	// Close releases backend resources.
	Close()
}
