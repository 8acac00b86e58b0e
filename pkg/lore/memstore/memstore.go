// Package memstore provides an in-memory implementation of [lore.Store].
//
// It mirrors the PostgreSQL backend closely enough to run the full retrieval
// pipeline without a database: trigram similarity follows pg_trgm, vector
// search uses exact cosine similarity and lexical ranking uses term
// frequencies. It is intended for tests, demos and small single-process
// deployments; nothing is persisted.
package memstore

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

var _ lore.Store = (*Store)(nil)

// defaultCacheSize bounds the number of cached answers.
const defaultCacheSize = 1024

// Option configures a [Store].
type Option func(*Store)

// WithClock overrides the clock used for timestamps. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCacheSize bounds the response cache. Least recently used entries are
// evicted beyond size. Defaults to 1024.
func WithCacheSize(size int) Option {
	return func(s *Store) { s.cacheSize = size }
}

// Store is an in-memory [lore.Store]. The zero value is not usable; call [New].
type Store struct {
	mu sync.RWMutex

	entities map[string]lore.Entity // keyed by Ref.Key
	aliases  map[string][]lore.Alias
	logs     map[string]lore.GameLog
	chunks   map[string]lore.Chunk

	sessions map[string]lore.ChatSession
	messages map[string][]lore.ChatMessage

	// sessionLocks serialises UpdateMemory per session.
	sessionLocks sync.Map

	cacheSize int
	cache     *lru.Cache

	now func() time.Time
}

// New returns an empty Store.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		entities:  make(map[string]lore.Entity),
		aliases:   make(map[string][]lore.Alias),
		logs:      make(map[string]lore.GameLog),
		chunks:    make(map[string]lore.Chunk),
		sessions:  make(map[string]lore.ChatSession),
		messages:  make(map[string][]lore.ChatMessage),
		cacheSize: defaultCacheSize,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	cache, err := lru.New(s.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("memstore: create cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Close implements [lore.Store]. It is a no-op.
func (s *Store) Close() {}
