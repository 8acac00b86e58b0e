// Package cache memoises answers to repeated standalone questions.
//
// Entries are keyed by the SHA-256 of the normalised question (trimmed and
// lower-cased) together with every parameter that influences the answer, so
// two requests share an entry only when they would retrieve the same context.
// Entries expire after a TTL; expired entries read as misses and are removed
// by [Cache.Purge], normally on a cron schedule (see [Cache.StartPurger]).
//
// A hit increments the entry's hit counter and changes nothing else. Hit
// counting is best-effort: a failing increment is logged and the hit still
// counts.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// DefaultTTL is how long an entry stays valid.
const DefaultTTL = 24 * time.Hour

// Params are the request parameters that take part in the cache key.
type Params map[string]string

// RetrievalParams builds the key parameters of a chat answer.
func RetrievalParams(threshold float64, types []lore.ContentType) Params {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	slices.Sort(names)
	return Params{
		"similarity_threshold": strconv.FormatFloat(threshold, 'f', -1, 64),
		"content_types":        strings.Join(names, ","),
	}
}

// Normalize returns the form of query that takes part in the key.
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Key returns the hex SHA-256 of the normalised query followed by params in
// key order.
func Key(query string, params Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	h := sha256.New()
	h.Write([]byte(Normalize(query)))
	for _, k := range keys {
		fmt.Fprintf(h, "\x00%s=%s", k, params[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Option is a functional option for [New].
type Option func(*Cache)

// WithTTL sets the entry lifetime. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache is a JSON response cache over a [lore.CacheStore].
type Cache struct {
	store   lore.CacheStore
	ttl     time.Duration
	now     func() time.Time
	metrics *observe.Metrics
}

// New creates a Cache backed by store.
func New(store lore.CacheStore, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		ttl:     DefaultTTL,
		now:     time.Now,
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get looks up query and decodes a live entry into v. It reports whether v
// was filled. Expired and undecodable entries are misses.
func (c *Cache) Get(ctx context.Context, query string, params Params, v any) (bool, error) {
	key := Key(query, params)
	e, ok, err := c.store.GetCached(ctx, key)
	if err != nil {
		c.metrics.RecordCacheLookup(ctx, "error")
		return false, fmt.Errorf("cache: get: %w", err)
	}
	if !ok || e.Expired(c.now()) {
		c.metrics.RecordCacheLookup(ctx, "miss")
		return false, nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		observe.Logger(ctx).Warn("cache: undecodable entry", "key", key, "err", err)
		c.metrics.RecordCacheLookup(ctx, "miss")
		return false, nil
	}

	if err := c.store.IncrementHits(ctx, key); err != nil {
		observe.Logger(ctx).Warn("cache: increment hits", "key", key, "err", err)
	}
	c.metrics.RecordCacheLookup(ctx, "hit")
	return true, nil
}

// Put stores v as the answer for query. tokensSaved is the token usage a hit
// avoids.
func (c *Cache) Put(ctx context.Context, query string, params Params, v any, tokensSaved int) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	now := c.now()
	e := lore.CacheEntry{
		Key:         Key(query, params),
		Query:       Normalize(query),
		Payload:     payload,
		TokensSaved: tokensSaved,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.ttl),
	}
	if err := c.store.PutCached(ctx, e); err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}

// Purge removes every entry expired at the current time.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	n, err := c.store.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("cache: purge: %w", err)
	}
	return n, nil
}
