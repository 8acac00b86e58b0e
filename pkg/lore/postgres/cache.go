package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// GetCached implements [lore.CacheStore].
func (s *Store) GetCached(ctx context.Context, key string) (lore.CacheEntry, bool, error) {
	const q = `
		SELECT query_hash, query_text, response, tokens_saved, hit_count, created_at, expires_at
		FROM   query_cache
		WHERE  query_hash = $1`

	var e lore.CacheEntry
	err := s.pool.QueryRow(ctx, q, key).Scan(&e.Key, &e.Query, &e.Payload, &e.TokensSaved, &e.HitCount, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return lore.CacheEntry{}, false, nil
	}
	if err != nil {
		return lore.CacheEntry{}, false, fmt.Errorf("cache store: get: %w", err)
	}
	return e, true, nil
}

// PutCached implements [lore.CacheStore]. The last write wins.
func (s *Store) PutCached(ctx context.Context, e lore.CacheEntry) error {
	const q = `
		INSERT INTO query_cache
		    (query_hash, query_text, response, tokens_saved, hit_count, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (query_hash) DO UPDATE SET
		    query_text   = EXCLUDED.query_text,
		    response     = EXCLUDED.response,
		    tokens_saved = EXCLUDED.tokens_saved,
		    hit_count    = EXCLUDED.hit_count,
		    created_at   = EXCLUDED.created_at,
		    expires_at   = EXCLUDED.expires_at`

	_, err := s.pool.Exec(ctx, q, e.Key, e.Query, e.Payload, e.TokensSaved, e.HitCount, e.CreatedAt, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("cache store: put: %w", err)
	}
	return nil
}

// IncrementHits implements [lore.CacheStore].
func (s *Store) IncrementHits(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `UPDATE query_cache SET hit_count = hit_count + 1 WHERE query_hash = $1`, key)
	if err != nil {
		return fmt.Errorf("cache store: increment hits: %w", err)
	}
	return nil
}

// DeleteExpired implements [lore.CacheStore].
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM query_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("cache store: delete expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
