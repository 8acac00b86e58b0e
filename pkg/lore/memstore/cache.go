package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// GetCached implements [lore.CacheStore].
func (s *Store) GetCached(_ context.Context, key string) (lore.CacheEntry, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return lore.CacheEntry{}, false, nil
	}
	return v.(lore.CacheEntry), true, nil
}

// PutCached implements [lore.CacheStore].
func (s *Store) PutCached(_ context.Context, e lore.CacheEntry) error {
	e.Payload = slices.Clone(e.Payload)
	s.cache.Add(e.Key, e)
	return nil
}

// IncrementHits implements [lore.CacheStore]. The read-modify-write is not
// atomic with concurrent increments, matching the backend contract.
func (s *Store) IncrementHits(_ context.Context, key string) error {
	v, ok := s.cache.Peek(key)
	if !ok {
		return nil
	}
	e := v.(lore.CacheEntry)
	e.HitCount++
	s.cache.Add(key, e)
	return nil
}

// DeleteExpired implements [lore.CacheStore].
func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, k := range s.cache.Keys() {
		v, ok := s.cache.Peek(k)
		if !ok {
			continue
		}
		if v.(lore.CacheEntry).Expired(now) {
			s.cache.Remove(k)
			n++
		}
	}
	return n, nil
}
