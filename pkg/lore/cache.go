package lore

import "time"

// CacheEntry is a cached answer keyed by a normalised query hash.
type CacheEntry struct {
	// Key is the hex SHA-256 of the normalised query and its parameters.
	Key string

	// Query is the normalised query text, kept for inspection.
	Query string

	// Payload is the serialised answer.
	Payload []byte

	// TokensSaved is the token usage a hit avoids.
	TokensSaved int

	// HitCount counts cache hits. It is the only field a lookup mutates.
	HitCount int

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is no longer valid at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
