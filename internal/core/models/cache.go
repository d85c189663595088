package models

import "time"

// CacheEntry wraps a cached value with the instant it was fetched.
// Only the TTL-gated remote cache uses this; the local cache is
// invalidated exactly by watcher events and carries no fetch time.
type CacheEntry[T any] struct {
	Value     T
	FetchedAt time.Time
}

// Fresh reports whether the entry is still within its TTL at now.
func (e CacheEntry[T]) Fresh(now time.Time, ttl time.Duration) bool {
	return !e.FetchedAt.IsZero() && now.Sub(e.FetchedAt) < ttl
}
