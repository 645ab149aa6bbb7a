// Package cache provides the TTL key/value store backing the task cache, plus
// the compressed snapshot codec layered on top of it.
//
// The store holds four kinds of entries per (user, list) pair: the compressed
// task snapshot, the sync progress record, the delta cursor, and the sync
// cooldown sentinel. Nothing stored here survives eviction except by being
// re-fetched from the Graph API.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Store is a TTL key/value store. Implementations are RedisStore for
// deployments and MemoryStore for tests. A ttl of 0 means no expiry (used for
// delta cursors, whose validity is governed by the remote server).
type Store interface {
	// Get returns the raw value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes the value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// InvalidatePattern deletes all keys matching a glob pattern and returns
	// how many were removed.
	InvalidatePattern(ctx context.Context, pattern string) (int, error)
}

// Key builders for the per-(user, list) cache namespace.

// TasksKey is the compressed task collection snapshot.
func TasksKey(userID, listID string) string {
	return fmt.Sprintf("tasks_%s_%s", userID, listID)
}

// ProgressKey is the ephemeral sync progress record.
func ProgressKey(userID, listID string) string {
	return fmt.Sprintf("sync_progress_%s_%s", userID, listID)
}

// DeltaLinkKey is the persisted delta continuation cursor.
func DeltaLinkKey(userID, listID string) string {
	return fmt.Sprintf("delta_link_%s_%s", userID, listID)
}

// CooldownKey is the short-TTL sentinel that throttles incremental syncs.
func CooldownKey(userID, listID string) string {
	return fmt.Sprintf("smart_sync_cd_%s_%s", userID, listID)
}

// RateLimitKey is the sliding-window counter for sync initiation throttling.
func RateLimitKey(userID, action string) string {
	return fmt.Sprintf("rate_limit_%s_%s", userID, action)
}
