package sync

import (
	"context"
	"strconv"
	"time"

	"todosync/internal/cache"
	"todosync/internal/utils"
)

// RateLimiter throttles how often a user may initiate sync operations, using
// a windowed counter in the cache store. It fails open: if the store cannot
// be read or written, the action is allowed rather than blocked.
type RateLimiter struct {
	store  cache.Store
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit actions per window.
func NewRateLimiter(store cache.Store, limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{store: store, limit: limit, window: window}
}

// Allow reports whether the user may perform the action now, consuming one
// slot of the window when allowed.
func (r *RateLimiter) Allow(ctx context.Context, userID, action string) bool {
	key := cache.RateLimitKey(userID, action)

	count, _ := r.currentCount(ctx, key)
	if count >= r.limit {
		utils.Warnf("rate limit exceeded for user %s on action %s", userID, action)
		return false
	}

	// Each write restarts the window TTL, so the window slides with activity.
	// The limiter is advisory throttling, not an exact quota.
	if err := r.store.Set(ctx, key, []byte(strconv.Itoa(count+1)), r.window); err != nil {
		utils.Warnf("rate limit counter write failed, allowing action: %v", err)
	}
	return true
}

// Remaining returns how many actions the user has left in the current window.
func (r *RateLimiter) Remaining(ctx context.Context, userID, action string) int {
	count, _ := r.currentCount(ctx, cache.RateLimitKey(userID, action))
	if count >= r.limit {
		return 0
	}
	return r.limit - count
}

// currentCount reads the window counter, failing open to 0.
func (r *RateLimiter) currentCount(ctx context.Context, key string) (int, bool) {
	data, found, err := r.store.Get(ctx, key)
	if err != nil {
		utils.Warnf("rate limit counter read failed, allowing action: %v", err)
		return 0, false
	}
	if !found {
		return 0, false
	}
	count, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false
	}
	return count, true
}
