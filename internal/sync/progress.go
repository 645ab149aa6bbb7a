// Package sync coordinates full background refreshes and incremental delta
// refreshes of the per-(user, list) task cache.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"todosync/internal/cache"
	"todosync/internal/utils"
)

// Phase is the state of a sync attempt. Transitions are
// starting → fetching (repeated) → completed, or starting|fetching → error.
// completed and error are terminal and persist until the progress TTL expires,
// giving a late-polling client a final window to observe the outcome.
type Phase string

const (
	PhaseStarting  Phase = "starting"
	PhaseFetching  Phase = "fetching"
	PhaseCompleted Phase = "completed"
	PhaseError     Phase = "error"
)

// Terminal reports whether the phase is an end state.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

// Progress is the ephemeral record describing one sync attempt. It is created
// when a sync begins, rewritten after every page fetched, and expires a fixed
// duration after the last write.
type Progress struct {
	Phase   Phase  `json:"state"`
	Count   int    `json:"count"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// writeProgress persists a progress record. Progress writes are best-effort:
// a failed write is logged and the sync carries on, since progress is
// observability state rather than sync state.
func (s *Service) writeProgress(ctx context.Context, userID, listID string, p Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		utils.Errorf("failed to encode sync progress: %v", err)
		return
	}
	key := cache.ProgressKey(userID, listID)
	if err := s.store.Set(ctx, key, data, s.cfg.ProgressTTL); err != nil {
		utils.Warnf("failed to write sync progress %s: %v", key, err)
	}
}

// Progress returns the current sync progress record for a (user, list) pair,
// or false when no record exists (never started, or expired). A corrupt
// record reads as unknown.
func (s *Service) Progress(ctx context.Context, userID, listID string) (*Progress, bool) {
	data, found, err := s.store.Get(ctx, cache.ProgressKey(userID, listID))
	if err != nil {
		utils.Warnf("failed to read sync progress for list %s: %v", listID, err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		utils.Warnf("corrupt sync progress for list %s: %v", listID, err)
		return nil, false
	}
	return &p, true
}

// fetchingMessage formats the user-visible progress line for a partial fetch.
func fetchingMessage(count, total int) string {
	return fmt.Sprintf("Loading tasks (%d/%d)...", count, total)
}

// completedMessage formats the user-visible line for a finished sync.
func completedMessage(count int) string {
	return fmt.Sprintf("Load completed (%d tasks)", count)
}

// Default lifetimes for snapshots, progress records and the cooldown
// sentinel, applied by Config.withDefaults.
const (
	defaultSnapshotTTL = 5 * time.Minute
	defaultProgressTTL = 10 * time.Minute
	defaultCooldown    = 30 * time.Second
)
