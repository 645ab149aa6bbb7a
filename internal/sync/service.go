package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"todosync/graph"
	"todosync/internal/analytics"
	"todosync/internal/cache"
	"todosync/internal/utils"
)

// Config holds the orchestrator's timing knobs.
type Config struct {
	// SnapshotTTL is how long a task collection snapshot lives in the cache.
	// Default: 5 minutes.
	SnapshotTTL time.Duration

	// ProgressTTL bounds how long a sync progress record stays visible after
	// its last write. Default: 10 minutes.
	ProgressTTL time.Duration

	// Cooldown is the lifetime of the sentinel that suppresses redundant
	// incremental syncs. It is best-effort throttling, not a lock.
	// Default: 30 seconds.
	Cooldown time.Duration
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = defaultSnapshotTTL
	}
	if c.ProgressTTL <= 0 {
		c.ProgressTTL = defaultProgressTTL
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	return c
}

// Result is the outcome of an incremental sync attempt.
type Result int

const (
	// ResultApplied: changes were merged into the cached snapshot.
	ResultApplied Result = iota
	// ResultNoChanges: the delta feed had nothing new (or failed; staleness
	// is always preferred over propagating a delta error).
	ResultNoChanges
	// ResultSkippedCooldown: a recent sync's cooldown sentinel is still
	// live; the remote source was not contacted.
	ResultSkippedCooldown
	// ResultSkippedNoCache: there is no cached snapshot to update; the
	// caller should start a full sync instead.
	ResultSkippedNoCache
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case ResultApplied:
		return "applied"
	case ResultNoChanges:
		return "no-changes"
	case ResultSkippedCooldown:
		return "skipped-cooldown"
	case ResultSkippedNoCache:
		return "skipped-no-cache"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Service coordinates full and incremental syncs of the task cache for one
// Graph client. Snapshots go through the compressed store; progress records,
// delta cursors and cooldown sentinels are stored raw.
//
// Writes to the same (user, list) key from concurrent syncs are not
// coordinated: the final cache write of each run is a single atomic set, so
// readers see either the old snapshot or the new one, and the last write
// wins.
type Service struct {
	client    *graph.Client
	store     cache.Store
	snapshots *cache.Compressed
	recorder  *analytics.Tracker // optional, nil-safe
	cfg       Config
}

// New creates a sync service over a Graph client and a cache store.
func New(client *graph.Client, store cache.Store, cfg Config) *Service {
	return &Service{
		client:    client,
		store:     store,
		snapshots: cache.NewCompressed(store),
		cfg:       cfg.withDefaults(),
	}
}

// SetRecorder attaches an analytics tracker that records sync runs.
func (s *Service) SetRecorder(t *analytics.Tracker) {
	s.recorder = t
}

// Snapshot returns the cached task collection for a (user, list) pair, or
// false on a cache miss. A miss means "loading", not an error.
func (s *Service) Snapshot(ctx context.Context, userID, listID string) ([]graph.Task, bool) {
	var tasks []graph.Task
	if !s.snapshots.Get(ctx, cache.TasksKey(userID, listID), &tasks) {
		return nil, false
	}
	return tasks, true
}

// Invalidate drops every cache entry belonging to a user, forcing the next
// read to go back to the remote source.
func (s *Service) Invalidate(ctx context.Context, userID string) int {
	n, err := s.snapshots.InvalidatePattern(ctx, cache.TasksKey(userID, "*"))
	if err != nil {
		utils.Warnf("cache invalidation for user %s failed: %v", userID, err)
	}
	return n
}

// StartFullSync launches a full background refresh for a (user, list) pair
// and returns immediately. The returned channel closes when the run finishes;
// callers that only want fire-and-forget semantics ignore it. The run never
// surfaces errors to the caller: its outcome, including failure, is observable
// only through the polled progress record.
func (s *Service) StartFullSync(userID, listID string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runFullSync(userID, listID)
	}()
	return done
}

// runFullSync is the body of one full sync job.
func (s *Service) runFullSync(userID, listID string) {
	// The job owns its own context: it is not cancelled when the initiating
	// request finishes. Individual HTTP requests are bounded by the client's
	// per-request timeout.
	ctx := context.Background()
	runID := uuid.New().String()
	started := time.Now()
	count := 0

	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("full sync panic for list %s: %v", listID, r)
			s.failFullSync(ctx, userID, listID, runID, started, count, fmt.Sprintf("%v", r))
		}
	}()

	utils.Infof("full sync %s started for list %s", runID, listID)
	s.writeProgress(ctx, userID, listID, Progress{Phase: PhaseStarting, RunID: runID})

	// Total count is informational for progress display; probing it first is
	// cheap relative to the full expand walk.
	total := s.client.TaskCount(ctx, listID)
	s.writeProgress(ctx, userID, listID, Progress{
		Phase:   PhaseFetching,
		Total:   total,
		Message: fetchingMessage(0, total),
		RunID:   runID,
	})

	var tasks []graph.Task
	it := s.client.Pages(listID)
	for it.Next(ctx) {
		page := it.Page()
		tasks = append(tasks, page...)
		count += len(page)
		s.writeProgress(ctx, userID, listID, Progress{
			Phase:   PhaseFetching,
			Count:   count,
			Total:   total,
			Message: fetchingMessage(count, total),
			RunID:   runID,
		})
	}
	if err := it.Err(); err != nil {
		utils.Errorf("full sync %s failed for list %s: %v", runID, listID, err)
		s.failFullSync(ctx, userID, listID, runID, started, count, err.Error())
		return
	}
	if throttled := s.client.ThrottleCount(); throttled > 0 {
		utils.Warnf("full sync %s: remote source has throttled this client %d times", runID, throttled)
	}

	// One atomic set: readers see the old snapshot or the complete new one,
	// never an interleaving.
	if !s.snapshots.Set(ctx, cache.TasksKey(userID, listID), tasks, s.cfg.SnapshotTTL) {
		s.failFullSync(ctx, userID, listID, runID, started, count, "failed to write task snapshot to cache")
		return
	}
	utils.Infof("full sync %s saved %d tasks for list %s (compressed)", runID, count, listID)

	s.writeProgress(ctx, userID, listID, Progress{
		Phase:   PhaseCompleted,
		Count:   count,
		Total:   total,
		Message: completedMessage(count),
		RunID:   runID,
	})
	s.record(analytics.Run{
		ID:         runID,
		UserID:     userID,
		ListID:     listID,
		Kind:       analytics.KindFull,
		Tasks:      count,
		DurationMs: time.Since(started).Milliseconds(),
		Success:    true,
	})
}

// failFullSync records the terminal error state of a full sync attempt.
func (s *Service) failFullSync(ctx context.Context, userID, listID, runID string, started time.Time, count int, msg string) {
	s.writeProgress(ctx, userID, listID, Progress{
		Phase:   PhaseError,
		Count:   count,
		Error:   msg,
		Message: "Failed to load tasks",
		RunID:   runID,
	})
	s.record(analytics.Run{
		ID:         runID,
		UserID:     userID,
		ListID:     listID,
		Kind:       analytics.KindFull,
		Tasks:      count,
		DurationMs: time.Since(started).Milliseconds(),
		Success:    false,
		ErrorType:  msg,
	})
}

// TryIncrementalSync applies the delta feed to an existing cached snapshot.
// It requires a live snapshot (a miss short-circuits to ResultSkippedNoCache)
// and is throttled by the cooldown sentinel. Failures never corrupt the
// existing cache: any error downgrades to ResultNoChanges and the snapshot
// just stays stale one more cycle.
func (s *Service) TryIncrementalSync(ctx context.Context, userID, listID string) Result {
	runID := uuid.New().String()
	started := time.Now()

	// Cooldown check happens before any remote contact.
	cdKey := cache.CooldownKey(userID, listID)
	if _, active, err := s.store.Get(ctx, cdKey); err == nil && active {
		utils.Debugf("incremental sync skipped for list %s: cooldown active", listID)
		return ResultSkippedCooldown
	}

	base, ok := s.Snapshot(ctx, userID, listID)
	if !ok {
		utils.Debugf("incremental sync skipped for list %s: no cached snapshot", listID)
		return ResultSkippedNoCache
	}

	// Best-effort serialization, not a lock: two callers racing within the
	// same instant can both proceed, which is accepted.
	if err := s.store.Set(ctx, cdKey, []byte("1"), s.cfg.Cooldown); err != nil {
		utils.Warnf("failed to set sync cooldown for list %s: %v", listID, err)
	}

	cursor := s.deltaCursor(ctx, userID, listID)
	delta, err := s.client.Delta(ctx, listID, cursor)
	if err != nil {
		utils.Warnf("incremental sync for list %s failed, keeping cached snapshot: %v", listID, err)
		s.recordIncremental(runID, userID, listID, 0, started, false, err.Error())
		return ResultNoChanges
	}

	if len(delta.Changes) == 0 {
		// Heartbeat: persist a refreshed cursor even when nothing changed.
		s.saveDeltaCursor(ctx, userID, listID, delta.Cursor)
		s.recordIncremental(runID, userID, listID, 0, started, true, "")
		return ResultNoChanges
	}

	merged, err := applyChanges(base, delta.Changes)
	if err != nil {
		utils.Errorf("incremental sync for list %s: %v", listID, err)
		s.recordIncremental(runID, userID, listID, 0, started, false, err.Error())
		return ResultNoChanges
	}

	if !s.snapshots.Set(ctx, cache.TasksKey(userID, listID), merged, s.cfg.SnapshotTTL) {
		// The cursor is only advanced after the merged snapshot landed;
		// otherwise these changes would be skipped on the next cycle.
		s.recordIncremental(runID, userID, listID, len(delta.Changes), started, false, "failed to write merged snapshot")
		return ResultNoChanges
	}
	s.saveDeltaCursor(ctx, userID, listID, delta.Cursor)

	utils.Infof("incremental sync applied %d changes for list %s", len(delta.Changes), listID)
	s.recordIncremental(runID, userID, listID, len(delta.Changes), started, true, "")
	return ResultApplied
}

// deltaCursor loads the stored continuation cursor, or "" when absent.
func (s *Service) deltaCursor(ctx context.Context, userID, listID string) string {
	data, found, err := s.store.Get(ctx, cache.DeltaLinkKey(userID, listID))
	if err != nil || !found {
		return ""
	}
	return string(data)
}

// saveDeltaCursor persists the cursor without expiry; the remote source
// governs cursor validity.
func (s *Service) saveDeltaCursor(ctx context.Context, userID, listID, cursor string) {
	if cursor == "" {
		return
	}
	if err := s.store.Set(ctx, cache.DeltaLinkKey(userID, listID), []byte(cursor), 0); err != nil {
		utils.Warnf("failed to persist delta cursor for list %s: %v", listID, err)
	}
}

// record forwards a run to the analytics tracker when one is attached.
func (s *Service) record(run analytics.Run) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(run); err != nil {
		utils.Debugf("failed to record sync run: %v", err)
	}
}

func (s *Service) recordIncremental(runID, userID, listID string, changes int, started time.Time, success bool, errMsg string) {
	s.record(analytics.Run{
		ID:         runID,
		UserID:     userID,
		ListID:     listID,
		Kind:       analytics.KindIncremental,
		Tasks:      changes,
		DurationMs: time.Since(started).Milliseconds(),
		Success:    success,
		ErrorType:  errMsg,
	})
}
