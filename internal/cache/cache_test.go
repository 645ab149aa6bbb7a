package cache

import (
	"context"
	"testing"
	"time"
)

// =============================================================================
// Key Builder Tests
// =============================================================================

// TestKeyBuilders verifies the cache key namespace layout
func TestKeyBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"tasks", TasksKey("u1", "l1"), "tasks_u1_l1"},
		{"progress", ProgressKey("u1", "l1"), "sync_progress_u1_l1"},
		{"delta link", DeltaLinkKey("u1", "l1"), "delta_link_u1_l1"},
		{"cooldown", CooldownKey("u1", "l1"), "smart_sync_cd_u1_l1"},
		{"rate limit", RateLimitKey("u1", "sync"), "rate_limit_u1_sync"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, tc.got)
			}
		})
	}
}

// =============================================================================
// Memory Store Tests
// =============================================================================

// TestMemoryStoreRoundTrip verifies basic set/get/delete
func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Set(ctx, "k1", []byte("value"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, found, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if string(got) != "value" {
		t.Errorf("expected 'value', got %q", got)
	}

	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, _ := store.Get(ctx, "k1"); found {
		t.Error("expected key to be gone after delete")
	}
}

// TestMemoryStoreMiss verifies absent keys read as a miss, not an error
func TestMemoryStoreMiss(t *testing.T) {
	store := NewMemoryStore()

	_, found, err := store.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("expected miss for absent key")
	}
}

// TestMemoryStoreTTLExpiry verifies entries expire by the injected clock
func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	if err := store.Set(ctx, "k1", []byte("v"), 5*time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Still fresh just before the deadline
	now = now.Add(5*time.Minute - time.Second)
	if _, found, _ := store.Get(ctx, "k1"); !found {
		t.Error("entry should still be live before TTL")
	}

	// Expired at the deadline
	now = now.Add(time.Second)
	if _, found, _ := store.Get(ctx, "k1"); found {
		t.Error("entry should expire once TTL elapses")
	}
}

// TestMemoryStoreZeroTTLNeverExpires verifies ttl=0 means no expiry
func TestMemoryStoreZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	if err := store.Set(ctx, "cursor", []byte("delta-url"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	now = now.Add(1000 * time.Hour)
	if _, found, _ := store.Get(ctx, "cursor"); !found {
		t.Error("ttl=0 entry should never expire")
	}
}

// TestMemoryStoreValueIsolation verifies stored values are copied
func TestMemoryStoreValueIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	value := []byte("original")
	if err := store.Set(ctx, "k1", value, 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value[0] = 'X'

	got, _, _ := store.Get(ctx, "k1")
	if string(got) != "original" {
		t.Errorf("stored value should be isolated from caller mutation, got %q", got)
	}
}

// TestMemoryStoreInvalidatePattern verifies glob-based deletion
func TestMemoryStoreInvalidatePattern(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_ = store.Set(ctx, TasksKey("u1", "l1"), []byte("a"), 0)
	_ = store.Set(ctx, TasksKey("u1", "l2"), []byte("b"), 0)
	_ = store.Set(ctx, TasksKey("u2", "l1"), []byte("c"), 0)
	_ = store.Set(ctx, DeltaLinkKey("u1", "l1"), []byte("d"), 0)

	n, err := store.InvalidatePattern(ctx, TasksKey("u1", "*"))
	if err != nil {
		t.Fatalf("InvalidatePattern() error = %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deletions, got %d", n)
	}

	if _, found, _ := store.Get(ctx, TasksKey("u2", "l1")); !found {
		t.Error("other users' entries must survive invalidation")
	}
	if _, found, _ := store.Get(ctx, DeltaLinkKey("u1", "l1")); !found {
		t.Error("non-matching keys must survive invalidation")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 remaining entries, got %d", store.Len())
	}
}
