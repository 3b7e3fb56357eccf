package ratelimit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stravasync/pkg/config"
	"stravasync/pkg/logger"
)

func newTestTracker(t *testing.T, path string, maxRequests int, window time.Duration) *Tracker {
	t.Helper()
	cfg := &config.RateLimitConfig{
		MaxRequests:   maxRequests,
		Window:        window,
		WarningMargin: 5,
	}
	return NewTracker(path, cfg, logger.Nop())
}

func statePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "rate_limit_state.json")
}

func TestTryConsumeExhaustsBudget(t *testing.T) {
	now := time.Date(2024, 8, 2, 10, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, statePath(t), 100, 15*time.Minute)
	tracker.now = func() time.Time { return now }

	if err := tracker.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		if !tracker.TryConsume() {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	if tracker.Remaining() != 0 {
		t.Errorf("expected 0 remaining, got %d", tracker.Remaining())
	}

	if tracker.TryConsume() {
		t.Error("request 101 should be denied")
	}

	next, ok := tracker.NextAllowed()
	if !ok {
		t.Fatal("expected a next allowed time after exhaustion")
	}
	want := tracker.WindowStart().Add(15 * time.Minute)
	if !next.Equal(want) {
		t.Errorf("next allowed = %v, want window start + window = %v", next, want)
	}

	if tracker.Count() != 100 {
		t.Errorf("count = %d after denial, want 100", tracker.Count())
	}
}

func TestTryConsumeWindowRollover(t *testing.T) {
	now := time.Date(2024, 8, 2, 10, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, statePath(t), 2, 15*time.Minute)
	tracker.now = func() time.Time { return now }

	if err := tracker.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tracker.TryConsume()
	tracker.TryConsume()
	if tracker.TryConsume() {
		t.Fatal("budget should be exhausted")
	}

	// A new window opens mid-run.
	now = now.Add(16 * time.Minute)

	if !tracker.TryConsume() {
		t.Fatal("request should be allowed after window rollover")
	}
	if tracker.Count() != 1 {
		t.Errorf("count = %d after rollover, want 1", tracker.Count())
	}
	if _, ok := tracker.NextAllowed(); ok {
		t.Error("cooldown should be cleared after rollover")
	}
	if !tracker.WindowStart().Equal(now) {
		t.Errorf("window start = %v, want %v", tracker.WindowStart(), now)
	}
}

func TestOnRejectedForcesCooldownFromNow(t *testing.T) {
	now := time.Date(2024, 8, 2, 10, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, statePath(t), 100, 15*time.Minute)
	tracker.now = func() time.Time { return now }

	if err := tracker.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	tracker.TryConsume()

	// Server said no while local budget remained.
	tracker.OnRejected()

	blocked, next := tracker.Blocked()
	if !blocked {
		t.Fatal("tracker should be blocked after a remote rejection")
	}
	want := now.Add(15 * time.Minute)
	if !next.Equal(want) {
		t.Errorf("next allowed = %v, want now + window = %v", next, want)
	}
	if tracker.Remaining() != 0 {
		t.Errorf("remaining = %d after rejection, want 0", tracker.Remaining())
	}
}

func TestPersistLoadRoundtrip(t *testing.T) {
	path := statePath(t)
	now := time.Date(2024, 8, 2, 10, 0, 0, 0, time.UTC)

	first := newTestTracker(t, path, 100, 15*time.Minute)
	first.now = func() time.Time { return now }
	if err := first.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		first.TryConsume()
	}
	if err := first.Persist(); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	// A later run within the same window continues the count.
	second := newTestTracker(t, path, 100, 15*time.Minute)
	second.now = func() time.Time { return now.Add(5 * time.Minute) }
	if err := second.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if second.Count() != 3 {
		t.Errorf("restored count = %d, want 3", second.Count())
	}
	if !second.WindowStart().Equal(first.WindowStart()) {
		t.Errorf("restored window start = %v, want %v", second.WindowStart(), first.WindowStart())
	}
}

func TestLoadStaleWindowResetsBudget(t *testing.T) {
	path := statePath(t)
	now := time.Date(2024, 8, 2, 10, 0, 0, 0, time.UTC)

	first := newTestTracker(t, path, 2, 15*time.Minute)
	first.now = func() time.Time { return now }
	if err := first.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	first.TryConsume()
	first.TryConsume()
	first.TryConsume() // sets the cooldown
	if err := first.Persist(); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	second := newTestTracker(t, path, 2, 15*time.Minute)
	second.now = func() time.Time { return now.Add(20 * time.Minute) }
	if err := second.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if second.Count() != 0 {
		t.Errorf("count = %d after stale window, want 0", second.Count())
	}
	if blocked, _ := second.Blocked(); blocked {
		t.Error("expired cooldown should not block a new run")
	}
}

func TestBlockedSurvivesRestart(t *testing.T) {
	path := statePath(t)
	now := time.Date(2024, 8, 2, 10, 0, 0, 0, time.UTC)

	first := newTestTracker(t, path, 1, 15*time.Minute)
	first.now = func() time.Time { return now }
	if err := first.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	first.TryConsume()
	first.TryConsume() // denied, cooldown set
	if err := first.Persist(); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	second := newTestTracker(t, path, 1, 15*time.Minute)
	second.now = func() time.Time { return now.Add(5 * time.Minute) }
	if err := second.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	blocked, next := second.Blocked()
	if !blocked {
		t.Fatal("cooldown should survive a restart within the window")
	}
	want := now.Add(15 * time.Minute)
	if !next.Equal(want) {
		t.Errorf("next allowed = %v, want %v", next, want)
	}
}

func TestLoadMissingAndCorruptState(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		tracker := newTestTracker(t, statePath(t), 100, 15*time.Minute)
		if err := tracker.Load(); err != nil {
			t.Fatalf("Load of missing state failed: %v", err)
		}
		if tracker.Count() != 0 {
			t.Errorf("count = %d, want 0", tracker.Count())
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := statePath(t)
		if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
			t.Fatal(err)
		}
		tracker := newTestTracker(t, path, 100, 15*time.Minute)
		if err := tracker.Load(); err != nil {
			t.Fatalf("Load of corrupt state failed: %v", err)
		}
		if tracker.Count() != 0 {
			t.Errorf("count = %d, want 0", tracker.Count())
		}
		if blocked, _ := tracker.Blocked(); blocked {
			t.Error("fresh state should not be blocked")
		}
	})
}

func TestPersistedStateFormat(t *testing.T) {
	path := statePath(t)
	now := time.Date(2024, 8, 2, 10, 0, 0, 0, time.UTC)

	tracker := newTestTracker(t, path, 1, 15*time.Minute)
	tracker.now = func() time.Time { return now }
	if err := tracker.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	tracker.TryConsume()
	tracker.TryConsume()
	if err := tracker.Persist(); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("state file is not valid JSON: %v", err)
	}

	for _, key := range []string{"requestCount", "windowStart", "lastUpdate", "nextAllowedTime"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("state file missing key %q", key)
		}
	}

	if raw["requestCount"].(float64) != 1 {
		t.Errorf("requestCount = %v, want 1", raw["requestCount"])
	}
	if raw["nextAllowedTime"] == nil {
		t.Error("nextAllowedTime should be set after exhaustion")
	}
}

func TestLockExcludesSecondRun(t *testing.T) {
	path := statePath(t)

	first := newTestTracker(t, path, 100, 15*time.Minute)
	if err := first.Lock(); err != nil {
		t.Fatalf("first Lock failed: %v", err)
	}

	second := newTestTracker(t, path, 100, 15*time.Minute)
	if err := second.Lock(); err == nil {
		second.Unlock()
		t.Fatal("second Lock should fail while the first is held")
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := second.Lock(); err != nil {
		t.Fatalf("Lock after release failed: %v", err)
	}
	second.Unlock()
}
