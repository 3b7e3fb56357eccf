package ratelimit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"stravasync/pkg/config"
	"stravasync/pkg/logger"
)

// State is the persisted rate budget position, shared across process
// restarts. Timestamps are epoch milliseconds; NextAllowedTime is null
// unless a cooldown is in force.
type State struct {
	RequestCount    int    `json:"requestCount"`
	WindowStart     int64  `json:"windowStart"`
	LastUpdate      int64  `json:"lastUpdate"`
	NextAllowedTime *int64 `json:"nextAllowedTime"`
}

// Tracker maintains a fixed request budget over a rolling window and
// persists its position so an interrupted run resumes where it left off.
// Not safe for concurrent use: the run model is strictly sequential and a
// filesystem lock (Lock) keeps concurrent processes off the shared state.
type Tracker struct {
	path        string
	maxRequests int
	window      time.Duration
	margin      int
	state       State
	fileLock    *flock.Flock
	logger      logger.Logger

	now func() time.Time
}

// NewTracker creates a tracker persisting to path with the given budget.
func NewTracker(path string, cfg *config.RateLimitConfig, log logger.Logger) *Tracker {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Tracker{
		path:        path,
		maxRequests: cfg.MaxRequests,
		window:      cfg.Window,
		margin:      cfg.WarningMargin,
		fileLock:    flock.New(path + ".lock"),
		logger:      log,
		now:         time.Now,
	}
}

// Lock acquires an exclusive filesystem lock guarding the persisted state
// for the duration of a run. It fails fast when another run holds it.
func (t *Tracker) Lock() error {
	locked, err := t.fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another run holds the lock on %s", t.fileLock.Path())
	}
	return nil
}

// Unlock releases the run lock. Safe to call on all exit paths.
func (t *Tracker) Unlock() error {
	return t.fileLock.Unlock()
}

// Load reads the persisted state. A missing or unreadable file is a fresh
// start, never an error. A persisted window older than the window length
// resets the budget; otherwise the persisted count and window are restored
// as-is, including any cooldown still in force.
func (t *Tracker) Load() error {
	now := t.now()
	t.state = State{
		WindowStart: now.UnixMilli(),
		LastUpdate:  now.UnixMilli(),
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.logger.Debug("no rate limit state found, starting fresh")
			return nil
		}
		return fmt.Errorf("failed to read rate limit state: %w", err)
	}

	var persisted State
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.logger.WithError(err).Warn("rate limit state unreadable, starting fresh")
		return nil
	}

	windowStart := time.UnixMilli(persisted.WindowStart)
	if now.Sub(windowStart) >= t.window {
		// Stale window: budget resets, any expired cooldown is dropped too.
		t.logger.InfoWithFields("rate limit window expired, resetting budget", map[string]interface{}{
			"previous_count":        persisted.RequestCount,
			"previous_window_start": windowStart,
		})
		return nil
	}

	t.state = persisted
	t.state.LastUpdate = now.UnixMilli()

	t.logger.InfoWithFields("rate limit state restored", map[string]interface{}{
		"request_count": t.state.RequestCount,
		"window_start":  windowStart,
	})

	return nil
}

// Blocked reports whether a persisted cooldown is still in force, and when
// requests become allowed again. A blocked run must terminate voluntarily;
// it is not an error condition.
func (t *Tracker) Blocked() (bool, time.Time) {
	if t.state.NextAllowedTime == nil {
		return false, time.Time{}
	}
	next := time.UnixMilli(*t.state.NextAllowedTime)
	if t.now().Before(next) {
		return true, next
	}
	return false, time.Time{}
}

// TryConsume reports whether one remote call may proceed, charging one
// budget unit when it may. On exhaustion it computes the next allowed time
// from the window start.
func (t *Tracker) TryConsume() bool {
	now := t.now()

	// The window may roll over mid-run.
	if now.Sub(time.UnixMilli(t.state.WindowStart)) >= t.window {
		t.state.RequestCount = 0
		t.state.WindowStart = now.UnixMilli()
		t.state.NextAllowedTime = nil
	}

	t.state.LastUpdate = now.UnixMilli()

	if t.state.RequestCount >= t.maxRequests {
		next := time.UnixMilli(t.state.WindowStart).Add(t.window).UnixMilli()
		t.state.NextAllowedTime = &next
		return false
	}

	t.state.RequestCount++
	return true
}

// OnRejected records a remote 429 received while local budget remained
// (clock skew or another consumer sharing the quota). The cooldown starts
// from the current time, not the local window start.
func (t *Tracker) OnRejected() {
	now := t.now()
	next := now.Add(t.window).UnixMilli()

	t.state.RequestCount = t.maxRequests
	t.state.WindowStart = now.UnixMilli()
	t.state.LastUpdate = now.UnixMilli()
	t.state.NextAllowedTime = &next

	t.logger.WarnWithFields("remote rejected request over budget, forcing cooldown", map[string]interface{}{
		"next_allowed": time.UnixMilli(next),
	})
}

// Persist writes the current state unconditionally, atomically.
func (t *Tracker) Persist() error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode rate limit state: %w", err)
	}

	tempPath := t.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write rate limit state: %w", err)
	}
	if err := os.Rename(tempPath, t.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace rate limit state: %w", err)
	}

	return nil
}

// Remaining returns the number of budget units left in the current window.
func (t *Tracker) Remaining() int {
	remaining := t.maxRequests - t.state.RequestCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NearExhaustion reports whether the remaining budget is within the
// configured warning margin. Callers surface a warning but continue.
func (t *Tracker) NearExhaustion() bool {
	return t.Remaining() <= t.margin
}

// Count returns the number of requests consumed in the current window.
func (t *Tracker) Count() int {
	return t.state.RequestCount
}

// WindowStart returns the start of the current window.
func (t *Tracker) WindowStart() time.Time {
	return time.UnixMilli(t.state.WindowStart)
}

// NextAllowed returns the cooldown deadline, if one is set.
func (t *Tracker) NextAllowed() (time.Time, bool) {
	if t.state.NextAllowedTime == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*t.state.NextAllowedTime), true
}
