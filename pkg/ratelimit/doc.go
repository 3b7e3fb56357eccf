// Package ratelimit tracks the Strava API request budget across runs.
//
// The Strava API allows a fixed number of requests per rolling 15-minute
// window. Because a sync usually spans many short-lived process
// invocations, the tracker persists its window position to a JSON file
// after every change, so a new process continues counting exactly where
// the previous one stopped.
//
// Behavior:
//
//   - TryConsume charges one request against the current window. When the
//     window has expired the counter resets first; when the budget is
//     spent it records the time the next request becomes allowed and
//     returns false.
//   - OnRejected handles a server-side 429: the budget is treated as
//     fully spent and the cooldown restarts from the current time, since
//     the server's window position is authoritative.
//   - Blocked reports whether a persisted cooldown from an earlier run is
//     still in force, letting a process decline to start at all.
//
// State is written atomically (temp file and rename) and guarded by an
// exclusive file lock so concurrent processes cannot interleave updates.
//
// Usage:
//
//	tracker := ratelimit.NewTracker(statePath, &cfg.RateLimit, log)
//	if err := tracker.Lock(); err != nil {
//	    return err // another run is active
//	}
//	defer tracker.Unlock()
//
//	tracker.Load()
//	if ok := tracker.TryConsume(); !ok {
//	    next, _ := tracker.NextAllowed()
//	    // stop and resume after next
//	}
//	tracker.Persist()
package ratelimit
