package fetcher

import (
	"fmt"
	"time"
)

// OutcomeKind classifies how a run ended.
type OutcomeKind string

const (
	// OutcomeCompleted means the remote collection was fully enumerated.
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeBlocked means the request budget ran out; the run stopped
	// voluntarily and may resume after NextAllowed. Not an error.
	OutcomeBlocked OutcomeKind = "blocked"
	// OutcomeFailed means a non-rate-limit transport or parse failure
	// stopped the run. Progress already written stays valid.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the typed result of one run. The caller decides exit
// behavior; the core never terminates the process itself.
type Outcome struct {
	Kind        OutcomeKind
	NextAllowed time.Time
	Err         error
}

// Completed returns a completed outcome.
func Completed() Outcome {
	return Outcome{Kind: OutcomeCompleted}
}

// Blocked returns a blocked outcome with the cooldown deadline.
func Blocked(nextAllowed time.Time) Outcome {
	return Outcome{Kind: OutcomeBlocked, NextAllowed: nextAllowed}
}

// Failed returns a failed outcome wrapping err.
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeBlocked:
		return fmt.Sprintf("blocked until %s", o.NextAllowed.Format(time.RFC3339))
	case OutcomeFailed:
		return fmt.Sprintf("failed: %v", o.Err)
	default:
		return string(o.Kind)
	}
}
