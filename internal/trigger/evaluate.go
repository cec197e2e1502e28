// Package trigger implements the pure wake-condition evaluator of
// spec.md §4.2. It never touches storage directly: callers supply a
// StatusLookup closure, keeping Evaluate a deterministic function of
// its inputs and safe to exercise with table tests.
package trigger

import (
	"time"

	"github.com/ken-run/ken/internal/kenmodel"
)

// StatusLookup resolves a session id to its current status. The bool
// return is false when the id is unknown, which Evaluate treats as
// "not yet satisfied" rather than an error — a referenced session that
// hasn't been created yet simply hasn't fired.
type StatusLookup func(id string) (kenmodel.Status, bool)

// Evaluate reports whether t is satisfied given lookup and the current
// time now.
func Evaluate(t kenmodel.Trigger, lookup StatusLookup, now time.Time) bool {
	switch t.Kind {
	case kenmodel.TriggerAllComplete:
		return allComplete(t.IDs, lookup)
	case kenmodel.TriggerAnyComplete:
		return anyComplete(t.IDs, lookup)
	case kenmodel.TriggerTimeoutAt:
		return !now.Before(t.At)
	case kenmodel.TriggerAnyOf:
		return anyOf(t.Of, lookup, now)
	default:
		return false
	}
}

// allComplete fires iff every referenced id has reached a terminal
// status (complete or failed). Failed children unblock their parent so
// a single crashed child can't hang the tree forever; it is up to the
// parent's own logic (via Dependency Results) to notice and react.
func allComplete(ids []string, lookup StatusLookup) bool {
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		status, ok := lookup(id)
		if !ok {
			return false
		}
		if status != kenmodel.StatusComplete && status != kenmodel.StatusFailed {
			return false
		}
	}
	return true
}

// anyComplete fires iff at least one referenced id is complete. Failed
// alone never satisfies it.
func anyComplete(ids []string, lookup StatusLookup) bool {
	for _, id := range ids {
		status, ok := lookup(id)
		if ok && status == kenmodel.StatusComplete {
			return true
		}
	}
	return false
}

func anyOf(subs []kenmodel.Trigger, lookup StatusLookup, now time.Time) bool {
	for _, sub := range subs {
		if Evaluate(sub, lookup, now) {
			return true
		}
	}
	return false
}
