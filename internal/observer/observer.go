// Package observer implements the read-only views of spec.md §4.7:
// tree, session detail, the "why" blocker chain, and diagnose. Every
// function here only reads from a store.Store; none of them mutate
// session state.
package observer

import (
	"fmt"
	"sort"
	"time"

	"github.com/ken-run/ken/internal/kenmodel"
	"github.com/ken-run/ken/internal/store"
)

// Node is one session in a Tree view, with its children attached.
type Node struct {
	Session        kenmodel.Session
	Children       []*Node
	Age            time.Duration
	TriggerSummary string
	CheckpointAge  time.Duration // zero if no checkpoint
}

// Tree builds the subtree rooted at id. An empty id returns every root
// session as a forest, per spec.md §4.7's "subtree... or all roots".
func Tree(st *store.Store, id string) ([]*Node, error) {
	all, err := st.Query(store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	byParent := make(map[string][]kenmodel.Session)
	byID := make(map[string]kenmodel.Session, len(all))
	for _, sess := range all {
		byID[sess.ID] = sess
		byParent[sess.ParentID] = append(byParent[sess.ParentID], sess)
	}
	for _, group := range byParent {
		sort.Slice(group, func(i, j int) bool { return group[i].CreatedAt.Before(group[j].CreatedAt) })
	}

	now := time.Now()
	var build func(sess kenmodel.Session) *Node
	build = func(sess kenmodel.Session) *Node {
		node := &Node{
			Session:        sess,
			Age:            now.Sub(sess.CreatedAt),
			TriggerSummary: summarizeTrigger(sess.Trigger),
		}
		if sess.HasCheckpoint() {
			node.CheckpointAge = now.Sub(sess.UpdatedAt)
		}
		for _, child := range byParent[sess.ID] {
			node.Children = append(node.Children, build(child))
		}
		return node
	}

	if id != "" {
		root, ok := byID[id]
		if !ok {
			return nil, store.ErrNotFound
		}
		return []*Node{build(root)}, nil
	}

	var forest []*Node
	for _, sess := range byParent[""] {
		forest = append(forest, build(sess))
	}
	return forest, nil
}

// summarizeTrigger renders a trigger as a short human-readable string
// for tree/detail display, e.g. "all_complete(2 ids)" or "timeout_at(...)".
func summarizeTrigger(t *kenmodel.Trigger) string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case kenmodel.TriggerAllComplete:
		return fmt.Sprintf("all_complete(%d ids)", len(t.IDs))
	case kenmodel.TriggerAnyComplete:
		return fmt.Sprintf("any_complete(%d ids)", len(t.IDs))
	case kenmodel.TriggerTimeoutAt:
		return fmt.Sprintf("timeout_at(%s)", t.At.UTC().Format(time.RFC3339))
	case kenmodel.TriggerAnyOf:
		return fmt.Sprintf("any(%d subtriggers)", len(t.Of))
	default:
		return string(t.Kind)
	}
}

// Detail is the full-field view of one session plus its recent events,
// per spec.md §4.7's "Session detail" view.
type Detail struct {
	Session kenmodel.Session
	Events  []kenmodel.Event
}

// SessionDetail returns every field of session id, checkpoint and
// result verbatim, plus its full event history.
func SessionDetail(st *store.Store, id string) (Detail, error) {
	sess, err := st.GetSession(id)
	if err != nil {
		return Detail{}, err
	}
	events, err := st.EventsForSession(id)
	if err != nil {
		return Detail{}, fmt.Errorf("events for session %s: %w", id, err)
	}
	return Detail{Session: sess, Events: events}, nil
}

// Blocker is one entry in a Why blocker chain: a trigger-referenced
// session, its status, and (if it is itself sleeping) its own blockers.
type Blocker struct {
	SessionID string
	KenPath   string
	Status    kenmodel.Status
	Blockers  []Blocker // non-empty only when Status == sleeping
}

// Why recursively enumerates the unsatisfied ids in a sleeping
// session's trigger, annotating each with its status and (if itself
// sleeping) its own blockers. The result lists the direct blockers in
// trigger order, each sleeping one carrying its sub-blockers nested in
// Blockers; it is not flattened or reordered into a leaf-first list.
func Why(st *store.Store, id string) ([]Blocker, error) {
	sess, err := st.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess.Status != kenmodel.StatusSleeping || sess.Trigger == nil {
		return nil, nil
	}
	return whyBlockers(st, sess.Trigger.ReferencedIDs(), map[string]bool{id: true})
}

func whyBlockers(st *store.Store, ids []string, visited map[string]bool) ([]Blocker, error) {
	var out []Blocker
	for _, refID := range ids {
		if refID == kenmodel.ChildrenSentinel || visited[refID] {
			continue
		}
		visited[refID] = true

		ref, err := st.GetSession(refID)
		if err != nil {
			out = append(out, Blocker{SessionID: refID, Status: kenmodel.StatusFailed})
			continue
		}
		if ref.Status.Terminal() {
			continue // satisfied or terminally failed; not a live blocker
		}

		b := Blocker{SessionID: ref.ID, KenPath: ref.KenPath, Status: ref.Status}
		if ref.Status == kenmodel.StatusSleeping && ref.Trigger != nil {
			sub, err := whyBlockers(st, ref.Trigger.ReferencedIDs(), visited)
			if err != nil {
				return nil, err
			}
			b.Blockers = sub
		}
		out = append(out, b)
	}
	return out, nil
}

// Thresholds configures Diagnose's rule set.
type Thresholds struct {
	MaxActiveWithoutCheckpoint time.Duration
	MaxPendingAge              time.Duration
}

// DefaultThresholds matches the teacher's "stale_hours" style default:
// a single conservative number rather than per-rule tuning knobs.
var DefaultThresholds = Thresholds{
	MaxActiveWithoutCheckpoint: 4 * time.Hour,
	MaxPendingAge:              4 * time.Hour,
}

// Finding is one Diagnose warning.
type Finding struct {
	SessionID string
	Message   string
}

// Diagnose runs the ruleset of spec.md §4.7 over the current store
// snapshot: sessions active too long without a checkpoint, pending
// sessions older than a threshold, and referential-integrity warnings
// (a trigger referencing a session id that no longer exists).
func Diagnose(st *store.Store, thresholds Thresholds) ([]Finding, error) {
	all, err := st.Query(store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	byID := make(map[string]bool, len(all))
	for _, sess := range all {
		byID[sess.ID] = true
	}

	now := time.Now()
	var findings []Finding
	for _, sess := range all {
		switch sess.Status {
		case kenmodel.StatusActive:
			if now.Sub(sess.UpdatedAt) > thresholds.MaxActiveWithoutCheckpoint {
				findings = append(findings, Finding{
					SessionID: sess.ID,
					Message:   fmt.Sprintf("active for %s without a recent checkpoint", now.Sub(sess.UpdatedAt).Round(time.Minute)),
				})
			}
		case kenmodel.StatusPending:
			if now.Sub(sess.UpdatedAt) > thresholds.MaxPendingAge {
				findings = append(findings, Finding{
					SessionID: sess.ID,
					Message:   fmt.Sprintf("pending for %s", now.Sub(sess.UpdatedAt).Round(time.Minute)),
				})
			}
		case kenmodel.StatusSleeping:
			if sess.Trigger == nil {
				continue
			}
			for _, refID := range sess.Trigger.ReferencedIDs() {
				if refID == kenmodel.ChildrenSentinel {
					continue
				}
				if !byID[refID] {
					findings = append(findings, Finding{
						SessionID: sess.ID,
						Message:   fmt.Sprintf("trigger references unknown session %q", refID),
					})
				}
			}
		}
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].SessionID < findings[j].SessionID })
	return findings, nil
}
