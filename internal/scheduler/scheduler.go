// Package scheduler drives the cooperative loop of spec.md §4.6: it
// evaluates sleeping sessions' triggers, wakes the ones that fire, and
// spawns the highest wake-priority pending session within the
// configured concurrency budget. It is the only place a trigger moves a
// session sleeping->pending.
package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ken-run/ken/internal/compose"
	"github.com/ken-run/ken/internal/core"
	"github.com/ken-run/ken/internal/kenmodel"
	"github.com/ken-run/ken/internal/spawner"
	"github.com/ken-run/ken/internal/store"
	"github.com/ken-run/ken/internal/trigger"
)

// DefaultMaxActive is used when the ken_config table carries no
// max_active entry, per spec.md §4.6's concurrency budget.
const DefaultMaxActive = 4

// DefaultTickInterval bounds how long a `ken daemon` loop can go
// between iterations when no wake-file nudge arrives.
const DefaultTickInterval = 2 * time.Second

// Scheduler runs the wake-evaluation and dispatch loop against a Store,
// mirroring the teacher's Daemon in shape (a store handle, a spawner,
// a mutex guarding the pick step, an fsnotify-fed nudge channel).
type Scheduler struct {
	store    *store.Store
	spawner  *spawner.Spawner
	composer *compose.Composer
	project  core.Project
	logger   *core.Logger

	mu sync.Mutex

	tickInterval time.Duration
	nudgeCh      chan struct{}
	watcher      *fsnotify.Watcher
}

// New builds a Scheduler over the given collaborators.
func New(st *store.Store, sp *spawner.Spawner, composer *compose.Composer, project core.Project, logger *core.Logger) *Scheduler {
	return &Scheduler{
		store:        st,
		spawner:      sp,
		composer:     composer,
		project:      project,
		logger:       logger,
		tickInterval: DefaultTickInterval,
		nudgeCh:      make(chan struct{}, 1),
	}
}

// Nudge wakes a running Run loop before its next tick, non-blocking, so
// multiple nudges between iterations collapse into one wake-up.
func (s *Scheduler) Nudge() {
	select {
	case s.nudgeCh <- struct{}{}:
	default:
	}
}

// maxActive resolves the concurrency budget from ken_config, falling
// back to DefaultMaxActive when unset or unparsable.
func (s *Scheduler) maxActive() int {
	raw, err := s.store.GetConfig("max_active")
	if err != nil || raw == "" {
		return DefaultMaxActive
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return DefaultMaxActive
	}
	return n
}

// Tick runs exactly one scheduler iteration: evaluate sleeping
// triggers, then (budget permitting) wake and spawn one pending
// session. It returns whether a pending session was woken and handed
// to the spawner, for `ken process` to report progress; that is also
// true when the driver then fails to start it and the session is
// marked failed.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	if err := s.evaluateSleeping(); err != nil {
		return false, fmt.Errorf("evaluate sleeping sessions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.store.Query(store.Filter{Status: kenmodel.StatusActive})
	if err != nil {
		return false, fmt.Errorf("query active sessions: %w", err)
	}
	waking, err := s.store.Query(store.Filter{Status: kenmodel.StatusWaking})
	if err != nil {
		return false, fmt.Errorf("query waking sessions: %w", err)
	}
	if len(active)+len(waking) >= s.maxActive() {
		return false, nil
	}

	pending, err := s.store.Query(store.Filter{Status: kenmodel.StatusPending})
	if err != nil {
		return false, fmt.Errorf("query pending sessions: %w", err)
	}
	if len(pending) == 0 {
		return false, nil
	}

	next, err := s.pickHighestPriority(pending)
	if err != nil {
		return false, fmt.Errorf("compute wake priority: %w", err)
	}

	return true, s.wake(ctx, next)
}

// evaluateSleeping fires triggers whose condition now holds, moving
// each satisfied session sleeping->pending inside its own transaction
// per spec.md §4.6 step 1.
func (s *Scheduler) evaluateSleeping() error {
	sleeping, err := s.store.Query(store.Filter{Status: kenmodel.StatusSleeping})
	if err != nil {
		return err
	}
	if len(sleeping) == 0 {
		return nil
	}

	lookup, err := s.statusLookup()
	if err != nil {
		return err
	}
	now := time.Now()

	for _, sess := range sleeping {
		if sess.Trigger == nil {
			continue
		}
		if !trigger.Evaluate(*sess.Trigger, lookup, now) {
			continue
		}
		if err := s.fireTrigger(sess.ID, now); err != nil {
			return fmt.Errorf("session %s: %w", sess.ID, err)
		}
	}
	return nil
}

// statusLookup builds a trigger.StatusLookup closure snapshotting every
// session's status once per evaluation pass, rather than issuing one
// store round-trip per referenced id.
func (s *Scheduler) statusLookup() (trigger.StatusLookup, error) {
	all, err := s.store.Query(store.Filter{})
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]kenmodel.Status, len(all))
	for _, sess := range all {
		statuses[sess.ID] = sess.Status
	}
	return func(id string) (kenmodel.Status, bool) {
		st, ok := statuses[id]
		return st, ok
	}, nil
}

func (s *Scheduler) fireTrigger(sessionID string, now time.Time) error {
	return s.store.Transaction(func(tx *store.Tx) error {
		sess, err := tx.GetSession(sessionID)
		if err != nil {
			return err
		}
		if sess.Status != kenmodel.StatusSleeping {
			return nil // already moved on by a concurrent tick
		}
		pending := kenmodel.StatusPending
		var clearedTrigger *kenmodel.Trigger
		if err := tx.UpdateSession(sessionID, store.Patch{Status: &pending, Trigger: &clearedTrigger}); err != nil {
			return err
		}
		_, err = tx.AppendEvent(store.NewEvent{SessionID: sessionID, Kind: kenmodel.EventTriggerSatisfied, Now: now})
		return err
	})
}

// pickHighestPriority orders pending by spec.md §4.6's wake priority
// (deeper first, then oldest updated_at, then lexicographic id) and
// returns the winner.
func (s *Scheduler) pickHighestPriority(pending []kenmodel.Session) (kenmodel.Session, error) {
	depths := make(map[string]int, len(pending))
	for _, sess := range pending {
		d, err := s.depth(sess)
		if err != nil {
			return kenmodel.Session{}, err
		}
		depths[sess.ID] = d
	}

	sort.Slice(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if depths[a.ID] != depths[b.ID] {
			return depths[a.ID] > depths[b.ID]
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.ID < b.ID
	})

	return pending[0], nil
}

// depth walks a session's parent chain, counting hops to a root.
func (s *Scheduler) depth(sess kenmodel.Session) (int, error) {
	depth := 0
	current := sess
	for current.HasParent() {
		parent, err := s.store.GetSession(current.ParentID)
		if err != nil {
			return 0, err
		}
		current = parent
		depth++
	}
	return depth, nil
}

// wake transitions a pending session to waking, composes its prompt,
// and hands it to the spawner. Composition never fails per spec.md
// §4.3; a compose warning is recorded as a warning event rather than
// aborting the wake.
func (s *Scheduler) wake(ctx context.Context, sess kenmodel.Session) error {
	waking := kenmodel.StatusWaking
	if err := s.store.UpdateSession(sess.ID, store.Patch{Status: &waking}); err != nil {
		return fmt.Errorf("transition to waking: %w", err)
	}
	_, _ = s.store.AppendEvent(store.NewEvent{SessionID: sess.ID, Kind: kenmodel.EventSessionActivated})

	mode := compose.ModeFresh
	if sess.HasCheckpoint() {
		mode = compose.ModeRecover
	}

	deps, err := s.dependencyResults(sess)
	if err != nil {
		s.logger.Debugf("session %s: dependency lookup failed: %v", sess.ID, err)
	}

	result := s.composer.Compose(compose.Input{
		Session:      sess,
		Mode:         mode,
		KenningPath:  filepath.Join(s.project.KensRoot(), sess.KenPath, "kenning.md"),
		WorkingDir:   s.project.Root,
		Dependencies: deps,
	})
	for _, w := range result.Warnings {
		_, _ = s.store.AppendEvent(store.NewEvent{SessionID: sess.ID, Kind: kenmodel.EventWarning, Data: w.Message})
	}

	if err := s.spawner.Spawn(ctx, sess.ID, s.project.Root, result.Prompt); err != nil {
		s.logger.Debugf("session %s: spawn failed: %v", sess.ID, err)
		return nil // Spawn already transitioned the session to failed.
	}
	return nil
}

// dependencyResults reports the outcome of every terminal child of
// sess, queried by parent_id rather than by the session's own trigger:
// fireTrigger clears the trigger the moment a sleeping session wakes,
// per the state-trigger invariant of spec.md §3 (trigger != null iff
// status = sleeping), so it is gone by the time wake composes a prompt.
func (s *Scheduler) dependencyResults(sess kenmodel.Session) ([]compose.DependencyResult, error) {
	children, err := s.store.Query(store.Filter{ParentID: sess.ID})
	if err != nil {
		return nil, err
	}
	var deps []compose.DependencyResult
	for _, child := range children {
		if !child.Status.Terminal() {
			continue
		}
		deps = append(deps, compose.DependencyResult{
			SessionID: child.ID,
			KenPath:   child.KenPath,
			Status:    child.Status,
			Result:    child.Result,
		})
	}
	return deps, nil
}

// Run loops Tick until ctx is cancelled, sleeping on tickInterval
// unless a Nudge or wake-file change arrives first, per the
// select-on-ticker/nudge/done shape spec.md §5 and §9 call for.
func (s *Scheduler) Run(ctx context.Context) error {
	watcher, nudgeFromFile, err := s.startWakeWatcher()
	if err != nil {
		s.logger.Debugf("wake watcher unavailable, falling back to tick-only: %v", err)
	}
	if watcher != nil {
		defer watcher.Close()
	}

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Debugf("tick error: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.nudgeCh:
		case <-nudgeFromFile:
		}
	}
}

// startWakeWatcher watches the project's wake-signal touch file so
// `ken wake`/`ken request` can interrupt an idle daemon without waiting
// for the next tick, grounded on the teacher's fsnotify-driven
// sync_watcher.go loop. The watched path is the .ken directory itself
// (not the file), since the touch file may not exist yet on first run.
func (s *Scheduler) startWakeWatcher() (*fsnotify.Watcher, <-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := watcher.Add(s.project.KenDir); err != nil {
		_ = watcher.Close()
		return nil, nil, err
	}

	signalCh := make(chan struct{}, 1)
	wakePath := s.project.WakeSignalPath()
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != wakePath {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					select {
					case signalCh <- struct{}{}:
					default:
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, signalCh, nil
}
