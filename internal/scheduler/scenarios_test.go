package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ken-run/ken/internal/handler"
	"github.com/ken-run/ken/internal/kenmodel"
	"github.com/ken-run/ken/internal/store"
)

// advance walks a session from pending through waking to active, the
// precondition every handler request assumes.
func advanceToActive(t *testing.T, st *store.Store, id string) {
	t.Helper()
	waking := kenmodel.StatusWaking
	if err := st.UpdateSession(id, store.Patch{Status: &waking}); err != nil {
		t.Fatalf("%s -> waking: %v", id, err)
	}
	active := kenmodel.StatusActive
	if err := st.UpdateSession(id, store.Patch{Status: &active}); err != nil {
		t.Fatalf("%s -> active: %v", id, err)
	}
}

// Scenario 1: root completion.
func TestScenarioRootCompletion(t *testing.T) {
	sched, st, _ := newTestScheduler(t)
	h := handler.New(st)

	if err := st.CreateSession(store.NewSessionFields{ID: "s1", KenPath: "demo", Task: "X"}); err != nil {
		t.Fatalf("create s1: %v", err)
	}
	if _, err := st.AppendEvent(store.NewEvent{SessionID: "s1", Kind: kenmodel.EventSessionCreated}); err != nil {
		t.Fatalf("append session_created: %v", err)
	}

	spawned, err := sched.Tick(context.Background())
	if err != nil || !spawned {
		t.Fatalf("tick: spawned=%v err=%v", spawned, err)
	}
	// Tick's successful spawn already carried s1 waking->active.

	resp := h.Complete(kenmodel.CompleteRequest{
		Envelope: kenmodel.Envelope{SessionID: "s1", Type: kenmodel.RequestComplete},
		Result:   "R",
	})
	if !resp.OK {
		t.Fatalf("complete: %+v", resp)
	}

	sess, err := st.GetSession("s1")
	if err != nil {
		t.Fatalf("get s1: %v", err)
	}
	if sess.Status != kenmodel.StatusComplete || sess.Result != "R" {
		t.Fatalf("unexpected final state: %+v", sess)
	}

	events, err := st.EventsForSession("s1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	kinds := make([]kenmodel.EventKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	want := []kenmodel.EventKind{kenmodel.EventSessionCreated, kenmodel.EventSessionActivated, kenmodel.EventAgentSpawned, kenmodel.EventComplete}
	if len(kinds) != len(want) {
		t.Fatalf("event log = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event log = %v, want %v", kinds, want)
		}
	}
}

// Scenario 2: spawn-and-sleep fan-out.
func TestScenarioSpawnAndSleepFanOut(t *testing.T) {
	_, st, _ := newTestScheduler(t)
	h := handler.New(st)

	if err := st.CreateSession(store.NewSessionFields{ID: "s1", KenPath: "demo", Task: "root"}); err != nil {
		t.Fatalf("create s1: %v", err)
	}
	advanceToActive(t, st, "s1")

	resp := h.SpawnAndSleep(kenmodel.SpawnAndSleepRequest{
		Envelope: kenmodel.Envelope{SessionID: "s1", Type: kenmodel.RequestSpawnAndSleep},
		Children: []kenmodel.ChildSpec{
			{KenPath: "demo", Task: "ta"},
			{KenPath: "demo", Task: "tb"},
		},
		TriggerRaw: []byte(`{"all_complete":"__CHILDREN__"}`),
		Checkpoint: "cp",
	})
	if !resp.OK {
		t.Fatalf("spawn_and_sleep: %+v", resp)
	}

	kids, err := st.Query(store.Filter{ParentID: "s1"})
	if err != nil {
		t.Fatalf("query children: %v", err)
	}
	childIDs := make([]string, len(kids))
	for i, k := range kids {
		childIDs[i] = k.ID
	}
	if len(childIDs) != 2 {
		t.Fatalf("expected 2 children, got %d", len(childIDs))
	}

	s1, err := st.GetSession("s1")
	if err != nil {
		t.Fatalf("get s1: %v", err)
	}
	if s1.Status != kenmodel.StatusSleeping {
		t.Fatalf("expected s1 sleeping, got %s", s1.Status)
	}
	if s1.Checkpoint != "cp" {
		t.Fatalf("expected checkpoint cp, got %q", s1.Checkpoint)
	}
	if s1.Trigger == nil || s1.Trigger.Kind != kenmodel.TriggerAllComplete || len(s1.Trigger.IDs) != 2 {
		t.Fatalf("expected resolved all_complete trigger over 2 ids, got %+v", s1.Trigger)
	}

	for _, id := range s1.Trigger.IDs {
		child, err := st.GetSession(id)
		if err != nil {
			t.Fatalf("get child %s: %v", id, err)
		}
		if child.ParentID != "s1" || child.Status != kenmodel.StatusPending {
			t.Fatalf("unexpected child %s: %+v", id, child)
		}
	}
}

// Scenario 3: trigger fires only once every dependency completes, and
// the wake prompt enumerates both results.
func TestScenarioTriggerFiresOnLastCompletion(t *testing.T) {
	sched, st, driver := newTestScheduler(t)
	h := handler.New(st)

	if err := st.CreateSession(store.NewSessionFields{ID: "s1", KenPath: "demo", Task: "root"}); err != nil {
		t.Fatalf("create s1: %v", err)
	}
	advanceToActive(t, st, "s1")
	resp := h.SpawnAndSleep(kenmodel.SpawnAndSleepRequest{
		Envelope:   kenmodel.Envelope{SessionID: "s1", Type: kenmodel.RequestSpawnAndSleep},
		Children:   []kenmodel.ChildSpec{{KenPath: "demo", Task: "ta"}, {KenPath: "demo", Task: "tb"}},
		TriggerRaw: []byte(`{"all_complete":"__CHILDREN__"}`),
		Checkpoint: "cp",
	})
	if !resp.OK {
		t.Fatalf("spawn_and_sleep: %+v", resp)
	}
	s1, _ := st.GetSession("s1")
	c1, c2 := s1.Trigger.IDs[0], s1.Trigger.IDs[1]

	advanceToActive(t, st, c1)
	if resp := h.Complete(kenmodel.CompleteRequest{Envelope: kenmodel.Envelope{SessionID: c1, Type: kenmodel.RequestComplete}, Result: "r1"}); !resp.OK {
		t.Fatalf("complete c1: %+v", resp)
	}

	if err := sched.evaluateSleeping(); err != nil {
		t.Fatalf("evaluateSleeping after c1 only: %v", err)
	}
	s1, err := st.GetSession("s1")
	if err != nil {
		t.Fatalf("get s1: %v", err)
	}
	if s1.Status != kenmodel.StatusSleeping {
		t.Fatalf("expected s1 still sleeping with one dependency outstanding, got %s", s1.Status)
	}

	advanceToActive(t, st, c2)
	if resp := h.Complete(kenmodel.CompleteRequest{Envelope: kenmodel.Envelope{SessionID: c2, Type: kenmodel.RequestComplete}, Result: "r2"}); !resp.OK {
		t.Fatalf("complete c2: %+v", resp)
	}

	if err := sched.evaluateSleeping(); err != nil {
		t.Fatalf("evaluateSleeping after both complete: %v", err)
	}
	s1, err = st.GetSession("s1")
	if err != nil {
		t.Fatalf("get s1: %v", err)
	}
	if s1.Status != kenmodel.StatusPending {
		t.Fatalf("expected s1 woken to pending, got %s", s1.Status)
	}
	if s1.Trigger != nil {
		t.Fatalf("expected the satisfied trigger to be cleared on wake, got %+v", s1.Trigger)
	}

	spawned, err := sched.Tick(context.Background())
	if err != nil || !spawned {
		t.Fatalf("tick to wake s1: spawned=%v err=%v", spawned, err)
	}
	prompt := driver.spawnedPrompt
	if !strings.Contains(prompt, "## Dependency Results") {
		t.Fatalf("expected a Dependency Results section, prompt=%q", prompt)
	}
	if !strings.Contains(prompt, "result=r1") || !strings.Contains(prompt, "result=r2") {
		t.Fatalf("expected both dependency results in prompt, got %q", prompt)
	}
}

// Scenario 4: a failed child still satisfies all_complete, and is
// reported with its failed status in the dependency results.
func TestScenarioFailedChildUnblocksParent(t *testing.T) {
	sched, st, driver := newTestScheduler(t)
	h := handler.New(st)

	if err := st.CreateSession(store.NewSessionFields{ID: "s1", KenPath: "demo", Task: "root"}); err != nil {
		t.Fatalf("create s1: %v", err)
	}
	advanceToActive(t, st, "s1")
	resp := h.SpawnAndSleep(kenmodel.SpawnAndSleepRequest{
		Envelope:   kenmodel.Envelope{SessionID: "s1", Type: kenmodel.RequestSpawnAndSleep},
		Children:   []kenmodel.ChildSpec{{KenPath: "demo", Task: "ta"}, {KenPath: "demo", Task: "tb"}},
		TriggerRaw: []byte(`{"all_complete":"__CHILDREN__"}`),
		Checkpoint: "cp",
	})
	if !resp.OK {
		t.Fatalf("spawn_and_sleep: %+v", resp)
	}
	s1, _ := st.GetSession("s1")
	c1, c2 := s1.Trigger.IDs[0], s1.Trigger.IDs[1]

	advanceToActive(t, st, c1)
	if resp := h.Fail(kenmodel.FailRequest{Envelope: kenmodel.Envelope{SessionID: c1, Type: kenmodel.RequestFail}, Reason: "boom"}); !resp.OK {
		t.Fatalf("fail c1: %+v", resp)
	}
	advanceToActive(t, st, c2)
	if resp := h.Complete(kenmodel.CompleteRequest{Envelope: kenmodel.Envelope{SessionID: c2, Type: kenmodel.RequestComplete}, Result: "r2"}); !resp.OK {
		t.Fatalf("complete c2: %+v", resp)
	}

	if err := sched.evaluateSleeping(); err != nil {
		t.Fatalf("evaluateSleeping: %v", err)
	}
	s1, err := st.GetSession("s1")
	if err != nil {
		t.Fatalf("get s1: %v", err)
	}
	if s1.Status != kenmodel.StatusPending {
		t.Fatalf("expected a failed child to still satisfy all_complete, s1=%s", s1.Status)
	}

	spawned, err := sched.Tick(context.Background())
	if err != nil || !spawned {
		t.Fatalf("tick to wake s1: spawned=%v err=%v", spawned, err)
	}
	prompt := driver.spawnedPrompt
	if !strings.Contains(prompt, "status=failed result=boom") {
		t.Fatalf("expected c1's failed status in dependency results, got %q", prompt)
	}
}

// Scenario 5: a timeout trigger fires with no dependencies, and the
// re-wake prompt carries the verbatim checkpoint with no dependency block.
func TestScenarioTimeoutWithoutDependencies(t *testing.T) {
	sched, st, driver := newTestScheduler(t)
	h := handler.New(st)

	if err := st.CreateSession(store.NewSessionFields{ID: "s1", KenPath: "demo", Task: "root"}); err != nil {
		t.Fatalf("create s1: %v", err)
	}
	advanceToActive(t, st, "s1")

	resp := h.Sleep(kenmodel.SleepRequest{
		Envelope:   kenmodel.Envelope{SessionID: "s1", Type: kenmodel.RequestSleep},
		TriggerRaw: []byte(`{"timeout_seconds":0}`),
		Checkpoint: "wait",
	})
	if !resp.OK {
		t.Fatalf("sleep: %+v", resp)
	}

	time.Sleep(5 * time.Millisecond)

	if err := sched.evaluateSleeping(); err != nil {
		t.Fatalf("evaluateSleeping: %v", err)
	}
	s1, err := st.GetSession("s1")
	if err != nil {
		t.Fatalf("get s1: %v", err)
	}
	if s1.Status != kenmodel.StatusPending {
		t.Fatalf("expected timeout to wake s1 to pending, got %s", s1.Status)
	}

	spawned, err := sched.Tick(context.Background())
	if err != nil || !spawned {
		t.Fatalf("tick to wake s1: spawned=%v err=%v", spawned, err)
	}
	prompt := driver.spawnedPrompt
	if !strings.Contains(prompt, "## Previous Checkpoint\nwait") {
		t.Fatalf("expected verbatim checkpoint in prompt, got %q", prompt)
	}
	if strings.Contains(prompt, "## Dependency Results") {
		t.Fatalf("expected no dependency results section, got %q", prompt)
	}
}

// Scenario 6: a crash between child inserts leaves the parent active
// with no partial children, and a retry succeeds.
func TestScenarioCrashMidSpawnLeavesNoPartialChildren(t *testing.T) {
	_, st, _ := newTestScheduler(t)
	h := handler.New(st)

	if err := st.CreateSession(store.NewSessionFields{ID: "s1", KenPath: "demo", Task: "root"}); err != nil {
		t.Fatalf("create s1: %v", err)
	}
	advanceToActive(t, st, "s1")

	injected := context.Canceled
	err := st.Transaction(func(tx *store.Tx) error {
		if err := tx.CreateSession(store.NewSessionFields{ID: "c1", KenPath: "demo", Task: "ta", ParentID: "s1"}); err != nil {
			return err
		}
		return injected // simulate a crash before the second child's insert
	})
	if err == nil {
		t.Fatalf("expected the injected failure to abort the transaction")
	}

	if _, err := st.GetSession("c1"); err == nil {
		t.Fatalf("expected c1's insert to have been rolled back")
	}
	s1, err := st.GetSession("s1")
	if err != nil {
		t.Fatalf("get s1: %v", err)
	}
	if s1.Status != kenmodel.StatusActive {
		t.Fatalf("expected s1 to still be active after the aborted attempt, got %s", s1.Status)
	}
	events, err := st.EventsForSession("s1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	for _, e := range events {
		if e.Kind == kenmodel.EventSpawn {
			t.Fatalf("expected no spawn event for the aborted attempt, got %+v", events)
		}
	}

	resp := h.SpawnAndSleep(kenmodel.SpawnAndSleepRequest{
		Envelope:   kenmodel.Envelope{SessionID: "s1", Type: kenmodel.RequestSpawnAndSleep},
		Children:   []kenmodel.ChildSpec{{KenPath: "demo", Task: "ta"}, {KenPath: "demo", Task: "tb"}, {KenPath: "demo", Task: "tc"}},
		TriggerRaw: []byte(`{"all_complete":"__CHILDREN__"}`),
		Checkpoint: "cp",
	})
	if !resp.OK {
		t.Fatalf("retry spawn_and_sleep: %+v", resp)
	}
	kids, err := st.Query(store.Filter{ParentID: "s1"})
	if err != nil {
		t.Fatalf("query children: %v", err)
	}
	if len(kids) != 3 {
		t.Fatalf("expected the retry to mint 3 children, got %d", len(kids))
	}
}

// Property: trigger != nil iff status == sleeping, across the fire
// and both terminal edges (spec.md §3 / §8's state-trigger invariant).
func TestPropertyTriggerNonNilOnlyWhileSleeping(t *testing.T) {
	sched, st, _ := newTestScheduler(t)
	h := handler.New(st)

	if err := st.CreateSession(store.NewSessionFields{ID: "s1", KenPath: "demo", Task: "root"}); err != nil {
		t.Fatalf("create s1: %v", err)
	}
	advanceToActive(t, st, "s1")

	sess, err := st.GetSession("s1")
	if err != nil {
		t.Fatalf("get s1: %v", err)
	}
	if sess.Trigger != nil {
		t.Fatalf("active session should have no trigger, got %+v", sess.Trigger)
	}

	resp := h.Sleep(kenmodel.SleepRequest{
		Envelope:   kenmodel.Envelope{SessionID: "s1", Type: kenmodel.RequestSleep},
		TriggerRaw: []byte(`{"timeout_seconds":0}`),
		Checkpoint: "wait",
	})
	if !resp.OK {
		t.Fatalf("sleep: %+v", resp)
	}
	sess, err = st.GetSession("s1")
	if err != nil {
		t.Fatalf("get s1: %v", err)
	}
	if sess.Trigger == nil {
		t.Fatalf("sleeping session must carry a trigger")
	}

	time.Sleep(5 * time.Millisecond)
	if err := sched.evaluateSleeping(); err != nil {
		t.Fatalf("evaluateSleeping: %v", err)
	}
	sess, err = st.GetSession("s1")
	if err != nil {
		t.Fatalf("get s1: %v", err)
	}
	if sess.Status != kenmodel.StatusPending {
		t.Fatalf("expected the timeout to wake s1 to pending, got %s", sess.Status)
	}
	if sess.Trigger != nil {
		t.Fatalf("a woken session must not retain its satisfied trigger, got %+v", sess.Trigger)
	}

	spawned, err := sched.Tick(context.Background())
	if err != nil || !spawned {
		t.Fatalf("tick to wake s1: spawned=%v err=%v", spawned, err)
	}
	if resp := h.Complete(kenmodel.CompleteRequest{Envelope: kenmodel.Envelope{SessionID: "s1", Type: kenmodel.RequestComplete}, Result: "done"}); !resp.OK {
		t.Fatalf("complete: %+v", resp)
	}
	sess, err = st.GetSession("s1")
	if err != nil {
		t.Fatalf("get s1: %v", err)
	}
	if sess.Status != kenmodel.StatusComplete {
		t.Fatalf("expected s1 complete, got %s", sess.Status)
	}
	if sess.Trigger != nil {
		t.Fatalf("a terminal session must not carry a trigger, got %+v", sess.Trigger)
	}
}
