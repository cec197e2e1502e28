package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ken-run/ken/internal/compose"
	"github.com/ken-run/ken/internal/core"
	"github.com/ken-run/ken/internal/kenmodel"
	"github.com/ken-run/ken/internal/spawner"
	"github.com/ken-run/ken/internal/store"
)

type fakeDriver struct {
	spawnedPrompt string
	fail          bool
}

func (f *fakeDriver) Name() string { return "fake" }

func (f *fakeDriver) Spawn(ctx context.Context, sessionID, workingDir, prompt string) (*spawner.Process, error) {
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	f.spawnedPrompt = prompt
	return &spawner.Process{SessionID: sessionID, StartedAt: time.Now()}, nil
}

func (f *fakeDriver) Cleanup(proc *spawner.Process) error { return nil }

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store, *fakeDriver) {
	t.Helper()
	dir := t.TempDir()
	project, err := core.InitProject(dir, false)
	if err != nil {
		t.Fatalf("init project: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(project.KensRoot(), "demo"), 0o755); err != nil {
		t.Fatalf("mkdir kens: %v", err)
	}
	if err := os.WriteFile(filepath.Join(project.KensRoot(), "demo", "kenning.md"), []byte("## Frame 1: Go\nDo the thing.\n"), 0o644); err != nil {
		t.Fatalf("write kenning: %v", err)
	}

	st, err := store.Open(project)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	driver := &fakeDriver{}
	sp := spawner.New(driver, st)
	composer := compose.New(compose.PassthroughEngine{})
	logger := core.NewLogger("ken-test", false)

	return New(st, sp, composer, project, logger), st, driver
}

func TestTickSpawnsHighestPriorityPending(t *testing.T) {
	sched, st, driver := newTestScheduler(t)

	if err := st.CreateSession(store.NewSessionFields{ID: "s1", KenPath: "demo", Task: "t1"}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	spawned, err := sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !spawned {
		t.Fatalf("expected tick to spawn a session")
	}
	if driver.spawnedPrompt == "" {
		t.Fatalf("expected a composed prompt to reach the driver")
	}

	sess, err := st.GetSession("s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Status != kenmodel.StatusActive {
		t.Fatalf("expected session active after a successful spawn, got %s", sess.Status)
	}
}

func TestTickPrefersDeeperSession(t *testing.T) {
	sched, st, _ := newTestScheduler(t)

	if err := st.CreateSession(store.NewSessionFields{ID: "root", KenPath: "demo", Task: "root"}); err != nil {
		t.Fatalf("create root: %v", err)
	}
	waking := kenmodel.StatusWaking
	if err := st.UpdateSession("root", store.Patch{Status: &waking}); err != nil {
		t.Fatalf("waking: %v", err)
	}
	active := kenmodel.StatusActive
	if err := st.UpdateSession("root", store.Patch{Status: &active}); err != nil {
		t.Fatalf("active: %v", err)
	}
	if err := st.CreateSession(store.NewSessionFields{ID: "child", KenPath: "demo", Task: "child", ParentID: "root"}); err != nil {
		t.Fatalf("create child: %v", err)
	}
	if err := st.CreateSession(store.NewSessionFields{ID: "other-root", KenPath: "demo", Task: "other"}); err != nil {
		t.Fatalf("create other root: %v", err)
	}

	spawned, err := sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !spawned {
		t.Fatalf("expected a spawn")
	}

	child, err := st.GetSession("child")
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	if child.Status != kenmodel.StatusActive {
		t.Fatalf("expected the deeper child to be picked first, got child status=%s", child.Status)
	}

	otherRoot, err := st.GetSession("other-root")
	if err != nil {
		t.Fatalf("get other-root: %v", err)
	}
	if otherRoot.Status != kenmodel.StatusPending {
		t.Fatalf("expected other-root to remain pending, got %s", otherRoot.Status)
	}
}

func TestTickRespectsMaxActiveBudget(t *testing.T) {
	sched, st, _ := newTestScheduler(t)

	if err := st.SetConfig("max_active", "1"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := st.CreateSession(store.NewSessionFields{ID: "busy", KenPath: "demo", Task: "busy"}); err != nil {
		t.Fatalf("create busy: %v", err)
	}
	waking := kenmodel.StatusWaking
	if err := st.UpdateSession("busy", store.Patch{Status: &waking}); err != nil {
		t.Fatalf("waking: %v", err)
	}
	if err := st.CreateSession(store.NewSessionFields{ID: "pending1", KenPath: "demo", Task: "pending"}); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	spawned, err := sched.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if spawned {
		t.Fatalf("expected budget to block the spawn")
	}

	pending, err := st.GetSession("pending1")
	if err != nil {
		t.Fatalf("get pending1: %v", err)
	}
	if pending.Status != kenmodel.StatusPending {
		t.Fatalf("expected pending1 to remain pending, got %s", pending.Status)
	}
}

func TestEvaluateSleepingWakesOnAllComplete(t *testing.T) {
	sched, st, _ := newTestScheduler(t)

	if err := st.CreateSession(store.NewSessionFields{ID: "dep", KenPath: "demo", Task: "dep"}); err != nil {
		t.Fatalf("create dep: %v", err)
	}
	complete := kenmodel.StatusComplete
	result := "done"
	for _, p := range []store.Patch{
		{Status: func() *kenmodel.Status { s := kenmodel.StatusWaking; return &s }()},
		{Status: func() *kenmodel.Status { s := kenmodel.StatusActive; return &s }()},
	} {
		if err := st.UpdateSession("dep", p); err != nil {
			t.Fatalf("advance dep: %v", err)
		}
	}
	if err := st.UpdateSession("dep", store.Patch{Status: &complete, Result: &result}); err != nil {
		t.Fatalf("complete dep: %v", err)
	}

	if err := st.CreateSession(store.NewSessionFields{ID: "parent", KenPath: "demo", Task: "parent"}); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	trig := kenmodel.AllComplete([]string{"dep"})
	sleeping := kenmodel.StatusSleeping
	triggerPtr := &trig
	cp := "checkpoint"
	for _, p := range []store.Patch{
		{Status: func() *kenmodel.Status { s := kenmodel.StatusWaking; return &s }()},
		{Status: func() *kenmodel.Status { s := kenmodel.StatusActive; return &s }()},
	} {
		if err := st.UpdateSession("parent", p); err != nil {
			t.Fatalf("advance parent: %v", err)
		}
	}
	if err := st.UpdateSession("parent", store.Patch{Status: &sleeping, Trigger: &triggerPtr, Checkpoint: &cp}); err != nil {
		t.Fatalf("sleep parent: %v", err)
	}

	if err := sched.evaluateSleeping(); err != nil {
		t.Fatalf("evaluateSleeping: %v", err)
	}

	parent, err := st.GetSession("parent")
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if parent.Status != kenmodel.StatusPending {
		t.Fatalf("expected parent woken to pending, got %s", parent.Status)
	}
}
