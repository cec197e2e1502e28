// Package spawner launches and tracks the external agent processes
// that a ken session's prompt is delivered to, per spec.md §4.4. It is
// a thin wrapper over process creation and wait: it does not parse
// agent stdout for payloads (those arrive through the Request Handler
// on a separate channel) and never mutates session state beyond the
// waking->active activity marker and the any->failed crash edge.
package spawner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ken-run/ken/internal/kenmodel"
	"github.com/ken-run/ken/internal/store"
)

// Spawner tracks live agent processes, one per session, guarded by a
// mutex exactly like the teacher's Daemon.processes map.
type Spawner struct {
	driver Driver
	store  *store.Store

	mu        sync.Mutex
	processes map[string]*Process
	handled   map[string]bool

	wg sync.WaitGroup
}

// New builds a Spawner that launches agents via driver and records
// lifecycle transitions against st.
func New(driver Driver, st *store.Store) *Spawner {
	return &Spawner{
		driver:    driver,
		store:     st,
		processes: make(map[string]*Process),
		handled:   make(map[string]bool),
	}
}

// Spawn launches an agent for sessionID with the composed prompt,
// recording an agent_spawned event. The session must already be in
// status=waking; the caller (scheduler) owns that transition.
func (s *Spawner) Spawn(ctx context.Context, sessionID, workingDir, prompt string) error {
	proc, err := s.driver.Spawn(ctx, sessionID, workingDir, prompt)
	if err != nil {
		failed := kenmodel.StatusFailed
		reason := fmt.Sprintf("failed to spawn agent process: %v", err)
		_ = s.store.UpdateSession(sessionID, store.Patch{
			Status:             &failed,
			Result:             &reason,
			AllowAnyTransition: true,
		})
		_, _ = s.store.AppendEvent(store.NewEvent{SessionID: sessionID, Kind: kenmodel.EventFailed, Data: reason})
		return err
	}

	proc.StdoutBuffer = NewRingBuffer(4096)
	proc.StderrBuffer = NewRingBuffer(4096)

	s.mu.Lock()
	s.processes[sessionID] = proc
	s.handled[sessionID] = false
	s.mu.Unlock()

	_, _ = s.store.AppendEvent(store.NewEvent{
		SessionID: sessionID,
		Kind:      kenmodel.EventAgentSpawned,
		Data:      fmt.Sprintf(`{"driver":%q,"pid":%d}`, s.driver.Name(), pid(proc)),
	})

	// The process is live: flip waking->active now, before the agent's
	// first request can arrive, so the Request Handler's active-only
	// guard on complete/fail/sleep/spawn_and_sleep has something to
	// accept. A crash before any terminal request still fails the
	// session (handleExit checks Terminal()/Sleeping, not a specific
	// non-terminal status).
	active := kenmodel.StatusActive
	_ = s.store.UpdateSession(sessionID, store.Patch{Status: &active})

	s.wg.Add(1)
	go s.monitor(sessionID, proc)

	return nil
}

func pid(proc *Process) int {
	if proc == nil || proc.Cmd == nil || proc.Cmd.Process == nil {
		return 0
	}
	return proc.Cmd.Process.Pid
}

// monitor drains a process's stdout/stderr into ring buffers and
// waits for exit, mirroring the teacher's daemon.monitorProcess
// drain-then-wait shape.
func (s *Spawner) monitor(sessionID string, proc *Process) {
	defer s.wg.Done()

	// A Process without a Cmd has no OS process to wait on, so there is
	// no exit to observe.
	if proc.Cmd == nil {
		return
	}

	var drain sync.WaitGroup
	if proc.Stdout != nil {
		drain.Add(1)
		go func() {
			defer drain.Done()
			buf := make([]byte, 4096)
			for {
				n, err := proc.Stdout.Read(buf)
				if n > 0 {
					proc.StdoutBuffer.Write(buf[:n])
				}
				if err != nil {
					return
				}
			}
		}()
	}
	if proc.Stderr != nil {
		drain.Add(1)
		go func() {
			defer drain.Done()
			buf := make([]byte, 4096)
			for {
				n, err := proc.Stderr.Read(buf)
				if n > 0 {
					proc.StderrBuffer.Write(buf[:n])
				}
				if err != nil {
					return
				}
			}
		}()
	}
	drain.Wait()

	_ = proc.Cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.handleExit(sessionID, proc)
}

// handleExit reacts to a process ending. If the session already
// reached a terminal status (the agent sent complete/fail, or slept)
// there is nothing to do; otherwise this is an unexpected exit and the
// session transitions to failed with a synthetic result, per
// spec.md §4.4 and §7's agent-failure taxonomy. Must be called with
// s.mu held.
func (s *Spawner) handleExit(sessionID string, proc *Process) {
	if s.handled[sessionID] {
		return
	}
	s.handled[sessionID] = true
	delete(s.processes, sessionID)

	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return
	}
	if sess.Status.Terminal() || sess.Status == kenmodel.StatusSleeping {
		return
	}

	exitCode := 0
	if proc.Cmd.ProcessState != nil {
		exitCode = proc.Cmd.ProcessState.ExitCode()
	}
	reason := fmt.Sprintf("agent process exited unexpectedly (code=%d) without a terminal request", exitCode)
	if tail := stderrTail(proc); tail != "" {
		reason += ": " + tail
	}

	failed := kenmodel.StatusFailed
	_ = s.store.UpdateSession(sessionID, store.Patch{
		Status:             &failed,
		Result:             &reason,
		AllowAnyTransition: true,
	})
	_, _ = s.store.AppendEvent(store.NewEvent{SessionID: sessionID, Kind: kenmodel.EventFailed, Data: reason, Now: time.Now()})

	_ = s.driver.Cleanup(proc)
}

// Wait blocks until every tracked process's monitor goroutine has
// finished, used by graceful shutdown paths (`ken daemon` on signal).
func (s *Spawner) Wait() { s.wg.Wait() }

// Active reports the number of sessions this spawner currently has a
// live process for. The scheduler's concurrency budget check counts
// active and waking sessions in the store instead.
func (s *Spawner) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processes)
}
