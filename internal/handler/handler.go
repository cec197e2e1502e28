// Package handler implements the four agent requests and the session
// state machine transitions they drive, per spec.md §4.5. Every
// request runs inside a single store.Transaction: guard violations,
// protocol errors, and store errors all produce {ok:false,error} and
// leave state untouched.
package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/ken-run/ken/internal/core"
	"github.com/ken-run/ken/internal/kenmodel"
	"github.com/ken-run/ken/internal/store"
)

// Handler validates and executes agent requests against a Store.
type Handler struct {
	store *store.Store
}

// New builds a Handler over st.
func New(st *store.Store) *Handler {
	return &Handler{store: st}
}

var kenPathPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*(/[a-z0-9]+(-[a-z0-9]+)*)*$`)

// ValidKenPath reports whether p is slash-delimited, lowercase,
// alphanumeric-or-dash segments, per spec.md §3.
func ValidKenPath(p string) bool {
	return p != "" && kenPathPattern.MatchString(p)
}

// Handle decodes one agent request line and dispatches it to the
// matching request method. requesterID is the session id of the
// connection delivering the request, when the channel knows one; a
// non-empty requesterID that does not match the envelope's session_id
// is rejected. `ken request` passes "" (no requester identity), which
// skips the check; the MCP server calls the request methods directly.
func (h *Handler) Handle(requesterID string, raw []byte) kenmodel.Response {
	var envelope kenmodel.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return kenmodel.ErrResponse(fmt.Sprintf("malformed JSON: %v", err))
	}
	if envelope.SessionID == "" {
		return kenmodel.ErrResponse("missing session_id")
	}
	if requesterID != "" && envelope.SessionID != requesterID {
		return kenmodel.ErrResponse("session_id does not match requester")
	}

	switch envelope.Type {
	case kenmodel.RequestComplete:
		var req kenmodel.CompleteRequest
		if err := unmarshalStrict(raw, &req); err != nil {
			return kenmodel.ErrResponse(err.Error())
		}
		return h.Complete(req)
	case kenmodel.RequestFail:
		var req kenmodel.FailRequest
		if err := unmarshalStrict(raw, &req); err != nil {
			return kenmodel.ErrResponse(err.Error())
		}
		return h.Fail(req)
	case kenmodel.RequestSleep:
		var req kenmodel.SleepRequest
		if err := unmarshalStrict(raw, &req); err != nil {
			return kenmodel.ErrResponse(err.Error())
		}
		return h.Sleep(req)
	case kenmodel.RequestSpawnAndSleep:
		var req kenmodel.SpawnAndSleepRequest
		if err := unmarshalStrict(raw, &req); err != nil {
			return kenmodel.ErrResponse(err.Error())
		}
		return h.SpawnAndSleep(req)
	default:
		return kenmodel.ErrResponse("unknown request type")
	}
}

// unmarshalStrict decodes raw into dst, rejecting unknown fields so a
// typo'd request field surfaces as a protocol error rather than being
// silently dropped.
func unmarshalStrict(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed request: %w", err)
	}
	return nil
}

// Complete implements the `complete` request of spec.md §4.5.
func (h *Handler) Complete(req kenmodel.CompleteRequest) kenmodel.Response {
	var resp kenmodel.Response
	err := h.store.Transaction(func(tx *store.Tx) error {
		sess, err := tx.GetSession(req.SessionID)
		if err != nil {
			return err
		}
		if sess.Status != kenmodel.StatusActive {
			return fmt.Errorf("session %s is not active (status=%s)", req.SessionID, sess.Status)
		}

		complete := kenmodel.StatusComplete
		if err := tx.UpdateSession(req.SessionID, store.Patch{Status: &complete, Result: &req.Result}); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(store.NewEvent{SessionID: req.SessionID, Kind: kenmodel.EventComplete, Data: req.Result, Now: time.Now()}); err != nil {
			return err
		}
		resp = kenmodel.OKResponse(nil)
		return nil
	})
	if err != nil {
		return kenmodel.ErrResponse(err.Error())
	}
	return resp
}

// Fail implements the `fail` request of spec.md §4.5.
func (h *Handler) Fail(req kenmodel.FailRequest) kenmodel.Response {
	var resp kenmodel.Response
	err := h.store.Transaction(func(tx *store.Tx) error {
		sess, err := tx.GetSession(req.SessionID)
		if err != nil {
			return err
		}
		if sess.Status != kenmodel.StatusActive {
			return fmt.Errorf("session %s is not active (status=%s)", req.SessionID, sess.Status)
		}

		failed := kenmodel.StatusFailed
		if err := tx.UpdateSession(req.SessionID, store.Patch{Status: &failed, Result: &req.Reason}); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(store.NewEvent{SessionID: req.SessionID, Kind: kenmodel.EventFailed, Data: req.Reason, Now: time.Now()}); err != nil {
			return err
		}
		resp = kenmodel.OKResponse(nil)
		return nil
	})
	if err != nil {
		return kenmodel.ErrResponse(err.Error())
	}
	return resp
}

// Sleep implements the `sleep` request of spec.md §4.5.
func (h *Handler) Sleep(req kenmodel.SleepRequest) kenmodel.Response {
	now := time.Now()
	var trig kenmodel.Trigger
	if err := trig.UnmarshalJSONAt(req.TriggerRaw, now); err != nil {
		return kenmodel.ErrResponse(fmt.Sprintf("invalid trigger: %v", err))
	}

	var resp kenmodel.Response
	err := h.store.Transaction(func(tx *store.Tx) error {
		sess, err := tx.GetSession(req.SessionID)
		if err != nil {
			return err
		}
		if sess.Status != kenmodel.StatusActive {
			return fmt.Errorf("session %s is not active (status=%s)", req.SessionID, sess.Status)
		}
		if trig.Empty() {
			return fmt.Errorf("trigger must be non-empty")
		}
		if err := verifyReferencedIDsExist(tx, trig.ReferencedIDs()); err != nil {
			return err
		}

		sleeping := kenmodel.StatusSleeping
		triggerPtr := &trig
		if err := tx.UpdateSession(req.SessionID, store.Patch{
			Status:     &sleeping,
			Trigger:    &triggerPtr,
			Checkpoint: &req.Checkpoint,
		}); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(store.NewEvent{SessionID: req.SessionID, Kind: kenmodel.EventSleep, Data: req.Checkpoint, Now: now}); err != nil {
			return err
		}
		resp = kenmodel.OKResponse(nil)
		return nil
	})
	if err != nil {
		return kenmodel.ErrResponse(err.Error())
	}
	return resp
}

// SpawnAndSleep implements the `spawn_and_sleep` request of
// spec.md §4.5 — the hardest invariant in the system: children
// existing without a parent trigger, or a trigger existing without
// children, are both forbidden. Every mutation commits inside one
// store.Transaction.
func (h *Handler) SpawnAndSleep(req kenmodel.SpawnAndSleepRequest) kenmodel.Response {
	now := time.Now()

	if len(req.Children) == 0 {
		return kenmodel.ErrResponse("spawn_and_sleep requires at least one child")
	}
	for _, c := range req.Children {
		if !ValidKenPath(c.KenPath) {
			return kenmodel.ErrResponse(fmt.Sprintf("invalid ken_path: %q", c.KenPath))
		}
	}

	var trig kenmodel.Trigger
	if err := trig.UnmarshalJSONAt(req.TriggerRaw, now); err != nil {
		return kenmodel.ErrResponse(fmt.Sprintf("invalid trigger: %v", err))
	}

	var resp kenmodel.Response
	err := h.store.Transaction(func(tx *store.Tx) error {
		sess, err := tx.GetSession(req.SessionID)
		if err != nil {
			return err
		}
		if sess.Status != kenmodel.StatusActive {
			return fmt.Errorf("session %s is not active (status=%s)", req.SessionID, sess.Status)
		}

		childIDs := make([]string, len(req.Children))
		for i, c := range req.Children {
			id := core.NewSessionID()
			childIDs[i] = id
			if err := tx.CreateSession(store.NewSessionFields{
				ID:       id,
				KenPath:  c.KenPath,
				Task:     c.Task,
				DoneWhen: c.DoneWhen,
				ParentID: req.SessionID,
				Now:      now,
			}); err != nil {
				return fmt.Errorf("mint child: %w", err)
			}
			if _, err := tx.AppendEvent(store.NewEvent{SessionID: id, Kind: kenmodel.EventSessionCreated, Now: now}); err != nil {
				return err
			}
		}

		resolved := trig.SubstituteChildren(childIDs)
		if resolved.Empty() {
			return fmt.Errorf("trigger must be non-empty after __CHILDREN__ substitution")
		}
		if err := verifyReferencedIDsExist(tx, resolved.ReferencedIDs()); err != nil {
			return err
		}

		sleeping := kenmodel.StatusSleeping
		triggerPtr := &resolved
		if err := tx.UpdateSession(req.SessionID, store.Patch{
			Status:     &sleeping,
			Trigger:    &triggerPtr,
			Checkpoint: &req.Checkpoint,
		}); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(store.NewEvent{SessionID: req.SessionID, Kind: kenmodel.EventSpawn, Now: now}); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(store.NewEvent{SessionID: req.SessionID, Kind: kenmodel.EventSleep, Data: req.Checkpoint, Now: now}); err != nil {
			return err
		}

		resp = kenmodel.OKResponse(struct {
			Children []string `json:"children"`
		}{childIDs})
		return nil
	})
	if err != nil {
		return kenmodel.ErrResponse(err.Error())
	}
	return resp
}

// verifyReferencedIDsExist checks every id a trigger names resolves
// to a real session, per spec.md §3's referential-integrity invariant.
// __CHILDREN__ is resolved by the caller before this runs.
func verifyReferencedIDsExist(tx *store.Tx, ids []string) error {
	for _, id := range ids {
		if id == kenmodel.ChildrenSentinel {
			continue
		}
		if _, err := tx.GetSession(id); err != nil {
			return fmt.Errorf("trigger references unknown session %q", id)
		}
	}
	return nil
}
