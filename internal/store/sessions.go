package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ken-run/ken/internal/kenmodel"
)

// Session is the store's row representation, matching kenmodel.Session
// with nullable columns unpacked into Go zero values by the scan helpers.
type Session = kenmodel.Session

// NewSessionFields is the input to CreateSession.
type NewSessionFields struct {
	ID       string
	KenPath  string
	Task     string
	DoneWhen *kenmodel.DoneWhen
	ParentID string
	Now      time.Time
}

// Patch is a partial update applied by UpdateSession. Only non-nil
// fields are written; Status, if set, is validated against the current
// status's legal transitions before anything is written.
type Patch struct {
	Status     *kenmodel.Status
	Trigger    **kenmodel.Trigger // pointer-to-pointer: non-nil outer means "set", inner nil means "clear"
	Checkpoint *string
	Result     *string
	Heartbeat  *time.Time
	// AllowAnyTransition bypasses the state-machine guard for edges the
	// table can't express: "any -> failed" on spawner crash detection
	// and operator abandon, and "failed -> pending" on operator recover.
	AllowAnyTransition bool
}

// Filter selects sessions by any combination of status, parent, and
// ken_path glob (github.com/gobwas/glob, matching the pattern-matching
// idiom the teacher's claims feature uses in internal/db/queries_claims.go).
type Filter struct {
	Status       kenmodel.Status // zero value means "any"
	ParentID     string          // non-empty means "children of this session"
	RootsOnly    bool            // true means "parent_id IS NULL"
	KenPathGlob  string          // non-empty means glob-match ken_path
}

// NewEvent is the input to AppendEvent.
type NewEvent struct {
	SessionID string
	Kind      kenmodel.EventKind
	Data      string
	Now       time.Time
}

func (s *Store) CreateSession(f NewSessionFields) error { return createSession(s.q(), f) }
func (t *Tx) CreateSession(f NewSessionFields) error    { return createSession(t.q(), f) }

func (s *Store) GetSession(id string) (Session, error) { return getSession(s.q(), id) }
func (t *Tx) GetSession(id string) (Session, error)    { return getSession(t.q(), id) }

func (s *Store) UpdateSession(id string, patch Patch) error { return updateSession(s.q(), id, patch) }
func (t *Tx) UpdateSession(id string, patch Patch) error    { return updateSession(t.q(), id, patch) }

func (s *Store) Query(f Filter) ([]Session, error) { return querySessions(s.q(), f) }
func (t *Tx) Query(f Filter) ([]Session, error)    { return querySessions(t.q(), f) }

func createSession(q querier, f NewSessionFields) error {
	var doneWhenJSON sql.NullString
	if f.DoneWhen != nil {
		b, err := json.Marshal(f.DoneWhen)
		if err != nil {
			return fmt.Errorf("encode done_when: %w", err)
		}
		doneWhenJSON = sql.NullString{String: string(b), Valid: true}
	}

	var parentID sql.NullString
	if f.ParentID != "" {
		parentID = sql.NullString{String: f.ParentID, Valid: true}
	}

	created := f.Now
	if created.IsZero() {
		created = time.Now()
	}
	now := created.UTC().Format(time.RFC3339Nano)
	_, err := q.Exec(`
		INSERT INTO ken_sessions (id, ken_path, task, done_when, status, parent_id, trigger, checkpoint, result, created_at, updated_at, last_heartbeat)
		VALUES (?, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?, ?, NULL)
	`, f.ID, f.KenPath, f.Task, doneWhenJSON, string(kenmodel.StatusPending), parentID, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCollision
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func getSession(q querier, id string) (Session, error) {
	row := q.QueryRow(`
		SELECT id, ken_path, task, done_when, status, parent_id, trigger, checkpoint, result, created_at, updated_at, last_heartbeat
		FROM ken_sessions WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		id, kenPath, task, status string
		doneWhen, parentID, trig, checkpoint, result, heartbeat sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &kenPath, &task, &doneWhen, &status, &parentID, &trig, &checkpoint, &result, &createdAt, &updatedAt, &heartbeat)
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		ID:       id,
		KenPath:  kenPath,
		Task:     task,
		Status:   kenmodel.Status(status),
		ParentID: parentID.String,
	}

	if doneWhen.Valid {
		var dw kenmodel.DoneWhen
		if err := json.Unmarshal([]byte(doneWhen.String), &dw); err != nil {
			return Session{}, fmt.Errorf("decode done_when: %w", err)
		}
		sess.DoneWhen = &dw
	}
	if trig.Valid {
		var t kenmodel.Trigger
		if err := json.Unmarshal([]byte(trig.String), &t); err != nil {
			return Session{}, fmt.Errorf("decode trigger: %w", err)
		}
		sess.Trigger = &t
	}
	sess.Checkpoint = checkpoint.String
	sess.Result = result.String

	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Session{}, fmt.Errorf("decode created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Session{}, fmt.Errorf("decode updated_at: %w", err)
	}
	if heartbeat.Valid {
		if sess.LastHeartbeat, err = time.Parse(time.RFC3339Nano, heartbeat.String); err != nil {
			return Session{}, fmt.Errorf("decode last_heartbeat: %w", err)
		}
	}
	return sess, nil
}

func updateSession(q querier, id string, patch Patch) error {
	current, err := getSession(q, id)
	if err != nil {
		return err
	}

	if patch.Status != nil && !patch.AllowAnyTransition {
		if !current.Status.CanTransitionTo(*patch.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current.Status, *patch.Status)
		}
	}

	sets := []string{"updated_at = ?"}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	args := []any{now}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Trigger != nil {
		if *patch.Trigger == nil {
			sets = append(sets, "trigger = NULL")
		} else {
			b, err := json.Marshal(*patch.Trigger)
			if err != nil {
				return fmt.Errorf("encode trigger: %w", err)
			}
			sets = append(sets, "trigger = ?")
			args = append(args, string(b))
		}
	}
	if patch.Checkpoint != nil {
		sets = append(sets, "checkpoint = ?")
		args = append(args, *patch.Checkpoint)
	}
	if patch.Result != nil {
		sets = append(sets, "result = ?")
		args = append(args, *patch.Result)
	}
	if patch.Heartbeat != nil {
		sets = append(sets, "last_heartbeat = ?")
		args = append(args, patch.Heartbeat.UTC().Format(time.RFC3339Nano))
	}

	query := "UPDATE ken_sessions SET "
	for i, s := range sets {
		if i > 0 {
			query += ", "
		}
		query += s
	}
	query += " WHERE id = ?"
	args = append(args, id)

	if _, err := q.Exec(query, args...); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func querySessions(q querier, f Filter) ([]Session, error) {
	query := `
		SELECT id, ken_path, task, done_when, status, parent_id, trigger, checkpoint, result, created_at, updated_at, last_heartbeat
		FROM ken_sessions WHERE 1=1
	`
	var args []any

	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.RootsOnly {
		query += " AND parent_id IS NULL"
	} else if f.ParentID != "" {
		query += " AND parent_id = ?"
		args = append(args, f.ParentID)
	}
	query += " ORDER BY created_at"

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if f.KenPathGlob != "" {
			match, err := globMatch(f.KenPathGlob, sess.KenPath)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "PRIMARY KEY"))
}
