package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gobwas/glob"

	"github.com/ken-run/ken/internal/kenmodel"
)

func (s *Store) AppendEvent(ev NewEvent) (int64, error) { return appendEvent(s.q(), ev) }
func (t *Tx) AppendEvent(ev NewEvent) (int64, error)    { return appendEvent(t.q(), ev) }

func appendEvent(q querier, ev NewEvent) (int64, error) {
	now := ev.Now
	if now.IsZero() {
		now = time.Now()
	}

	var data sql.NullString
	if ev.Data != "" {
		data = sql.NullString{String: ev.Data, Valid: true}
	}

	res, err := q.Exec(`
		INSERT INTO ken_events (ts, session_id, kind, data) VALUES (?, ?, ?, ?)
	`, now.UTC().Format(time.RFC3339Nano), ev.SessionID, string(ev.Kind), data)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return res.LastInsertId()
}

// EventsForSession returns the append-only log for one session, oldest
// first, the chronology the `ken log` command and the session detail
// view depend on.
func (s *Store) EventsForSession(id string) ([]kenmodel.Event, error) {
	return eventsForSession(s.q(), id)
}

func (t *Tx) EventsForSession(id string) ([]kenmodel.Event, error) {
	return eventsForSession(t.q(), id)
}

func eventsForSession(q querier, id string) ([]kenmodel.Event, error) {
	rows, err := q.Query(`
		SELECT id, ts, session_id, kind, data FROM ken_events
		WHERE session_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []kenmodel.Event
	for rows.Next() {
		var (
			evID      int64
			ts, sid, kind string
			data      sql.NullString
		)
		if err := rows.Scan(&evID, &ts, &sid, &kind, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("decode event ts: %w", err)
		}
		out = append(out, kenmodel.Event{
			ID:        evID,
			Timestamp: parsed,
			SessionID: sid,
			Kind:      kenmodel.EventKind(kind),
			Data:      data.String,
		})
	}
	return out, rows.Err()
}

// globMatch reports whether path matches pattern, compiling fresh each
// call since ken_path globs are rare compared to full table scans and
// caching would outlive its usefulness for the session lifetime of a CLI run.
func globMatch(pattern, path string) (bool, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return false, fmt.Errorf("compile ken_path glob %q: %w", pattern, err)
	}
	return g.Match(path), nil
}
