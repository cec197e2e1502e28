package store

import "database/sql"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ken_sessions (
  id TEXT PRIMARY KEY,
  ken_path TEXT NOT NULL,
  task TEXT NOT NULL,
  done_when TEXT,
  status TEXT NOT NULL,
  parent_id TEXT REFERENCES ken_sessions(id),
  trigger TEXT,
  checkpoint TEXT,
  result TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  last_heartbeat TEXT
);

CREATE INDEX IF NOT EXISTS idx_ken_sessions_status ON ken_sessions(status);
CREATE INDEX IF NOT EXISTS idx_ken_sessions_parent ON ken_sessions(parent_id);
CREATE INDEX IF NOT EXISTS idx_ken_sessions_ken_path ON ken_sessions(ken_path);

CREATE TABLE IF NOT EXISTS ken_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts TEXT NOT NULL,
  session_id TEXT REFERENCES ken_sessions(id),
  kind TEXT NOT NULL,
  data TEXT
);

CREATE INDEX IF NOT EXISTS idx_ken_events_session ON ken_events(session_id);
CREATE INDEX IF NOT EXISTS idx_ken_events_ts ON ken_events(ts);

CREATE TABLE IF NOT EXISTS ken_config (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`

// InitSchema creates every table and index ken needs, idempotently.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}
