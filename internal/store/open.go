package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ken-run/ken/internal/core"
)

// Open opens (creating if necessary) the SQLite-backed store for a
// project, applying the same pragmas the teacher's internal/db.OpenDatabase
// does: WAL journaling, foreign keys, and a busy timeout so concurrent
// CLI invocations don't fail outright under lock contention.
func Open(project core.Project) (*Store, error) {
	conn, err := sql.Open("sqlite", project.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := InitSchema(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: conn}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
