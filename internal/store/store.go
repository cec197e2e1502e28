// Package store implements the durable, transactional Store of spec §4.1:
// sessions and an append-only event log, backed by SQLite (modernc.org/sqlite,
// the same pure-Go driver the teacher codebase's internal/db uses) opened
// in WAL mode for durability across process crashes.
package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by GetSession when no session has the given id.
var ErrNotFound = errors.New("session not found")

// ErrIllegalTransition is returned by UpdateSession when the requested
// status change is not permitted by the state machine of spec §4.5.
var ErrIllegalTransition = errors.New("illegal state transition")

// ErrCollision is returned by CreateSession when the id already exists.
var ErrCollision = errors.New("session id collision")

// querier is satisfied by both *sql.DB and *sql.Tx, letting every Ops
// method run identically whether or not it is inside a transaction.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// Ops is the Store contract of spec §4.1 minus Transaction, which only
// *Store provides. Both *Store and *Tx implement it, so request-handling code is agnostic to whether it
// is already inside a transaction.
type Ops interface {
	CreateSession(fields NewSessionFields) error
	GetSession(id string) (Session, error)
	UpdateSession(id string, patch Patch) error
	Query(filter Filter) ([]Session, error)
	AppendEvent(ev NewEvent) (int64, error)
}

// Store is the top-level handle. It implements Ops directly (each call
// runs in its own implicit SQLite transaction) and provides Transaction
// for the multi-mutation atomic operations spec §4.1 requires.
type Store struct {
	db *sql.DB
}

// Tx is a Store operating inside an explicit transaction, passed to the
// body function of Store.Transaction.
type Tx struct {
	tx *sql.Tx
}

var _ Ops = (*Store)(nil)
var _ Ops = (*Tx)(nil)

func (s *Store) q() querier { return s.db }
func (t *Tx) q() querier    { return t.tx }

// Transaction runs body atomically: every mutation performed through the
// *Tx it receives commits together, or none do. This is the primitive
// spawn_and_sleep depends on for its 3..N+2 mutation atomic commit.
func (s *Store) Transaction(body func(*Tx) error) error {
	sqlTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := body(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
