// Package store is the persistence façade (component D): the transactional
// surface the ingestion pipeline drives to look up and mutate contacts,
// chats, membership, and messages. It owns the single coarse mailbox-wide
// lock described in the concurrency model — all database access happens
// between Lock and Unlock, and Begin/Commit/Rollback are only valid while
// the lock is held.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wiremail/wiremail/internal/database"
	"github.com/wiremail/wiremail/internal/logging"
)

// Reserved contact and chat ids, per the data model's special-value
// reservations.
const (
	ContactSelf        = 1
	ContactLastSpecial = 9

	ChatDeaddrop    = 1
	ChatToDeaddrop  = 2
	ChatTrash       = 3
	ChatLastSpecial = 9
)

// Contact origin ranks, lowest to highest. A contact's stored origin is
// monotonically increased and never downgraded (spec §4.E step 6).
const (
	OriginIncomingUnknownFrom = 100
	OriginIncomingCC          = 200
	OriginIncomingTo          = 300
	OriginIncomingReplyTo     = 400
	OriginOutgoingBCC         = 500
	OriginOutgoingCC          = 600
	OriginOutgoingTo          = 700
)

// Message states.
const (
	StateUndefined    = "UNDEFINED"
	StateInFresh      = "IN_FRESH"
	StateInSeen       = "IN_SEEN"
	StateOutPending   = "OUT_PENDING"
	StateOutDelivered = "OUT_DELIVERED"
	StateOutRead      = "OUT_READ"
	StateOutError     = "OUT_ERROR"
)

// Store is the persistence façade. It is not safe for concurrent use except
// through Lock/Unlock — the façade assumes single-writer discipline exactly
// like the mailbox-wide lock described in the concurrency model.
type Store struct {
	db  *database.DB
	log zerolog.Logger

	mu sync.Mutex
	tx *sql.Tx // non-nil only while a transaction is open
}

// New wraps db as a persistence façade.
func New(db *database.DB) *Store {
	return &Store{db: db, log: logging.WithComponent("store")}
}

// Lock acquires the mailbox-wide lock. Not reentrant: calling Lock twice
// from the same goroutine without an intervening Unlock deadlocks, exactly
// as the spec requires of the coarse lock.
func (s *Store) Lock() { s.mu.Lock() }

// Unlock releases the mailbox-wide lock.
func (s *Store) Unlock() { s.mu.Unlock() }

// Begin opens a transaction. Must be called with the lock held.
func (s *Store) Begin() error {
	if s.tx != nil {
		return fmt.Errorf("store: begin called with a transaction already open")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	s.tx = tx
	return nil
}

// Commit commits the open transaction. Must be called with the lock held.
func (s *Store) Commit() error {
	if s.tx == nil {
		return fmt.Errorf("store: commit called with no transaction open")
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Rollback rolls back the open transaction. Safe to call even if the
// transaction has already been committed or rolled back.
func (s *Store) Rollback() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("store: rollback: %w", err)
	}
	return nil
}

// queryRow, query and exec run a statement against the open transaction,
// falling back to the raw DB handle for helper calls invoked outside a
// transaction (e.g. config reads from the mailbox façade).
func (s *Store) queryRow(query string, args ...interface{}) *sql.Row {
	if s.tx != nil {
		return s.tx.QueryRow(query, args...)
	}
	return s.db.QueryRow(query, args...)
}

func (s *Store) query(query string, args ...interface{}) (*sql.Rows, error) {
	if s.tx != nil {
		return s.tx.Query(query, args...)
	}
	return s.db.Query(query, args...)
}

func (s *Store) exec(query string, args ...interface{}) (sql.Result, error) {
	if s.tx != nil {
		return s.tx.Exec(query, args...)
	}
	return s.db.Exec(query, args...)
}
