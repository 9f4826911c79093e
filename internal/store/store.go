// Package store implements the State Store: a durable,
// single-process, totally-ordered log of turns plus a key/value side
// table, backed by SQLite. It is the single authority for persisted
// runtime data.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"automaton/internal/logging"
)

var (
	ErrDuplicateID   = errors.New("duplicate id")
	ErrTurnNotFound  = errors.New("turn not found")
	ErrCorrupt       = errors.New("state store corrupt")
)

// Store wraps a SQLite database file and exposes the per-table CRUD
// surface for the agent's durable state. A single RWMutex serializes
// writes so that a turn plus its tool-call rows are never observable
// partially applied, while reads (used concurrently by the dashboard)
// only take the read lock.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if necessary) the SQLite database at path, applies
// any pending forward migrations, and returns a ready Store. A schema
// version ahead of what this binary knows about is fatal at startup
// rather than silently running against an unrecognized schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer; matches the loop's single-goroutine model

	if err := os.Chmod(path, 0600); err != nil && !os.IsNotExist(err) {
		logging.Get(logging.CategoryStore).Sugar().Warnw("chmod state db failed", "error", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var applied int
	row := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&applied); err != nil {
		return err
	}

	if applied > len(migrations) {
		return fmt.Errorf("on-disk schema version %d is ahead of %d known migrations", applied, len(migrations))
	}

	for i := applied; i < len(migrations); i++ {
		m := migrations[i]
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if err := m.up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (?)`, i+1); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
