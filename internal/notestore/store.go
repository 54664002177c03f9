// Package notestore provides the SQLite-backed durable store for notes.
package notestore

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/galdr/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id             TEXT PRIMARY KEY,
	text           TEXT NOT NULL,
	voice          TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'PENDING',
	audio_location TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_created ON notes(created_at, id);
CREATE INDEX IF NOT EXISTS idx_notes_status_created ON notes(status, created_at);
`

// Store is the interface for durable note persistence. Consumers depend on
// this interface rather than the concrete *DB to facilitate testing with fakes.
type Store interface {
	// Insert writes a new note record; the id must be fresh.
	Insert(n models.Note) error
	// Get returns the note with the given id, or apperr.ErrNotFound.
	Get(id string) (*models.Note, error)
	// List returns up to limit notes ordered by (created_at, id), resuming
	// from cursor. The returned cursor is empty on the last page.
	List(limit int, cursor string) ([]models.Note, string, error)
	// MarkReady transitions a note to READY with its audio location. The
	// update is conditional on the note still being PENDING; the boolean
	// reports whether this caller performed the transition.
	MarkReady(id, audioLocation string, at time.Time) (bool, error)
	// MarkFailed transitions a note to FAILED with a diagnostic reason,
	// under the same conditional-update semantics as MarkReady.
	MarkFailed(id, reason string, at time.Time) (bool, error)
	// ListStalePending returns PENDING notes created before cutoff.
	ListStalePending(cutoff time.Time, limit int) ([]models.Note, error)
	Close() error
}

// DB wraps a sql.DB with note store operations.
type DB struct {
	conn *sql.DB
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("notestore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("notestore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("notestore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
