package notestore

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/galdr/internal/apperr"
	"github.com/starford/galdr/internal/models"
)

const noteColumns = `id, text, voice, status, audio_location, failure_reason, created_at, updated_at`

// Insert writes a new note record.
func (db *DB) Insert(n models.Note) error {
	_, err := db.conn.Exec(`
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Text, n.Voice, string(n.Status), n.AudioLocation, n.FailureReason,
		n.CreatedAt.UTC(), n.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("notestore: insert %s: %w", n.ID, err)
	}
	return nil
}

// Get returns the note with the given id.
func (db *DB) Get(id string) (*models.Note, error) {
	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notestore: get %s: %w", id, err)
	}
	return n, nil
}

// List returns a page of notes ordered by (created_at, id) using keyset
// pagination, so a client can resume from the returned cursor without the
// store holding any state between pages.
func (db *DB) List(limit int, cursor string) ([]models.Note, string, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + noteColumns + ` FROM notes`
	args := []any{}
	if cursor != "" {
		after, afterID, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		query += ` WHERE created_at > ? OR (created_at = ? AND id > ?)`
		args = append(args, after, after, afterID)
	}
	query += ` ORDER BY created_at, id LIMIT ?`
	args = append(args, limit+1)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("notestore: list: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n, err := scanNote(rows.Scan)
		if err != nil {
			return nil, "", fmt.Errorf("notestore: list scan: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("notestore: list rows: %w", err)
	}

	next := ""
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}
	return out, next, nil
}

// MarkReady performs the conditional PENDING → READY transition.
func (db *DB) MarkReady(id, audioLocation string, at time.Time) (bool, error) {
	res, err := db.conn.Exec(`
		UPDATE notes SET status = ?, audio_location = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(models.StatusReady), audioLocation, at.UTC(), id, string(models.StatusPending))
	if err != nil {
		return false, fmt.Errorf("notestore: mark ready %s: %w", id, err)
	}
	return won(res)
}

// MarkFailed performs the conditional PENDING → FAILED transition.
func (db *DB) MarkFailed(id, reason string, at time.Time) (bool, error) {
	res, err := db.conn.Exec(`
		UPDATE notes SET status = ?, failure_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(models.StatusFailed), reason, at.UTC(), id, string(models.StatusPending))
	if err != nil {
		return false, fmt.Errorf("notestore: mark failed %s: %w", id, err)
	}
	return won(res)
}

// ListStalePending returns PENDING notes created before cutoff, oldest first.
func (db *DB) ListStalePending(cutoff time.Time, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.conn.Query(`
		SELECT `+noteColumns+` FROM notes
		WHERE status = ? AND created_at < ?
		ORDER BY created_at LIMIT ?
	`, string(models.StatusPending), cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("notestore: list stale: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n, err := scanNote(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("notestore: list stale scan: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func won(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("notestore: rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanNote(scan func(...any) error) (*models.Note, error) {
	var (
		n      models.Note
		status string
	)
	err := scan(&n.ID, &n.Text, &n.Voice, &status, &n.AudioLocation,
		&n.FailureReason, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.Status = models.Status(status)
	return &n, nil
}

func encodeCursor(createdAt time.Time, id string) string {
	raw := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", apperr.ErrValidation)
	}
	createdRaw, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", apperr.ErrValidation)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdRaw)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", apperr.ErrValidation)
	}
	return createdAt.UTC(), id, nil
}
