// Package noteservice implements note ingestion and query operations.
package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/starford/galdr/internal/apperr"
	"github.com/starford/galdr/internal/models"
	"github.com/starford/galdr/internal/notestore"
)

// Page size bounds for ListNotes.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Publisher announces note creation to conversion workers.
type Publisher interface {
	Publish(ctx context.Context, ev models.CreationEvent) error
}

// Service coordinates the note store and the event notifier.
type Service struct {
	store        notestore.Store
	events       Publisher
	maxNoteBytes int
	logger       *slog.Logger
}

// NewService creates a note service. maxNoteBytes bounds accepted note text.
func NewService(store notestore.Store, events Publisher, maxNoteBytes int, logger *slog.Logger) *Service {
	return &Service{store: store, events: events, maxNoteBytes: maxNoteBytes, logger: logger}
}

// CreateNote validates text, durably records a PENDING note, and then
// publishes its creation event. The store write completes before the publish
// so a worker can never observe an event for a note that does not exist.
//
// A publish failure is not surfaced to the caller: the note is durable and
// the reconciliation sweep republishes stale PENDING notes, so the create
// still succeeds. The failure is logged with the note id.
func (s *Service) CreateNote(ctx context.Context, text, voice string) (*models.Note, error) {
	if err := s.validateText(text); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	note := models.Note{
		ID:        uuid.NewString(),
		Text:      text,
		Voice:     voice,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Insert(note); err != nil {
		return nil, fmt.Errorf("noteservice: store note: %w", err)
	}

	ev := models.CreationEvent{NoteID: note.ID, Text: note.Text, Voice: note.Voice}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish after create failed; awaiting reconciliation",
			slog.String("note_id", note.ID),
			slog.String("error", err.Error()))
	}
	return &note, nil
}

// GetNote is a point read of the note's current state. It never blocks on a
// pending conversion.
func (s *Service) GetNote(_ context.Context, id string) (*models.Note, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", apperr.ErrValidation)
	}
	return s.store.Get(id)
}

// ListNotes returns a page of notes in creation order and a cursor to resume
// from, empty on the last page.
func (s *Service) ListNotes(_ context.Context, pageSize int, cursor string) ([]models.Note, string, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return s.store.List(pageSize, cursor)
}

func (s *Service) validateText(text string) error {
	if text == "" {
		return fmt.Errorf("%w: text is required", apperr.ErrValidation)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text must be valid UTF-8", apperr.ErrValidation)
	}
	if s.maxNoteBytes > 0 && len(text) > s.maxNoteBytes {
		return fmt.Errorf("%w: text exceeds %d bytes", apperr.ErrValidation, s.maxNoteBytes)
	}
	return nil
}
