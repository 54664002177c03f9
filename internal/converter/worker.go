// Package converter implements the worker that drives notes from PENDING to
// a terminal status: it consumes creation events, synthesizes audio, stores
// the result, and commits the status transition.
package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/galdr/internal/apperr"
	"github.com/starford/galdr/internal/blobstore"
	"github.com/starford/galdr/internal/models"
	"github.com/starford/galdr/internal/notestore"
	"github.com/starford/galdr/internal/synthesis"
)

// Config bounds a conversion attempt.
type Config struct {
	MaxAttempts      int           // synthesis attempts before giving up
	SynthesisTimeout time.Duration // per-attempt synthesis budget
}

// Worker converts note text to audio.
type Worker struct {
	store  notestore.Store
	blobs  blobstore.Provider
	synth  synthesis.Synthesizer
	cfg    Config
	logger *slog.Logger
}

// New creates a conversion worker.
func New(store notestore.Store, blobs blobstore.Provider, synth synthesis.Synthesizer, cfg Config, logger *slog.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = 30 * time.Second
	}
	return &Worker{store: store, blobs: blobs, synth: synth, cfg: cfg, logger: logger}
}

// newAudioKey returns a fresh blob key for one conversion attempt. The nonce
// keeps concurrent attempts on the same note from sharing an object, so the
// loser of the status race can discard its own audio without touching the
// winner's.
func newAudioKey(noteID string) string {
	return noteID + "-" + uuid.NewString()[:8] + ".mp3"
}

// audioLocation returns the client-resolvable location of a blob key.
func audioLocation(key string) string {
	return "/audio/" + key
}

// Handle processes one delivery of a creation event. attempt counts
// deliveries of this event, starting at 1. Returning an error requests
// redelivery; returning nil acknowledges the event.
//
// The read-then-conditional-update sequence makes at-least-once delivery
// safe: a note already READY or FAILED is acknowledged without side effects,
// and of two concurrent attempts on the same PENDING note only the first
// conditional update commits.
func (w *Worker) Handle(ctx context.Context, ev models.CreationEvent, attempt int) error {
	note, err := w.store.Get(ev.NoteID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// Events are published after the durable write, so a missing
			// note means the store read raced a concurrent insert or the
			// record was lost; redeliver rather than guess.
			return fmt.Errorf("converter: note %s not found yet: %w", ev.NoteID, err)
		}
		return fmt.Errorf("converter: read note %s: %w", ev.NoteID, err)
	}
	if note.Status != models.StatusPending {
		w.logger.Debug("duplicate delivery ignored",
			slog.String("note_id", note.ID),
			slog.String("status", string(note.Status)))
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, w.cfg.SynthesisTimeout)
	defer cancel()

	audio, err := w.synth.Synthesize(sctx, note.Text, note.Voice)
	if err != nil {
		return w.handleFailure(note.ID, attempt, err)
	}

	// Blob write precedes the status flip so a reader never observes READY
	// without retrievable audio.
	key := newAudioKey(note.ID)
	if err := w.blobs.Write(key, audio); err != nil {
		return w.handleFailure(note.ID, attempt, apperr.Transient("store audio", err))
	}

	won, err := w.store.MarkReady(note.ID, audioLocation(key), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("converter: mark ready %s: %w", note.ID, err)
	}
	if !won {
		// A concurrent attempt finalized this note first; discard our own
		// audio rather than leave an unlinked object behind.
		if err := w.blobs.Delete(key); err != nil {
			w.logger.Warn("failed to discard unlinked audio",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		w.logger.Debug("discarding result for already-finalized note",
			slog.String("note_id", note.ID))
		return nil
	}

	w.logger.Info("note converted",
		slog.String("note_id", note.ID),
		slog.Int("attempt", attempt),
		slog.Int("audio_bytes", len(audio)))
	return nil
}

// handleFailure classifies a failed attempt: permanent failures and exhausted
// retry budgets finalize the note as FAILED; anything else is redelivered.
func (w *Worker) handleFailure(noteID string, attempt int, err error) error {
	if apperr.IsPermanentSynthesis(err) {
		w.logger.Warn("synthesis rejected note",
			slog.String("note_id", noteID),
			slog.String("error", err.Error()))
		return w.fail(noteID, apperr.SynthesisReason(err))
	}
	if attempt >= w.cfg.MaxAttempts {
		w.logger.Warn("retry budget exhausted",
			slog.String("note_id", noteID),
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()))
		return w.fail(noteID, "retry budget exhausted")
	}
	return fmt.Errorf("converter: attempt %d for %s: %w", attempt, noteID, err)
}

// fail commits the PENDING → FAILED transition and acknowledges the event.
func (w *Worker) fail(noteID, reason string) error {
	won, err := w.store.MarkFailed(noteID, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("converter: mark failed %s: %w", noteID, err)
	}
	if !won {
		w.logger.Debug("note already finalized",
			slog.String("note_id", noteID))
	}
	return nil
}
