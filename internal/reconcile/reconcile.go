// Package reconcile republishes creation events for notes stuck in PENDING.
//
// The ingestion path publishes after the durable store write; when that
// publish fails (or the process dies in between), the note would otherwise
// never progress. The sweeper periodically scans for PENDING notes older
// than a threshold and republishes their events. Duplicate publishes are
// harmless: the conversion worker's idempotency guard acknowledges events
// for already-finalized notes.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/galdr/internal/models"
	"github.com/starford/galdr/internal/notestore"
)

// Publisher re-announces note creation; satisfied by the notifier broker.
type Publisher interface {
	Publish(ctx context.Context, ev models.CreationEvent) error
}

// Sweeper scans for stale PENDING notes and republishes them.
type Sweeper struct {
	store      notestore.Store
	events     Publisher
	staleAfter time.Duration
	batch      int
	logger     *slog.Logger
}

// New creates a sweeper. staleAfter should comfortably exceed the notifier's
// full redelivery window so in-flight conversions are not republished.
func New(store notestore.Store, events Publisher, staleAfter time.Duration, batch int, logger *slog.Logger) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{store: store, events: events, staleAfter: staleAfter, batch: batch, logger: logger}
}

// Run sweeps once per interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep republishes creation events for stale PENDING notes.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.staleAfter)
	notes, err := s.store.ListStalePending(cutoff, s.batch)
	if err != nil {
		s.logger.Warn("reconcile: scan failed", slog.String("error", err.Error()))
		return
	}
	if len(notes) == 0 {
		return
	}

	republished := 0
	for _, n := range notes {
		ev := models.CreationEvent{NoteID: n.ID, Text: n.Text, Voice: n.Voice}
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn("reconcile: republish failed",
				slog.String("note_id", n.ID),
				slog.String("error", err.Error()))
			continue
		}
		republished++
	}
	s.logger.Info("reconcile: republished stale notes",
		slog.Int("stale", len(notes)),
		slog.Int("republished", republished))
}
