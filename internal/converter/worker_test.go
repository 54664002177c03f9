package converter

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/galdr/internal/apperr"
	"github.com/starford/galdr/internal/models"
	"github.com/starford/galdr/internal/notestore"
	"github.com/starford/galdr/internal/testutil"
)

type stubSynth struct {
	calls atomic.Int64
	audio []byte
	err   error
}

func (s *stubSynth) Synthesize(_ context.Context, _, _ string) ([]byte, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}

func seedNote(t *testing.T, store *notestore.DB, id string) {
	t.Helper()
	now := time.Now().UTC()
	err := store.Insert(models.Note{
		ID:        id,
		Text:      "hello world",
		Voice:     "alloy",
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestHandleSuccess(t *testing.T) {
	store := testutil.TestStore(t)
	dir, blobs := testutil.TestBlobs(t)
	synth := &stubSynth{audio: []byte("mp3-data")}
	w := New(store, blobs, synth, Config{MaxAttempts: 3}, testutil.Logger())

	seedNote(t, store, "n1")
	err := w.Handle(context.Background(), models.CreationEvent{NoteID: "n1"}, 1)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	note, err := store.Get("n1")
	if err != nil {
		t.Fatal(err)
	}
	if note.Status != models.StatusReady {
		t.Fatalf("status = %q, want READY", note.Status)
	}
	if !strings.HasPrefix(note.AudioLocation, "/audio/n1-") || !strings.HasSuffix(note.AudioLocation, ".mp3") {
		t.Errorf("audio_location = %q", note.AudioLocation)
	}

	key := strings.TrimPrefix(note.AudioLocation, "/audio/")
	audio, err := blobs.Read(key)
	if err != nil {
		t.Fatalf("stored audio unreadable: %v", err)
	}
	if string(audio) != "mp3-data" {
		t.Errorf("audio = %q", audio)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("blob dir holds %d objects, want 1", len(entries))
	}
}

func TestHandleDuplicateAfterTerminal(t *testing.T) {
	store := testutil.TestStore(t)
	_, blobs := testutil.TestBlobs(t)
	synth := &stubSynth{audio: []byte("mp3-data")}
	w := New(store, blobs, synth, Config{MaxAttempts: 3}, testutil.Logger())

	seedNote(t, store, "n1")
	if err := w.Handle(context.Background(), models.CreationEvent{NoteID: "n1"}, 1); err != nil {
		t.Fatal(err)
	}
	before, _ := store.Get("n1")

	// Redelivery of the same event must be a no-op.
	if err := w.Handle(context.Background(), models.CreationEvent{NoteID: "n1"}, 2); err != nil {
		t.Fatalf("duplicate Handle: %v", err)
	}
	if got := synth.calls.Load(); got != 1 {
		t.Errorf("synthesize called %d times, want 1", got)
	}
	after, _ := store.Get("n1")
	if after.AudioLocation != before.AudioLocation || after.Status != before.Status {
		t.Errorf("terminal note changed: %+v -> %+v", before, after)
	}
}

func TestHandlePermanentFailure(t *testing.T) {
	store := testutil.TestStore(t)
	_, blobs := testutil.TestBlobs(t)
	synth := &stubSynth{err: apperr.Permanent("input rejected by synthesis backend", errors.New("400"))}
	w := New(store, blobs, synth, Config{MaxAttempts: 3}, testutil.Logger())

	seedNote(t, store, "n1")
	if err := w.Handle(context.Background(), models.CreationEvent{NoteID: "n1"}, 1); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	note, _ := store.Get("n1")
	if note.Status != models.StatusFailed {
		t.Errorf("status = %q, want FAILED", note.Status)
	}
	if note.FailureReason != "input rejected by synthesis backend" {
		t.Errorf("failure_reason = %q", note.FailureReason)
	}
	if note.AudioLocation != "" {
		t.Errorf("FAILED note has audio_location %q", note.AudioLocation)
	}
}

func TestHandleTransientFailureRequestsRedelivery(t *testing.T) {
	store := testutil.TestStore(t)
	_, blobs := testutil.TestBlobs(t)
	synth := &stubSynth{err: apperr.Transient("synthesis backend unreachable", errors.New("dial tcp"))}
	w := New(store, blobs, synth, Config{MaxAttempts: 3}, testutil.Logger())

	seedNote(t, store, "n1")
	if err := w.Handle(context.Background(), models.CreationEvent{NoteID: "n1"}, 1); err == nil {
		t.Fatal("expected error requesting redelivery")
	}

	note, _ := store.Get("n1")
	if note.Status != models.StatusPending {
		t.Errorf("status = %q, want PENDING while retries remain", note.Status)
	}
}

func TestHandleExhaustedBudget(t *testing.T) {
	store := testutil.TestStore(t)
	_, blobs := testutil.TestBlobs(t)
	synth := &stubSynth{err: apperr.Transient("synthesis backend unreachable", errors.New("dial tcp"))}
	w := New(store, blobs, synth, Config{MaxAttempts: 3}, testutil.Logger())

	seedNote(t, store, "n1")
	// The final allowed attempt acknowledges the event and finalizes.
	if err := w.Handle(context.Background(), models.CreationEvent{NoteID: "n1"}, 3); err != nil {
		t.Fatalf("Handle on final attempt: %v", err)
	}

	note, _ := store.Get("n1")
	if note.Status != models.StatusFailed {
		t.Errorf("status = %q, want FAILED", note.Status)
	}
	if note.FailureReason != "retry budget exhausted" {
		t.Errorf("failure_reason = %q", note.FailureReason)
	}
}

func TestHandleMissingNote(t *testing.T) {
	store := testutil.TestStore(t)
	_, blobs := testutil.TestBlobs(t)
	w := New(store, blobs, &stubSynth{audio: []byte("x")}, Config{}, testutil.Logger())

	err := w.Handle(context.Background(), models.CreationEvent{NoteID: uuid.NewString()}, 1)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want wrapped ErrNotFound", err)
	}
}

func TestConcurrentConversionsSingleWinner(t *testing.T) {
	store := testutil.TestStore(t)
	dir, blobs := testutil.TestBlobs(t)
	synth := &stubSynth{audio: []byte("mp3-data")}
	w := New(store, blobs, synth, Config{MaxAttempts: 3}, testutil.Logger())

	seedNote(t, store, "n1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = w.Handle(context.Background(), models.CreationEvent{NoteID: "n1"}, 1)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}

	note, _ := store.Get("n1")
	if note.Status != models.StatusReady {
		t.Fatalf("status = %q, want READY", note.Status)
	}

	// The loser discards its own blob, so only the linked object remains.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("blob dir holds %v, want exactly the winner's object", names)
	}
	if want := strings.TrimPrefix(note.AudioLocation, "/audio/"); entries[0].Name() != want {
		t.Errorf("remaining object %q, want %q", entries[0].Name(), want)
	}
}
