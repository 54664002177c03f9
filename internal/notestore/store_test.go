package notestore

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/galdr/internal/apperr"
	"github.com/starford/galdr/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "galdr-store-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := Open(dbFile.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func pendingNote(id string, createdAt time.Time) models.Note {
	return models.Note{
		ID:        id,
		Text:      "note " + id,
		Voice:     "alloy",
		Status:    models.StatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestInsertAndGet(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC()

	want := pendingNote("n1", now)
	if err := db.Insert(want); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := db.Get("n1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "n1" || got.Text != "note n1" || got.Voice != "alloy" {
		t.Errorf("note = %+v", got)
	}
	if got.Status != models.StatusPending {
		t.Errorf("status = %q, want PENDING", got.Status)
	}
	if got.AudioLocation != "" || got.FailureReason != "" {
		t.Errorf("pending note carries terminal fields: %+v", got)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestGetMissing(t *testing.T) {
	db := testDB(t)
	_, err := db.Get("nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMarkReadyIsConditional(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC()
	if err := db.Insert(pendingNote("n1", now)); err != nil {
		t.Fatal(err)
	}

	won, err := db.MarkReady("n1", "/audio/n1-a.mp3", now.Add(time.Second))
	if err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	if !won {
		t.Fatal("first MarkReady should win")
	}

	got, err := db.Get("n1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusReady {
		t.Errorf("status = %q, want READY", got.Status)
	}
	if got.AudioLocation != "/audio/n1-a.mp3" {
		t.Errorf("audio_location = %q", got.AudioLocation)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("updated_at did not advance: %v", got.UpdatedAt)
	}

	// A second committer must lose, regardless of direction.
	won, err = db.MarkReady("n1", "/audio/n1-b.mp3", now.Add(2*time.Second))
	if err != nil || won {
		t.Errorf("second MarkReady = (%v, %v), want (false, nil)", won, err)
	}
	won, err = db.MarkFailed("n1", "late failure", now.Add(2*time.Second))
	if err != nil || won {
		t.Errorf("MarkFailed after READY = (%v, %v), want (false, nil)", won, err)
	}

	// The terminal state is untouched.
	again, _ := db.Get("n1")
	if again.Status != models.StatusReady || again.AudioLocation != "/audio/n1-a.mp3" {
		t.Errorf("terminal note changed: %+v", again)
	}
	if again.FailureReason != "" {
		t.Errorf("failure_reason set on READY note: %q", again.FailureReason)
	}
}

func TestMarkFailed(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC()
	if err := db.Insert(pendingNote("n1", now)); err != nil {
		t.Fatal(err)
	}

	won, err := db.MarkFailed("n1", "retry budget exhausted", now.Add(time.Second))
	if err != nil || !won {
		t.Fatalf("MarkFailed = (%v, %v)", won, err)
	}

	got, _ := db.Get("n1")
	if got.Status != models.StatusFailed {
		t.Errorf("status = %q, want FAILED", got.Status)
	}
	if got.FailureReason != "retry budget exhausted" {
		t.Errorf("failure_reason = %q", got.FailureReason)
	}
	if got.AudioLocation != "" {
		t.Errorf("FAILED note has audio_location %q", got.AudioLocation)
	}
}

func TestListPagination(t *testing.T) {
	db := testDB(t)
	base := time.Now().UTC().Add(-time.Minute)
	ids := []string{"a", "b", "c", "d", "e"}
	for i, id := range ids {
		if err := db.Insert(pendingNote(id, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	cursor := ""
	pages := 0
	for {
		notes, next, err := db.List(2, cursor)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, n := range notes {
			got = append(got, n.ID)
		}
		pages++
		if next == "" {
			break
		}
		cursor = next
	}

	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
	if len(got) != len(ids) {
		t.Fatalf("listed %d notes, want %d", len(got), len(ids))
	}
	for i, id := range ids {
		if got[i] != id {
			t.Errorf("position %d = %q, want %q", i, got[i], id)
		}
	}
}

func TestListSameTimestampTieBreak(t *testing.T) {
	db := testDB(t)
	at := time.Now().UTC()
	for _, id := range []string{"a", "b", "c"} {
		if err := db.Insert(pendingNote(id, at)); err != nil {
			t.Fatal(err)
		}
	}

	first, cursor, err := db.List(2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 || cursor == "" {
		t.Fatalf("first page = %d notes, cursor %q", len(first), cursor)
	}
	rest, next, err := db.List(2, cursor)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || next != "" {
		t.Fatalf("second page = %d notes, cursor %q", len(rest), next)
	}
	if rest[0].ID != "c" {
		t.Errorf("last note = %q, want c", rest[0].ID)
	}
}

func TestListBadCursor(t *testing.T) {
	db := testDB(t)
	if _, _, err := db.List(10, "not-base64!"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestListStalePending(t *testing.T) {
	db := testDB(t)
	now := time.Now().UTC()

	stale := pendingNote("stale", now.Add(-10*time.Minute))
	fresh := pendingNote("fresh", now)
	done := pendingNote("done", now.Add(-10*time.Minute))
	for _, n := range []models.Note{stale, fresh, done} {
		if err := db.Insert(n); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.MarkReady("done", "/audio/done-a.mp3", now); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListStalePending(now.Add(-5*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListStalePending: %v", err)
	}
	if len(got) != 1 || got[0].ID != "stale" {
		t.Errorf("stale notes = %+v, want only 'stale'", got)
	}
}
