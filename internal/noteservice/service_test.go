package noteservice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/starford/galdr/internal/apperr"
	"github.com/starford/galdr/internal/models"
	"github.com/starford/galdr/internal/testutil"
)

type capturePublisher struct {
	events []models.CreationEvent
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, ev models.CreationEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func newTestService(t *testing.T, pub *capturePublisher) *Service {
	t.Helper()
	return NewService(testutil.TestStore(t), pub, 1024, testutil.Logger())
}

func TestCreateNote(t *testing.T) {
	pub := &capturePublisher{}
	svc := newTestService(t, pub)

	note, err := svc.CreateNote(context.Background(), "read the kenning chapter", "alloy")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if note.ID == "" {
		t.Fatal("note has no id")
	}
	if note.Status != models.StatusPending {
		t.Errorf("status = %q, want PENDING", note.Status)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.NoteID != note.ID || ev.Text != note.Text || ev.Voice != "alloy" {
		t.Errorf("event = %+v", ev)
	}

	stored, err := svc.GetNote(context.Background(), note.ID)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if stored.Text != "read the kenning chapter" {
		t.Errorf("stored text = %q", stored.Text)
	}
}

func TestCreateNoteUniqueIDs(t *testing.T) {
	svc := newTestService(t, &capturePublisher{})
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		note, err := svc.CreateNote(context.Background(), "same text", "")
		if err != nil {
			t.Fatal(err)
		}
		if seen[note.ID] {
			t.Fatalf("duplicate id %s", note.ID)
		}
		seen[note.ID] = true
	}
}

func TestCreateNoteValidation(t *testing.T) {
	pub := &capturePublisher{}
	svc := newTestService(t, pub)

	cases := map[string]string{
		"empty":       "",
		"oversized":   strings.Repeat("a", 2048),
		"invalidUTF8": "bad \xff\xfe bytes",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateNote(context.Background(), text, "")
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}

	if len(pub.events) != 0 {
		t.Errorf("rejected notes published events: %+v", pub.events)
	}
	notes, _, err := svc.ListNotes(context.Background(), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Errorf("rejected notes were stored: %+v", notes)
	}
}

func TestCreateNoteSurvivesPublishFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("queue full")}
	svc := newTestService(t, pub)

	note, err := svc.CreateNote(context.Background(), "still durable", "")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	// The note is stored PENDING for the reconciliation sweep to pick up.
	stored, err := svc.GetNote(context.Background(), note.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.StatusPending {
		t.Errorf("status = %q, want PENDING", stored.Status)
	}
}

func TestGetNoteMissing(t *testing.T) {
	svc := newTestService(t, &capturePublisher{})
	if _, err := svc.GetNote(context.Background(), "no-such-id"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetNote(context.Background(), ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty id err = %v, want ErrValidation", err)
	}
}

func TestListNotesClampsPageSize(t *testing.T) {
	svc := newTestService(t, &capturePublisher{})
	for i := 0; i < 3; i++ {
		if _, err := svc.CreateNote(context.Background(), "note", ""); err != nil {
			t.Fatal(err)
		}
	}

	notes, _, err := svc.ListNotes(context.Background(), -5, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 3 {
		t.Errorf("listed %d notes, want 3", len(notes))
	}

	if _, _, err := svc.ListNotes(context.Background(), MaxPageSize+1, ""); err != nil {
		t.Errorf("oversized page size rejected: %v", err)
	}
}
