package api

import (
	"time"

	"github.com/starford/galdr/internal/models"
)

// CreateNoteRequest is the request body for submitting a note.
type CreateNoteRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// CreateNoteResponse carries the id of a newly created note.
type CreateNoteResponse struct {
	ID string `json:"id"`
}

// NoteResponse is the client-facing view of a note. FailureReason is
// intentionally absent: diagnostics are not exposed to clients.
type NoteResponse struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	AudioLocation string    `json:"audioLocation,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NoteListResponse wraps a page of notes. NextCursor is empty on the last page.
type NoteListResponse struct {
	Notes      []NoteResponse `json:"notes"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

func toNoteResponse(n models.Note) NoteResponse {
	return NoteResponse{
		ID:            n.ID,
		Status:        string(n.Status),
		AudioLocation: n.AudioLocation,
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
	}
}
