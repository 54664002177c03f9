// Package models defines the domain types for Galdr.
package models

import "time"

// Status is the conversion lifecycle state of a note.
type Status string

// Note statuses. A note starts PENDING and moves exactly once to either
// READY or FAILED; terminal states are never left.
const (
	StatusPending Status = "PENDING"
	StatusReady   Status = "READY"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether no further status transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusReady || s == StatusFailed
}

// Note represents a text note tracked through audio conversion.
// Text and Voice are immutable after creation; AudioLocation is set only
// when Status is READY, FailureReason only when Status is FAILED.
type Note struct {
	ID            string
	Text          string
	Voice         string
	Status        Status
	AudioLocation string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreationEvent announces a newly created note to conversion workers.
// Delivery is at-least-once: consumers must tolerate duplicates.
type CreationEvent struct {
	NoteID string `json:"noteId"`
	Text   string `json:"text"`
	Voice  string `json:"voice,omitempty"`
}
