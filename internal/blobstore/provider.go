// Package blobstore defines the audio object storage abstraction.
package blobstore

// Provider is the interface for audio blob operations. Keys are flat object
// names (no directories), assigned from note ids by the conversion worker.
type Provider interface {
	// Write atomically stores data under key, replacing any previous object.
	Write(key string, data []byte) error
	// Read returns the bytes stored under key, or apperr.ErrNotFound.
	Read(key string) ([]byte, error)
	// Exists reports whether an object is stored under key.
	Exists(key string) (bool, error)
	// Delete removes the object stored under key; deleting a missing key
	// is not an error.
	Delete(key string) error
}
