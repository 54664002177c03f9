package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/galdr/internal/apperr"
	"github.com/starford/galdr/internal/blobstore"
)

// AudioHandler serves synthesized audio objects. Note audioLocation values
// resolve against this handler.
type AudioHandler struct {
	blobs blobstore.Provider
}

// NewAudioHandler creates a handler backed by the audio blob store.
func NewAudioHandler(blobs blobstore.Provider) *AudioHandler {
	return &AudioHandler{blobs: blobs}
}

// ServeAudio handles GET /audio/{key}. The blob store rejects keys with path
// separators or traversal, so the raw URL parameter is safe to pass through.
func (h *AudioHandler) ServeAudio(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	data, err := h.blobs.Read(key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("serve audio failed", slog.String("key", key), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorBody("invalid audio key"))
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
