package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/galdr/internal/blobstore"
	"github.com/starford/galdr/internal/noteservice"
)

// NewRouter creates the service router: unauthenticated health endpoints plus
// the note and audio routes behind optional Bearer token auth.
func NewRouter(svc *noteservice.Service, blobs blobstore.Provider, authEnabled bool, token string) chi.Router {
	h := NewHandler(svc)
	audio := NewAudioHandler(blobs)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthOK)
	r.Get("/health/ready", healthOK)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		r.Post("/notes", h.CreateNote)
		r.Get("/notes", h.ListNotes)
		r.Get("/notes/{id}", h.GetNote)

		r.Get("/audio/{key}", audio.ServeAudio)
	})

	return r
}

func healthOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
