package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{uid}", h.GetNote)
	r.Put("/notes/{uid}", h.UpdateNote)
	r.Delete("/notes/{uid}", h.DeleteNote)
	r.Put("/notes/{uid}/tags", h.UpdateTags)
	r.Get("/notes/{uid}/backlinks", h.Backlinks)

	// Listings and lookup.
	r.Get("/gallery", h.Gallery)
	r.Get("/resolve", h.ResolveTitle)

	// Search. /search scores fuzzily against files, /search/text queries
	// the index's full-text table.
	r.Get("/search", h.Search)
	r.Get("/search/text", h.SearchText)

	// Index maintenance.
	r.Post("/sync", h.Sync)

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
