package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/zettelkasten/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// stats may be nil when the catalog is disabled.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, stats StatsSource, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, stats)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/zettels", func(r chi.Router) {
		r.Get("/", h.ListZettels)
		r.Post("/", h.CreateZettel)
		r.Get("/{id}", h.GetZettel)
		r.Put("/{id}", h.UpdateZettel)
		r.Delete("/{id}", h.DeleteZettel)
	})

	r.Get("/tags", h.Tags)
	r.Get("/tags/counts", h.TagCounts)

	r.Get("/sticky", h.GetSticky)
	r.Put("/sticky", h.SetSticky)
	r.Delete("/sticky", h.UnsetSticky)

	r.Get("/random", h.Random)
	r.Get("/graph", h.Graph)
	r.Get("/stats", h.Stats)

	r.Post("/import", h.Import)
	r.Get("/export", h.Export)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
