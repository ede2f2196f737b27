package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kukula/lattice/internal/modelservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *modelservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Model files CRUD.
	r.Get("/models", h.ListModels)
	r.Post("/models", h.CreateModel)
	r.Post("/models/move", h.MoveModel)
	r.Get("/models/*", h.GetModel)
	r.Put("/models/*", h.UpdateModel)
	r.Delete("/models/*", h.DeleteModel)

	// Ad-hoc validation of content that is not stored.
	r.Post("/validate", h.Validate)

	// Per-file analysis views.
	r.Get("/graph/*", h.Graph)
	r.Get("/cases/*", h.Cases)

	// Recorded diagnostics across the workspace.
	r.Get("/diagnostics", h.Diagnostics)
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
