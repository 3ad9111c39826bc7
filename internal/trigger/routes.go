package trigger

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the sync trigger routes.
func RegisterRoutes(r chi.Router, handler *Handler) {
	// POST /sync - run one sync pass
	r.Post("/sync", handler.RunPass)
}
