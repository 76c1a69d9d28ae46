// internal/app/features/profile/routes.go
package profile

import "github.com/go-chi/chi/v5"

// Routes are mounted behind RequireSignedIn.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Show)
	r.Post("/alias", h.SubmitAlias)
	r.Post("/preferences", h.SubmitPreferences)
	return r
}
