// internal/app/features/blog/routes.go
package blog

import (
	"github.com/guildhall-club/guildhall/internal/app/system/auth"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the blog feature. Reading is public; creating requires
// a staff role. Editing narrows further to admin|moderator and deleting
// to author-or-moderator, both checked per handler.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/stream", h.Stream)
	r.Get("/{slug}", h.Show)

	r.Group(func(r chi.Router) {
		r.Use(sm.RequireRole(models.RoleOfficer, models.RoleModerator, models.RoleAdmin))
		r.Get("/new", h.ShowNew)
		r.Get("/{id}/edit", h.ShowEdit)
		r.Post("/save", h.Save)
		r.Post("/{id}/delete", h.Delete)
	})

	return r
}
