// internal/app/features/characters/routes.go
package characters

import (
	"github.com/guildhall-club/guildhall/internal/app/system/auth"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/", h.Show)
	r.Get("/edit", h.ShowEdit)
	r.Post("/", h.Save)
	r.Post("/delete", h.Delete)

	r.Group(func(r chi.Router) {
		r.Use(sm.RequireRole(models.RoleOfficer, models.RoleModerator, models.RoleAdmin))
		r.Get("/party", h.Party)
	})

	return r
}
