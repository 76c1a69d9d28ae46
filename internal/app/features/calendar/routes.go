// internal/app/features/calendar/routes.go
package calendar

import (
	"github.com/guildhall-club/guildhall/internal/app/system/auth"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Month)
	r.Get("/stream", h.Stream)
	r.Get("/events/{id}", h.ShowEvent)

	r.Group(func(r chi.Router) {
		r.Use(sm.RequireSignedIn)
		r.Post("/events/{id}/rsvp", h.ToggleRSVP)
	})

	r.Group(func(r chi.Router) {
		r.Use(sm.RequireRole(models.RoleOfficer, models.RoleModerator, models.RoleAdmin))
		r.Get("/events/new", h.ShowNew)
		r.Post("/events", h.Create)
		r.Get("/events/{id}/edit", h.ShowEdit)
		r.Post("/events/{id}", h.Update)
		r.Post("/events/{id}/move", h.Move)
		r.Post("/events/{id}/delete", h.Delete)
	})

	return r
}
