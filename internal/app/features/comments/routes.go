// internal/app/features/comments/routes.go
package comments

import (
	"github.com/guildhall-club/guildhall/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Post("/", h.Add)
	r.Post("/{id}", h.Edit)
	r.Post("/{id}/delete", h.Delete)
	return r
}
