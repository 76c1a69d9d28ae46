// internal/app/features/errors/errors.go

// Package errors renders the friendly error pages. Other features call
// the Render* helpers instead of writing bare http.Error strings for
// HTML requests.
package errors

import (
	"net/http"

	"github.com/guildhall-club/guildhall/internal/app/system/viewdata"
	"github.com/dalemusser/waffle/pantry/templates"
)

type pageVM struct {
	viewdata.BaseVM
	Message string
}

// Handler is the errors feature handler. No DB needed; it just renders
// templates.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Forbidden handles GET /forbidden.
func (h *Handler) Forbidden(w http.ResponseWriter, r *http.Request) {
	RenderForbidden(w, r, "You don't have permission to view this page.", "")
}

// NotFound is the router's fallback handler.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	RenderNotFound(w, r)
}

// RenderForbidden shows an access-denied page with a message. An empty
// backURL falls back to the referer-aware default.
func RenderForbidden(w http.ResponseWriter, r *http.Request, msg, backURL string) {
	if backURL == "" {
		backURL = "/"
	}
	vm := pageVM{
		BaseVM:  viewdata.NewBaseVM(r, nil, "Access denied", backURL),
		Message: msg,
	}
	w.WriteHeader(http.StatusForbidden)
	templates.Render(w, r, "errors/forbidden", vm)
}

// RenderNotFound shows the 404 page.
func RenderNotFound(w http.ResponseWriter, r *http.Request) {
	vm := pageVM{
		BaseVM:  viewdata.NewBaseVM(r, nil, "Not found", "/"),
		Message: "That page doesn't exist. It may have been renamed or removed.",
	}
	w.WriteHeader(http.StatusNotFound)
	templates.Render(w, r, "errors/not_found", vm)
}

// RenderServerError shows the 500 page. The underlying error is logged
// by the caller, never shown to the visitor.
func RenderServerError(w http.ResponseWriter, r *http.Request) {
	vm := pageVM{
		BaseVM:  viewdata.NewBaseVM(r, nil, "Something went wrong", "/"),
		Message: "Something went wrong on our side. Please try again.",
	}
	w.WriteHeader(http.StatusInternalServerError)
	templates.Render(w, r, "errors/server_error", vm)
}
