// internal/app/features/adminusers/handler.go

// Package adminusers is the admin roster: every account, its roles, and
// the role-grant form. Mounted behind the admin role.
package adminusers

import (
	"context"
	"errors"
	"net/http"

	uierrors "github.com/guildhall-club/guildhall/internal/app/features/errors"
	userstore "github.com/guildhall-club/guildhall/internal/app/store/users"
	"github.com/guildhall-club/guildhall/internal/app/system/timeouts"
	"github.com/guildhall-club/guildhall/internal/app/system/viewdata"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	DB    *mongo.Database
	Users *userstore.Store
	Log   *zap.Logger
}

func NewHandler(db *mongo.Database, logger *zap.Logger) *Handler {
	return &Handler{
		DB:    db,
		Users: userstore.New(db),
		Log:   logger,
	}
}

type userRow struct {
	ID          string
	Alias       string
	DisplayName string
	Email       string
	Provider    string
	Roles       map[string]bool
	LastSeen    string
}

type listVM struct {
	viewdata.BaseVM
	Users    []userRow
	AllRoles []string
	Success  bool
	Error    string
}

// List handles GET /admin/users.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		h.Log.Error("adminusers: list failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	vm := listVM{
		BaseVM:   viewdata.NewBaseVM(r, h.DB, "Members", "/"),
		AllRoles: models.AllRoles,
		Success:  query.Get(r, "success") == "roles",
	}
	switch query.Get(r, "error") {
	case "bad_roles":
		vm.Error = "One of the submitted roles isn't recognized."
	case "not_found":
		vm.Error = "That account no longer exists."
	}

	for i := range users {
		u := &users[i]
		row := userRow{
			ID:          u.ID.Hex(),
			DisplayName: u.DisplayName,
			Email:       u.Email,
			Provider:    u.AuthProvider,
			Roles:       make(map[string]bool, len(u.Roles)),
		}
		if u.Alias != nil {
			row.Alias = *u.Alias
		}
		for _, role := range u.Roles {
			row.Roles[role] = true
		}
		if !u.LastSeenAt.IsZero() {
			row.LastSeen = u.LastSeenAt.Format("Jan 2, 2006")
		}
		vm.Users = append(vm.Users, row)
	}

	templates.Render(w, r, "adminusers/list", vm)
}

// SetRoles handles POST /admin/users/{id}/roles. The checkboxes submit
// the full role set; player is implied and re-added by the store.
func (h *Handler) SetRoles(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		http.Redirect(w, r, "/admin/users?error=not_found", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	roles := r.Form["roles"]
	for _, role := range roles {
		if !knownRole(role) {
			http.Redirect(w, r, "/admin/users?error=bad_roles", http.StatusSeeOther)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Users.SetRoles(ctx, id, roles); err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			http.Redirect(w, r, "/admin/users?error=not_found", http.StatusSeeOther)
			return
		}
		h.Log.Error("adminusers: set roles failed", zap.Error(err), zap.String("user_id", id.Hex()))
		uierrors.RenderServerError(w, r)
		return
	}

	h.Log.Info("roles updated",
		zap.String("user_id", id.Hex()),
		zap.Strings("roles", roles))

	http.Redirect(w, r, "/admin/users?success=roles", http.StatusSeeOther)
}

func knownRole(role string) bool {
	for _, known := range models.AllRoles {
		if role == known {
			return true
		}
	}
	return false
}
