// internal/app/features/profile/handler.go
package profile

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	uierrors "github.com/guildhall-club/guildhall/internal/app/features/errors"
	userstore "github.com/guildhall-club/guildhall/internal/app/store/users"
	"github.com/guildhall-club/guildhall/internal/app/system/authz"
	"github.com/guildhall-club/guildhall/internal/app/system/timeouts"
	"github.com/guildhall-club/guildhall/internal/app/system/viewdata"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/templates"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the member's own profile page: alias, pronouns, and
// appearance preferences.
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

var themes = []string{"dark", "light"}

var accentRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

type profileVM struct {
	viewdata.BaseVM
	Alias       string
	Pronouns    string
	Email       string
	PhotoURL    string
	UserTheme   string
	UserAccent  string
	Themes      []string
	Welcome     bool
	AliasError  string
	Success     string
}

// Show handles GET /profile.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authz.UserCtx(r)
	if !ok {
		http.Redirect(w, r, "/login?return=/profile", http.StatusSeeOther)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		h.Log.Error("profile: load user failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	vm := profileVM{
		BaseVM:     viewdata.NewBaseVM(r, h.DB, "Your profile", "/"),
		Email:      u.Email,
		UserTheme:  u.Theme,
		UserAccent: u.AccentColor,
		Themes:     themes,
		Welcome:    query.Get(r, "welcome") == "1",
	}
	if u.Alias != nil {
		vm.Alias = *u.Alias
	}
	if u.Pronouns != nil {
		vm.Pronouns = *u.Pronouns
	}
	if u.PhotoURL != nil {
		vm.PhotoURL = *u.PhotoURL
	}
	switch query.Get(r, "success") {
	case "alias":
		vm.Success = "Alias saved"
	case "unchanged":
		vm.Success = "Alias unchanged"
	case "prefs":
		vm.Success = "Preferences saved"
	}

	templates.Render(w, r, "profile", vm)
}

// SubmitAlias handles POST /profile/alias.
func (h *Handler) SubmitAlias(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authz.UserCtx(r)
	if !ok {
		http.Redirect(w, r, "/login?return=/profile", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	_, err := h.Users.ClaimAlias(ctx, userID, r.FormValue("alias"))
	if err != nil {
		if errors.Is(err, userstore.ErrAliasUnchanged) {
			http.Redirect(w, r, "/profile?success=unchanged", http.StatusSeeOther)
			return
		}
		msg := "Couldn't save your alias. Please try again."
		switch {
		case errors.Is(err, userstore.ErrAliasInvalid):
			msg = "Aliases are 3-24 characters: letters, digits, spaces, underscores, hyphens."
		case errors.Is(err, userstore.ErrAliasTaken):
			msg = "That alias is already taken."
		default:
			h.Log.Error("profile: claim alias failed", zap.Error(err))
		}
		h.rerenderWithAliasError(w, r, userID, r.FormValue("alias"), msg)
		return
	}

	http.Redirect(w, r, "/profile?success=alias", http.StatusSeeOther)
}

func (h *Handler) rerenderWithAliasError(w http.ResponseWriter, r *http.Request, userID primitive.ObjectID, attempted, msg string) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	vm := profileVM{
		BaseVM:     viewdata.NewBaseVM(r, h.DB, "Your profile", "/"),
		Alias:      strings.TrimSpace(attempted),
		Themes:     themes,
		AliasError: msg,
	}
	if u, err := h.Users.GetByID(ctx, userID); err == nil {
		if u.Pronouns != nil {
			vm.Pronouns = *u.Pronouns
		}
		vm.Email = u.Email
		vm.UserTheme = u.Theme
		vm.UserAccent = u.AccentColor
		if u.PhotoURL != nil {
			vm.PhotoURL = *u.PhotoURL
		}
	}

	w.WriteHeader(http.StatusUnprocessableEntity)
	templates.Render(w, r, "profile", vm)
}

// SubmitPreferences handles POST /profile/preferences.
func (h *Handler) SubmitPreferences(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authz.UserCtx(r)
	if !ok {
		http.Redirect(w, r, "/login?return=/profile", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	prefs := userstore.Preferences{}

	pronouns := strings.TrimSpace(r.FormValue("pronouns"))
	if len(pronouns) <= 40 {
		prefs.Pronouns = &pronouns
	}
	if theme := r.FormValue("theme"); validTheme(theme) {
		prefs.Theme = &theme
	}
	if accent := strings.TrimSpace(r.FormValue("accent_color")); accentRe.MatchString(accent) {
		prefs.AccentColor = &accent
	}
	if photo := strings.TrimSpace(r.FormValue("photo_url")); photo == "" || strings.HasPrefix(photo, "https://") {
		prefs.PhotoURL = &photo
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Users.UpdatePreferences(ctx, userID, prefs); err != nil {
		h.Log.Error("profile: update preferences failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	http.Redirect(w, r, "/profile?success=prefs", http.StatusSeeOther)
}

func validTheme(t string) bool {
	for _, v := range themes {
		if t == v {
			return true
		}
	}
	return false
}
