// internal/app/features/login/handler.go
package login

import (
	"context"
	"errors"
	"net/http"
	"strings"

	userstore "github.com/guildhall-club/guildhall/internal/app/store/users"
	"github.com/guildhall-club/guildhall/internal/app/system/auth"
	"github.com/guildhall-club/guildhall/internal/app/system/authutil"
	"github.com/guildhall-club/guildhall/internal/app/system/oauthflow"
	"github.com/guildhall-club/guildhall/internal/app/system/timeouts"
	"github.com/guildhall-club/guildhall/internal/app/system/viewdata"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the sign-in page. Regular members sign in through the
// OAuth providers; the email+password form exists for the bootstrap
// admin account.
type Handler struct {
	DB         *mongo.Database
	Users      *userstore.Store
	SessionMgr *auth.SessionManager
	Log        *zap.Logger

	GoogleEnabled    bool
	MicrosoftEnabled bool
}

func NewHandler(db *mongo.Database, sessionMgr *auth.SessionManager, googleEnabled, microsoftEnabled bool, logger *zap.Logger) *Handler {
	return &Handler{
		DB:               db,
		Users:            userstore.New(db),
		SessionMgr:       sessionMgr,
		Log:              logger,
		GoogleEnabled:    googleEnabled,
		MicrosoftEnabled: microsoftEnabled,
	}
}

type loginVM struct {
	viewdata.BaseVM
	ReturnURL        string
	Email            string
	Error            string
	GoogleEnabled    bool
	MicrosoftEnabled bool
}

// errorMessages maps ?error= codes set by the OAuth callbacks.
var errorMessages = map[string]string{
	"invalid_state":  "Sign-in took too long or was tampered with. Please try again.",
	"token_exchange": "The sign-in provider rejected the request. Please try again.",
	"user_info":      "We couldn't read your profile from the provider. Please try again.",
	"denied":         "Sign-in was cancelled.",
	"internal":       "Something went wrong during sign-in. Please try again.",
	"session":        "We couldn't start your session. Please try again.",
}

// ShowForm handles GET /login.
func (h *Handler) ShowForm(w http.ResponseWriter, r *http.Request) {
	if _, signedIn := auth.CurrentUser(r); signedIn {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	vm := loginVM{
		BaseVM:           viewdata.NewBaseVM(r, h.DB, "Sign in", "/"),
		ReturnURL:        query.Get(r, "return"),
		GoogleEnabled:    h.GoogleEnabled,
		MicrosoftEnabled: h.MicrosoftEnabled,
	}
	if code := query.Get(r, "error"); code != "" {
		if msg, ok := errorMessages[code]; ok {
			vm.Error = msg
		} else {
			vm.Error = "Sign-in failed. Please try again."
		}
	}

	templates.Render(w, r, "login", vm)
}

// SubmitPassword handles POST /login.
func (h *Handler) SubmitPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	returnURL := r.FormValue("return")

	fail := func(msg string) {
		vm := loginVM{
			BaseVM:           viewdata.NewBaseVM(r, h.DB, "Sign in", "/"),
			ReturnURL:        returnURL,
			Email:            email,
			Error:            msg,
			GoogleEnabled:    h.GoogleEnabled,
			MicrosoftEnabled: h.MicrosoftEnabled,
		}
		w.WriteHeader(http.StatusUnauthorized)
		templates.Render(w, r, "login", vm)
	}

	if email == "" || password == "" {
		fail("Email and password are required.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, userstore.ErrNotFound) {
			h.Log.Error("login: lookup failed", zap.Error(err))
		}
		// Same message for unknown email and wrong password.
		fail("Invalid email or password.")
		return
	}
	if u.PasswordHash == nil || !authutil.CheckPassword(password, *u.PasswordHash) {
		fail("Invalid email or password.")
		return
	}

	if err := h.SessionMgr.SignIn(w, r, oauthflow.SessionUserFor(u)); err != nil {
		h.Log.Error("login: session save failed", zap.Error(err), zap.String("user_id", u.ID.Hex()))
		fail("We couldn't start your session. Please try again.")
		return
	}
	_ = h.Users.TouchLastSeen(ctx, u.ID)

	h.Log.Info("password sign-in", zap.String("user_id", u.ID.Hex()))
	http.Redirect(w, r, urlutil.SafeReturn(returnURL, "", "/"), http.StatusSeeOther)
}
