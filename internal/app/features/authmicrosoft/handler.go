// internal/app/features/authmicrosoft/handler.go
package authmicrosoft

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	userstore "github.com/guildhall-club/guildhall/internal/app/store/users"
	"github.com/guildhall-club/guildhall/internal/app/system/auth"
	"github.com/guildhall-club/guildhall/internal/app/system/oauthflow"
	"github.com/guildhall-club/guildhall/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Handler handles Microsoft OAuth sign-in. Mirrors the Google flow; the
// account key is still the email, so a member can switch providers
// freely.
type Handler struct {
	DB         *mongo.Database
	Users      *userstore.Store
	SessionMgr *auth.SessionManager
	States     *oauthflow.StateCodec
	Log        *zap.Logger

	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func NewHandler(
	db *mongo.Database,
	sessionMgr *auth.SessionManager,
	states *oauthflow.StateCodec,
	clientID, clientSecret, baseURL string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		DB:           db,
		Users:        userstore.New(db),
		SessionMgr:   sessionMgr,
		States:       states,
		Log:          logger,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  baseURL + "/auth/microsoft/callback",
	}
}

func (h *Handler) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.ClientID,
		ClientSecret: h.ClientSecret,
		RedirectURL:  h.RedirectURL,
		Scopes:       []string{"openid", "email", "profile", "User.Read"},
		Endpoint:     microsoft.AzureADEndpoint("common"),
	}
}

// IsConfigured reports whether Microsoft sign-in is available.
func (h *Handler) IsConfigured() bool {
	return h.ClientID != "" && h.ClientSecret != ""
}

// ServeLogin handles GET /auth/microsoft.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if !h.IsConfigured() {
		http.Redirect(w, r, "/login?error=internal", http.StatusSeeOther)
		return
	}

	state, err := h.States.Issue(w, query.Get(r, "return"))
	if err != nil {
		h.Log.Error("microsoft: issue state failed", zap.Error(err))
		http.Redirect(w, r, "/login?error=internal", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, h.oauth2Config().AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// ServeCallback handles GET /auth/microsoft/callback.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.Log.Warn("microsoft: provider error",
			zap.String("error", errParam),
			zap.String("description", r.URL.Query().Get("error_description")))
		http.Redirect(w, r, "/login?error=denied", http.StatusSeeOther)
		return
	}

	returnURL, ok := h.States.Check(w, r, r.URL.Query().Get("state"))
	if !ok {
		h.Log.Warn("microsoft: invalid or expired state")
		http.Redirect(w, r, "/login?error=invalid_state", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/login?error=invalid_state", http.StatusSeeOther)
		return
	}
	token, err := h.oauth2Config().Exchange(ctx, code)
	if err != nil {
		h.Log.Error("microsoft: code exchange failed", zap.Error(err))
		http.Redirect(w, r, "/login?error=token_exchange", http.StatusSeeOther)
		return
	}

	info, err := fetchGraphProfile(ctx, token)
	if err != nil {
		h.Log.Error("microsoft: profile fetch failed", zap.Error(err))
		http.Redirect(w, r, "/login?error=user_info", http.StatusSeeOther)
		return
	}
	email := info.Mail
	if email == "" {
		// Personal accounts often carry the address in userPrincipalName.
		email = info.UserPrincipalName
	}
	if email == "" {
		h.Log.Warn("microsoft: profile has no email", zap.String("ms_id", info.ID))
		http.Redirect(w, r, "/login?error=user_info", http.StatusSeeOther)
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	u, err := h.Users.UpsertOAuthUser(storeCtx, userstore.OAuthProfile{
		Provider:    "microsoft",
		Subject:     info.ID,
		Email:       email,
		DisplayName: info.DisplayName,
	})
	if err != nil {
		h.Log.Error("microsoft: upsert user failed", zap.Error(err))
		http.Redirect(w, r, "/login?error=internal", http.StatusSeeOther)
		return
	}

	if err := h.SessionMgr.SignIn(w, r, oauthflow.SessionUserFor(u)); err != nil {
		h.Log.Error("microsoft: session save failed", zap.Error(err), zap.String("user_id", u.ID.Hex()))
		http.Redirect(w, r, "/login?error=session", http.StatusSeeOther)
		return
	}

	h.Log.Info("user signed in via Microsoft",
		zap.String("user_id", u.ID.Hex()),
		zap.String("email", u.Email))

	dest := urlutil.SafeReturn(returnURL, "", "/")
	if u.Alias == nil {
		dest = "/profile?welcome=1"
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

// graphProfile is the subset of the Microsoft Graph /me response we use.
type graphProfile struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

func fetchGraphProfile(ctx context.Context, token *oauth2.Token) (*graphProfile, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get("https://graph.microsoft.com/v1.0/me")
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile status %d", resp.StatusCode)
	}

	var info graphProfile
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &info, nil
}
