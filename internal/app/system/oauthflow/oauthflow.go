// internal/app/system/oauthflow/oauthflow.go

// Package oauthflow holds the pieces shared by the OAuth login
// providers: the signed state cookie that ties a callback to the
// browser that started the flow, and the session-user mapping applied
// after the provider hands back a profile.
package oauthflow

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/guildhall-club/guildhall/internal/app/system/auth"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/gorilla/securecookie"
)

const (
	stateCookie = "oauth_state"
	stateTTL    = 10 * time.Minute
)

// statePayload is what the signed cookie carries across the redirect.
type statePayload struct {
	State     string
	ReturnURL string
	IssuedAt  int64
}

// StateCodec signs and verifies the OAuth state cookie.
type StateCodec struct {
	sc     *securecookie.SecureCookie
	secure bool
}

// NewStateCodec builds a codec from the session key. The state cookie
// rides the same trust root as the session cookie.
func NewStateCodec(sessionKey string, secure bool) (*StateCodec, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("oauth state codec needs a non-empty key")
	}
	sc := securecookie.New([]byte(sessionKey), nil)
	sc.MaxAge(int(stateTTL / time.Second))
	return &StateCodec{sc: sc, secure: secure}, nil
}

// Issue generates a fresh state value, stores it (with the return URL)
// in a signed short-lived cookie, and returns the state to embed in the
// provider redirect.
func (c *StateCodec) Issue(w http.ResponseWriter, returnURL string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.URLEncoding.EncodeToString(b)

	encoded, err := c.sc.Encode(stateCookie, statePayload{
		State:     state,
		ReturnURL: returnURL,
		IssuedAt:  time.Now().Unix(),
	})
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(stateTTL / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

// Check validates the provider's state against the cookie and clears
// the cookie either way. Returns the return URL stored at issue time.
func (c *StateCodec) Check(w http.ResponseWriter, r *http.Request, state string) (returnURL string, ok bool) {
	defer http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})

	cookie, err := r.Cookie(stateCookie)
	if err != nil {
		return "", false
	}
	var payload statePayload
	if err := c.sc.Decode(stateCookie, cookie.Value, &payload); err != nil {
		return "", false
	}
	if state == "" || payload.State != state {
		return "", false
	}
	if time.Since(time.Unix(payload.IssuedAt, 0)) > stateTTL {
		return "", false
	}
	return payload.ReturnURL, true
}

// SessionUserFor maps a user record onto the session representation.
// The alias wins over the provider display name once claimed.
func SessionUserFor(u *models.User) *auth.SessionUser {
	name := u.DisplayName
	if u.Alias != nil && *u.Alias != "" {
		name = *u.Alias
	}
	return &auth.SessionUser{
		ID:    u.ID.Hex(),
		Name:  name,
		Email: u.Email,
		Roles: u.Roles,
	}
}
