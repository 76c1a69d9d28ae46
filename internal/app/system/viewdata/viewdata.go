// internal/app/system/viewdata/viewdata.go
package viewdata

import (
	"context"
	"net/http"

	usersstore "github.com/guildhall-club/guildhall/internal/app/store/users"
	"github.com/guildhall-club/guildhall/internal/app/system/auth"
	"github.com/guildhall-club/guildhall/internal/app/system/authz"
	"github.com/guildhall-club/guildhall/internal/app/system/timeouts"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/httpnav"
	"github.com/gorilla/csrf"
	"go.mongodb.org/mongo-driver/mongo"
)

// BaseVM contains common fields for all view models.
// Embed this struct in your feature-specific view models.
//
// Usage:
//
//	type myPageData struct {
//	    viewdata.BaseVM
//	    // page-specific fields...
//	}
//
//	data := myPageData{
//	    BaseVM: viewdata.NewBaseVM(r, db, "Page Title", "/default-back"),
//	    // page-specific fields...
//	}
type BaseVM struct {
	SiteName string

	// User context (from auth middleware)
	IsLoggedIn bool
	UserName   string
	Roles      []string
	IsStaff    bool
	CanPublish bool

	// Appearance preferences; defaults apply to signed-out visitors.
	Theme       string
	AccentColor string

	// Page context
	Title       string
	BackURL     string
	CurrentPath string

	// CSRF protection
	CSRFToken string
}

// siteName is set once by Init from config.
var siteName = "Guildhall"

// Init sets the site name shown in the chrome. Call once at startup.
func Init(name string) {
	if name != "" {
		siteName = name
	}
}

// NewBaseVM creates a fully populated BaseVM for a page.
//
// Parameters:
//   - r: the HTTP request
//   - db: database for loading the signed-in user's theme (can be nil)
//   - title: the page title
//   - backDefault: default URL for the back button if none in request
func NewBaseVM(r *http.Request, db *mongo.Database, title, backDefault string) BaseVM {
	user, userID, signedIn := authz.UserCtx(r)

	vm := BaseVM{
		SiteName:    siteName,
		IsLoggedIn:  signedIn,
		IsStaff:     authz.IsStaff(r),
		CanPublish:  authz.CanPublish(r),
		Theme:       models.DefaultTheme,
		AccentColor: models.DefaultAccentColor,
		Title:       title,
		BackURL:     httpnav.ResolveBackURL(r, backDefault),
		CurrentPath: httpnav.CurrentPath(r),
		CSRFToken:   csrf.Token(r),
	}
	if signedIn {
		vm.UserName = displayName(user)
		vm.Roles = user.Roles
	}

	// Theme and accent live on the user record, not the session, so
	// changes apply on the next page load without re-login.
	if db != nil && signedIn {
		ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
		defer cancel()

		if u, err := usersstore.New(db).GetByID(ctx, userID); err == nil {
			if u.Theme != "" {
				vm.Theme = u.Theme
			}
			if u.AccentColor != "" {
				vm.AccentColor = u.AccentColor
			}
			if u.Alias != nil && *u.Alias != "" {
				vm.UserName = *u.Alias
			}
		}
	}

	return vm
}

// displayName prefers the alias cached in the session over the
// provider-supplied name.
func displayName(u *auth.SessionUser) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
