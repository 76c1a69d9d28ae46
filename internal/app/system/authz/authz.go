// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/guildhall-club/guildhall/internal/app/system/auth"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserCtx returns the session user, their Mongo ObjectID, and a found
// flag. If no user is present in context or the user ID is malformed,
// it returns nil, NilObjectID, false. This ensures callers can trust
// that ok=true means a valid, authenticated user with a valid ObjectID.
func UserCtx(r *http.Request) (user *auth.SessionUser, userID primitive.ObjectID, ok bool) {
	user, ok = auth.CurrentUser(r)
	if !ok {
		return nil, primitive.NilObjectID, false
	}
	userID, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		// Malformed user ID in session - fail closed.
		return nil, primitive.NilObjectID, false
	}
	return user, userID, true
}

// UserID returns the current user's ObjectID, NilObjectID when signed out.
func UserID(r *http.Request) primitive.ObjectID {
	_, id, _ := UserCtx(r)
	return id
}

// HasRole reports whether the current request's user holds the role.
func HasRole(r *http.Request, role string) bool {
	user, _, ok := UserCtx(r)
	return ok && user.HasRole(role)
}

// IsAdmin reports whether the current request's user is an admin.
func IsAdmin(r *http.Request) bool {
	return HasRole(r, models.RoleAdmin)
}

// IsStaff reports whether the user holds any staff role
// (admin, officer, or moderator).
func IsStaff(r *http.Request) bool {
	user, _, ok := UserCtx(r)
	if !ok {
		return false
	}
	for _, role := range user.Roles {
		switch strings.ToLower(role) {
		case models.RoleAdmin, models.RoleOfficer, models.RoleModerator:
			return true
		}
	}
	return false
}

// CanModerate reports whether the user may edit or remove other
// people's comments. Moderators and admins can.
func CanModerate(r *http.Request) bool {
	return HasRole(r, models.RoleModerator) || HasRole(r, models.RoleAdmin)
}

// CanPublish reports whether the user may author blog posts and manage
// calendar events. Staff only; the dm role carries no publishing power.
func CanPublish(r *http.Request) bool {
	return IsStaff(r)
}

// OwnsOrCanModerate reports whether the user is the author of the given
// record or holds moderation powers. The gate for comment management
// and post deletion.
func OwnsOrCanModerate(r *http.Request, authorID primitive.ObjectID) bool {
	_, userID, ok := UserCtx(r)
	if !ok {
		return false
	}
	if userID == authorID {
		return true
	}
	return CanModerate(r)
}
