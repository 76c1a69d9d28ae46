// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Club roles. Every user always carries RolePlayer; the others are granted
// by an admin. Staff roles gate post/event creation and moderation.
const (
	RolePlayer    = "player"
	RoleDM        = "dm"
	RoleOfficer   = "officer"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// AllRoles lists every grantable role, base role first.
var AllRoles = []string{RolePlayer, RoleDM, RoleOfficer, RoleModerator, RoleAdmin}

// Appearance defaults applied to new accounts and signed-out visitors.
const (
	DefaultTheme       = "dark"
	DefaultAccentColor = "#7c3aed"
)

// User represents a club member signed in through an identity provider
// (or the local password account used to bootstrap the club).
//
// Alias is the user-chosen unique display name; while it is non-nil the
// alias_index collection must hold exactly one entry for its folded key
// pointing back at this user. AliasCI mirrors the folded key on the user
// document for lookups and the backstop index.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AuthProvider string             `bson:"auth_provider" json:"auth_provider"` // google | microsoft | password
	Subject      string             `bson:"subject" json:"subject"`             // provider subject or login id
	Email        string             `bson:"email" json:"email"`

	// DisplayName is the provider's name snapshot from first sign-in;
	// it is never shown publicly (the alias is), only in admin screens.
	DisplayName string  `bson:"display_name" json:"display_name"`
	Alias       *string `bson:"alias,omitempty" json:"alias,omitempty"`
	AliasCI     *string `bson:"alias_ci,omitempty" json:"alias_ci,omitempty"`
	Pronouns    *string `bson:"pronouns,omitempty" json:"pronouns,omitempty"`
	PhotoURL    *string `bson:"photo_url,omitempty" json:"photo_url,omitempty"`

	Roles []string `bson:"roles" json:"roles"`

	Theme       string `bson:"theme" json:"theme"` // dark | light
	AccentColor string `bson:"accent_color" json:"accent_color"`

	PasswordHash *string `bson:"password_hash,omitempty" json:"-"`

	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
	LastSeenAt time.Time `bson:"last_seen_at" json:"last_seen_at"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaff reports whether the user may create posts and manage events.
func (u *User) IsStaff() bool {
	return u.HasRole(RoleAdmin) || u.HasRole(RoleOfficer) || u.HasRole(RoleModerator)
}
