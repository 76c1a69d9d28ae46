// internal/app/system/authz/authz_test.go
package authz_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/guildhall-club/guildhall/internal/app/system/auth"
	"github.com/guildhall-club/guildhall/internal/app/system/authz"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func requestWithRoles(roles ...string) *http.Request {
	req := httptest.NewRequest("GET", "/test", nil)
	return auth.WithTestUser(req, &auth.SessionUser{
		ID:    primitive.NewObjectID().Hex(),
		Name:  "Test User",
		Roles: roles,
	})
}

func TestUserCtx_NoUser(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)

	user, id, ok := authz.UserCtx(req)
	if ok {
		t.Error("expected ok to be false when no user")
	}
	if user != nil {
		t.Error("expected nil user")
	}
	if id != primitive.NilObjectID {
		t.Error("expected NilObjectID")
	}
}

func TestUserCtx_MalformedID_FailsClosed(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req = auth.WithTestUser(req, &auth.SessionUser{
		ID:    "not-an-objectid",
		Roles: []string{"admin"},
	})

	_, _, ok := authz.UserCtx(req)
	if ok {
		t.Error("expected ok to be false for malformed user ID")
	}
	if authz.IsAdmin(req) {
		t.Error("expected IsAdmin to fail closed for malformed user ID")
	}
}

func TestUserCtx_ValidUser(t *testing.T) {
	oid := primitive.NewObjectID()
	req := httptest.NewRequest("GET", "/test", nil)
	req = auth.WithTestUser(req, &auth.SessionUser{
		ID:    oid.Hex(),
		Roles: []string{"player"},
	})

	user, id, ok := authz.UserCtx(req)
	if !ok {
		t.Fatal("expected ok to be true")
	}
	if user == nil {
		t.Fatal("expected user")
	}
	if id != oid {
		t.Errorf("expected id %s, got %s", oid.Hex(), id.Hex())
	}
}

func TestIsAdmin(t *testing.T) {
	if !authz.IsAdmin(requestWithRoles("player", "admin")) {
		t.Error("expected IsAdmin true for admin")
	}
	if authz.IsAdmin(requestWithRoles("player", "moderator")) {
		t.Error("expected IsAdmin false for moderator")
	}
	if authz.IsAdmin(httptest.NewRequest("GET", "/", nil)) {
		t.Error("expected IsAdmin false when signed out")
	}
}

func TestIsStaff(t *testing.T) {
	cases := []struct {
		roles []string
		want  bool
	}{
		{[]string{"admin"}, true},
		{[]string{"officer"}, true},
		{[]string{"moderator"}, true},
		{[]string{"player", "officer"}, true},
		{[]string{"player"}, false},
		{[]string{"dm"}, false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := authz.IsStaff(requestWithRoles(tc.roles...)); got != tc.want {
			t.Errorf("IsStaff(%v) = %v, want %v", tc.roles, got, tc.want)
		}
	}
}

func TestCanPublish(t *testing.T) {
	cases := []struct {
		roles []string
		want  bool
	}{
		{[]string{"officer"}, true},
		{[]string{"moderator"}, true},
		{[]string{"admin"}, true},
		{[]string{"dm"}, false},
		{[]string{"player"}, false},
		{[]string{"player", "dm"}, false},
	}
	for _, tc := range cases {
		if got := authz.CanPublish(requestWithRoles(tc.roles...)); got != tc.want {
			t.Errorf("CanPublish(%v) = %v, want %v", tc.roles, got, tc.want)
		}
	}
}

func TestCanModerate(t *testing.T) {
	if !authz.CanModerate(requestWithRoles("moderator")) {
		t.Error("expected CanModerate true for moderator")
	}
	if !authz.CanModerate(requestWithRoles("admin")) {
		t.Error("expected CanModerate true for admin")
	}
	if authz.CanModerate(requestWithRoles("officer")) {
		t.Error("expected CanModerate false for officer")
	}
}

func TestOwnsOrCanModerate_Owner(t *testing.T) {
	oid := primitive.NewObjectID()
	req := httptest.NewRequest("GET", "/test", nil)
	req = auth.WithTestUser(req, &auth.SessionUser{
		ID:    oid.Hex(),
		Roles: []string{"player"},
	})

	if !authz.OwnsOrCanModerate(req, oid) {
		t.Error("expected owner to pass")
	}
	if authz.OwnsOrCanModerate(req, primitive.NewObjectID()) {
		t.Error("expected non-owner player to fail")
	}
}

func TestOwnsOrCanModerate_Moderator(t *testing.T) {
	req := requestWithRoles("moderator")
	if !authz.OwnsOrCanModerate(req, primitive.NewObjectID()) {
		t.Error("expected moderator to pass for someone else's record")
	}
}

func TestOwnsOrCanModerate_SignedOut(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	if authz.OwnsOrCanModerate(req, primitive.NewObjectID()) {
		t.Error("expected signed-out request to fail")
	}
}
