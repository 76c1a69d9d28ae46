package profile_test

import (
	"net/http"
	"testing"

	"github.com/guildhall-club/guildhall/internal/app/features/profile"
	userstore "github.com/guildhall-club/guildhall/internal/app/store/users"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/guildhall-club/guildhall/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T) (*profile.Handler, *mongo.Database) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return profile.NewHandler(db, zap.NewNop()), db
}

func asTestUser(u models.User) testutil.TestUser {
	alias := u.DisplayName
	if u.Alias != nil {
		alias = *u.Alias
	}
	return testutil.TestUser{
		ID:    u.ID.Hex(),
		Name:  alias,
		Email: u.Email,
		Roles: u.Roles,
	}
}

func TestSubmitAlias_FirstClaim(t *testing.T) {
	h, db := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	newbie := fx.CreateBareUser(ctx, "newbie@test.com")

	req := testutil.NewFormRequest("/profile/alias", map[string]string{
		"alias": "Dark Lord",
	})
	req = testutil.WithUser(req, asTestUser(newbie))
	rec := testutil.NewRecorder()

	h.SubmitAlias(rec.ResponseRecorder, req)

	rec.AssertRedirect(t, "/profile?success=alias")

	u, err := userstore.New(db).GetByID(ctx, newbie.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if u.Alias == nil || *u.Alias != "Dark Lord" {
		t.Errorf("alias = %v, want Dark Lord", u.Alias)
	}
}

func TestSubmitAlias_TakenAlias(t *testing.T) {
	h, db := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	fx.CreateUser(ctx, "Dark Lord", "first@test.com")
	second := fx.CreateBareUser(ctx, "second@test.com")

	req := testutil.NewFormRequest("/profile/alias", map[string]string{
		"alias": "dark lord",
	})
	req = testutil.WithUser(req, asTestUser(second))
	rec := testutil.NewRecorder()

	// Re-render may panic without a booted template engine; the status
	// is written first, which is what we assert.
	func() {
		defer func() { _ = recover() }()
		h.SubmitAlias(rec.ResponseRecorder, req)
	}()

	rec.AssertStatus(t, http.StatusUnprocessableEntity)

	u, err := userstore.New(db).GetByID(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if u.Alias != nil {
		t.Errorf("expected no alias on the loser, got %q", *u.Alias)
	}
}

func TestSubmitAlias_SameAliasReportsUnchanged(t *testing.T) {
	h, db := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	member := fx.CreateUser(ctx, "Piper", "piper@test.com")

	// Same key, different casing: reported as unchanged, nothing saved.
	req := testutil.NewFormRequest("/profile/alias", map[string]string{
		"alias": "PIPER",
	})
	req = testutil.WithUser(req, asTestUser(member))
	rec := testutil.NewRecorder()

	h.SubmitAlias(rec.ResponseRecorder, req)

	rec.AssertRedirect(t, "/profile?success=unchanged")

	u, err := userstore.New(db).GetByID(ctx, member.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if u.Alias == nil || *u.Alias != "Piper" {
		t.Errorf("alias = %v, want the stored casing untouched", u.Alias)
	}
}

func TestSubmitPreferences_SavesThemeAndAccent(t *testing.T) {
	h, db := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	member := fx.CreateUser(ctx, "Piper", "piper@test.com")

	req := testutil.NewFormRequest("/profile/preferences", map[string]string{
		"pronouns":     "they/them",
		"theme":        "light",
		"accent_color": "#00cc88",
	})
	req = testutil.WithUser(req, asTestUser(member))
	rec := testutil.NewRecorder()

	h.SubmitPreferences(rec.ResponseRecorder, req)

	rec.AssertRedirect(t, "/profile?success=prefs")

	u, err := userstore.New(db).GetByID(ctx, member.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if u.Theme != "light" {
		t.Errorf("theme = %q, want light", u.Theme)
	}
	if u.AccentColor != "#00cc88" {
		t.Errorf("accent = %q, want #00cc88", u.AccentColor)
	}
	if u.Pronouns == nil || *u.Pronouns != "they/them" {
		t.Errorf("pronouns = %v, want they/them", u.Pronouns)
	}
}

func TestSubmitPreferences_IgnoresUnknownTheme(t *testing.T) {
	h, db := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	member := fx.CreateUser(ctx, "Piper", "piper@test.com")

	req := testutil.NewFormRequest("/profile/preferences", map[string]string{
		"theme":        "hotdog-stand",
		"accent_color": "not-a-color",
	})
	req = testutil.WithUser(req, asTestUser(member))
	rec := testutil.NewRecorder()

	h.SubmitPreferences(rec.ResponseRecorder, req)

	rec.AssertRedirect(t, "/profile?success=prefs")

	u, err := userstore.New(db).GetByID(ctx, member.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if u.Theme != models.DefaultTheme {
		t.Errorf("theme = %q, want the default to survive", u.Theme)
	}
	if u.AccentColor != models.DefaultAccentColor {
		t.Errorf("accent = %q, want the default to survive", u.AccentColor)
	}
}

func TestSubmitAlias_RequiresSignIn(t *testing.T) {
	h, _ := newTestHandler(t)

	req := testutil.NewFormRequest("/profile/alias", map[string]string{"alias": "Ghost"})
	rec := testutil.NewRecorder()

	h.SubmitAlias(rec.ResponseRecorder, req)

	rec.AssertRedirect(t, "/login?return=/profile")
}
