package calendar_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/guildhall-club/guildhall/internal/app/features/calendar"
	eventstore "github.com/guildhall-club/guildhall/internal/app/store/events"
	"github.com/guildhall-club/guildhall/internal/app/system/livequery"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/guildhall-club/guildhall/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T) (*calendar.Handler, *livequery.Hub, *mongo.Database) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	hub := livequery.NewHub(zap.NewNop())
	return calendar.NewHandler(db, hub, zap.NewNop()), hub, db
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

func TestCreate_StandaloneEvent(t *testing.T) {
	h, _, db := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	start := time.Now().AddDate(0, 0, 3).Truncate(time.Minute)
	req := testutil.NewFormRequest("/calendar/events", map[string]string{
		"title":    "Paint and Takeout",
		"start_at": start.Format("2006-01-02T15:04"),
	})
	rec := testutil.NewRecorder()

	h.Create(rec.ResponseRecorder, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/calendar/events/") {
		t.Fatalf("redirect = %q, want /calendar/events/{id}", loc)
	}

	events, err := eventstore.New(db).ListBetween(ctx, start.Add(-time.Hour), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListBetween: %v", err)
	}
	if len(events) != 1 || events[0].Title != "Paint and Takeout" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestCreate_MissingStartRejected(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := testutil.NewFormRequest("/calendar/events", map[string]string{
		"title": "No Time Given",
	})
	rec := testutil.NewRecorder()

	func() {
		defer func() { _ = recover() }()
		h.Create(rec.ResponseRecorder, req)
	}()

	rec.AssertStatus(t, http.StatusUnprocessableEntity)
}

func TestMove_ShiftsDayKeepsTime(t *testing.T) {
	h, _, db := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	start := time.Date(2026, time.September, 4, 19, 30, 0, 0, time.Local)
	ev := fx.CreateEvent(ctx, "Movable Feast", start)

	req := testutil.NewFormRequest("/calendar/events/"+ev.ID.Hex()+"/move", map[string]string{
		"day": "2026-09-11",
	})
	req = testutil.WithChiURLParam(req, "id", ev.ID.Hex())
	rec := testutil.NewRecorder()

	h.Move(rec.ResponseRecorder, req)

	rec.AssertStatus(t, http.StatusNoContent)

	moved, err := eventstore.New(db).GetByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	got := moved.StartAt.In(time.Local)
	if got.Day() != 11 || got.Hour() != 19 || got.Minute() != 30 {
		t.Errorf("moved to %v, want Sep 11 19:30", got)
	}
}

func TestMove_UnknownEvent(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := testutil.NewFormRequest("/calendar/events/ffffffffffffffffffffffff/move", map[string]string{
		"day": "2026-09-11",
	})
	req = testutil.WithChiURLParam(req, "id", "ffffffffffffffffffffffff")
	rec := testutil.NewRecorder()

	h.Move(rec.ResponseRecorder, req)

	rec.AssertStatus(t, http.StatusNotFound)
}

func TestToggleRSVP_AddThenRemove(t *testing.T) {
	h, _, db := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	ev := fx.CreateEvent(ctx, "One-Shot", time.Now().AddDate(0, 0, 5))
	player := fx.CreateUser(ctx, "Piper", "piper@test.com")

	toggle := func() {
		req := testutil.NewFormRequest("/calendar/events/"+ev.ID.Hex()+"/rsvp", nil)
		req = testutil.WithUser(req, asTestUser(player))
		req = testutil.WithChiURLParam(req, "id", ev.ID.Hex())
		rec := testutil.NewRecorder()
		h.ToggleRSVP(rec.ResponseRecorder, req)
		rec.AssertRedirect(t, "/calendar/events/"+ev.ID.Hex())
	}

	store := eventstore.New(db)

	toggle()
	rsvps, err := store.ListRSVPs(ctx, ev.ID)
	if err != nil {
		t.Fatalf("ListRSVPs: %v", err)
	}
	if len(rsvps) != 1 || rsvps[0].Alias != "Piper" {
		t.Fatalf("after first toggle: %+v", rsvps)
	}

	toggle()
	rsvps, err = store.ListRSVPs(ctx, ev.ID)
	if err != nil {
		t.Fatalf("ListRSVPs: %v", err)
	}
	if len(rsvps) != 0 {
		t.Fatalf("after second toggle, expected empty list: %+v", rsvps)
	}
}

func TestToggleRSVP_NeedsAlias(t *testing.T) {
	h, _, db := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	ev := fx.CreateEvent(ctx, "One-Shot", time.Now().AddDate(0, 0, 5))
	newbie := fx.CreateBareUser(ctx, "newbie@test.com")

	req := testutil.NewFormRequest("/calendar/events/"+ev.ID.Hex()+"/rsvp", nil)
	req = testutil.WithUser(req, asTestUser(newbie))
	req = testutil.WithChiURLParam(req, "id", ev.ID.Hex())
	rec := testutil.NewRecorder()

	h.ToggleRSVP(rec.ResponseRecorder, req)

	rec.AssertRedirect(t, "/profile?return=/calendar/events/"+ev.ID.Hex())

	rsvps, err := eventstore.New(db).ListRSVPs(ctx, ev.ID)
	if err != nil {
		t.Fatalf("ListRSVPs: %v", err)
	}
	if len(rsvps) != 0 {
		t.Fatalf("no RSVP should be recorded without an alias: %+v", rsvps)
	}
}

func TestDelete_EventAndComments(t *testing.T) {
	h, _, db := newTestHandler(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fx := testutil.NewFixtures(t, db)
	ev := fx.CreateEvent(ctx, "Cancelled Night", time.Now().AddDate(0, 0, 2))

	req := testutil.NewFormRequest("/calendar/events/"+ev.ID.Hex()+"/delete", nil)
	req = testutil.WithChiURLParam(req, "id", ev.ID.Hex())
	rec := testutil.NewRecorder()

	h.Delete(rec.ResponseRecorder, req)

	rec.AssertRedirect(t, "/calendar")

	if _, err := eventstore.New(db).GetByID(ctx, ev.ID); err == nil {
		t.Error("expected event to be gone")
	}
}

func TestStream_DeliversChangeEvents(t *testing.T) {
	h, hub, _ := newTestHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := testutil.NewRequest(http.MethodGet, "/calendar/stream").WithContext(ctx)
	rec := testutil.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Stream(rec.ResponseRecorder, req)
		close(done)
	}()

	// Give the subscriber time to register, then fire a change.
	time.Sleep(50 * time.Millisecond)
	hub.Notify(livequery.TopicCalendar)
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: hello") {
		t.Error("expected the hello event")
	}
	if !strings.Contains(body, "event: changed") {
		t.Error("expected a changed event after Notify")
	}
}
