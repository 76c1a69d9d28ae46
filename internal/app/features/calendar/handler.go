// internal/app/features/calendar/handler.go
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	uierrors "github.com/guildhall-club/guildhall/internal/app/features/errors"
	commentstore "github.com/guildhall-club/guildhall/internal/app/store/comments"
	eventstore "github.com/guildhall-club/guildhall/internal/app/store/events"
	userstore "github.com/guildhall-club/guildhall/internal/app/store/users"
	"github.com/guildhall-club/guildhall/internal/app/system/authz"
	"github.com/guildhall-club/guildhall/internal/app/system/livequery"
	"github.com/guildhall-club/guildhall/internal/app/system/timeouts"
	"github.com/guildhall-club/guildhall/internal/app/system/viewdata"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler owns the calendar pages: the month grid, event detail with
// RSVPs and comments, and the event write endpoints including
// drag-and-drop moves.
type Handler struct {
	DB       *mongo.Database
	Events   *eventstore.Store
	Comments *commentstore.Store
	Users    *userstore.Store
	Hub      *livequery.Hub
	Log      *zap.Logger
}

func NewHandler(db *mongo.Database, hub *livequery.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		DB:       db,
		Events:   eventstore.New(db),
		Comments: commentstore.New(db),
		Users:    userstore.New(db),
		Hub:      hub,
		Log:      logger,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Month grid                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

type dayCell struct {
	Day     int
	Date    string // 2006-01-02, the drop target payload
	InMonth bool
	IsToday bool
	Events  []eventChip
}

type eventChip struct {
	ID       string
	Title    string
	Time     string
	PostSlug string
}

type monthVM struct {
	viewdata.BaseVM
	Year      int
	Month     time.Month
	MonthName string
	Weeks     [][]dayCell
	PrevURL   string
	NextURL   string
	CanManage bool
}

// Month handles GET /calendar. Optional y and m query params select the
// month; anything unparseable falls back to the current month.
func (h *Handler) Month(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	year, month := now.Year(), now.Month()
	if y, err := strconv.Atoi(query.Get(r, "y")); err == nil && y >= 2000 && y <= 2200 {
		if m, err := strconv.Atoi(query.Get(r, "m")); err == nil && m >= 1 && m <= 12 {
			year, month = y, time.Month(m)
		}
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	// The grid shows whole weeks, Sunday through Saturday.
	gridStart := first.AddDate(0, 0, -int(first.Weekday()))
	nextFirst := first.AddDate(0, 1, 0)
	gridEnd := nextFirst.AddDate(0, 0, (7-int(nextFirst.Weekday()))%7)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	events, err := h.Events.ListBetween(ctx, gridStart, gridEnd)
	if err != nil {
		h.Log.Error("calendar: list events failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	byDay := make(map[string][]eventChip)
	for _, ev := range events {
		key := ev.StartAt.In(time.Local).Format("2006-01-02")
		chip := eventChip{
			ID:    ev.ID.Hex(),
			Title: ev.Title,
			Time:  ev.StartAt.In(time.Local).Format("3:04 PM"),
		}
		if ev.LinkedPostSlug != nil {
			chip.PostSlug = *ev.LinkedPostSlug
		}
		byDay[key] = append(byDay[key], chip)
	}

	today := now.Format("2006-01-02")
	var weeks [][]dayCell
	for d := gridStart; d.Before(gridEnd); d = d.AddDate(0, 0, 7) {
		var week []dayCell
		for i := 0; i < 7; i++ {
			day := d.AddDate(0, 0, i)
			key := day.Format("2006-01-02")
			week = append(week, dayCell{
				Day:     day.Day(),
				Date:    key,
				InMonth: day.Month() == month,
				IsToday: key == today,
				Events:  byDay[key],
			})
		}
		weeks = append(weeks, week)
	}

	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)
	vm := monthVM{
		BaseVM:    viewdata.NewBaseVM(r, h.DB, "Calendar", "/"),
		Year:      year,
		Month:     month,
		MonthName: month.String(),
		Weeks:     weeks,
		PrevURL:   fmt.Sprintf("/calendar?y=%d&m=%d", prev.Year(), int(prev.Month())),
		NextURL:   fmt.Sprintf("/calendar?y=%d&m=%d", next.Year(), int(next.Month())),
		CanManage: authz.CanPublish(r),
	}

	templates.Render(w, r, "calendar/month", vm)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Event detail                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

type rsvpRow struct {
	Alias string
}

type eventVM struct {
	viewdata.BaseVM
	Event struct {
		ID        string
		EvTitle   string
		StartAt   string
		EndAt     string
		ImageURL  string
		PostSlug  string
		CanManage bool
	}
	RSVPs    []rsvpRow
	Going    bool
	Comments []commentView
}

type commentView struct {
	ID          string
	AuthorAlias string
	Body        string
	Posted      string
	Edited      bool
	CanManage   bool
	Replies     []commentView
}

// ShowEvent handles GET /calendar/events/{id}.
func (h *Handler) ShowEvent(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.RenderNotFound(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ev, err := h.Events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, eventstore.ErrNotFound) {
			uierrors.RenderNotFound(w, r)
			return
		}
		h.Log.Error("calendar: load event failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	vm := eventVM{
		BaseVM: viewdata.NewBaseVM(r, h.DB, ev.Title, "/calendar"),
	}
	vm.Event.ID = ev.ID.Hex()
	vm.Event.EvTitle = ev.Title
	vm.Event.StartAt = ev.StartAt.In(time.Local).Format("Monday, January 2, 2006 at 3:04 PM")
	if ev.EndAt != nil {
		vm.Event.EndAt = ev.EndAt.In(time.Local).Format("3:04 PM")
	}
	if ev.ImageURL != nil {
		vm.Event.ImageURL = *ev.ImageURL
	}
	if ev.LinkedPostSlug != nil {
		vm.Event.PostSlug = *ev.LinkedPostSlug
	}
	vm.Event.CanManage = authz.CanPublish(r)

	rsvps, err := h.Events.ListRSVPs(ctx, ev.ID)
	if err != nil {
		h.Log.Error("calendar: list rsvps failed", zap.Error(err))
	}
	for _, rv := range rsvps {
		vm.RSVPs = append(vm.RSVPs, rsvpRow{Alias: rv.Alias})
	}
	if _, userID, ok := authz.UserCtx(r); ok {
		going, err := h.Events.HasRSVP(ctx, ev.ID, userID)
		if err != nil {
			h.Log.Error("calendar: rsvp lookup failed", zap.Error(err))
		}
		vm.Going = going
	}

	comments, err := h.Comments.ListFor(ctx, models.CommentOnEvent, ev.ID)
	if err != nil {
		h.Log.Error("calendar: load comments failed", zap.Error(err))
	} else {
		vm.Comments = buildThread(r, comments)
	}

	templates.Render(w, r, "calendar/event", vm)
}

func buildThread(r *http.Request, comments []models.Comment) []commentView {
	byID := make(map[primitive.ObjectID]int)
	var top []commentView
	for _, c := range comments {
		if c.ParentID != nil {
			continue
		}
		byID[c.ID] = len(top)
		top = append(top, viewOf(r, c))
	}
	for _, c := range comments {
		if c.ParentID == nil {
			continue
		}
		if i, ok := byID[*c.ParentID]; ok {
			top[i].Replies = append(top[i].Replies, viewOf(r, c))
		}
	}
	return top
}

func viewOf(r *http.Request, c models.Comment) commentView {
	return commentView{
		ID:          c.ID.Hex(),
		AuthorAlias: c.AuthorAlias,
		Body:        c.Body,
		Posted:      c.CreatedAt.Format("Jan 2, 2006 3:04 PM"),
		Edited:      c.EditedAt != nil,
		CanManage:   authz.OwnsOrCanModerate(r, c.AuthorID),
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Event write endpoints                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

type editVM struct {
	viewdata.BaseVM
	EventID  string
	EvTitle  string
	StartAt  string
	EndAt    string
	ImageURL string
	IsLinked bool
	Error    string
}

// ShowNew handles GET /calendar/events/new.
func (h *Handler) ShowNew(w http.ResponseWriter, r *http.Request) {
	vm := editVM{
		BaseVM: viewdata.NewBaseVM(r, h.DB, "New event", "/calendar"),
	}
	if day := query.Get(r, "day"); day != "" {
		if d, err := time.ParseInLocation("2006-01-02", day, time.Local); err == nil {
			vm.StartAt = d.Add(19 * time.Hour).Format("2006-01-02T15:04")
		}
	}
	templates.Render(w, r, "calendar/edit", vm)
}

// ShowEdit handles GET /calendar/events/{id}/edit.
func (h *Handler) ShowEdit(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.RenderNotFound(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	ev, err := h.Events.GetByID(ctx, id)
	if err != nil {
		uierrors.RenderNotFound(w, r)
		return
	}

	vm := editVM{
		BaseVM:   viewdata.NewBaseVM(r, h.DB, "Edit event", "/calendar/events/"+id.Hex()),
		EventID:  id.Hex(),
		EvTitle:  ev.Title,
		StartAt:  ev.StartAt.In(time.Local).Format("2006-01-02T15:04"),
		IsLinked: ev.LinkedPostID != nil,
	}
	if ev.EndAt != nil {
		vm.EndAt = ev.EndAt.In(time.Local).Format("2006-01-02T15:04")
	}
	if ev.ImageURL != nil {
		vm.ImageURL = *ev.ImageURL
	}

	templates.Render(w, r, "calendar/edit", vm)
}

func (h *Handler) parseEventForm(r *http.Request) (eventstore.CreateInput, string) {
	in := eventstore.CreateInput{
		Title: r.FormValue("title"),
	}

	start, err := time.ParseInLocation("2006-01-02T15:04", r.FormValue("start_at"), time.Local)
	if err != nil {
		return in, "A valid start time is required."
	}
	in.StartAt = start

	if endRaw := r.FormValue("end_at"); endRaw != "" {
		end, err := time.ParseInLocation("2006-01-02T15:04", endRaw, time.Local)
		if err != nil {
			return in, "The end time is invalid."
		}
		in.EndAt = &end
	}
	if img := strings.TrimSpace(r.FormValue("image_url")); img != "" && strings.HasPrefix(img, "https://") {
		in.ImageURL = &img
	}
	return in, ""
}

// Create handles POST /calendar/events.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	in, msg := h.parseEventForm(r)
	if msg == "" {
		ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
		defer cancel()

		ev, err := h.Events.Create(ctx, in)
		if err == nil {
			h.Hub.Notify(livequery.TopicCalendar)
			http.Redirect(w, r, "/calendar/events/"+ev.ID.Hex(), http.StatusSeeOther)
			return
		}
		msg = saveErrorMessage(err)
		if msg == "" {
			h.Log.Error("calendar: create failed", zap.Error(err))
			msg = "Couldn't create the event. Please try again."
		}
	}

	vm := editVM{
		BaseVM:   viewdata.NewBaseVM(r, h.DB, "New event", "/calendar"),
		EvTitle:  r.FormValue("title"),
		StartAt:  r.FormValue("start_at"),
		EndAt:    r.FormValue("end_at"),
		ImageURL: r.FormValue("image_url"),
		Error:    msg,
	}
	w.WriteHeader(http.StatusUnprocessableEntity)
	templates.Render(w, r, "calendar/edit", vm)
}

// Update handles POST /calendar/events/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.RenderNotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	in, msg := h.parseEventForm(r)
	if msg == "" {
		ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
		defer cancel()

		_, err := h.Events.Update(ctx, id, in)
		if err == nil {
			h.Hub.Notify(livequery.TopicCalendar)
			h.Hub.Notify(livequery.TopicBlog)
			http.Redirect(w, r, "/calendar/events/"+id.Hex(), http.StatusSeeOther)
			return
		}
		if errors.Is(err, eventstore.ErrNotFound) {
			uierrors.RenderNotFound(w, r)
			return
		}
		msg = saveErrorMessage(err)
		if msg == "" {
			h.Log.Error("calendar: update failed", zap.Error(err))
			msg = "Couldn't save the event. Please try again."
		}
	}

	vm := editVM{
		BaseVM:   viewdata.NewBaseVM(r, h.DB, "Edit event", "/calendar"),
		EventID:  id.Hex(),
		EvTitle:  r.FormValue("title"),
		StartAt:  r.FormValue("start_at"),
		EndAt:    r.FormValue("end_at"),
		ImageURL: r.FormValue("image_url"),
		Error:    msg,
	}
	w.WriteHeader(http.StatusUnprocessableEntity)
	templates.Render(w, r, "calendar/edit", vm)
}

func saveErrorMessage(err error) string {
	switch {
	case errors.Is(err, eventstore.ErrTitleRequired):
		return "The event needs a title."
	case errors.Is(err, eventstore.ErrTimeRange):
		return "The end time can't precede the start."
	}
	return ""
}

// Move handles POST /calendar/events/{id}/move. The drag-and-drop grid
// posts the target day; the time-of-day and duration are preserved.
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	day, err := time.ParseInLocation("2006-01-02", r.FormValue("day"), time.Local)
	if err != nil {
		http.Error(w, "bad day", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	ev, err := h.Events.Move(ctx, id, day)
	if err != nil {
		if errors.Is(err, eventstore.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.Log.Error("calendar: move failed", zap.Error(err), zap.String("event_id", id.Hex()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.Log.Info("event moved",
		zap.String("event_id", ev.ID.Hex()),
		zap.Time("start_at", ev.StartAt))

	h.Hub.Notify(livequery.TopicCalendar)
	if ev.LinkedPostID != nil {
		h.Hub.Notify(livequery.TopicBlog)
	}

	// The grid refetches via the live stream; nothing to render.
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles POST /calendar/events/{id}/delete.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.RenderNotFound(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if err := h.Events.Delete(ctx, id); err != nil {
		if errors.Is(err, eventstore.ErrNotFound) {
			uierrors.RenderNotFound(w, r)
			return
		}
		h.Log.Error("calendar: delete failed", zap.Error(err), zap.String("event_id", id.Hex()))
		uierrors.RenderServerError(w, r)
		return
	}

	if n, err := h.Comments.DeleteForTarget(ctx, models.CommentOnEvent, id); err != nil {
		h.Log.Warn("calendar: comment cleanup failed", zap.Error(err), zap.String("event_id", id.Hex()))
	} else if n > 0 {
		h.Log.Info("calendar: comments removed with event",
			zap.Int64("count", n),
			zap.String("event_id", id.Hex()))
	}

	h.Hub.Notify(livequery.TopicCalendar)
	h.Hub.Notify(livequery.TopicBlog)

	http.Redirect(w, r, "/calendar", http.StatusSeeOther)
}

/*─────────────────────────────────────────────────────────────────────────────*
| RSVP                                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

// ToggleRSVP handles POST /calendar/events/{id}/rsvp.
func (h *Handler) ToggleRSVP(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authz.UserCtx(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.RenderNotFound(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, err := h.Events.GetByID(ctx, id); err != nil {
		uierrors.RenderNotFound(w, r)
		return
	}

	going, err := h.Events.HasRSVP(ctx, id, userID)
	if err != nil {
		h.Log.Error("calendar: rsvp lookup failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	if going {
		err = h.Events.ClearRSVP(ctx, id, userID)
	} else {
		u, uerr := h.Users.GetByID(ctx, userID)
		if uerr != nil {
			h.Log.Error("calendar: load user failed", zap.Error(uerr))
			uierrors.RenderServerError(w, r)
			return
		}
		if u.Alias == nil || *u.Alias == "" {
			// RSVPs are listed by alias, so one must be set first.
			http.Redirect(w, r, "/profile?return=/calendar/events/"+id.Hex(), http.StatusSeeOther)
			return
		}
		err = h.Events.SetRSVP(ctx, id, userID, *u.Alias)
	}
	if err != nil {
		h.Log.Error("calendar: rsvp toggle failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	h.Hub.Notify(livequery.TopicCalendar)
	http.Redirect(w, r, "/calendar/events/"+id.Hex(), http.StatusSeeOther)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Live stream                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// Stream handles GET /calendar/stream: a server-sent-events feed that
// fires whenever the calendar (or a linked post) changes. Clients react
// by refetching the grid.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Hub.Subscribe(livequery.TopicCalendar)
	defer cancel()

	// Heartbeat keeps intermediaries from closing the idle stream.
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	fmt.Fprint(w, "event: hello\ndata: {}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch:
			fmt.Fprint(w, "event: changed\ndata: {}\n\n")
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
