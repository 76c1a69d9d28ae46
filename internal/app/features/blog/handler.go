// internal/app/features/blog/handler.go
package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	uierrors "github.com/guildhall-club/guildhall/internal/app/features/errors"
	blogstore "github.com/guildhall-club/guildhall/internal/app/store/blogposts"
	commentstore "github.com/guildhall-club/guildhall/internal/app/store/comments"
	userstore "github.com/guildhall-club/guildhall/internal/app/store/users"
	"github.com/guildhall-club/guildhall/internal/app/system/authz"
	"github.com/guildhall-club/guildhall/internal/app/system/livequery"
	"github.com/guildhall-club/guildhall/internal/app/system/richtext"
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

// Handler owns the blog pages: the feed, post detail with its comment
// thread, and the publish/edit flow with optional event linking.
type Handler struct {
	DB       *mongo.Database
	Posts    *blogstore.Store
	Comments *commentstore.Store
	Users    *userstore.Store
	Hub      *livequery.Hub
	Log      *zap.Logger
}

func NewHandler(db *mongo.Database, hub *livequery.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		DB:       db,
		Posts:    blogstore.New(db),
		Comments: commentstore.New(db),
		Users:    userstore.New(db),
		Hub:      hub,
		Log:      logger,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Feed                                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

type postRow struct {
	Title       string
	Slug        string
	AuthorAlias string
	Tags        []string
	Excerpt     string
	Posted      string
	HasEvent    bool
}

type listVM struct {
	viewdata.BaseVM
	Posts     []postRow
	ActiveTag string
	Tags      []string
}

// List handles GET /blog.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	tag := query.Get(r, "tag")
	if tag != "" && !models.IsBlogTag(tag) {
		tag = ""
	}

	posts, err := h.Posts.List(ctx, blogstore.ListOptions{Tag: tag, Limit: 50})
	if err != nil {
		h.Log.Error("blog: list failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	vm := listVM{
		BaseVM:    viewdata.NewBaseVM(r, h.DB, "Blog", "/"),
		ActiveTag: tag,
		Tags:      models.BlogTags,
	}
	for _, p := range posts {
		vm.Posts = append(vm.Posts, postRow{
			Title:       p.Title,
			Slug:        p.Slug,
			AuthorAlias: p.AuthorAlias,
			Tags:        p.Tags,
			Excerpt:     excerpt(p.ContentText, 200),
			Posted:      p.CreatedAt.Format("Jan 2, 2006"),
			HasEvent:    p.LinkedEventID != nil,
		})
	}

	templates.Render(w, r, "blog/list", vm)
}

func excerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	cut := strings.LastIndex(s[:max], " ")
	if cut <= 0 {
		cut = max
	}
	return s[:cut] + "…"
}

/*─────────────────────────────────────────────────────────────────────────────*
| Detail                                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

type commentView struct {
	ID          string
	AuthorAlias string
	Body        string
	Posted      string
	Edited      bool
	CanManage   bool
	Replies     []commentView
}

type detailVM struct {
	viewdata.BaseVM
	Post struct {
		ID          string
		Title       string
		Slug        string
		AuthorAlias string
		Pronouns    string
		Tags        []string
		Posted      string
		HTML        template.HTML
		CanEdit     bool
	}
	Event *struct {
		ID      string
		StartAt string
		EndAt   string
	}
	Comments []commentView
}

// Show handles GET /blog/{slug}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	post, err := h.Posts.GetBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, blogstore.ErrNotFound) {
			uierrors.RenderNotFound(w, r)
			return
		}
		h.Log.Error("blog: load post failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	vm := detailVM{
		BaseVM: viewdata.NewBaseVM(r, h.DB, post.Title, "/blog"),
	}
	vm.Post.ID = post.ID.Hex()
	vm.Post.Title = post.Title
	vm.Post.Slug = post.Slug
	vm.Post.AuthorAlias = post.AuthorAlias
	if post.AuthorPronouns != nil {
		vm.Post.Pronouns = *post.AuthorPronouns
	}
	vm.Post.Tags = post.Tags
	vm.Post.Posted = post.CreatedAt.Format("January 2, 2006")
	vm.Post.HTML = post.Content.HTML()
	vm.Post.CanEdit = authz.OwnsOrCanModerate(r, post.AuthorID)

	if post.LinkedEventID != nil && post.EventStartAt != nil {
		ev := &struct {
			ID      string
			StartAt string
			EndAt   string
		}{
			ID:      post.LinkedEventID.Hex(),
			StartAt: post.EventStartAt.Format("Monday, January 2 at 3:04 PM"),
		}
		if post.EventEndAt != nil {
			ev.EndAt = post.EventEndAt.Format("3:04 PM")
		}
		vm.Event = ev
	}

	comments, err := h.Comments.ListFor(ctx, models.CommentOnPost, post.ID)
	if err != nil {
		h.Log.Error("blog: load comments failed", zap.Error(err))
	} else {
		vm.Comments = buildThread(r, comments)
	}

	templates.Render(w, r, "blog/detail", vm)
}

// buildThread groups replies under their parents, dropping orphans
// whose parent was deleted out from under them.
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
| Publish / edit                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

type editVM struct {
	viewdata.BaseVM
	PostID      string
	PostTitle   string
	Tags        []string
	AllTags     []string
	ContentJSON string
	LinkEvent   bool
	EventStart  string
	EventEnd    string
	EventImage  string
	Error       string
}

// ShowNew handles GET /blog/new. Mounted behind publish-role middleware.
func (h *Handler) ShowNew(w http.ResponseWriter, r *http.Request) {
	vm := editVM{
		BaseVM:      viewdata.NewBaseVM(r, h.DB, "New post", "/blog"),
		AllTags:     models.BlogTags,
		ContentJSON: `{"type":"doc","content":[{"type":"paragraph"}]}`,
	}
	templates.Render(w, r, "blog/edit", vm)
}

// ShowEdit handles GET /blog/{id}/edit.
func (h *Handler) ShowEdit(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.RenderNotFound(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	post, err := h.Posts.GetByID(ctx, id)
	if err != nil {
		uierrors.RenderNotFound(w, r)
		return
	}
	if !authz.CanModerate(r) {
		uierrors.RenderForbidden(w, r, "Only an admin or moderator can edit posts.", "/blog/"+post.Slug)
		return
	}

	raw, err := json.Marshal(post.Content)
	if err != nil {
		h.Log.Error("blog: marshal content failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}

	vm := editVM{
		BaseVM:      viewdata.NewBaseVM(r, h.DB, "Edit post", "/blog/"+post.Slug),
		PostID:      post.ID.Hex(),
		PostTitle:   post.Title,
		Tags:        post.Tags,
		AllTags:     models.BlogTags,
		ContentJSON: string(raw),
		LinkEvent:   post.LinkedEventID != nil,
	}
	if post.EventStartAt != nil {
		vm.EventStart = post.EventStartAt.Format("2006-01-02T15:04")
	}
	if post.EventEndAt != nil {
		vm.EventEnd = post.EventEndAt.Format("2006-01-02T15:04")
	}

	templates.Render(w, r, "blog/edit", vm)
}

// Save handles POST /blog/save for both create and update.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	user, userID, ok := authz.UserCtx(r)
	if !ok {
		http.Redirect(w, r, "/login?return=/blog", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	in := blogstore.SaveInput{
		Title:     r.FormValue("title"),
		Tags:      r.Form["tags"],
		LinkEvent: r.FormValue("link_event") == "on",
	}

	if idHex := r.FormValue("id"); idHex != "" {
		id, err := primitive.ObjectIDFromHex(idHex)
		if err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		in.ID = id
	}

	if err := json.Unmarshal([]byte(r.FormValue("content")), &in.Content); err != nil {
		h.rerenderEditor(w, r, in, "The post body didn't survive the trip. Please try again.")
		return
	}

	if in.LinkEvent {
		start, err := time.ParseInLocation("2006-01-02T15:04", r.FormValue("event_start"), time.Local)
		if err != nil {
			h.rerenderEditor(w, r, in, "A linked event needs a valid start time.")
			return
		}
		in.EventStartAt = start
		if endRaw := r.FormValue("event_end"); endRaw != "" {
			end, err := time.ParseInLocation("2006-01-02T15:04", endRaw, time.Local)
			if err != nil {
				h.rerenderEditor(w, r, in, "The event end time is invalid.")
				return
			}
			in.EventEndAt = &end
		}
		if img := strings.TrimSpace(r.FormValue("event_image")); img != "" && strings.HasPrefix(img, "https://") {
			in.EventImageURL = &img
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	// Editing is narrower than creating: only admins and moderators may
	// update a published post, its author included.
	if !in.ID.IsZero() {
		if !authz.CanModerate(r) {
			uierrors.RenderForbidden(w, r, "Only an admin or moderator can edit posts.", "/blog")
			return
		}
		old, err := h.Posts.GetByID(ctx, in.ID)
		if err != nil {
			uierrors.RenderNotFound(w, r)
			return
		}
		// The author snapshot belongs to the original author.
		author, err := h.Users.GetByID(ctx, old.AuthorID)
		if err != nil {
			h.Log.Error("blog: load author failed", zap.Error(err))
			uierrors.RenderServerError(w, r)
			return
		}
		in.Author = *author
	} else {
		author, err := h.Users.GetByID(ctx, userID)
		if err != nil {
			h.Log.Error("blog: load author failed", zap.Error(err), zap.String("user_id", user.ID))
			uierrors.RenderServerError(w, r)
			return
		}
		if author.Alias == nil || *author.Alias == "" {
			h.rerenderEditor(w, r, in, "Pick an alias on your profile before publishing.")
			return
		}
		in.Author = *author
	}

	post, err := h.Posts.Save(ctx, in)
	if err != nil {
		msg := "Couldn't save the post. Please try again."
		switch {
		case errors.Is(err, blogstore.ErrTitleInvalid):
			msg = "Titles need at least 3 characters including a letter or digit."
		case errors.Is(err, blogstore.ErrSlugTaken):
			msg = "A post with this title already exists. Pick a different title."
		case errors.Is(err, blogstore.ErrBadTag):
			msg = "One of the tags isn't recognized."
		case errors.Is(err, blogstore.ErrEventTimeRequired), errors.Is(err, blogstore.ErrEventTimeRange):
			msg = "Check the event times: a start is required and the end can't precede it."
		case errors.Is(err, richtext.ErrInvalid):
			msg = "The post body contains unsupported content."
		default:
			h.Log.Error("blog: save failed", zap.Error(err))
		}
		h.rerenderEditor(w, r, in, msg)
		return
	}

	h.Hub.Notify(livequery.TopicBlog)
	if in.LinkEvent || post.LinkedEventID != nil {
		h.Hub.Notify(livequery.TopicCalendar)
	}

	http.Redirect(w, r, "/blog/"+post.Slug, http.StatusSeeOther)
}

func (h *Handler) rerenderEditor(w http.ResponseWriter, r *http.Request, in blogstore.SaveInput, msg string) {
	raw, _ := json.Marshal(in.Content)
	vm := editVM{
		BaseVM:      viewdata.NewBaseVM(r, h.DB, "Edit post", "/blog"),
		PostTitle:   in.Title,
		Tags:        in.Tags,
		AllTags:     models.BlogTags,
		ContentJSON: string(raw),
		LinkEvent:   in.LinkEvent,
		EventImage:  r.FormValue("event_image"),
		Error:       msg,
	}
	if !in.ID.IsZero() {
		vm.PostID = in.ID.Hex()
	}
	if !in.EventStartAt.IsZero() {
		vm.EventStart = in.EventStartAt.Format("2006-01-02T15:04")
	}
	if in.EventEndAt != nil {
		vm.EventEnd = in.EventEndAt.Format("2006-01-02T15:04")
	}

	w.WriteHeader(http.StatusUnprocessableEntity)
	templates.Render(w, r, "blog/edit", vm)
}

// Delete handles POST /blog/{id}/delete.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.RenderNotFound(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	post, err := h.Posts.GetByID(ctx, id)
	if err != nil {
		uierrors.RenderNotFound(w, r)
		return
	}
	if !authz.OwnsOrCanModerate(r, post.AuthorID) {
		uierrors.RenderForbidden(w, r, "Only the author or a moderator can delete this post.", "/blog/"+post.Slug)
		return
	}

	if err := h.Posts.Delete(ctx, id); err != nil {
		h.Log.Error("blog: delete failed", zap.Error(err), zap.String("post_id", id.Hex()))
		uierrors.RenderServerError(w, r)
		return
	}

	// Comment cleanup rides outside the delete transaction.
	if n, err := h.Comments.DeleteForTarget(ctx, models.CommentOnPost, id); err != nil {
		h.Log.Warn("blog: comment cleanup failed", zap.Error(err), zap.String("post_id", id.Hex()))
	} else if n > 0 {
		h.Log.Info("blog: comments removed with post",
			zap.Int64("count", n),
			zap.String("post_id", id.Hex()))
	}

	h.Hub.Notify(livequery.TopicBlog)
	if post.LinkedEventID != nil {
		h.Hub.Notify(livequery.TopicCalendar)
	}

	http.Redirect(w, r, "/blog", http.StatusSeeOther)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Live refresh                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// Stream handles GET /blog/stream, an SSE feed that fires whenever a
// post or comment changes so open pages can reload their content.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Hub.Subscribe(livequery.TopicBlog)
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
