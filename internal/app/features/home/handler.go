// internal/app/features/home/handler.go
package home

import (
	"context"
	"net/http"
	"time"

	blogstore "github.com/guildhall-club/guildhall/internal/app/store/blogposts"
	eventstore "github.com/guildhall-club/guildhall/internal/app/store/events"
	"github.com/guildhall-club/guildhall/internal/app/system/timeouts"
	"github.com/guildhall-club/guildhall/internal/app/system/viewdata"
	"github.com/dalemusser/waffle/pantry/templates"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler holds dependencies needed to serve the landing page.
type Handler struct {
	DB     *mongo.Database
	Posts  *blogstore.Store
	Events *eventstore.Store
	Log    *zap.Logger
}

func NewHandler(db *mongo.Database, logger *zap.Logger) *Handler {
	return &Handler{
		DB:     db,
		Posts:  blogstore.New(db),
		Events: eventstore.New(db),
		Log:    logger,
	}
}

type postCard struct {
	Title       string
	Slug        string
	AuthorAlias string
	Tags        []string
	Posted      string
}

type eventCard struct {
	ID    string
	Title string
	When  string
}

type homeVM struct {
	viewdata.BaseVM
	RecentPosts    []postCard
	UpcomingEvents []eventCard
}

// ServeRoot handles GET /.
func (h *Handler) ServeRoot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	vm := homeVM{
		BaseVM: viewdata.NewBaseVM(r, h.DB, "Welcome", "/"),
	}

	posts, err := h.Posts.List(ctx, blogstore.ListOptions{Limit: 5})
	if err != nil {
		h.Log.Error("home: list posts failed", zap.Error(err))
	}
	for _, p := range posts {
		vm.RecentPosts = append(vm.RecentPosts, postCard{
			Title:       p.Title,
			Slug:        p.Slug,
			AuthorAlias: p.AuthorAlias,
			Tags:        p.Tags,
			Posted:      p.CreatedAt.Format("Jan 2, 2006"),
		})
	}

	now := time.Now()
	events, err := h.Events.ListBetween(ctx, now, now.AddDate(0, 1, 0))
	if err != nil {
		h.Log.Error("home: list events failed", zap.Error(err))
	}
	for i, ev := range events {
		if i == 5 {
			break
		}
		vm.UpcomingEvents = append(vm.UpcomingEvents, eventCard{
			ID:    ev.ID.Hex(),
			Title: ev.Title,
			When:  ev.StartAt.Format("Mon Jan 2, 3:04 PM"),
		})
	}

	templates.Render(w, r, "home", vm)
}
