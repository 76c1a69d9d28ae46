// internal/app/features/comments/handler.go

// Package comments exposes the write endpoints for comment threads.
// The threads themselves render inside the blog and calendar pages;
// these handlers mutate and bounce back to the page they came from.
package comments

import (
	"context"
	"errors"
	"net/http"

	uierrors "github.com/guildhall-club/guildhall/internal/app/features/errors"
	commentstore "github.com/guildhall-club/guildhall/internal/app/store/comments"
	userstore "github.com/guildhall-club/guildhall/internal/app/store/users"
	"github.com/guildhall-club/guildhall/internal/app/system/authz"
	"github.com/guildhall-club/guildhall/internal/app/system/livequery"
	"github.com/guildhall-club/guildhall/internal/app/system/timeouts"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	DB    *mongo.Database
	Store *commentstore.Store
	Users *userstore.Store
	Hub   *livequery.Hub
	Log   *zap.Logger
}

func NewHandler(db *mongo.Database, hub *livequery.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		DB:    db,
		Store: commentstore.New(db),
		Users: userstore.New(db),
		Hub:   hub,
		Log:   logger,
	}
}

// Add handles POST /comments.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := authz.UserCtx(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	back := urlutil.SafeReturn(r.FormValue("return"), "", "/")

	targetID, err := primitive.ObjectIDFromHex(r.FormValue("target_id"))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	in := commentstore.AddInput{
		TargetKind: r.FormValue("target_kind"),
		TargetID:   targetID,
		Body:       r.FormValue("body"),
	}
	if parentHex := r.FormValue("parent_id"); parentHex != "" {
		parentID, err := primitive.ObjectIDFromHex(parentHex)
		if err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		in.ParentID = &parentID
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	author, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		h.Log.Error("comments: load author failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}
	in.Author = *author

	if _, err := h.Store.Add(ctx, in); err != nil {
		switch {
		case errors.Is(err, commentstore.ErrBodyEmpty),
			errors.Is(err, commentstore.ErrBodyTooLong),
			errors.Is(err, commentstore.ErrBadParent),
			errors.Is(err, commentstore.ErrBadTarget):
			// Validation failures bounce straight back; the form state
			// is a single textarea, not worth a re-render dance.
			http.Redirect(w, r, back, http.StatusSeeOther)
		default:
			h.Log.Error("comments: add failed", zap.Error(err))
			uierrors.RenderServerError(w, r)
		}
		return
	}

	h.notifyTarget(in.TargetKind)
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// Edit handles POST /comments/{id}.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	back := urlutil.SafeReturn(r.FormValue("return"), "", "/")

	c, ok := h.loadManaged(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if err := h.Store.Edit(ctx, c.ID, r.FormValue("body")); err != nil {
		switch {
		case errors.Is(err, commentstore.ErrBodyEmpty), errors.Is(err, commentstore.ErrBodyTooLong):
			// Keep the original body.
		case errors.Is(err, commentstore.ErrNotFound):
			uierrors.RenderNotFound(w, r)
			return
		default:
			h.Log.Error("comments: edit failed", zap.Error(err))
			uierrors.RenderServerError(w, r)
			return
		}
	}

	h.notifyTarget(c.TargetKind)
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// Delete handles POST /comments/{id}/delete. Deleting a top-level
// comment takes its replies with it.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	back := urlutil.SafeReturn(r.FormValue("return"), "", "/")

	c, ok := h.loadManaged(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	n, err := h.Store.DeleteCascade(ctx, c.ID)
	if err != nil && !errors.Is(err, commentstore.ErrNotFound) {
		h.Log.Error("comments: delete failed", zap.Error(err))
		uierrors.RenderServerError(w, r)
		return
	}
	if n > 1 {
		h.Log.Info("comment thread removed",
			zap.Int64("count", n),
			zap.String("comment_id", c.ID.Hex()))
	}

	h.notifyTarget(c.TargetKind)
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// loadManaged fetches the comment and enforces owner-or-moderator.
func (h *Handler) loadManaged(w http.ResponseWriter, r *http.Request) (*models.Comment, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		uierrors.RenderNotFound(w, r)
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	c, err := h.Store.GetByID(ctx, id)
	if err != nil {
		uierrors.RenderNotFound(w, r)
		return nil, false
	}
	if !authz.OwnsOrCanModerate(r, c.AuthorID) {
		uierrors.RenderForbidden(w, r, "Only the author or a moderator can manage this comment.", "")
		return nil, false
	}
	return c, true
}

func (h *Handler) notifyTarget(kind string) {
	switch kind {
	case models.CommentOnPost:
		h.Hub.Notify(livequery.TopicBlog)
	case models.CommentOnEvent:
		h.Hub.Notify(livequery.TopicCalendar)
	}
}
