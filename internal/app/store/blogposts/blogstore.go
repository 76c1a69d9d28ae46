// internal/app/store/blogposts/blogstore.go

// Package blogstore owns blog posts, the slug reservation collection,
// and the post side of post↔event linking. Every write that can touch
// the slug index or the linked event runs in a transaction so the
// invariants (one slug entry per live post, mirror fields in sync)
// hold at every commit point.
package blogstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/guildhall-club/guildhall/internal/app/system/normalize"
	"github.com/guildhall-club/guildhall/internal/app/system/richtext"
	"github.com/guildhall-club/guildhall/internal/app/system/txn"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	db     *mongo.Database
	posts  *mongo.Collection
	slugs  *mongo.Collection
	events *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		db:     db,
		posts:  db.Collection("blog_posts"),
		slugs:  db.Collection("blog_slug_index"),
		events: db.Collection("events"),
	}
}

var (
	// ErrNotFound is returned when no post matches.
	ErrNotFound = errors.New("post not found")
	// ErrSlugTaken means another live post owns the slug derived from
	// this title. The caller should ask for a different title.
	ErrSlugTaken = errors.New("a post with this title already exists")
	// ErrTitleInvalid means the title is too short or yields an empty slug.
	ErrTitleInvalid = errors.New("title must be at least 3 characters and contain letters or digits")
	// ErrBadTag rejects tags outside the fixed vocabulary.
	ErrBadTag = errors.New("unknown tag")
	// ErrEventTimeRequired means event linking was requested without a start time.
	ErrEventTimeRequired = errors.New("linked event needs a start time")
	// ErrEventTimeRange means the end precedes the start.
	ErrEventTimeRange = errors.New("event end must not precede its start")
)

// SaveInput carries one blog save. A zero ID creates; otherwise the
// identified post is updated. LinkEvent drives the event state machine:
//
//	LinkEvent, no linked event yet  -> create a fresh event
//	LinkEvent, event already linked -> update that event in place
//	!LinkEvent, event linked        -> clear the post's link fields;
//	                                   the event itself stays on the calendar
//
// Turning the link off and on again therefore produces a NEW event; the
// old one keeps living unlinked.
type SaveInput struct {
	ID    primitive.ObjectID
	Title string
	Tags  []string

	Content richtext.Doc

	LinkEvent     bool
	EventStartAt  time.Time
	EventEndAt    *time.Time
	EventImageURL *string

	Author models.User
}

// Save validates, then creates or updates the post transactionally.
func (s *Store) Save(ctx context.Context, in SaveInput) (*models.BlogPost, error) {
	slug, err := validate(in)
	if err != nil {
		return nil, err
	}

	var out *models.BlogPost
	err = txn.WithTransaction(ctx, s.db.Client(), func(ctx context.Context) error {
		var terr error
		if in.ID.IsZero() {
			out, terr = s.create(ctx, in, slug)
		} else {
			out, terr = s.update(ctx, in, slug)
		}
		return terr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validate(in SaveInput) (slug string, err error) {
	if len(strings.TrimSpace(in.Title)) < normalize.MinTitleLen {
		return "", ErrTitleInvalid
	}
	slug = normalize.Slug(in.Title)
	if slug == "" {
		return "", ErrTitleInvalid
	}
	for _, t := range in.Tags {
		if !models.IsBlogTag(t) {
			return "", ErrBadTag
		}
	}
	if err := in.Content.Validate(); err != nil {
		return "", err
	}
	if in.LinkEvent {
		if in.EventStartAt.IsZero() {
			return "", ErrEventTimeRequired
		}
		if in.EventEndAt != nil && in.EventEndAt.Before(in.EventStartAt) {
			return "", ErrEventTimeRange
		}
	}
	return slug, nil
}

func (s *Store) create(ctx context.Context, in SaveInput, slug string) (*models.BlogPost, error) {
	now := time.Now()
	postID := primitive.NewObjectID()

	if err := s.claimSlug(ctx, slug, postID); err != nil {
		return nil, err
	}

	post := models.BlogPost{
		ID:          postID,
		Title:       strings.TrimSpace(in.Title),
		Slug:        slug,
		Tags:        in.Tags,
		Content:     in.Content,
		ContentText: in.Content.PlainText(),
		AuthorID:    in.Author.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applyAuthorSnapshot(&post, in.Author)

	if in.LinkEvent {
		ev, err := s.createLinkedEvent(ctx, in, postID, slug, now)
		if err != nil {
			return nil, err
		}
		post.LinkedEventID = &ev.ID
		post.EventStartAt = &ev.StartAt
		post.EventEndAt = ev.EndAt
	}

	if _, err := s.posts.InsertOne(ctx, post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Store) update(ctx context.Context, in SaveInput, slug string) (*models.BlogPost, error) {
	var old models.BlogPost
	if err := s.posts.FindOne(ctx, bson.M{"_id": in.ID}).Decode(&old); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := time.Now()

	if slug != old.Slug {
		if err := s.claimSlug(ctx, slug, in.ID); err != nil {
			return nil, err
		}
		// Release the old reservation; the post_id filter keeps us from
		// deleting a reservation that was never ours.
		if _, err := s.slugs.DeleteOne(ctx, bson.M{"_id": old.Slug, "post_id": in.ID}); err != nil {
			return nil, err
		}
	}

	post := old
	post.Title = strings.TrimSpace(in.Title)
	post.Slug = slug
	post.Tags = in.Tags
	post.Content = in.Content
	post.ContentText = in.Content.PlainText()
	post.UpdatedAt = now

	switch {
	case in.LinkEvent && old.LinkedEventID == nil:
		ev, err := s.createLinkedEvent(ctx, in, in.ID, slug, now)
		if err != nil {
			return nil, err
		}
		post.LinkedEventID = &ev.ID
		post.EventStartAt = &ev.StartAt
		post.EventEndAt = ev.EndAt

	case in.LinkEvent && old.LinkedEventID != nil:
		set := bson.M{
			"title":            post.Title,
			"start_at":         in.EventStartAt,
			"linked_post_slug": slug,
			"updated_at":       now,
		}
		unset := bson.M{}
		if in.EventEndAt != nil {
			set["end_at"] = *in.EventEndAt
		} else {
			unset["end_at"] = ""
		}
		if in.EventImageURL != nil {
			set["image_url"] = *in.EventImageURL
		}
		update := bson.M{"$set": set}
		if len(unset) > 0 {
			update["$unset"] = unset
		}
		if _, err := s.events.UpdateOne(ctx, bson.M{"_id": *old.LinkedEventID}, update); err != nil {
			return nil, err
		}
		post.EventStartAt = &in.EventStartAt
		post.EventEndAt = in.EventEndAt

	case !in.LinkEvent && old.LinkedEventID != nil:
		// Unlink: the event stays on the calendar; only the post's side
		// is cleared.
		post.LinkedEventID = nil
		post.EventStartAt = nil
		post.EventEndAt = nil
	}

	if _, err := s.posts.ReplaceOne(ctx, bson.M{"_id": in.ID}, post); err != nil {
		return nil, err
	}
	return &post, nil
}

// claimSlug reserves slug for postID. A reservation already held by
// this post (same title re-saved) is fine; anything else is taken.
func (s *Store) claimSlug(ctx context.Context, slug string, postID primitive.ObjectID) error {
	var entry models.SlugEntry
	err := s.slugs.FindOne(ctx, bson.M{"_id": slug}).Decode(&entry)
	switch {
	case err == nil:
		if entry.PostID != postID {
			return ErrSlugTaken
		}
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		_, err = s.slugs.InsertOne(ctx, models.SlugEntry{
			Slug:      slug,
			PostID:    postID,
			CreatedAt: time.Now(),
		})
		if wafflemongo.IsDup(err) {
			return ErrSlugTaken
		}
		return err
	default:
		return err
	}
}

func (s *Store) createLinkedEvent(ctx context.Context, in SaveInput, postID primitive.ObjectID, slug string, now time.Time) (*models.Event, error) {
	ev := models.Event{
		ID:             primitive.NewObjectID(),
		Title:          strings.TrimSpace(in.Title),
		StartAt:        in.EventStartAt,
		EndAt:          in.EventEndAt,
		ImageURL:       in.EventImageURL,
		LinkedPostID:   &postID,
		LinkedPostSlug: &slug,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.events.InsertOne(ctx, ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Delete removes the post and its slug reservation, and clears the
// back-reference on a linked event so the calendar never points at a
// missing post. The event itself survives. Comments are cleaned up
// separately by the comment store; that cleanup is deliberately outside
// this transaction.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	return txn.WithTransaction(ctx, s.db.Client(), func(ctx context.Context) error {
		var post models.BlogPost
		if err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return ErrNotFound
			}
			return err
		}

		if _, err := s.posts.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			return err
		}
		if _, err := s.slugs.DeleteOne(ctx, bson.M{"_id": post.Slug, "post_id": id}); err != nil {
			return err
		}
		if post.LinkedEventID != nil {
			_, err := s.events.UpdateOne(ctx,
				bson.M{"_id": *post.LinkedEventID, "linked_post_id": id},
				bson.M{"$unset": bson.M{"linked_post_id": "", "linked_post_slug": ""}},
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetBySlug loads a post for the detail page.
func (s *Store) GetBySlug(ctx context.Context, slug string) (*models.BlogPost, error) {
	var post models.BlogPost
	if err := s.posts.FindOne(ctx, bson.M{"slug": slug}).Decode(&post); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}

// GetByID loads a post for editing.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.BlogPost, error) {
	var post models.BlogPost
	if err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}

// ListOptions filters the feed.
type ListOptions struct {
	Tag   string
	Limit int64
}

// List returns posts newest-first.
func (s *Store) List(ctx context.Context, opt ListOptions) ([]models.BlogPost, error) {
	filter := bson.M{}
	if opt.Tag != "" {
		filter["tags"] = opt.Tag
	}

	findOpts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	if opt.Limit > 0 {
		findOpts.SetLimit(opt.Limit)
	}

	cur, err := s.posts.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var posts []models.BlogPost
	if err := cur.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func applyAuthorSnapshot(post *models.BlogPost, author models.User) {
	if author.Alias != nil {
		post.AuthorAlias = *author.Alias
	} else {
		post.AuthorAlias = author.DisplayName
	}
	post.AuthorPronouns = author.Pronouns
	post.AuthorPhoto = author.PhotoURL
}
