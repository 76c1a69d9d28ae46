// internal/testutil/fixtures.go
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/guildhall-club/guildhall/internal/app/system/normalize"
	"github.com/guildhall-club/guildhall/internal/app/system/richtext"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser creates a test user with an alias and matching alias_index
// entry, the state a fully onboarded member is in.
func (f *Fixtures) CreateUser(ctx context.Context, alias, email string, roles ...string) models.User {
	f.t.Helper()

	if len(roles) == 0 {
		roles = []string{models.RolePlayer}
	}
	now := time.Now().UTC()
	key := normalize.AliasKey(alias)
	user := models.User{
		ID:           primitive.NewObjectID(),
		AuthProvider: "google",
		Subject:      "test-subject-" + email,
		Email:        normalize.Email(email),
		DisplayName:  alias,
		Alias:        &alias,
		AliasCI:      &key,
		Roles:        roles,
		Theme:        models.DefaultTheme,
		AccentColor:  models.DefaultAccentColor,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSeenAt:   now,
	}

	if _, err := f.db.Collection("users").InsertOne(ctx, user); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	entry := models.AliasEntry{Key: key, UserID: user.ID, CreatedAt: now}
	if _, err := f.db.Collection("alias_index").InsertOne(ctx, entry); err != nil {
		f.t.Fatalf("failed to create alias index entry: %v", err)
	}

	return user
}

// CreateBareUser creates a user who signed in but never claimed an
// alias.
func (f *Fixtures) CreateBareUser(ctx context.Context, email string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user := models.User{
		ID:           primitive.NewObjectID(),
		AuthProvider: "google",
		Subject:      "test-subject-" + email,
		Email:        normalize.Email(email),
		DisplayName:  "New Member",
		Roles:        []string{models.RolePlayer},
		Theme:        models.DefaultTheme,
		AccentColor:  models.DefaultAccentColor,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSeenAt:   now,
	}

	if _, err := f.db.Collection("users").InsertOne(ctx, user); err != nil {
		f.t.Fatalf("failed to create bare test user: %v", err)
	}
	return user
}

// Doc builds a one-paragraph rich text document.
func Doc(text string) richtext.Doc {
	return richtext.Doc{
		Type: "doc",
		Content: []richtext.Node{
			{Type: "paragraph", Content: []richtext.Node{
				{Type: "text", Text: text},
			}},
		},
	}
}

// CreatePost creates a published post with its slug reservation.
func (f *Fixtures) CreatePost(ctx context.Context, author models.User, title string, tags ...string) models.BlogPost {
	f.t.Helper()

	now := time.Now().UTC()
	slug := normalize.Slug(title)
	post := models.BlogPost{
		ID:          primitive.NewObjectID(),
		Title:       title,
		Slug:        slug,
		Tags:        tags,
		Content:     Doc("fixture body for " + title),
		ContentText: "fixture body for " + title,
		AuthorID:    author.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if author.Alias != nil {
		post.AuthorAlias = *author.Alias
	} else {
		post.AuthorAlias = author.DisplayName
	}

	if _, err := f.db.Collection("blog_posts").InsertOne(ctx, post); err != nil {
		f.t.Fatalf("failed to create test post: %v", err)
	}
	entry := models.SlugEntry{Slug: slug, PostID: post.ID, CreatedAt: now}
	if _, err := f.db.Collection("blog_slug_index").InsertOne(ctx, entry); err != nil {
		f.t.Fatalf("failed to create slug index entry: %v", err)
	}

	return post
}

// CreateEvent creates a standalone calendar event.
func (f *Fixtures) CreateEvent(ctx context.Context, title string, startAt time.Time) models.Event {
	f.t.Helper()

	now := time.Now().UTC()
	ev := models.Event{
		ID:        primitive.NewObjectID(),
		Title:     title,
		StartAt:   startAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := f.db.Collection("events").InsertOne(ctx, ev); err != nil {
		f.t.Fatalf("failed to create test event: %v", err)
	}
	return ev
}

// CreateComment creates a top-level comment on a post.
func (f *Fixtures) CreateComment(ctx context.Context, author models.User, postID primitive.ObjectID, body string) models.Comment {
	f.t.Helper()

	c := models.Comment{
		ID:         primitive.NewObjectID(),
		TargetKind: models.CommentOnPost,
		TargetID:   postID,
		AuthorID:   author.ID,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
	if author.Alias != nil {
		c.AuthorAlias = *author.Alias
	} else {
		c.AuthorAlias = author.DisplayName
	}

	if _, err := f.db.Collection("comments").InsertOne(ctx, c); err != nil {
		f.t.Fatalf("failed to create test comment: %v", err)
	}
	return c
}

// CreateReply creates a reply under a top-level comment.
func (f *Fixtures) CreateReply(ctx context.Context, author models.User, parent models.Comment, body string) models.Comment {
	f.t.Helper()

	c := models.Comment{
		ID:         primitive.NewObjectID(),
		TargetKind: parent.TargetKind,
		TargetID:   parent.TargetID,
		ParentID:   &parent.ID,
		AuthorID:   author.ID,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
	if author.Alias != nil {
		c.AuthorAlias = *author.Alias
	} else {
		c.AuthorAlias = author.DisplayName
	}

	if _, err := f.db.Collection("comments").InsertOne(ctx, c); err != nil {
		f.t.Fatalf("failed to create test reply: %v", err)
	}
	return c
}
