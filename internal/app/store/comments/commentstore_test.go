// internal/app/store/comments/commentstore_test.go
package commentstore_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	commentstore "github.com/guildhall-club/guildhall/internal/app/store/comments"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"github.com/guildhall-club/guildhall/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestAdd_TopLevel(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := commentstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := fixtures.CreateUser(ctx, "Commenter", "commenter@example.com")
	postID := primitive.NewObjectID()

	c, err := store.Add(ctx, commentstore.AddInput{
		TargetKind: models.CommentOnPost,
		TargetID:   postID,
		Body:       "  Great session! ",
		Author:     author,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if c.Body != "Great session!" {
		t.Errorf("body not trimmed: %q", c.Body)
	}
	if c.AuthorAlias != "Commenter" {
		t.Errorf("author snapshot: %q", c.AuthorAlias)
	}
	if c.ParentID != nil {
		t.Error("top-level comment must have no parent")
	}
}

func TestAdd_StripsMarkup(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := commentstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := fixtures.CreateUser(ctx, "Commenter", "commenter@example.com")

	c, err := store.Add(ctx, commentstore.AddInput{
		TargetKind: models.CommentOnPost,
		TargetID:   primitive.NewObjectID(),
		Body:       `hello <script>alert(1)</script><b>world</b>`,
		Author:     author,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if strings.Contains(c.Body, "<") {
		t.Errorf("markup survived: %q", c.Body)
	}
	if !strings.Contains(c.Body, "world") {
		t.Errorf("text content lost: %q", c.Body)
	}
}

func TestAdd_BodyValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := commentstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := fixtures.CreateUser(ctx, "Commenter", "commenter@example.com")
	postID := primitive.NewObjectID()

	for _, body := range []string{"", "   ", "<b></b>"} {
		_, err := store.Add(ctx, commentstore.AddInput{
			TargetKind: models.CommentOnPost, TargetID: postID, Body: body, Author: author,
		})
		if !errors.Is(err, commentstore.ErrBodyEmpty) {
			t.Errorf("Add(%q) = %v, want ErrBodyEmpty", body, err)
		}
	}

	long := strings.Repeat("x", commentstore.MaxBodyLen+1)
	if _, err := store.Add(ctx, commentstore.AddInput{
		TargetKind: models.CommentOnPost, TargetID: postID, Body: long, Author: author,
	}); !errors.Is(err, commentstore.ErrBodyTooLong) {
		t.Errorf("over-length body: got %v", err)
	}

	if _, err := store.Add(ctx, commentstore.AddInput{
		TargetKind: "wiki", TargetID: postID, Body: "hi there", Author: author,
	}); !errors.Is(err, commentstore.ErrBadTarget) {
		t.Errorf("unknown target kind: got %v", err)
	}
}

func TestAdd_ReplyRules(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := commentstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := fixtures.CreateUser(ctx, "Commenter", "commenter@example.com")
	postID := primitive.NewObjectID()
	top := fixtures.CreateComment(ctx, author, postID, "top level")

	// Valid reply.
	reply, err := store.Add(ctx, commentstore.AddInput{
		TargetKind: models.CommentOnPost, TargetID: postID,
		ParentID: &top.ID, Body: "a reply", Author: author,
	})
	if err != nil {
		t.Fatalf("valid reply: %v", err)
	}

	// Replying to a reply is refused; threads are one level deep.
	if _, err := store.Add(ctx, commentstore.AddInput{
		TargetKind: models.CommentOnPost, TargetID: postID,
		ParentID: &reply.ID, Body: "nested", Author: author,
	}); !errors.Is(err, commentstore.ErrBadParent) {
		t.Errorf("reply to reply: got %v", err)
	}

	// Parent on a different target.
	otherPost := primitive.NewObjectID()
	if _, err := store.Add(ctx, commentstore.AddInput{
		TargetKind: models.CommentOnPost, TargetID: otherPost,
		ParentID: &top.ID, Body: "wrong thread", Author: author,
	}); !errors.Is(err, commentstore.ErrBadParent) {
		t.Errorf("cross-target reply: got %v", err)
	}

	// Missing parent.
	ghost := primitive.NewObjectID()
	if _, err := store.Add(ctx, commentstore.AddInput{
		TargetKind: models.CommentOnPost, TargetID: postID,
		ParentID: &ghost, Body: "orphan", Author: author,
	}); !errors.Is(err, commentstore.ErrBadParent) {
		t.Errorf("missing parent: got %v", err)
	}
}

func TestEdit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := commentstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := fixtures.CreateUser(ctx, "Commenter", "commenter@example.com")
	c := fixtures.CreateComment(ctx, author, primitive.NewObjectID(), "original")

	if err := store.Edit(ctx, c.ID, "revised text"); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	got, err := store.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Body != "revised text" {
		t.Errorf("body: %q", got.Body)
	}
	if got.EditedAt == nil {
		t.Error("edit time not stamped")
	}

	if err := store.Edit(ctx, primitive.NewObjectID(), "nope"); !errors.Is(err, commentstore.ErrNotFound) {
		t.Errorf("edit missing: got %v", err)
	}
}

func TestListFor_OldestFirstScopedToTarget(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := commentstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := fixtures.CreateUser(ctx, "Commenter", "commenter@example.com")
	postID := primitive.NewObjectID()
	otherID := primitive.NewObjectID()

	for _, body := range []string{"first", "second"} {
		fixtures.CreateComment(ctx, author, postID, body)
		time.Sleep(5 * time.Millisecond)
	}
	fixtures.CreateComment(ctx, author, otherID, "elsewhere")

	comments, err := store.ListFor(ctx, models.CommentOnPost, postID)
	if err != nil {
		t.Fatalf("ListFor: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0].Body != "first" || comments[1].Body != "second" {
		t.Errorf("order: %q, %q", comments[0].Body, comments[1].Body)
	}
}

func TestDeleteCascade_TopLevelTakesReplies(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := commentstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := fixtures.CreateUser(ctx, "Commenter", "commenter@example.com")
	postID := primitive.NewObjectID()

	top := fixtures.CreateComment(ctx, author, postID, "doomed thread")
	fixtures.CreateReply(ctx, author, top, "reply one")
	fixtures.CreateReply(ctx, author, top, "reply two")
	survivor := fixtures.CreateComment(ctx, author, postID, "unrelated")

	deleted, err := store.DeleteCascade(ctx, top.ID)
	if err != nil {
		t.Fatalf("DeleteCascade: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted count: got %d, want 3", deleted)
	}

	remaining, err := store.ListFor(ctx, models.CommentOnPost, postID)
	if err != nil {
		t.Fatalf("ListFor: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != survivor.ID {
		t.Errorf("wrong survivors: %d", len(remaining))
	}
}

func TestDeleteCascade_ReplyOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := commentstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := fixtures.CreateUser(ctx, "Commenter", "commenter@example.com")
	postID := primitive.NewObjectID()

	top := fixtures.CreateComment(ctx, author, postID, "staying")
	reply := fixtures.CreateReply(ctx, author, top, "going")
	sibling := fixtures.CreateReply(ctx, author, top, "staying too")

	deleted, err := store.DeleteCascade(ctx, reply.ID)
	if err != nil {
		t.Fatalf("DeleteCascade: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted count: got %d, want 1", deleted)
	}
	if _, err := store.GetByID(ctx, sibling.ID); err != nil {
		t.Errorf("sibling reply deleted: %v", err)
	}
	if _, err := store.GetByID(ctx, top.ID); err != nil {
		t.Errorf("parent deleted: %v", err)
	}
}

func TestDeleteCascade_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := commentstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.DeleteCascade(ctx, primitive.NewObjectID()); !errors.Is(err, commentstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteForTarget(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := commentstore.New(db)
	fixtures := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := fixtures.CreateUser(ctx, "Commenter", "commenter@example.com")
	postID := primitive.NewObjectID()
	otherID := primitive.NewObjectID()

	top := fixtures.CreateComment(ctx, author, postID, "one")
	fixtures.CreateReply(ctx, author, top, "two")
	fixtures.CreateComment(ctx, author, otherID, "keep me")

	deleted, err := store.DeleteForTarget(ctx, models.CommentOnPost, postID)
	if err != nil {
		t.Fatalf("DeleteForTarget: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted count: got %d, want 2", deleted)
	}

	remaining, err := store.ListFor(ctx, models.CommentOnPost, otherID)
	if err != nil {
		t.Fatalf("ListFor: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("other target touched: %d left", len(remaining))
	}
}
