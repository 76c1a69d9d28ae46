// internal/app/store/comments/commentstore.go

// Package commentstore owns comment threads on posts and events.
// Threads are one level deep: a reply's parent must itself be a
// top-level comment.
package commentstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/guildhall-club/guildhall/internal/app/system/htmlsanitize"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const MaxBodyLen = 4000

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("comments")}
}

var (
	// ErrNotFound is returned when no comment matches.
	ErrNotFound = errors.New("comment not found")
	// ErrBodyEmpty rejects blank comments.
	ErrBodyEmpty = errors.New("comment body is empty")
	// ErrBodyTooLong rejects bodies over MaxBodyLen characters.
	ErrBodyTooLong = errors.New("comment body is too long")
	// ErrBadParent means the parent is missing, on a different target,
	// or itself a reply (threads are one level deep).
	ErrBadParent = errors.New("cannot reply to that comment")
	// ErrBadTarget rejects unknown target kinds.
	ErrBadTarget = errors.New("unknown comment target")
)

// AddInput carries one new comment.
type AddInput struct {
	TargetKind string
	TargetID   primitive.ObjectID
	ParentID   *primitive.ObjectID
	Body       string
	Author     models.User
}

// Add validates and inserts a comment. The body is stripped to plain
// text; markup never survives into storage.
func (s *Store) Add(ctx context.Context, in AddInput) (*models.Comment, error) {
	if in.TargetKind != models.CommentOnPost && in.TargetKind != models.CommentOnEvent {
		return nil, ErrBadTarget
	}
	body, err := cleanBody(in.Body)
	if err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		var parent models.Comment
		err := s.c.FindOne(ctx, bson.M{"_id": *in.ParentID}).Decode(&parent)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, ErrBadParent
			}
			return nil, err
		}
		// Same thread, and only one level of nesting.
		if parent.TargetKind != in.TargetKind || parent.TargetID != in.TargetID || parent.ParentID != nil {
			return nil, ErrBadParent
		}
	}

	c := models.Comment{
		ID:         primitive.NewObjectID(),
		TargetKind: in.TargetKind,
		TargetID:   in.TargetID,
		ParentID:   in.ParentID,
		AuthorID:   in.Author.ID,
		Body:       body,
		CreatedAt:  time.Now(),
	}
	if in.Author.Alias != nil {
		c.AuthorAlias = *in.Author.Alias
	} else {
		c.AuthorAlias = in.Author.DisplayName
	}
	c.AuthorPhoto = in.Author.PhotoURL

	if _, err := s.c.InsertOne(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Edit replaces the body and stamps the edit time.
func (s *Store) Edit(ctx context.Context, id primitive.ObjectID, body string) error {
	cleaned, err := cleanBody(body)
	if err != nil {
		return err
	}
	now := time.Now()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"body": cleaned, "edited_at": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID loads one comment, for permission checks before edit/delete.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Comment, error) {
	var c models.Comment
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListFor returns the full thread for one post or event, oldest first.
// Callers group replies under their parents for display.
func (s *Store) ListFor(ctx context.Context, kind string, targetID primitive.ObjectID) ([]models.Comment, error) {
	cur, err := s.c.Find(ctx,
		bson.M{"target_kind": kind, "target_id": targetID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var comments []models.Comment
	if err := cur.All(ctx, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// DeleteCascade removes a comment and, when it is top-level, its
// replies. Deliberately NOT a transaction: the reply set is read first
// and then removed in one bulk write, so a reply posted in between
// survives as an orphan. Orphans are filtered at render time; trading
// that rare leftover for lock-free deletes is the intended behavior.
func (s *Store) DeleteCascade(ctx context.Context, id primitive.ObjectID) (int64, error) {
	var target models.Comment
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&target); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	writes := []mongo.WriteModel{
		mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": id}),
	}
	if target.ParentID == nil {
		cur, err := s.c.Find(ctx, bson.M{"parent_id": id}, options.Find().SetProjection(bson.M{"_id": 1}))
		if err != nil {
			return 0, err
		}
		var replies []struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.All(ctx, &replies); err != nil {
			return 0, err
		}
		for _, r := range replies {
			writes = append(writes, mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": r.ID}))
		}
	}

	res, err := s.c.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// DeleteForTarget removes every comment on a post or event. Called
// after the target itself is deleted.
func (s *Store) DeleteForTarget(ctx context.Context, kind string, targetID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"target_kind": kind, "target_id": targetID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func cleanBody(body string) (string, error) {
	cleaned := strings.TrimSpace(htmlsanitize.StripTags(body))
	if cleaned == "" {
		return "", ErrBodyEmpty
	}
	if len(cleaned) > MaxBodyLen {
		return "", ErrBodyTooLong
	}
	return cleaned, nil
}
