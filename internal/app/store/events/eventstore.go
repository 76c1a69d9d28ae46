// internal/app/store/events/eventstore.go

// Package eventstore owns calendar events, RSVPs, and the event side of
// post↔event linking. Moves and edits that touch a linked post run in a
// transaction so the post's mirror fields never diverge from the event.
package eventstore

import (
	"context"
	"errors"
	"strings"
	"time"

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
	events *mongo.Collection
	posts  *mongo.Collection
	rsvps  *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		db:     db,
		events: db.Collection("events"),
		posts:  db.Collection("blog_posts"),
		rsvps:  db.Collection("rsvps"),
	}
}

var (
	// ErrNotFound is returned when no event matches.
	ErrNotFound = errors.New("event not found")
	// ErrTitleRequired rejects events without a title.
	ErrTitleRequired = errors.New("event title is required")
	// ErrTimeRange means the end precedes the start.
	ErrTimeRange = errors.New("event end must not precede its start")
)

// CreateInput describes a standalone calendar event. Post-linked events
// are created through the blog store's save path instead.
type CreateInput struct {
	Title    string
	StartAt  time.Time
	EndAt    *time.Time
	ImageURL *string
}

// Create inserts a standalone event.
func (s *Store) Create(ctx context.Context, in CreateInput) (*models.Event, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrTitleRequired
	}
	if in.EndAt != nil && in.EndAt.Before(in.StartAt) {
		return nil, ErrTimeRange
	}

	now := time.Now()
	ev := models.Event{
		ID:        primitive.NewObjectID(),
		Title:     strings.TrimSpace(in.Title),
		StartAt:   in.StartAt,
		EndAt:     in.EndAt,
		ImageURL:  in.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.events.InsertOne(ctx, ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Update edits title, times, and image. When the event is linked to a
// post, the post's mirror fields follow inside the same transaction.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, in CreateInput) (*models.Event, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrTitleRequired
	}
	if in.EndAt != nil && in.EndAt.Before(in.StartAt) {
		return nil, ErrTimeRange
	}

	var out *models.Event
	err := txn.WithTransaction(ctx, s.db.Client(), func(ctx context.Context) error {
		ev, err := s.getForUpdate(ctx, id)
		if err != nil {
			return err
		}

		ev.Title = strings.TrimSpace(in.Title)
		ev.StartAt = in.StartAt
		ev.EndAt = in.EndAt
		ev.ImageURL = in.ImageURL
		ev.UpdatedAt = time.Now()

		if _, err := s.events.ReplaceOne(ctx, bson.M{"_id": id}, ev); err != nil {
			return err
		}
		if err := s.syncPostMirror(ctx, ev); err != nil {
			return err
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Move shifts an event to a new calendar day, preserving the
// time-of-day and, when an end exists, the duration. Used by
// drag-and-drop on the month grid. Post mirrors follow transactionally.
func (s *Store) Move(ctx context.Context, id primitive.ObjectID, day time.Time) (*models.Event, error) {
	var out *models.Event
	err := txn.WithTransaction(ctx, s.db.Client(), func(ctx context.Context) error {
		ev, err := s.getForUpdate(ctx, id)
		if err != nil {
			return err
		}

		old := ev.StartAt
		newStart := time.Date(
			day.Year(), day.Month(), day.Day(),
			old.Hour(), old.Minute(), old.Second(), old.Nanosecond(),
			old.Location(),
		)
		if ev.EndAt != nil {
			dur := ev.EndAt.Sub(old)
			end := newStart.Add(dur)
			ev.EndAt = &end
		}
		ev.StartAt = newStart
		ev.UpdatedAt = time.Now()

		if _, err := s.events.ReplaceOne(ctx, bson.M{"_id": id}, ev); err != nil {
			return err
		}
		if err := s.syncPostMirror(ctx, ev); err != nil {
			return err
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the event and its RSVPs. A linked post loses its link
// fields in the same transaction, keeping the pair consistent; the post
// itself stays published.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	err := txn.WithTransaction(ctx, s.db.Client(), func(ctx context.Context) error {
		res, err := s.events.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return ErrNotFound
		}
		_, err = s.posts.UpdateOne(ctx,
			bson.M{"linked_event_id": id},
			bson.M{"$unset": bson.M{
				"linked_event_id": "",
				"event_start_at":  "",
				"event_end_at":    "",
			}},
		)
		return err
	})
	if err != nil {
		return err
	}

	// RSVP cleanup rides outside the transaction; orphaned RSVPs are
	// invisible (attendee lists key off the event) and harmless.
	_, err = s.rsvps.DeleteMany(ctx, bson.M{"event_id": id})
	return err
}

// GetByID loads one event.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	var ev models.Event
	if err := s.events.FindOne(ctx, bson.M{"_id": id}).Decode(&ev); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// ListBetween returns events with start_at in [from, to), soonest
// first. The month grid asks for the visible window plus the leading
// and trailing partial weeks.
func (s *Store) ListBetween(ctx context.Context, from, to time.Time) ([]models.Event, error) {
	cur, err := s.events.Find(ctx,
		bson.M{"start_at": bson.M{"$gte": from, "$lt": to}},
		options.Find().SetSort(bson.D{{Key: "start_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var events []models.Event
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// SetRSVP marks the user attending. Toggling twice is a no-op thanks to
// the unique (event, user) index; the alias snapshot refreshes on every
// call so renamed users show their current alias.
func (s *Store) SetRSVP(ctx context.Context, eventID, userID primitive.ObjectID, alias string) error {
	_, err := s.rsvps.UpdateOne(ctx,
		bson.M{"event_id": eventID, "user_id": userID},
		bson.M{
			"$set":         bson.M{"alias": alias},
			"$setOnInsert": bson.M{"created_at": time.Now()},
		},
		options.Update().SetUpsert(true),
	)
	if wafflemongo.IsDup(err) {
		// Concurrent double-toggle; the row exists, which is what we wanted.
		return nil
	}
	return err
}

// ClearRSVP removes the user's attendance mark.
func (s *Store) ClearRSVP(ctx context.Context, eventID, userID primitive.ObjectID) error {
	_, err := s.rsvps.DeleteOne(ctx, bson.M{"event_id": eventID, "user_id": userID})
	return err
}

// ListRSVPs returns attendees in the order they signed up.
func (s *Store) ListRSVPs(ctx context.Context, eventID primitive.ObjectID) ([]models.RSVP, error) {
	cur, err := s.rsvps.Find(ctx,
		bson.M{"event_id": eventID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rsvps []models.RSVP
	if err := cur.All(ctx, &rsvps); err != nil {
		return nil, err
	}
	return rsvps, nil
}

// HasRSVP reports whether the user already RSVPed.
func (s *Store) HasRSVP(ctx context.Context, eventID, userID primitive.ObjectID) (bool, error) {
	err := s.rsvps.FindOne(ctx, bson.M{"event_id": eventID, "user_id": userID}).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, err
}

func (s *Store) getForUpdate(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	var ev models.Event
	if err := s.events.FindOne(ctx, bson.M{"_id": id}).Decode(&ev); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}

// syncPostMirror pushes the event's times onto its linked post. The
// filter requires the post to still point back, so a stale
// back-reference (post unlinked meanwhile) writes nothing.
func (s *Store) syncPostMirror(ctx context.Context, ev *models.Event) error {
	if ev.LinkedPostID == nil {
		return nil
	}
	set := bson.M{
		"event_start_at": ev.StartAt,
		"updated_at":     time.Now(),
	}
	unset := bson.M{}
	if ev.EndAt != nil {
		set["event_end_at"] = *ev.EndAt
	} else {
		unset["event_end_at"] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	_, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": *ev.LinkedPostID, "linked_event_id": ev.ID},
		update,
	)
	return err
}
