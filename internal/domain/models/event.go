// internal/domain/models/event.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event is a calendar entry. EndAt, when present, is always >= StartAt.
//
// LinkedPostID and LinkedPostSlug are the back-reference mirror of
// BlogPost.LinkedEventID; they are written only inside the same
// transaction as the post-side link fields. Unlinking from the post side
// clears the post's fields but deliberately leaves the event untouched,
// so the calendar keeps its data; the stale back-reference is ignored by
// readers when the post no longer points here.
type Event struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title   string             `bson:"title" json:"title"`
	StartAt time.Time          `bson:"start_at" json:"start_at"`
	EndAt   *time.Time         `bson:"end_at,omitempty" json:"end_at,omitempty"`

	ImageURL *string `bson:"image_url,omitempty" json:"image_url,omitempty"`

	LinkedPostID   *primitive.ObjectID `bson:"linked_post_id,omitempty" json:"linked_post_id,omitempty"`
	LinkedPostSlug *string             `bson:"linked_post_slug,omitempty" json:"linked_post_slug,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// RSVP marks one user attending one event. At most one document exists
// per (event, user) pair, enforced by a unique index.
type RSVP struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID primitive.ObjectID `bson:"event_id" json:"event_id"`
	UserID  primitive.ObjectID `bson:"user_id" json:"user_id"`

	// Alias snapshot so attendee lists render without a user lookup.
	Alias string `bson:"alias" json:"alias"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
