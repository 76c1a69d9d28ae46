// internal/domain/models/comment.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Comment target kinds.
const (
	CommentOnPost  = "post"
	CommentOnEvent = "event"
)

// Comment belongs to a blog post or a calendar event. ParentID nil means
// top-level; non-nil must reference a top-level comment on the same
// target (one level of nesting, by convention rather than storage
// enforcement). Author fields are write-time snapshots.
type Comment struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	TargetKind string              `bson:"target_kind" json:"target_kind"`
	TargetID   primitive.ObjectID  `bson:"target_id" json:"target_id"`
	ParentID   *primitive.ObjectID `bson:"parent_id,omitempty" json:"parent_id,omitempty"`

	AuthorID       primitive.ObjectID `bson:"author_id" json:"author_id"`
	AuthorAlias    string             `bson:"author_alias" json:"author_alias"`
	AuthorPronouns *string            `bson:"author_pronouns,omitempty" json:"author_pronouns,omitempty"`
	AuthorPhoto    *string            `bson:"author_photo,omitempty" json:"author_photo,omitempty"`

	Body string `bson:"body" json:"body"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	EditedAt  *time.Time `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
}
