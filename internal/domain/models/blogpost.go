// internal/domain/models/blogpost.go
package models

import (
	"time"

	"github.com/guildhall-club/guildhall/internal/app/system/richtext"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Blog tag vocabulary. Stored values keep the display casing.
var BlogTags = []string{"News", "Guide", "Advertisement", "Recruitment", "Event"}

// IsBlogTag reports whether t is one of the allowed tags.
func IsBlogTag(t string) bool {
	for _, v := range BlogTags {
		if v == t {
			return true
		}
	}
	return false
}

// BlogPost is a published club post.
//
// Slug is unique across posts; while the post exists the blog_slug_index
// collection holds exactly one entry for it pointing back at this post.
// The author fields are snapshots taken at write time and never
// re-resolved, so renamed or deleted authors keep their byline.
//
// LinkedEventID, EventStartAt and EventEndAt mirror the linked calendar
// event. Every write that changes either side updates the other inside
// the same transaction, so readers never observe the pair diverged.
type BlogPost struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title string             `bson:"title" json:"title"`
	Slug  string             `bson:"slug" json:"slug"`
	Tags  []string           `bson:"tags" json:"tags"`

	Content     richtext.Doc `bson:"content" json:"content"`
	ContentText string       `bson:"content_text" json:"content_text"`

	AuthorID       primitive.ObjectID `bson:"author_id" json:"author_id"`
	AuthorAlias    string             `bson:"author_alias" json:"author_alias"`
	AuthorPronouns *string            `bson:"author_pronouns,omitempty" json:"author_pronouns,omitempty"`
	AuthorPhoto    *string            `bson:"author_photo,omitempty" json:"author_photo,omitempty"`

	LinkedEventID *primitive.ObjectID `bson:"linked_event_id,omitempty" json:"linked_event_id,omitempty"`
	EventStartAt  *time.Time          `bson:"event_start_at,omitempty" json:"event_start_at,omitempty"`
	EventEndAt    *time.Time          `bson:"event_end_at,omitempty" json:"event_end_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// SlugEntry reserves one slug for one post; the slug is the document _id.
type SlugEntry struct {
	Slug      string             `bson:"_id" json:"slug"`
	PostID    primitive.ObjectID `bson:"post_id" json:"post_id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
