// internal/domain/models/aliasindex.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AliasEntry reserves one folded alias key for one user. The key is the
// document _id, so the collection can never hold two entries for the same
// normalized alias; the claim/release transaction in the user store keeps
// each entry matched to the user currently holding the alias.
type AliasEntry struct {
	Key       string             `bson:"_id" json:"key"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
