// internal/app/store/characters/characterstore.go
package characterstore

import (
	"context"
	"errors"
	"time"

	"github.com/guildhall-club/guildhall/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("character_sheets")}
}

// ErrNotFound is returned when the user has no sheet yet.
var ErrNotFound = errors.New("character sheet not found")

// GetByOwner loads the user's sheet.
func (s *Store) GetByOwner(ctx context.Context, ownerID primitive.ObjectID) (*models.CharacterSheet, error) {
	var sheet models.CharacterSheet
	if err := s.c.FindOne(ctx, bson.M{"owner_id": ownerID}).Decode(&sheet); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sheet, nil
}

// Upsert saves the whole sheet for the owner. One sheet per user; the
// unique owner_id index backs the upsert against concurrent first
// saves.
func (s *Store) Upsert(ctx context.Context, ownerID primitive.ObjectID, sheet models.CharacterSheet) (*models.CharacterSheet, error) {
	sheet.OwnerID = ownerID
	sheet.UpdatedAt = time.Now()

	// Attributes always carry the full key set so templates never do
	// nil checks per attribute.
	if sheet.Attributes == nil {
		sheet.Attributes = map[string]int{}
	}
	for _, k := range models.SheetAttributes {
		if _, ok := sheet.Attributes[k]; !ok {
			sheet.Attributes[k] = 10
		}
	}

	res := s.c.FindOneAndReplace(ctx,
		bson.M{"owner_id": ownerID},
		sheet,
		options.FindOneAndReplace().
			SetUpsert(true).
			SetReturnDocument(options.After),
	)

	var saved models.CharacterSheet
	if err := res.Decode(&saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// ListAll returns every sheet, most recently updated first. Used by the
// staff party roster.
func (s *Store) ListAll(ctx context.Context) ([]models.CharacterSheet, error) {
	cur, err := s.c.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var sheets []models.CharacterSheet
	if err := cur.All(ctx, &sheets); err != nil {
		return nil, err
	}
	return sheets, nil
}

// Delete removes the user's sheet.
func (s *Store) Delete(ctx context.Context, ownerID primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
