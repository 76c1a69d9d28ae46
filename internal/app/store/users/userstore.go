// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/guildhall-club/guildhall/internal/app/system/normalize"
	"github.com/guildhall-club/guildhall/internal/app/system/txn"
	"github.com/guildhall-club/guildhall/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	db  *mongo.Database
	c   *mongo.Collection
	idx *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		db:  db,
		c:   db.Collection("users"),
		idx: db.Collection("alias_index"),
	}
}

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	// ErrAliasInvalid is returned when the alias fails the grammar
	// (3-24 letters, digits, spaces, underscores, hyphens).
	ErrAliasInvalid = errors.New("alias must be 3-24 characters: letters, digits, spaces, underscores, hyphens")
	// ErrAliasTaken is returned when another user owns the folded alias key.
	ErrAliasTaken = errors.New("that alias is already in use")
	// ErrAliasUnchanged is returned when the folded key equals the user's
	// current one; nothing is written, not even a casing change.
	ErrAliasUnchanged = errors.New("alias unchanged")
	// errBadRole rejects role sets containing anything outside AllRoles.
	errBadRole = errors.New(`roles must be drawn from "player"|"dm"|"officer"|"moderator"|"admin"`)
)

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByEmail looks up a user by case-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// List returns all users sorted by folded alias then email, for the
// admin roster. The club is small; no paging.
func (s *Store) List(ctx context.Context) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "alias_ci", Value: 1},
		{Key: "email", Value: 1},
	})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// OAuthProfile is what an identity provider hands back at callback time.
type OAuthProfile struct {
	Provider    string // google | microsoft
	Subject     string
	Email       string
	DisplayName string
	PhotoURL    string
}

// UpsertOAuthUser implements sign-in-creates-the-account: the first
// OAuth callback for an email inserts the user with defaults, later
// ones refresh the provider snapshot and last-seen time. The email is
// the identity; switching providers updates the stored provider fields
// rather than creating a second account.
func (s *Store) UpsertOAuthUser(ctx context.Context, p OAuthProfile) (*models.User, error) {
	email := normalize.Email(p.Email)
	now := time.Now()

	set := bson.M{
		"auth_provider": p.Provider,
		"subject":       p.Subject,
		"display_name":  p.DisplayName,
		"last_seen_at":  now,
		"updated_at":    now,
	}
	if p.PhotoURL != "" {
		set["photo_url"] = p.PhotoURL
	}

	res := s.c.FindOneAndUpdate(ctx,
		bson.M{"email": email},
		bson.M{
			"$set": set,
			"$setOnInsert": bson.M{
				"email":        email,
				"roles":        []string{models.RolePlayer},
				"theme":        models.DefaultTheme,
				"accent_color": models.DefaultAccentColor,
				"created_at":   now,
			},
		},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	)

	var u models.User
	if err := res.Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateLocal inserts a password account. Used by the bootstrap admin
// and nothing else; regular members come in through OAuth.
func (s *Store) CreateLocal(ctx context.Context, email, displayName, passwordHash string, roles []string) (models.User, error) {
	if err := validRoles(roles); err != nil {
		return models.User{}, err
	}
	now := time.Now()
	u := models.User{
		ID:           primitive.NewObjectID(),
		AuthProvider: "password",
		Subject:      normalize.Email(email),
		Email:        normalize.Email(email),
		DisplayName:  displayName,
		Roles:        withPlayer(roles),
		Theme:        models.DefaultTheme,
		AccentColor:  models.DefaultAccentColor,
		PasswordHash: &passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSeenAt:   now,
	}
	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// ClaimAlias assigns the alias to the user, enforcing club-wide
// uniqueness on the folded key through the alias_index collection.
//
// A claim whose folded key matches the user's current one returns
// ErrAliasUnchanged before any transaction opens; the stored display
// casing stays as it was.
//
// Otherwise the whole read-check-write runs in one transaction:
//  1. reject if another user owns the new key
//  2. release the user's previous key, if any and still theirs
//  3. claim the new key unless an entry of ours already holds it
//     (entry _id IS the key, so a race loser gets a duplicate-key
//     error and reads as ErrAliasTaken)
//  4. write alias + alias_ci on the user document
//
// Returns the cleaned display alias.
func (s *Store) ClaimAlias(ctx context.Context, userID primitive.ObjectID, raw string) (string, error) {
	cleaned, ok := normalize.Alias(raw)
	if !ok {
		return "", ErrAliasInvalid
	}
	key := normalize.AliasKey(cleaned)

	current, err := s.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if current.AliasCI != nil && *current.AliasCI == key {
		return cleaned, ErrAliasUnchanged
	}

	err = txn.WithTransaction(ctx, s.db.Client(), func(ctx context.Context) error {
		u, err := s.GetByID(ctx, userID)
		if err != nil {
			return err
		}

		var entry models.AliasEntry
		err = s.idx.FindOne(ctx, bson.M{"_id": key}).Decode(&entry)
		haveEntry := false
		switch {
		case err == nil:
			if entry.UserID != userID {
				return ErrAliasTaken
			}
			// A stale entry of ours already holds the key.
			haveEntry = true
		case errors.Is(err, mongo.ErrNoDocuments):
		default:
			return err
		}

		// Release the old key whether or not the new one needs claiming.
		// The filter includes user_id so we never delete an entry someone
		// else now owns.
		if u.AliasCI != nil && *u.AliasCI != key {
			if _, err := s.idx.DeleteOne(ctx, bson.M{"_id": *u.AliasCI, "user_id": userID}); err != nil {
				return err
			}
		}

		if !haveEntry {
			_, err = s.idx.InsertOne(ctx, models.AliasEntry{
				Key:       key,
				UserID:    userID,
				CreatedAt: time.Now(),
			})
			if err != nil {
				if wafflemongo.IsDup(err) {
					return ErrAliasTaken
				}
				return err
			}
		}

		_, err = s.c.UpdateOne(ctx,
			bson.M{"_id": userID},
			bson.M{"$set": bson.M{
				"alias":      cleaned,
				"alias_ci":   key,
				"updated_at": time.Now(),
			}},
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return cleaned, nil
}

// Preferences holds the profile fields a user may edit themselves.
// Nil pointers leave the stored value alone.
type Preferences struct {
	Pronouns    *string
	Theme       *string
	AccentColor *string
	PhotoURL    *string
}

// UpdatePreferences applies profile edits.
func (s *Store) UpdatePreferences(ctx context.Context, id primitive.ObjectID, p Preferences) error {
	set := bson.M{"updated_at": time.Now()}
	if p.Pronouns != nil {
		set["pronouns"] = *p.Pronouns
	}
	if p.Theme != nil {
		set["theme"] = *p.Theme
	}
	if p.AccentColor != nil {
		set["accent_color"] = *p.AccentColor
	}
	if p.PhotoURL != nil {
		set["photo_url"] = *p.PhotoURL
	}

	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRoles replaces the user's role set. The player role is always
// retained so nobody can be locked out of member pages.
func (s *Store) SetRoles(ctx context.Context, id primitive.ObjectID, roles []string) error {
	if err := validRoles(roles); err != nil {
		return err
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"roles":      withPlayer(roles),
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureRole adds a role if absent. Used for the bootstrap admin.
func (s *Store) EnsureRole(ctx context.Context, id primitive.ObjectID, role string) error {
	if err := validRoles([]string{role}); err != nil {
		return err
	}
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$addToSet": bson.M{"roles": role}},
	)
	return err
}

// TouchLastSeen updates last_seen_at; failures are the caller's to
// ignore.
func (s *Store) TouchLastSeen(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_seen_at": time.Now()}},
	)
	return err
}

func validRoles(roles []string) error {
	for _, r := range roles {
		valid := false
		for _, known := range models.AllRoles {
			if r == known {
				valid = true
				break
			}
		}
		if !valid {
			return errBadRole
		}
	}
	return nil
}

func withPlayer(roles []string) []string {
	for _, r := range roles {
		if r == models.RolePlayer {
			return roles
		}
	}
	return append([]string{models.RolePlayer}, roles...)
}
