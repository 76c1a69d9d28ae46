// internal/domain/models/charactersheet.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Attribute keys in display order.
var SheetAttributes = []string{"str", "dex", "con", "int", "wis", "cha"}

// SheetProficiency is a saving-throw/attribute proficiency row.
type SheetProficiency struct {
	ID         string `bson:"id" json:"id"`
	Attribute  string `bson:"attribute" json:"attribute"` // str|dex|con|int|wis|cha
	Name       string `bson:"name" json:"name"`
	Proficient bool   `bson:"proficient" json:"proficient"`
}

// SheetSkill is a named ability with an optional per-rest usage counter.
type SheetSkill struct {
	ID          string `bson:"id" json:"id"`
	Name        string `bson:"name" json:"name"`
	UsesPer     string `bson:"uses_per,omitempty" json:"uses_per,omitempty"` // e.g. "long rest"
	UsedCount   int    `bson:"used_count" json:"used_count"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
}

// SheetInventoryItem is one carried item.
type SheetInventoryItem struct {
	ID       string `bson:"id" json:"id"`
	Name     string `bson:"name" json:"name"`
	Quantity int    `bson:"quantity" json:"quantity"`
}

// SheetInventoryCategory groups items (weapons, consumables, ...).
type SheetInventoryCategory struct {
	ID    string               `bson:"id" json:"id"`
	Name  string               `bson:"name" json:"name"`
	Items []SheetInventoryItem `bson:"items" json:"items"`
}

// CharacterSheet is one user's character. Exactly one sheet per user,
// enforced by a unique index on owner_id.
type CharacterSheet struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID primitive.ObjectID `bson:"owner_id" json:"owner_id"`

	PortraitURL string `bson:"portrait_url,omitempty" json:"portrait_url,omitempty"`

	CharacterName    string `bson:"character_name" json:"character_name"`
	Level            int    `bson:"level" json:"level"`
	ClassName        string `bson:"class_name" json:"class_name"`
	Experience       int    `bson:"experience" json:"experience"`
	Currency         int    `bson:"currency" json:"currency"`
	MaxHP            int    `bson:"max_hp" json:"max_hp"`
	CurrentHP        int    `bson:"current_hp" json:"current_hp"`
	ProficiencyBonus int    `bson:"proficiency_bonus" json:"proficiency_bonus"`

	Attributes map[string]int `bson:"attributes" json:"attributes"`

	Proficiencies       []SheetProficiency       `bson:"proficiencies" json:"proficiencies"`
	Skills              []SheetSkill             `bson:"skills" json:"skills"`
	InventoryCategories []SheetInventoryCategory `bson:"inventory_categories" json:"inventory_categories"`

	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
