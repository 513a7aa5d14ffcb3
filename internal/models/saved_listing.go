package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SavedListing is a bookmark from a user to a listing. Unique per pair.
type SavedListing struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	ListingID primitive.ObjectID `bson:"listing_id" json:"listing_id"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
