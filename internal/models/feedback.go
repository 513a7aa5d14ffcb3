package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Feedback is a buyer's rating of a seller after a completed inspection.
type Feedback struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	ListingID primitive.ObjectID `bson:"listing_id" json:"listing_id"`
	BuyerID   primitive.ObjectID `bson:"buyer_id" json:"buyer_id"`
	SellerID  primitive.ObjectID `bson:"seller_id" json:"seller_id"`
	Rating    int                `bson:"rating" json:"rating"` // 1..5
	Comment   string             `bson:"comment" json:"comment"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	Deleted   bool               `bson:"deleted" json:"-"`
}
