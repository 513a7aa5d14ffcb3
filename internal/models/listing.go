package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sex of the listed animal.
type Sex string

const (
	SexBull   Sex = "bull"
	SexCow    Sex = "cow"
	SexHeifer Sex = "heifer"
	SexSteer  Sex = "steer"
)

// Listing represents a single animal offered for sale.
type Listing struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	SellerID     primitive.ObjectID  `bson:"seller_id" json:"seller_id"`
	Title        string              `bson:"title" json:"title"`
	Description  string              `bson:"description" json:"description"`
	Breed        string              `bson:"breed" json:"breed"` // e.g. "Boran", "Friesian", "Sahiwal"
	Sex          Sex                 `bson:"sex" json:"sex"`
	AgeMonths    int                 `bson:"age_months" json:"age_months"`
	WeightKg     int                 `bson:"weight_kg" json:"weight_kg"`
	PriceKES     float64             `bson:"price_kes" json:"price_kes"`
	County       string              `bson:"county" json:"county"`
	Photos       []string            `bson:"photos" json:"photos"` // S3 keys
	IsDraft      bool                `bson:"is_draft" json:"is_draft"`
	Hidden       bool                `bson:"hidden" json:"hidden"`
	SuspensionID *primitive.ObjectID `bson:"suspension,omitempty" json:"suspension,omitempty"`
	PublishedAt  *time.Time          `bson:"published_at,omitempty" json:"published_at,omitempty"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
	Deleted      bool                `bson:"deleted" json:"-"` // Soft delete flag
}

// ListingSuspension records an admin moderation action against a listing.
type ListingSuspension struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	ListingID   primitive.ObjectID `bson:"listing_id" json:"listing_id"`
	AdminUserID primitive.ObjectID `bson:"admin_user_id" json:"admin_user_id"`
	Reason      string             `bson:"reason" json:"reason"`
	ExecutedAt  *time.Time         `bson:"executed,omitempty" json:"executed,omitempty"`
	Suspended   bool               `bson:"suspended" json:"suspended"`
	Deleted     bool               `bson:"deleted" json:"-"`
}
