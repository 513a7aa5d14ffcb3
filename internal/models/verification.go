package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SellerVerification is a seller's identity verification submission,
// reviewed by an admin before the "verified seller" badge is granted.
type SellerVerification struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	SellerID     primitive.ObjectID  `bson:"seller_id" json:"seller_id"`
	NationalID   string              `bson:"national_id" json:"national_id"`
	DocumentKeys []string            `bson:"document_keys" json:"document_keys"` // S3 keys
	Status       VerificationState   `bson:"status" json:"status"`
	ReviewedBy   *primitive.ObjectID `bson:"reviewed_by,omitempty" json:"reviewed_by,omitempty"`
	ReviewNote   string              `bson:"review_note,omitempty" json:"review_note,omitempty"`
	CreatedAt    time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `bson:"updated_at" json:"updated_at"`
}
