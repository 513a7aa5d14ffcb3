package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InspectionStatus is the lifecycle state of a viewing request.
type InspectionStatus string

const (
	InspectionPending   InspectionStatus = "pending"
	InspectionConfirmed InspectionStatus = "confirmed"
	InspectionCompleted InspectionStatus = "completed"
)

// Party identifies which side of the request performed an action.
type Party string

const (
	PartyNone   Party = ""
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

// Counterpart returns the other side of the request.
func (p Party) Counterpart() Party {
	switch p {
	case PartyBuyer:
		return PartySeller
	case PartySeller:
		return PartyBuyer
	default:
		return PartyNone
	}
}

// InspectionRequest represents one buyer's request to physically view a
// listed animal. SellerID is denormalized from the listing so seller-side
// dashboards can query by a single indexed field.
//
// RescheduledBy is set only while the request is pending: it names the party
// whose proposed date is awaiting the other party's acknowledgment.
type InspectionRequest struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	ListingID     primitive.ObjectID `bson:"listing_id" json:"listing_id"`
	BuyerID       primitive.ObjectID `bson:"buyer_id" json:"buyer_id"`
	SellerID      primitive.ObjectID `bson:"seller_id" json:"seller_id"`
	PreferredDate time.Time          `bson:"preferred_date" json:"preferred_date"` // calendar date, stored at UTC midnight
	Status        InspectionStatus   `bson:"status" json:"status"`
	RescheduledBy Party              `bson:"rescheduled_by,omitempty" json:"rescheduled_by,omitempty"`
	WasEdited     bool               `bson:"was_edited" json:"was_edited"` // set by transitions that modify an existing request
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// Validate rejects malformed records at the storage boundary instead of
// defaulting fields silently.
func (r *InspectionRequest) Validate() error {
	switch r.Status {
	case InspectionPending, InspectionConfirmed, InspectionCompleted:
	default:
		return fmt.Errorf("inspection request %s has unknown status %q", r.ID.Hex(), r.Status)
	}
	switch r.RescheduledBy {
	case PartyNone, PartyBuyer, PartySeller:
	default:
		return fmt.Errorf("inspection request %s has unknown rescheduled_by %q", r.ID.Hex(), r.RescheduledBy)
	}
	if r.RescheduledBy != PartyNone && r.Status != InspectionPending {
		return fmt.Errorf("inspection request %s has rescheduled_by=%q while %s", r.ID.Hex(), r.RescheduledBy, r.Status)
	}
	if r.PreferredDate.IsZero() {
		return fmt.Errorf("inspection request %s has no preferred date", r.ID.Hex())
	}
	return nil
}

// PartyOf maps a user ID onto the side of this request they occupy.
func (r *InspectionRequest) PartyOf(userID primitive.ObjectID) Party {
	switch userID {
	case r.BuyerID:
		return PartyBuyer
	case r.SellerID:
		return PartySeller
	default:
		return PartyNone
	}
}
