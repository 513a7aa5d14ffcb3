package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dennismathu/moomarket/internal/db"
	"github.com/dennismathu/moomarket/internal/models"
)

// SellerRating aggregates the feedback left for one seller.
type SellerRating struct {
	SellerID primitive.ObjectID `json:"seller_id"`
	Average  float64            `json:"average"`
	Count    int                `json:"count"`
}

// IFeedbackService defines the interface for post-viewing seller ratings.
type IFeedbackService interface {
	LeaveFeedback(ctx context.Context, buyerID, listingID primitive.ObjectID, rating int, comment string) (*models.Feedback, error)
	ListForSeller(ctx context.Context, sellerID primitive.ObjectID) ([]models.Feedback, error)
	RatingForSeller(ctx context.Context, sellerID primitive.ObjectID) (*SellerRating, error)
}

const feedbackCollection = "feedback"

// feedbackService implements IFeedbackService.
type feedbackService struct {
	db          *mongo.Database
	inspections IInspectionService
}

// NewFeedbackService creates a new FeedbackService.
func NewFeedbackService(database *mongo.Database, inspectionService IInspectionService) IFeedbackService {
	return &feedbackService{db: database, inspections: inspectionService}
}

// LeaveFeedback records a buyer's rating of a seller. Allowed only after a
// completed viewing of that listing, and only once per (buyer, listing) pair.
func (s *feedbackService) LeaveFeedback(ctx context.Context, buyerID, listingID primitive.ObjectID, rating int, comment string) (*models.Feedback, error) {
	if rating < 1 || rating > 5 {
		return nil, validationErrorf("rating must be between 1 and 5")
	}

	completedFilter := bson.M{
		"listing_id": listingID,
		"buyer_id":   buyerID,
		"status":     models.InspectionCompleted,
	}
	var completed models.InspectionRequest
	err := s.db.Collection(inspectionsCollection).FindOne(ctx, completedFilter).Decode(&completed)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, validationErrorf("feedback requires a completed viewing of this listing")
		}
		return nil, fmt.Errorf("error checking completed viewing: %w", err)
	}

	count, err := s.db.Collection(feedbackCollection).CountDocuments(ctx, bson.M{
		"listing_id": listingID,
		"buyer_id":   buyerID,
		"deleted":    false,
	})
	if err != nil {
		return nil, fmt.Errorf("error checking existing feedback: %w", err)
	}
	if count > 0 {
		return nil, validationErrorf("feedback has already been left for this listing")
	}

	fb := &models.Feedback{
		ID:        primitive.NewObjectID(),
		ListingID: listingID,
		BuyerID:   buyerID,
		SellerID:  completed.SellerID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
	operation := func() error {
		_, insertErr := s.db.Collection(feedbackCollection).InsertOne(ctx, fb)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, validationErrorf("feedback has already been left for this listing")
		}
		return nil, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return fb, nil
}

// ListForSeller returns all feedback left for a seller, newest first.
func (s *feedbackService) ListForSeller(ctx context.Context, sellerID primitive.ObjectID) ([]models.Feedback, error) {
	filter := bson.M{"seller_id": sellerID, "deleted": false}
	cursor, err := s.db.Collection(feedbackCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error querying feedback for seller %s: %w", sellerID.Hex(), err)
	}
	defer cursor.Close(ctx)
	var results []models.Feedback
	if err = cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("error decoding feedback: %w", err)
	}
	return results, nil
}

// RatingForSeller computes the seller's average rating with an aggregation
// pipeline.
func (s *feedbackService) RatingForSeller(ctx context.Context, sellerID primitive.ObjectID) (*SellerRating, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"seller_id": sellerID, "deleted": false}}},
		{{Key: "$group", Value: bson.M{
			"_id":     "$seller_id",
			"average": bson.M{"$avg": "$rating"},
			"count":   bson.M{"$sum": 1},
		}}},
	}
	cursor, err := s.db.Collection(feedbackCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error aggregating rating for seller %s: %w", sellerID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Average float64 `bson:"average"`
		Count   int     `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("error decoding rating aggregation: %w", err)
	}

	rating := &SellerRating{SellerID: sellerID}
	if len(rows) > 0 {
		rating.Average = rows[0].Average
		rating.Count = rows[0].Count
	}
	return rating, nil
}
