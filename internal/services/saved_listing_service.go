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

// ISavedListingService defines the interface for listing bookmarks.
type ISavedListingService interface {
	Save(ctx context.Context, userID, listingID primitive.ObjectID) error
	Unsave(ctx context.Context, userID, listingID primitive.ObjectID) error
	ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Listing, error)
}

const savedListingsCollection = "saved_listings"

// savedListingService implements ISavedListingService.
type savedListingService struct {
	db       *mongo.Database
	listings IListingService
}

// NewSavedListingService creates a new SavedListingService.
func NewSavedListingService(database *mongo.Database, listingService IListingService) ISavedListingService {
	return &savedListingService{db: database, listings: listingService}
}

// Save bookmarks a listing. Saving twice is a no-op; uniqueness is enforced
// by a compound index on (user_id, listing_id).
func (s *savedListingService) Save(ctx context.Context, userID, listingID primitive.ObjectID) error {
	if _, err := s.listings.FindListingByID(ctx, listingID); err != nil {
		return err
	}

	record := models.SavedListing{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		ListingID: listingID,
		CreatedAt: time.Now().UTC(),
	}
	operation := func() error {
		_, insertErr := s.db.Collection(savedListingsCollection).InsertOne(ctx, record)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("failed to save listing %s for user %s: %w", listingID.Hex(), userID.Hex(), err)
	}
	return nil
}

// Unsave removes a bookmark. Removing a bookmark that does not exist is a
// no-op.
func (s *savedListingService) Unsave(ctx context.Context, userID, listingID primitive.ObjectID) error {
	filter := bson.M{"user_id": userID, "listing_id": listingID}
	if _, err := s.db.Collection(savedListingsCollection).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to unsave listing %s for user %s: %w", listingID.Hex(), userID.Hex(), err)
	}
	return nil
}

// ListForUser resolves the user's bookmarks to listings, skipping any that
// have since been deleted, hidden, or suspended.
func (s *savedListingService) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Listing, error) {
	cursor, err := s.db.Collection(savedListingsCollection).Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("error querying saved listings for user %s: %w", userID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var saved []models.SavedListing
	if err = cursor.All(ctx, &saved); err != nil {
		return nil, fmt.Errorf("error decoding saved listings: %w", err)
	}
	if len(saved) == 0 {
		return []models.Listing{}, nil
	}

	ids := make([]primitive.ObjectID, 0, len(saved))
	for _, rec := range saved {
		ids = append(ids, rec.ListingID)
	}

	filter := bson.M{
		"_id":        bson.M{"$in": ids},
		"is_draft":   false,
		"hidden":     false,
		"deleted":    false,
		"suspension": bson.M{"$exists": false},
	}
	listCursor, err := s.db.Collection(listingsCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error resolving saved listings: %w", err)
	}
	defer listCursor.Close(ctx)

	var listings []models.Listing
	if err = listCursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("error decoding resolved saved listings: %w", err)
	}
	return listings, nil
}
