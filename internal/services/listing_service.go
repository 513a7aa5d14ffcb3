package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dennismathu/moomarket/internal/config"
	"github.com/dennismathu/moomarket/internal/db"
	"github.com/dennismathu/moomarket/internal/models"
)

// ListingSearchParams carries the optional browse filters.
type ListingSearchParams struct {
	Query    *string
	Breed    *string
	County   *string
	MinPrice *float64
	MaxPrice *float64
	Limit    int
	Cursor   *string
}

// IListingService defines the interface for listing-related operations.
type IListingService interface {
	CreateListing(ctx context.Context, sellerID primitive.ObjectID, l *models.Listing) (*models.Listing, error)
	FindListingByID(ctx context.Context, listingID primitive.ObjectID) (*models.Listing, error)
	UpdateListing(ctx context.Context, listingID, sellerID primitive.ObjectID, updates map[string]interface{}) (*models.Listing, error)
	PublishListing(ctx context.Context, listingID, sellerID primitive.ObjectID) error
	HideListing(ctx context.Context, listingID, sellerID primitive.ObjectID) error
	UnhideListing(ctx context.Context, listingID, sellerID primitive.ObjectID) error
	DeleteListing(ctx context.Context, listingID, sellerID primitive.ObjectID) error
	SearchListings(ctx context.Context, params ListingSearchParams) ([]models.Listing, string, error)
	FindListingsBySellerID(ctx context.Context, sellerID primitive.ObjectID) ([]models.Listing, error)
	AddPhotoToListing(ctx context.Context, listingID primitive.ObjectID, photoKey string) error
	// Admin moderation
	SuspendListing(ctx context.Context, listingID, adminUserID primitive.ObjectID, reason string) error
	UnsuspendListing(ctx context.Context, listingID, adminUserID primitive.ObjectID) error
	ListSuspendedListings(ctx context.Context, limit int) ([]models.ListingSuspension, error)
}

const (
	listingsCollection    = "listings"
	suspensionsCollection = "listing_suspensions"
)

// listingService implements IListingService.
type listingService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewListingService creates a new ListingService.
func NewListingService(database *mongo.Database, cfg *config.Config) IListingService {
	return &listingService{db: database, cfg: cfg}
}

// CreateListing validates the animal details and inserts a draft listing.
func (s *listingService) CreateListing(ctx context.Context, sellerID primitive.ObjectID, l *models.Listing) (*models.Listing, error) {
	if strings.TrimSpace(l.Title) == "" {
		return nil, validationErrorf("listing title is required")
	}
	if l.Breed == "" {
		return nil, validationErrorf("breed is required")
	}
	switch l.Sex {
	case models.SexBull, models.SexCow, models.SexHeifer, models.SexSteer:
	default:
		return nil, validationErrorf("unknown sex %q", l.Sex)
	}
	if !models.ValidCounty(l.County) {
		return nil, validationErrorf("unknown county %q", l.County)
	}
	if l.PriceKES <= 0 || l.PriceKES > s.cfg.MaxListingPrice {
		return nil, validationErrorf("price must be between 1 and %.0f KES", s.cfg.MaxListingPrice)
	}
	if l.AgeMonths <= 0 || l.WeightKg <= 0 {
		return nil, validationErrorf("age and weight must be positive")
	}

	now := time.Now().UTC()
	newListing := &models.Listing{
		ID:          primitive.NewObjectID(),
		SellerID:    sellerID,
		Title:       l.Title,
		Description: l.Description,
		Breed:       l.Breed,
		Sex:         l.Sex,
		AgeMonths:   l.AgeMonths,
		WeightKg:    l.WeightKg,
		PriceKES:    l.PriceKES,
		County:      l.County,
		Photos:      []string{},
		IsDraft:     true,
		Hidden:      false,
		Deleted:     false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	operation := func() error {
		_, insertErr := s.db.Collection(listingsCollection).InsertOne(ctx, newListing)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert new listing for seller %s: %w", sellerID.Hex(), err)
	}

	return newListing, nil
}

// FindListingByID finds a non-deleted, non-suspended listing by its ID.
// It does NOT check ownership.
func (s *listingService) FindListingByID(ctx context.Context, listingID primitive.ObjectID) (*models.Listing, error) {
	var listing models.Listing
	filter := bson.M{
		"_id":        listingID,
		"deleted":    false,
		"suspension": bson.M{"$exists": false},
	}

	err := s.db.Collection(listingsCollection).FindOne(ctx, filter).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding listing by ID %s: %w", listingID.Hex(), err)
	}

	// Hide listings whose seller was suspended.
	var seller models.User
	err = s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": listing.SellerID, "deleted": false}).Decode(&seller)
	if err != nil || seller.Suspended {
		return nil, mongo.ErrNoDocuments
	}
	return &listing, nil
}

// UpdateListing updates mutable fields of a listing owned by the seller.
// `updates` holds BSON field names and new values; status flags have their
// own methods.
func (s *listingService) UpdateListing(ctx context.Context, listingID, sellerID primitive.ObjectID, updates map[string]interface{}) (*models.Listing, error) {
	allowedUpdates := bson.M{}
	for key, value := range updates {
		switch key {
		case "title", "description", "breed", "sex", "age_months", "weight_kg", "price_kes", "county":
			allowedUpdates[key] = value
		default:
			return nil, validationErrorf("field '%s' cannot be updated via UpdateListing", key)
		}
	}
	if len(allowedUpdates) == 0 {
		return nil, validationErrorf("no valid fields provided for update")
	}
	if county, ok := allowedUpdates["county"].(string); ok && !models.ValidCounty(county) {
		return nil, validationErrorf("unknown county %q", county)
	}
	allowedUpdates["updated_at"] = time.Now().UTC()

	filter := bson.M{
		"_id":        listingID,
		"seller_id":  sellerID,
		"deleted":    false,
		"suspension": bson.M{"$exists": false},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updatedListing models.Listing
	err := s.db.Collection(listingsCollection).
		FindOneAndUpdate(ctx, filter, bson.M{"$set": allowedUpdates}, opts).
		Decode(&updatedListing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, validationErrorf("listing not found, not owned by you, or cannot be updated")
		}
		return nil, fmt.Errorf("failed to update listing %s: %w", listingID.Hex(), err)
	}

	return &updatedListing, nil
}

// changeListingState runs a guarded status flip and diagnoses the failure
// when no document matched the filter.
func (s *listingService) changeListingState(ctx context.Context, listingID, sellerID primitive.ObjectID, filter, update bson.M) error {
	collection := s.db.Collection(listingsCollection)
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error updating listing %s: %w", listingID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		var listing models.Listing
		checkErr := collection.FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		if listing.SellerID != sellerID {
			return validationErrorf("listing %s does not belong to you", listingID.Hex())
		}
		if listing.Deleted {
			return validationErrorf("listing %s is deleted", listingID.Hex())
		}
		if listing.SuspensionID != nil {
			return validationErrorf("listing %s is suspended", listingID.Hex())
		}
		return validationErrorf("listing %s is already in the requested state", listingID.Hex())
	}
	return nil
}

// PublishListing publishes a draft listing.
func (s *listingService) PublishListing(ctx context.Context, listingID, sellerID primitive.ObjectID) error {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":        listingID,
		"seller_id":  sellerID,
		"deleted":    false,
		"is_draft":   true,
		"suspension": bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{
		"is_draft":     false,
		"published_at": now,
		"updated_at":   now,
	}}
	return s.changeListingState(ctx, listingID, sellerID, filter, update)
}

// HideListing hides a published listing from search.
func (s *listingService) HideListing(ctx context.Context, listingID, sellerID primitive.ObjectID) error {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":        listingID,
		"seller_id":  sellerID,
		"deleted":    false,
		"is_draft":   false,
		"hidden":     false,
		"suspension": bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{"hidden": true, "updated_at": now}}
	return s.changeListingState(ctx, listingID, sellerID, filter, update)
}

// UnhideListing makes a hidden listing searchable again.
func (s *listingService) UnhideListing(ctx context.Context, listingID, sellerID primitive.ObjectID) error {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":        listingID,
		"seller_id":  sellerID,
		"deleted":    false,
		"is_draft":   false,
		"hidden":     true,
		"suspension": bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{"hidden": false, "updated_at": now}}
	return s.changeListingState(ctx, listingID, sellerID, filter, update)
}

// DeleteListing performs a soft delete.
func (s *listingService) DeleteListing(ctx context.Context, listingID, sellerID primitive.ObjectID) error {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":       listingID,
		"seller_id": sellerID,
		"deleted":   false,
	}
	update := bson.M{"$set": bson.M{"deleted": true, "deleted_at": now, "updated_at": now}}
	return s.changeListingState(ctx, listingID, sellerID, filter, update)
}

// SearchListings browses published listings with optional breed, county,
// price-range, and text filters, paginated by a published-at cursor.
func (s *listingService) SearchListings(ctx context.Context, params ListingSearchParams) ([]models.Listing, string, error) {
	filter := bson.M{
		"is_draft":   false,
		"hidden":     false,
		"deleted":    false,
		"suspension": bson.M{"$exists": false},
	}

	if params.Query != nil && *params.Query != "" {
		filter["$text"] = bson.M{"$search": *params.Query}
	}
	if params.Breed != nil && *params.Breed != "" {
		filter["breed"] = *params.Breed
	}
	if params.County != nil && *params.County != "" {
		filter["county"] = *params.County
	}
	if params.MinPrice != nil || params.MaxPrice != nil {
		price := bson.M{}
		if params.MinPrice != nil {
			price["$gte"] = *params.MinPrice
		}
		if params.MaxPrice != nil {
			price["$lte"] = *params.MaxPrice
		}
		filter["price_kes"] = price
	}

	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	opts := options.Find().
		SetLimit(int64(limit + 1)).
		SetSort(bson.D{{Key: "published_at", Value: -1}, {Key: "_id", Value: -1}})

	// Cursor format: "<published unix millis>_<hex id>", stable under the
	// sort above. Millis match the precision Mongo stores for time.Time.
	if params.Cursor != nil && *params.Cursor != "" {
		parts := strings.Split(*params.Cursor, "_")
		if len(parts) == 2 {
			timestampMs, tsErr := strconv.ParseInt(parts[0], 10, 64)
			lastID, idErr := primitive.ObjectIDFromHex(parts[1])
			if tsErr == nil && idErr == nil {
				cursorTime := time.UnixMilli(timestampMs)
				filter["$or"] = bson.A{
					bson.M{"published_at": cursorTime, "_id": bson.M{"$lt": lastID}},
					bson.M{"published_at": bson.M{"$lt": cursorTime}},
				}
			}
		}
	}

	listCursor, err := s.db.Collection(listingsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to execute listing search query: %w", err)
	}
	defer listCursor.Close(ctx)

	var results []models.Listing
	if err = listCursor.All(ctx, &results); err != nil {
		return nil, "", fmt.Errorf("failed to decode listing search results: %w", err)
	}

	nextCursor := ""
	if len(results) > limit {
		results = results[:limit]
		last := results[limit-1]
		if last.PublishedAt != nil {
			nextCursor = fmt.Sprintf("%d_%s", last.PublishedAt.UnixMilli(), last.ID.Hex())
		}
	}

	return results, nextCursor, nil
}

// FindListingsBySellerID returns all visible listings for a seller.
func (s *listingService) FindListingsBySellerID(ctx context.Context, sellerID primitive.ObjectID) ([]models.Listing, error) {
	filter := bson.M{
		"seller_id":  sellerID,
		"deleted":    false,
		"hidden":     false,
		"is_draft":   false,
		"suspension": bson.M{"$exists": false},
	}
	cursor, err := s.db.Collection(listingsCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error querying seller listings: %w", err)
	}
	defer cursor.Close(ctx)
	var listings []models.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("error decoding seller listings: %w", err)
	}
	return listings, nil
}

// AddPhotoToListing attaches a processed photo key. Called by the image
// worker once processing is complete.
func (s *listingService) AddPhotoToListing(ctx context.Context, listingID primitive.ObjectID, photoKey string) error {
	maxPhotos := s.cfg.MaxPhotosPerListing
	if maxPhotos <= 0 {
		maxPhotos = 8
	}

	collection := s.db.Collection(listingsCollection)
	filter := bson.M{
		"_id":     listingID,
		"deleted": false,
		// Reject once the photo array is already at capacity.
		fmt.Sprintf("photos.%d", maxPhotos-1): bson.M{"$exists": false},
	}
	update := bson.M{
		"$addToSet": bson.M{"photos": photoKey},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("db error adding photo %s to listing %s: %w", photoKey, listingID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		count, countErr := collection.CountDocuments(ctx, bson.M{"_id": listingID, "deleted": false})
		if countErr == nil && count > 0 {
			return validationErrorf("listing already has the maximum of %d photos", maxPhotos)
		}
		return fmt.Errorf("listing %s not found when adding photo", listingID.Hex())
	}
	return nil
}

// SuspendListing creates a suspension record and marks the listing suspended.
func (s *listingService) SuspendListing(ctx context.Context, listingID, adminUserID primitive.ObjectID, reason string) error {
	collection := s.db.Collection(listingsCollection)
	var existing models.Listing
	filter := bson.M{
		"_id":        listingID,
		"deleted":    false,
		"suspension": bson.M{"$exists": false},
	}
	err := collection.FindOne(ctx, filter).Decode(&existing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			checkFilter := bson.M{"_id": listingID, "deleted": false}
			var check models.Listing
			if checkErr := collection.FindOne(ctx, checkFilter).Decode(&check); checkErr == nil && check.SuspensionID != nil {
				return validationErrorf("listing %s is already suspended", listingID.Hex())
			}
			return mongo.ErrNoDocuments
		}
		return fmt.Errorf("failed to find listing %s for suspension: %w", listingID.Hex(), err)
	}

	now := time.Now().UTC()
	susp := models.ListingSuspension{
		ID:          primitive.NewObjectID(),
		ListingID:   listingID,
		AdminUserID: adminUserID,
		Reason:      reason,
		ExecutedAt:  &now,
		Suspended:   true,
	}

	operation := func() error {
		_, insertErr := s.db.Collection(suspensionsCollection).InsertOne(ctx, susp)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return fmt.Errorf("failed to create suspension record for listing %s: %w", listingID.Hex(), err)
	}

	update := bson.M{"$set": bson.M{
		"suspension": susp.ID,
		"updated_at": now,
		"hidden":     true,
	}}
	if _, err := collection.UpdateByID(ctx, listingID, update); err != nil {
		return fmt.Errorf("failed to mark listing %s suspended (record %s created): %w",
			listingID.Hex(), susp.ID.Hex(), err)
	}

	return nil
}

// UnsuspendListing removes the suspension from a listing and retires the
// suspension record.
func (s *listingService) UnsuspendListing(ctx context.Context, listingID, adminUserID primitive.ObjectID) error {
	collection := s.db.Collection(listingsCollection)
	var listing models.Listing
	err := collection.FindOne(ctx, bson.M{"_id": listingID, "deleted": false}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		return fmt.Errorf("failed to find listing %s for unsuspend: %w", listingID.Hex(), err)
	}
	if listing.SuspensionID == nil {
		return validationErrorf("listing %s is not currently suspended", listingID.Hex())
	}

	now := time.Now().UTC()
	suspUpdate := bson.M{"$set": bson.M{"suspended": false, "deleted": true, "updated_at": now}}
	if _, err := s.db.Collection(suspensionsCollection).UpdateOne(ctx, bson.M{"_id": *listing.SuspensionID}, suspUpdate); err != nil {
		log.Printf("Error retiring suspension record %s for listing %s: %v",
			listing.SuspensionID.Hex(), listingID.Hex(), err)
	}

	listingUpdate := bson.M{
		"$unset": bson.M{"suspension": ""},
		"$set":   bson.M{"updated_at": now},
	}
	if _, err := collection.UpdateOne(ctx, bson.M{"_id": listingID}, listingUpdate); err != nil {
		return fmt.Errorf("failed to remove suspension from listing %s: %w", listingID.Hex(), err)
	}
	return nil
}

// ListSuspendedListings returns currently suspended listings for admin review.
func (s *listingService) ListSuspendedListings(ctx context.Context, limit int) ([]models.ListingSuspension, error) {
	filter := bson.M{"deleted": false, "suspended": true}
	opts := options.Find().SetLimit(int64(limit)).SetSort(bson.D{{Key: "executed", Value: -1}})
	cursor, err := s.db.Collection(suspensionsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var results []models.ListingSuspension
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}
