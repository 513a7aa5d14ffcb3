package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dennismathu/moomarket/internal/utils"
)

func setupTestDBFeedback(t *testing.T, dbName string) *mongo.Database {
	return utils.SetupTestDB(t, dbName, "feedback", "inspection_requests", "listings", "users")
}

// completeViewing walks a request through the full lifecycle so feedback
// becomes possible.
func completeViewing(t *testing.T, svc IInspectionService, listingID, buyerID, sellerID primitive.ObjectID) {
	ctx := context.Background()
	req, err := svc.RequestInspection(ctx, listingID, buyerID, futureDate(1))
	require.NoError(t, err)
	_, err = svc.SellerConfirm(ctx, req.ID, sellerID)
	require.NoError(t, err)
	_, err = svc.MarkCompleted(ctx, req.ID, sellerID)
	require.NoError(t, err)
}

func TestFeedbackService_LeaveFeedback(t *testing.T) {
	db := setupTestDBFeedback(t, "testdb_feedback_leave")
	inspectionSvc := inspectionTestService(db)
	svc := NewFeedbackService(db, inspectionSvc)
	ctx := context.Background()

	sellerID := seedSeller(t, db)
	buyerID := primitive.NewObjectID()
	listing := seedPublishedListing(t, db, sellerID)

	// No completed viewing yet.
	_, err := svc.LeaveFeedback(ctx, buyerID, listing.ID, 4, "Great cow")
	assert.True(t, IsValidationError(err))

	completeViewing(t, inspectionSvc, listing.ID, buyerID, sellerID)

	// Rating bounds.
	_, err = svc.LeaveFeedback(ctx, buyerID, listing.ID, 0, "")
	assert.True(t, IsValidationError(err))
	_, err = svc.LeaveFeedback(ctx, buyerID, listing.ID, 6, "")
	assert.True(t, IsValidationError(err))

	fb, err := svc.LeaveFeedback(ctx, buyerID, listing.ID, 4, "Honest seller, animal as described.")
	require.NoError(t, err)
	assert.Equal(t, sellerID, fb.SellerID)
	assert.Equal(t, 4, fb.Rating)

	// Once per (buyer, listing) pair.
	_, err = svc.LeaveFeedback(ctx, buyerID, listing.ID, 5, "changed my mind")
	assert.True(t, IsValidationError(err))
}

func TestFeedbackService_Rating(t *testing.T) {
	db := setupTestDBFeedback(t, "testdb_feedback_rating")
	inspectionSvc := inspectionTestService(db)
	svc := NewFeedbackService(db, inspectionSvc)
	ctx := context.Background()

	sellerID := seedSeller(t, db)
	listingA := seedPublishedListing(t, db, sellerID)
	listingB := seedPublishedListing(t, db, sellerID)

	// No feedback yet: zero-valued rating, not an error.
	empty, err := svc.RatingForSeller(ctx, sellerID)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.Equal(t, 0.0, empty.Average)

	buyer1 := primitive.NewObjectID()
	buyer2 := primitive.NewObjectID()
	completeViewing(t, inspectionSvc, listingA.ID, buyer1, sellerID)
	completeViewing(t, inspectionSvc, listingB.ID, buyer2, sellerID)

	_, err = svc.LeaveFeedback(ctx, buyer1, listingA.ID, 5, "")
	require.NoError(t, err)
	_, err = svc.LeaveFeedback(ctx, buyer2, listingB.ID, 2, "Slow to respond")
	require.NoError(t, err)

	rating, err := svc.RatingForSeller(ctx, sellerID)
	require.NoError(t, err)
	assert.Equal(t, 2, rating.Count)
	assert.InDelta(t, 3.5, rating.Average, 0.001)

	list, err := svc.ListForSeller(ctx, sellerID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// An uninvolved seller has none of it.
	other, err := svc.ListForSeller(ctx, primitive.NewObjectID())
	require.NoError(t, err)
	assert.Empty(t, other)
}
