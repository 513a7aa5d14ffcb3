package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dennismathu/moomarket/internal/config"
	"github.com/dennismathu/moomarket/internal/models"
	"github.com/dennismathu/moomarket/internal/utils"
)

func setupTestDBVerification(t *testing.T, dbName string) *mongo.Database {
	return utils.SetupTestDB(t, dbName, "seller_verifications", "users")
}

func TestVerificationService_Lifecycle(t *testing.T) {
	db := setupTestDBVerification(t, "testdb_verification_lifecycle")
	svc := NewVerificationService(db)
	userSvc := NewUserService(db, &config.Config{JwtSecret: "s"})
	ctx := context.Background()
	adminID := primitive.NewObjectID()

	sellerID := seedSeller(t, db)
	docs := []string{"verification/doc1.jpg", "verification/doc2.jpg"}

	submitted, err := svc.Submit(ctx, sellerID, "12345678", docs)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationPending, submitted.Status)
	assert.Equal(t, docs, submitted.DocumentKeys)

	// The seller record is stamped pending.
	seller, err := userSvc.FindUserByID(ctx, sellerID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationPending, seller.Verification)

	// One pending submission at a time.
	_, err = svc.Submit(ctx, sellerID, "12345678", docs)
	assert.True(t, IsValidationError(err))

	pending, err := svc.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, submitted.ID, pending[0].ID)

	approved, err := svc.Approve(ctx, submitted.ID, adminID, "Documents check out")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, adminID, *approved.ReviewedBy)
	assert.Equal(t, "Documents check out", approved.ReviewNote)

	seller, err = userSvc.FindUserByID(ctx, sellerID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationApproved, seller.Verification)

	// Reviewing twice is rejected; so is resubmitting once approved.
	_, err = svc.Reject(ctx, submitted.ID, adminID, "")
	assert.True(t, IsValidationError(err))
	_, err = svc.Submit(ctx, sellerID, "12345678", docs)
	assert.True(t, IsValidationError(err))
}

func TestVerificationService_RejectAllowsResubmit(t *testing.T) {
	db := setupTestDBVerification(t, "testdb_verification_reject")
	svc := NewVerificationService(db)
	ctx := context.Background()
	adminID := primitive.NewObjectID()

	sellerID := seedSeller(t, db)
	docs := []string{"verification/doc1.jpg"}

	first, err := svc.Submit(ctx, sellerID, "87654321", docs)
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, first.ID, adminID, "ID photo unreadable")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationRejected, rejected.Status)

	second, err := svc.Submit(ctx, sellerID, "87654321", docs)
	require.NoError(t, err)

	// FindBySeller returns the latest submission.
	latest, err := svc.FindBySeller(ctx, sellerID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestVerificationService_SubmitGuards(t *testing.T) {
	db := setupTestDBVerification(t, "testdb_verification_guards")
	svc := NewVerificationService(db)
	ctx := context.Background()

	sellerID := seedSeller(t, db)
	docs := []string{"verification/doc1.jpg"}

	_, err := svc.Submit(ctx, sellerID, "   ", docs)
	assert.True(t, IsValidationError(err))
	_, err = svc.Submit(ctx, sellerID, "12345678", nil)
	assert.True(t, IsValidationError(err))
	_, err = svc.Submit(ctx, primitive.NewObjectID(), "12345678", docs)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)

	// Buyers cannot request verification.
	buyerSvc := NewUserService(db, &config.Config{JwtSecret: "s"})
	buyer, err := buyerSvc.Register(ctx, "buyer@example.com", "longenough", "B", "", models.RoleBuyer, "")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, buyer.ID, "12345678", docs)
	assert.True(t, IsValidationError(err))

	_, err = svc.FindBySeller(ctx, sellerID)
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)
}
