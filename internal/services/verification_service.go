package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dennismathu/moomarket/internal/db"
	"github.com/dennismathu/moomarket/internal/models"
)

// IVerificationService defines the interface for seller identity verification.
type IVerificationService interface {
	Submit(ctx context.Context, sellerID primitive.ObjectID, nationalID string, documentKeys []string) (*models.SellerVerification, error)
	FindBySeller(ctx context.Context, sellerID primitive.ObjectID) (*models.SellerVerification, error)
	ListPending(ctx context.Context, limit int) ([]models.SellerVerification, error)
	Approve(ctx context.Context, verificationID, adminUserID primitive.ObjectID, note string) (*models.SellerVerification, error)
	Reject(ctx context.Context, verificationID, adminUserID primitive.ObjectID, note string) (*models.SellerVerification, error)
}

const verificationsCollection = "seller_verifications"

// verificationService implements IVerificationService.
type verificationService struct {
	db *mongo.Database
}

// NewVerificationService creates a new VerificationService.
func NewVerificationService(database *mongo.Database) IVerificationService {
	return &verificationService{db: database}
}

// Submit files a verification request for review. A seller can have at most
// one pending submission, and an approved seller cannot resubmit.
func (s *verificationService) Submit(ctx context.Context, sellerID primitive.ObjectID, nationalID string, documentKeys []string) (*models.SellerVerification, error) {
	if strings.TrimSpace(nationalID) == "" {
		return nil, validationErrorf("national ID number is required")
	}
	if len(documentKeys) == 0 {
		return nil, validationErrorf("at least one document is required")
	}

	var seller models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": sellerID, "deleted": false}).Decode(&seller)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding seller %s: %w", sellerID.Hex(), err)
	}
	if seller.Role != models.RoleSeller {
		return nil, validationErrorf("only sellers can request verification")
	}
	if seller.Verification == models.VerificationApproved {
		return nil, validationErrorf("seller is already verified")
	}

	count, err := s.db.Collection(verificationsCollection).CountDocuments(ctx, bson.M{
		"seller_id": sellerID,
		"status":    models.VerificationPending,
	})
	if err != nil {
		return nil, fmt.Errorf("error checking for pending verification: %w", err)
	}
	if count > 0 {
		return nil, validationErrorf("a verification request is already pending review")
	}

	now := time.Now().UTC()
	submission := &models.SellerVerification{
		ID:           primitive.NewObjectID(),
		SellerID:     sellerID,
		NationalID:   nationalID,
		DocumentKeys: documentKeys,
		Status:       models.VerificationPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	operation := func() error {
		_, insertErr := s.db.Collection(verificationsCollection).InsertOne(ctx, submission)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert verification for seller %s: %w", sellerID.Hex(), err)
	}

	if err := s.stampUser(ctx, sellerID, models.VerificationPending); err != nil {
		return nil, err
	}
	return submission, nil
}

// FindBySeller returns the most recent verification submission for a seller.
func (s *verificationService) FindBySeller(ctx context.Context, sellerID primitive.ObjectID) (*models.SellerVerification, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var v models.SellerVerification
	err := s.db.Collection(verificationsCollection).FindOne(ctx, bson.M{"seller_id": sellerID}, opts).Decode(&v)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding verification for seller %s: %w", sellerID.Hex(), err)
	}
	return &v, nil
}

// ListPending returns submissions awaiting admin review, oldest first.
func (s *verificationService) ListPending(ctx context.Context, limit int) ([]models.SellerVerification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	opts := options.Find().SetLimit(int64(limit)).SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(verificationsCollection).Find(ctx, bson.M{"status": models.VerificationPending}, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing pending verifications: %w", err)
	}
	defer cursor.Close(ctx)
	var results []models.SellerVerification
	if err = cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("error decoding pending verifications: %w", err)
	}
	return results, nil
}

// Approve marks a pending submission approved and stamps the seller verified.
func (s *verificationService) Approve(ctx context.Context, verificationID, adminUserID primitive.ObjectID, note string) (*models.SellerVerification, error) {
	return s.review(ctx, verificationID, adminUserID, note, models.VerificationApproved)
}

// Reject marks a pending submission rejected. The seller may resubmit.
func (s *verificationService) Reject(ctx context.Context, verificationID, adminUserID primitive.ObjectID, note string) (*models.SellerVerification, error) {
	return s.review(ctx, verificationID, adminUserID, note, models.VerificationRejected)
}

func (s *verificationService) review(ctx context.Context, verificationID, adminUserID primitive.ObjectID, note string, outcome models.VerificationState) (*models.SellerVerification, error) {
	filter := bson.M{"_id": verificationID, "status": models.VerificationPending}
	update := bson.M{"$set": bson.M{
		"status":      outcome,
		"reviewed_by": adminUserID,
		"review_note": note,
		"updated_at":  time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var reviewed models.SellerVerification
	err := s.db.Collection(verificationsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&reviewed)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			var check models.SellerVerification
			checkErr := s.db.Collection(verificationsCollection).FindOne(ctx, bson.M{"_id": verificationID}).Decode(&check)
			if errors.Is(checkErr, mongo.ErrNoDocuments) {
				return nil, mongo.ErrNoDocuments
			}
			return nil, validationErrorf("verification %s has already been reviewed", verificationID.Hex())
		}
		return nil, fmt.Errorf("failed to review verification %s: %w", verificationID.Hex(), err)
	}

	if err := s.stampUser(ctx, reviewed.SellerID, outcome); err != nil {
		return nil, err
	}
	return &reviewed, nil
}

func (s *verificationService) stampUser(ctx context.Context, sellerID primitive.ObjectID, state models.VerificationState) error {
	update := bson.M{"$set": bson.M{"verification": state, "updated_at": time.Now().UTC()}}
	if _, err := s.db.Collection(usersCollection).UpdateByID(ctx, sellerID, update); err != nil {
		return fmt.Errorf("failed to stamp verification state on seller %s: %w", sellerID.Hex(), err)
	}
	return nil
}
