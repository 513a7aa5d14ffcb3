package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dennismathu/moomarket/internal/config"
	"github.com/dennismathu/moomarket/internal/db"
	"github.com/dennismathu/moomarket/internal/models"
	"github.com/dennismathu/moomarket/internal/utils"
)

// IInspectionService owns the lifecycle of viewing requests: creation,
// confirmation, the two-party reschedule loop, and completion.
type IInspectionService interface {
	RequestInspection(ctx context.Context, listingID, buyerID primitive.ObjectID, date time.Time) (*models.InspectionRequest, error)
	SellerConfirm(ctx context.Context, requestID, sellerID primitive.ObjectID) (*models.InspectionRequest, error)
	Propose(ctx context.Context, requestID, actorID primitive.ObjectID, newDate time.Time) (*models.InspectionRequest, error)
	AcceptProposedDate(ctx context.Context, requestID, actorID primitive.ObjectID) (*models.InspectionRequest, error)
	MarkCompleted(ctx context.Context, requestID, sellerID primitive.ObjectID) (*models.InspectionRequest, error)
	BuyerEditDate(ctx context.Context, requestID, buyerID primitive.ObjectID, newDate time.Time) (*models.InspectionRequest, error)

	FindByID(ctx context.Context, requestID primitive.ObjectID) (*models.InspectionRequest, error)
	FindOpenRequest(ctx context.Context, buyerID, listingID primitive.ObjectID) (*models.InspectionRequest, error)
	FindByBuyer(ctx context.Context, buyerID primitive.ObjectID) ([]models.InspectionRequest, error)
	FindBySeller(ctx context.Context, sellerID primitive.ObjectID) ([]models.InspectionRequest, error)
	FindConfirmedOnDate(ctx context.Context, date time.Time) ([]models.InspectionRequest, error)
}

const inspectionsCollection = "inspection_requests"

// inspectionService implements IInspectionService.
type inspectionService struct {
	db             *mongo.Database
	cfg            *config.Config
	listingService IListingService
	notifications  ICountInvalidator // may be nil
}

// ICountInvalidator lets mutating inspection operations drop cached unread
// counts for the affected users without importing the notification service.
type ICountInvalidator interface {
	InvalidateUnreadCount(ctx context.Context, userIDs ...primitive.ObjectID)
}

// NewInspectionService creates a new InspectionService. The invalidator is
// optional; pass nil when no unread-count cache is in play.
func NewInspectionService(database *mongo.Database, cfg *config.Config, listingService IListingService, invalidator ICountInvalidator) IInspectionService {
	return &inspectionService{
		db:             database,
		cfg:            cfg,
		listingService: listingService,
		notifications:  invalidator,
	}
}

// RequestInspection creates a new pending viewing request for a published
// listing. At most one open (non-completed) request may exist per
// (buyer, listing) pair.
func (s *inspectionService) RequestInspection(ctx context.Context, listingID, buyerID primitive.ObjectID, date time.Time) (*models.InspectionRequest, error) {
	if err := s.checkDate(date); err != nil {
		return nil, err
	}

	listing, err := s.listingService.FindListingByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("failed to load listing %s for inspection request: %w", listingID.Hex(), err)
	}
	if listing.IsDraft {
		return nil, validationErrorf("listing %s is not published", listingID.Hex())
	}
	if listing.SellerID == buyerID {
		return nil, validationErrorf("cannot request a viewing of your own listing")
	}

	existing, err := s.FindOpenRequest(ctx, buyerID, listingID)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to check for existing request: %w", err)
	}
	if existing != nil {
		return nil, validationErrorf("an open viewing request already exists for this listing")
	}

	now := time.Now().UTC()
	req := &models.InspectionRequest{
		ID:            primitive.NewObjectID(),
		ListingID:     listingID,
		BuyerID:       buyerID,
		SellerID:      listing.SellerID,
		PreferredDate: utils.DateOnly(date),
		Status:        models.InspectionPending,
		RescheduledBy: models.PartyNone,
		WasEdited:     false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	operation := func() error {
		_, insertErr := s.db.Collection(inspectionsCollection).InsertOne(ctx, req)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to insert inspection request for buyer %s on listing %s: %w",
			buyerID.Hex(), listingID.Hex(), err)
	}

	s.invalidate(ctx, req)
	return req, nil
}

// SellerConfirm moves a pending request to confirmed. The seller cannot
// confirm while their own reschedule proposal is outstanding; the buyer has
// to acknowledge the new date first.
func (s *inspectionService) SellerConfirm(ctx context.Context, requestID, sellerID primitive.ObjectID) (*models.InspectionRequest, error) {
	req, err := s.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.PartyOf(sellerID) != models.PartySeller {
		return nil, validationErrorf("only the seller can confirm a viewing")
	}
	if req.Status != models.InspectionPending {
		return nil, validationErrorf("cannot confirm a %s viewing request", req.Status)
	}
	if req.RescheduledBy == models.PartySeller {
		return nil, validationErrorf("awaiting the buyer's response to your proposed date")
	}

	return s.applyTransition(ctx, req, bson.M{
		"status":         models.InspectionConfirmed,
		"rescheduled_by": models.PartyNone,
		"was_edited":     true,
	})
}

// Propose suggests a new date for an existing request. Either party may
// propose; the request returns to (or stays) pending with the proposer
// recorded, awaiting the counterparty's acknowledgment.
func (s *inspectionService) Propose(ctx context.Context, requestID, actorID primitive.ObjectID, newDate time.Time) (*models.InspectionRequest, error) {
	if err := s.checkDate(newDate); err != nil {
		return nil, err
	}

	req, err := s.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	party := req.PartyOf(actorID)
	if party == models.PartyNone {
		return nil, validationErrorf("only the buyer or the seller can reschedule this viewing")
	}
	if req.Status == models.InspectionCompleted {
		return nil, validationErrorf("cannot reschedule a completed viewing")
	}
	newDate = utils.DateOnly(newDate)
	if newDate.Equal(req.PreferredDate) {
		return nil, validationErrorf("the proposed date matches the current date")
	}

	return s.applyTransition(ctx, req, bson.M{
		"status":         models.InspectionPending,
		"rescheduled_by": party,
		"preferred_date": newDate,
		"was_edited":     true,
	})
}

// AcceptProposedDate acknowledges the counterparty's reschedule proposal and
// clears the flag. A seller accepting a buyer's date confirms the viewing
// outright; a buyer accepting a seller's date leaves the request pending for
// the seller's confirmation.
func (s *inspectionService) AcceptProposedDate(ctx context.Context, requestID, actorID primitive.ObjectID) (*models.InspectionRequest, error) {
	req, err := s.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	party := req.PartyOf(actorID)
	if party == models.PartyNone {
		return nil, validationErrorf("only the buyer or the seller can respond to this viewing")
	}
	if req.Status != models.InspectionPending {
		return nil, validationErrorf("cannot accept a date on a %s viewing request", req.Status)
	}
	if req.RescheduledBy == models.PartyNone {
		return nil, validationErrorf("no proposed date is awaiting a response")
	}
	if req.RescheduledBy == party {
		return nil, validationErrorf("cannot accept your own proposed date")
	}

	status := models.InspectionPending
	if party == models.PartySeller {
		status = models.InspectionConfirmed
	}
	return s.applyTransition(ctx, req, bson.M{
		"status":         status,
		"rescheduled_by": models.PartyNone,
		"was_edited":     true,
	})
}

// MarkCompleted closes out a confirmed viewing. Terminal: no further
// transition is permitted afterwards.
func (s *inspectionService) MarkCompleted(ctx context.Context, requestID, sellerID primitive.ObjectID) (*models.InspectionRequest, error) {
	req, err := s.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.PartyOf(sellerID) != models.PartySeller {
		return nil, validationErrorf("only the seller can mark a viewing completed")
	}
	if req.Status != models.InspectionConfirmed {
		return nil, validationErrorf("cannot complete a %s viewing request", req.Status)
	}

	return s.applyTransition(ctx, req, bson.M{
		"status":         models.InspectionCompleted,
		"rescheduled_by": models.PartyNone,
	})
}

// BuyerEditDate lets the buyer adjust their own requested date before the
// seller has engaged. Blocked while a seller proposal is outstanding: the
// buyer must accept or counter-propose instead.
func (s *inspectionService) BuyerEditDate(ctx context.Context, requestID, buyerID primitive.ObjectID, newDate time.Time) (*models.InspectionRequest, error) {
	if err := s.checkDate(newDate); err != nil {
		return nil, err
	}

	req, err := s.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.PartyOf(buyerID) != models.PartyBuyer {
		return nil, validationErrorf("only the buyer can edit their viewing request")
	}
	if req.Status != models.InspectionPending {
		return nil, validationErrorf("cannot edit a %s viewing request", req.Status)
	}
	if req.RescheduledBy == models.PartySeller {
		return nil, validationErrorf("the farmer proposed a new date; accept it or suggest another")
	}

	return s.applyTransition(ctx, req, bson.M{
		"preferred_date": utils.DateOnly(newDate),
		"was_edited":     true,
	})
}

// FindByID fetches and validates one request.
func (s *inspectionService) FindByID(ctx context.Context, requestID primitive.ObjectID) (*models.InspectionRequest, error) {
	var req models.InspectionRequest
	err := s.db.Collection(inspectionsCollection).FindOne(ctx, bson.M{"_id": requestID}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding inspection request %s: %w", requestID.Hex(), err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// FindOpenRequest returns the non-completed request for a (buyer, listing)
// pair, or mongo.ErrNoDocuments.
func (s *inspectionService) FindOpenRequest(ctx context.Context, buyerID, listingID primitive.ObjectID) (*models.InspectionRequest, error) {
	var req models.InspectionRequest
	filter := bson.M{
		"buyer_id":   buyerID,
		"listing_id": listingID,
		"status":     bson.M{"$ne": models.InspectionCompleted},
	}
	err := s.db.Collection(inspectionsCollection).FindOne(ctx, filter).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding open request for buyer %s on listing %s: %w",
			buyerID.Hex(), listingID.Hex(), err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// FindByBuyer returns all of a buyer's requests, most recently updated first.
func (s *inspectionService) FindByBuyer(ctx context.Context, buyerID primitive.ObjectID) ([]models.InspectionRequest, error) {
	return s.findAll(ctx, bson.M{"buyer_id": buyerID})
}

// FindBySeller returns all requests against a seller's listings, most
// recently updated first.
func (s *inspectionService) FindBySeller(ctx context.Context, sellerID primitive.ObjectID) ([]models.InspectionRequest, error) {
	return s.findAll(ctx, bson.M{"seller_id": sellerID})
}

// FindConfirmedOnDate returns confirmed requests whose preferred date equals
// the given calendar date. Used by the reminder sweep.
func (s *inspectionService) FindConfirmedOnDate(ctx context.Context, date time.Time) ([]models.InspectionRequest, error) {
	return s.findAll(ctx, bson.M{
		"status":         models.InspectionConfirmed,
		"preferred_date": utils.DateOnly(date),
	})
}

func (s *inspectionService) findAll(ctx context.Context, filter bson.M) ([]models.InspectionRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := s.db.Collection(inspectionsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying inspection requests: %w", err)
	}
	defer cursor.Close(ctx)

	var results []models.InspectionRequest
	if err = cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("error decoding inspection requests: %w", err)
	}
	for i := range results {
		if err := results[i].Validate(); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// applyTransition writes the new state, asserting the status observed during
// guard evaluation so a concurrent transition surfaces as an error rather
// than a silent overwrite.
func (s *inspectionService) applyTransition(ctx context.Context, req *models.InspectionRequest, set bson.M) (*models.InspectionRequest, error) {
	set["updated_at"] = time.Now().UTC()

	filter := bson.M{"_id": req.ID, "status": req.Status}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.InspectionRequest
	err := s.db.Collection(inspectionsCollection).
		FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).
		Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("inspection request %s changed concurrently, please retry", req.ID.Hex())
		}
		return nil, fmt.Errorf("failed to update inspection request %s: %w", req.ID.Hex(), err)
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}

	s.invalidate(ctx, &updated)
	return &updated, nil
}

func (s *inspectionService) invalidate(ctx context.Context, req *models.InspectionRequest) {
	if s.notifications != nil {
		s.notifications.InvalidateUnreadCount(ctx, req.BuyerID, req.SellerID)
	}
}

// checkDate rejects dates before today in the marketplace timezone.
func (s *inspectionService) checkDate(date time.Time) error {
	if utils.DaysUntil(date, time.Now(), s.cfg.Location()) < 0 {
		return validationErrorf("viewing date cannot be in the past")
	}
	return nil
}
