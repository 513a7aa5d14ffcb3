package handlers_test

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dennismathu/moomarket/internal/api/middleware"
	"github.com/dennismathu/moomarket/internal/models"
	"github.com/dennismathu/moomarket/internal/services"
)

// --- Mocks ---

// MockInspectionService
type MockInspectionService struct {
	mock.Mock
}

func (m *MockInspectionService) RequestInspection(ctx context.Context, listingID, buyerID primitive.ObjectID, date time.Time) (*models.InspectionRequest, error) {
	args := m.Called(ctx, listingID, buyerID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InspectionRequest), args.Error(1)
}

func (m *MockInspectionService) SellerConfirm(ctx context.Context, requestID, sellerID primitive.ObjectID) (*models.InspectionRequest, error) {
	args := m.Called(ctx, requestID, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InspectionRequest), args.Error(1)
}

func (m *MockInspectionService) Propose(ctx context.Context, requestID, actorID primitive.ObjectID, newDate time.Time) (*models.InspectionRequest, error) {
	args := m.Called(ctx, requestID, actorID, newDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InspectionRequest), args.Error(1)
}

func (m *MockInspectionService) AcceptProposedDate(ctx context.Context, requestID, actorID primitive.ObjectID) (*models.InspectionRequest, error) {
	args := m.Called(ctx, requestID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InspectionRequest), args.Error(1)
}

func (m *MockInspectionService) MarkCompleted(ctx context.Context, requestID, sellerID primitive.ObjectID) (*models.InspectionRequest, error) {
	args := m.Called(ctx, requestID, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InspectionRequest), args.Error(1)
}

func (m *MockInspectionService) BuyerEditDate(ctx context.Context, requestID, buyerID primitive.ObjectID, newDate time.Time) (*models.InspectionRequest, error) {
	args := m.Called(ctx, requestID, buyerID, newDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InspectionRequest), args.Error(1)
}

func (m *MockInspectionService) FindByID(ctx context.Context, requestID primitive.ObjectID) (*models.InspectionRequest, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InspectionRequest), args.Error(1)
}

func (m *MockInspectionService) FindOpenRequest(ctx context.Context, buyerID, listingID primitive.ObjectID) (*models.InspectionRequest, error) {
	args := m.Called(ctx, buyerID, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InspectionRequest), args.Error(1)
}

func (m *MockInspectionService) FindByBuyer(ctx context.Context, buyerID primitive.ObjectID) ([]models.InspectionRequest, error) {
	args := m.Called(ctx, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.InspectionRequest), args.Error(1)
}

func (m *MockInspectionService) FindBySeller(ctx context.Context, sellerID primitive.ObjectID) ([]models.InspectionRequest, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.InspectionRequest), args.Error(1)
}

func (m *MockInspectionService) FindConfirmedOnDate(ctx context.Context, date time.Time) ([]models.InspectionRequest, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.InspectionRequest), args.Error(1)
}

// MockListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) CreateListing(ctx context.Context, sellerID primitive.ObjectID, l *models.Listing) (*models.Listing, error) {
	args := m.Called(ctx, sellerID, l)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) FindListingByID(ctx context.Context, listingID primitive.ObjectID) (*models.Listing, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) UpdateListing(ctx context.Context, listingID, sellerID primitive.ObjectID, updates map[string]interface{}) (*models.Listing, error) {
	args := m.Called(ctx, listingID, sellerID, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) PublishListing(ctx context.Context, listingID, sellerID primitive.ObjectID) error {
	args := m.Called(ctx, listingID, sellerID)
	return args.Error(0)
}

func (m *MockListingService) HideListing(ctx context.Context, listingID, sellerID primitive.ObjectID) error {
	args := m.Called(ctx, listingID, sellerID)
	return args.Error(0)
}

func (m *MockListingService) UnhideListing(ctx context.Context, listingID, sellerID primitive.ObjectID) error {
	args := m.Called(ctx, listingID, sellerID)
	return args.Error(0)
}

func (m *MockListingService) DeleteListing(ctx context.Context, listingID, sellerID primitive.ObjectID) error {
	args := m.Called(ctx, listingID, sellerID)
	return args.Error(0)
}

func (m *MockListingService) SearchListings(ctx context.Context, params services.ListingSearchParams) ([]models.Listing, string, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]models.Listing), args.String(1), args.Error(2)
}

func (m *MockListingService) FindListingsBySellerID(ctx context.Context, sellerID primitive.ObjectID) ([]models.Listing, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

func (m *MockListingService) AddPhotoToListing(ctx context.Context, listingID primitive.ObjectID, photoKey string) error {
	args := m.Called(ctx, listingID, photoKey)
	return args.Error(0)
}

func (m *MockListingService) SuspendListing(ctx context.Context, listingID, adminUserID primitive.ObjectID, reason string) error {
	args := m.Called(ctx, listingID, adminUserID, reason)
	return args.Error(0)
}

func (m *MockListingService) UnsuspendListing(ctx context.Context, listingID, adminUserID primitive.ObjectID) error {
	args := m.Called(ctx, listingID, adminUserID)
	return args.Error(0)
}

func (m *MockListingService) ListSuspendedListings(ctx context.Context, limit int) ([]models.ListingSuspension, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ListingSuspension), args.Error(1)
}

// MockUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, email, password, name, phone string, role models.Role, county string) (*models.User, error) {
	args := m.Called(ctx, email, password, name, phone, role, county)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*models.User), args.String(1), args.Error(2)
}

func (m *MockUserService) FindUserByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) UpdateProfile(ctx context.Context, userID primitive.ObjectID, updates map[string]interface{}) (*models.User, error) {
	args := m.Called(ctx, userID, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) UpdateNotificationPreferences(ctx context.Context, userID primitive.ObjectID, prefs models.NotificationPreferences) error {
	args := m.Called(ctx, userID, prefs)
	return args.Error(0)
}

func (m *MockUserService) DeleteUser(ctx context.Context, userID primitive.ObjectID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockUserService) SuspendUser(ctx context.Context, userID, adminUserID primitive.ObjectID, reason string) error {
	args := m.Called(ctx, userID, adminUserID, reason)
	return args.Error(0)
}

func (m *MockUserService) UnsuspendUser(ctx context.Context, userID, adminUserID primitive.ObjectID) error {
	args := m.Called(ctx, userID, adminUserID)
	return args.Error(0)
}

// MockSavedListingService
type MockSavedListingService struct {
	mock.Mock
}

func (m *MockSavedListingService) Save(ctx context.Context, userID, listingID primitive.ObjectID) error {
	args := m.Called(ctx, userID, listingID)
	return args.Error(0)
}

func (m *MockSavedListingService) Unsave(ctx context.Context, userID, listingID primitive.ObjectID) error {
	args := m.Called(ctx, userID, listingID)
	return args.Error(0)
}

func (m *MockSavedListingService) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Listing, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

// MockFeedbackService
type MockFeedbackService struct {
	mock.Mock
}

func (m *MockFeedbackService) LeaveFeedback(ctx context.Context, buyerID, listingID primitive.ObjectID, rating int, comment string) (*models.Feedback, error) {
	args := m.Called(ctx, buyerID, listingID, rating, comment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Feedback), args.Error(1)
}

func (m *MockFeedbackService) ListForSeller(ctx context.Context, sellerID primitive.ObjectID) ([]models.Feedback, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Feedback), args.Error(1)
}

func (m *MockFeedbackService) RatingForSeller(ctx context.Context, sellerID primitive.ObjectID) (*services.SellerRating, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SellerRating), args.Error(1)
}

// MockS3Storage
type MockS3Storage struct {
	mock.Mock
}

func (m *MockS3Storage) PresignListingPhotoUpload(ctx context.Context, sellerID, listingID, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, sellerID, listingID, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockS3Storage) PresignVerificationDocUpload(ctx context.Context, sellerID, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, sellerID, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockS3Storage) GetObject(ctx context.Context, key string) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *MockS3Storage) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	args := m.Called(ctx, key, contentType, body)
	return args.Error(0)
}

func (m *MockS3Storage) DeleteObject(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockAsynqClient
type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

// authAs mimics AuthMiddleware for a given user.
func authAs(userID primitive.ObjectID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID.Hex())
		c.Next()
	}
}
