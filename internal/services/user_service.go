package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dennismathu/moomarket/internal/auth"
	"github.com/dennismathu/moomarket/internal/config"
	"github.com/dennismathu/moomarket/internal/db"
	"github.com/dennismathu/moomarket/internal/models"
)

// ErrEmailTaken is returned on registration with an already-used email.
var ErrEmailTaken = errors.New("email address is already registered")

// ErrInvalidCredentials is returned on a failed login. Deliberately the same
// for unknown email and wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// IUserService defines the interface for user-related operations.
type IUserService interface {
	Register(ctx context.Context, email, password, name, phone string, role models.Role, county string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	FindUserByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID primitive.ObjectID, updates map[string]interface{}) (*models.User, error)
	UpdateNotificationPreferences(ctx context.Context, userID primitive.ObjectID, prefs models.NotificationPreferences) error
	DeleteUser(ctx context.Context, userID primitive.ObjectID) error
	// Admin moderation
	SuspendUser(ctx context.Context, userID, adminUserID primitive.ObjectID, reason string) error
	UnsuspendUser(ctx context.Context, userID, adminUserID primitive.ObjectID) error
}

const (
	usersCollection           = "users"
	userSuspensionsCollection = "user_suspensions"
)

// userService implements IUserService.
type userService struct {
	db         *mongo.Database
	cfg        *config.Config
	passwordRe *regexp.Regexp
}

// NewUserService creates a new UserService.
func NewUserService(database *mongo.Database, cfg *config.Config) IUserService {
	pattern := cfg.PasswordRegexp
	if pattern == "" {
		pattern = "^.{8,}$"
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		log.Printf("Invalid PASSWORD_REGEXP %q, falling back to length check: %v", pattern, err)
		re = regexp.MustCompile("^.{8,}$")
	}
	return &userService{db: database, cfg: cfg, passwordRe: re}
}

// Register creates a new user account. Email uniqueness is enforced by a
// unique index on the users collection.
func (s *userService) Register(ctx context.Context, email, password, name, phone string, role models.Role, county string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, validationErrorf("a valid email address is required")
	}
	if !s.passwordRe.MatchString(password) {
		return nil, validationErrorf("password must be at least 8 characters")
	}
	if strings.TrimSpace(name) == "" {
		return nil, validationErrorf("name is required")
	}
	switch role {
	case models.RoleBuyer, models.RoleSeller:
	default:
		return nil, validationErrorf("role must be buyer or seller")
	}
	if county != "" && !models.ValidCounty(county) {
		return nil, validationErrorf("unknown county %q", county)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	newUser := &models.User{
		ID:                      primitive.NewObjectID(),
		Email:                   email,
		PasswordHash:            hashed,
		Name:                    name,
		Phone:                   phone,
		Role:                    role,
		County:                  county,
		Verification:            models.VerificationNone,
		NotificationPreferences: models.DefaultNotificationPreferences(),
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	operation := func() error {
		_, insertErr := s.db.Collection(usersCollection).InsertOne(ctx, newUser)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to insert new user: %w", err)
	}

	return newUser, nil
}

// Login verifies credentials and issues a signed JWT.
func (s *userService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	filter := bson.M{"email": email, "deleted": false}
	err := s.db.Collection(usersCollection).FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("error finding user by email: %w", err)
	}

	if user.Suspended {
		return nil, "", validationErrorf("this account is suspended")
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := auth.GenerateJWT(user.ID, string(user.Role), user.IsAdmin, s.cfg.JwtSecret, s.cfg.JwtTTL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate JWT for user %s: %w", user.ID.Hex(), err)
	}

	return &user, token, nil
}

// FindUserByID finds a non-deleted user by ID.
func (s *userService) FindUserByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	var user models.User
	filter := bson.M{"_id": userID, "deleted": false}
	err := s.db.Collection(usersCollection).FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by ID %s: %w", userID.Hex(), err)
	}
	return &user, nil
}

// FindUserByEmail finds a non-deleted user by email.
func (s *userService) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	filter := bson.M{"email": email, "deleted": false}
	err := s.db.Collection(usersCollection).FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding user by email: %w", err)
	}
	return &user, nil
}

// UpdateProfile updates mutable profile fields.
func (s *userService) UpdateProfile(ctx context.Context, userID primitive.ObjectID, updates map[string]interface{}) (*models.User, error) {
	allowedUpdates := bson.M{}
	for key, value := range updates {
		switch key {
		case "name", "phone", "county":
			allowedUpdates[key] = value
		default:
			return nil, validationErrorf("field '%s' cannot be updated via UpdateProfile", key)
		}
	}
	if len(allowedUpdates) == 0 {
		return nil, validationErrorf("no valid fields provided for update")
	}
	if county, ok := allowedUpdates["county"].(string); ok && county != "" && !models.ValidCounty(county) {
		return nil, validationErrorf("unknown county %q", county)
	}
	allowedUpdates["updated_at"] = time.Now().UTC()

	filter := bson.M{"_id": userID, "deleted": false}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.User
	err := s.db.Collection(usersCollection).
		FindOneAndUpdate(ctx, filter, bson.M{"$set": allowedUpdates}, opts).
		Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("failed to update profile for user %s: %w", userID.Hex(), err)
	}
	return &updated, nil
}

// UpdateNotificationPreferences replaces the user's email notification opt-ins.
func (s *userService) UpdateNotificationPreferences(ctx context.Context, userID primitive.ObjectID, prefs models.NotificationPreferences) error {
	filter := bson.M{"_id": userID, "deleted": false}
	update := bson.M{"$set": bson.M{
		"notification_preferences": prefs,
		"updated_at":               time.Now().UTC(),
	}}
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update notification preferences for %s: %w", userID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// DeleteUser soft-deletes a user account.
func (s *userService) DeleteUser(ctx context.Context, userID primitive.ObjectID) error {
	now := time.Now().UTC()
	filter := bson.M{"_id": userID, "deleted": false}
	update := bson.M{"$set": bson.M{"deleted": true, "deleted_at": now, "updated_at": now}}
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", userID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// SuspendUser marks a user suspended and records who did it and why.
// Suspended sellers drop out of search results and cannot log in.
func (s *userService) SuspendUser(ctx context.Context, userID, adminUserID primitive.ObjectID, reason string) error {
	now := time.Now().UTC()
	filter := bson.M{"_id": userID, "deleted": false, "suspended": false}
	update := bson.M{"$set": bson.M{"suspended": true, "updated_at": now}}
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to suspend user %s: %w", userID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		var check models.User
		checkErr := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID, "deleted": false}).Decode(&check)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		return validationErrorf("user %s is already suspended", userID.Hex())
	}

	record := bson.M{
		"_id":        primitive.NewObjectID(),
		"user":       userID,
		"admin":      adminUserID,
		"reason":     reason,
		"executed":   now,
		"lifted":     nil,
		"created_at": now,
	}
	operation := func() error {
		_, insertErr := s.db.Collection(userSuspensionsCollection).InsertOne(ctx, record)
		return insertErr
	}
	if err := db.Try(operation); err != nil {
		return fmt.Errorf("user %s suspended but failed to write audit record: %w", userID.Hex(), err)
	}
	return nil
}

// UnsuspendUser lifts a suspension and closes the audit record.
func (s *userService) UnsuspendUser(ctx context.Context, userID, adminUserID primitive.ObjectID) error {
	now := time.Now().UTC()
	filter := bson.M{"_id": userID, "deleted": false, "suspended": true}
	update := bson.M{"$set": bson.M{"suspended": false, "updated_at": now}}
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to unsuspend user %s: %w", userID.Hex(), err)
	}
	if result.MatchedCount == 0 {
		var check models.User
		checkErr := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID, "deleted": false}).Decode(&check)
		if errors.Is(checkErr, mongo.ErrNoDocuments) {
			return mongo.ErrNoDocuments
		}
		return validationErrorf("user %s is not suspended", userID.Hex())
	}

	auditFilter := bson.M{"user": userID, "lifted": nil}
	auditUpdate := bson.M{"$set": bson.M{"lifted": now, "lifted_by": adminUserID}}
	if _, err := s.db.Collection(userSuspensionsCollection).UpdateOne(ctx, auditFilter, auditUpdate); err != nil {
		return fmt.Errorf("user %s unsuspended but failed to close audit record: %w", userID.Hex(), err)
	}
	return nil
}
