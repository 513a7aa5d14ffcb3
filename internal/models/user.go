package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role defines which side of the marketplace a user operates on.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// VerificationState tracks a seller's identity verification.
type VerificationState string

const (
	VerificationNone     VerificationState = "none"
	VerificationPending  VerificationState = "pending"
	VerificationApproved VerificationState = "approved"
	VerificationRejected VerificationState = "rejected"
)

// NotificationPreferences allows users to control email notifications.
type NotificationPreferences struct {
	InspectionRequested bool `bson:"inspection_requested" json:"inspection_requested"`
	InspectionUpdated   bool `bson:"inspection_updated" json:"inspection_updated"`
	InspectionReminder  bool `bson:"inspection_reminder" json:"inspection_reminder"`
	VerificationOutcome bool `bson:"verification_outcome" json:"verification_outcome"`
}

// DefaultNotificationPreferences enables everything; users opt out.
func DefaultNotificationPreferences() *NotificationPreferences {
	return &NotificationPreferences{
		InspectionRequested: true,
		InspectionUpdated:   true,
		InspectionReminder:  true,
		VerificationOutcome: true,
	}
}

// User represents a user in the system.
type User struct {
	ID                      primitive.ObjectID       `bson:"_id,omitempty" json:"id,omitempty"`
	Name                    string                   `bson:"name" json:"name"`
	Email                   string                   `bson:"email" json:"email"`
	Phone                   string                   `bson:"phone" json:"phone"`
	PasswordHash            string                   `bson:"password" json:"-"` // Store hash, not plaintext
	Role                    Role                     `bson:"role" json:"role"`
	County                  string                   `bson:"county" json:"county"`
	IsAdmin                 bool                     `bson:"is_admin" json:"is_admin"`
	Verification            VerificationState        `bson:"verification" json:"verification"`
	Suspended               bool                     `bson:"suspended" json:"suspended"`
	NotificationPreferences *NotificationPreferences `bson:"notification_preferences,omitempty" json:"notification_preferences,omitempty"`
	CreatedAt               time.Time                `bson:"created_at" json:"created_at"`
	UpdatedAt               time.Time                `bson:"updated_at" json:"updated_at"`
	Deleted                 bool                     `bson:"deleted" json:"-"` // Soft delete flag
}

// WantsEmail reports whether the user has the given notification kind enabled.
// Users without stored preferences get the defaults.
func (u *User) WantsEmail(pick func(*NotificationPreferences) bool) bool {
	prefs := u.NotificationPreferences
	if prefs == nil {
		prefs = DefaultNotificationPreferences()
	}
	return pick(prefs)
}
