package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dennismathu/moomarket/internal/config"
	"github.com/dennismathu/moomarket/internal/models"
	"github.com/dennismathu/moomarket/internal/services"
	"github.com/dennismathu/moomarket/internal/tasks"
)

// RestAdminHandler handles moderation and verification review endpoints.
// All routes are behind AdminMiddleware.
type RestAdminHandler struct {
	cfg                 *config.Config
	listingService      services.IListingService
	userService         services.IUserService
	verificationService services.IVerificationService
	taskClient          IAsynqClient
}

// NewRestAdminHandler creates a new RestAdminHandler.
func NewRestAdminHandler(
	cfg *config.Config,
	listingService services.IListingService,
	userService services.IUserService,
	verificationService services.IVerificationService,
	taskClient IAsynqClient,
) *RestAdminHandler {
	return &RestAdminHandler{
		cfg:                 cfg,
		listingService:      listingService,
		userService:         userService,
		verificationService: verificationService,
		taskClient:          taskClient,
	}
}

type suspendRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// SuspendListing handles POST /v1/admin/listing/:id/suspend
func (h *RestAdminHandler) SuspendListing(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req suspendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := h.listingService.SuspendListing(c.Request.Context(), listingID, adminID, req.Reason); err != nil {
		respondServiceError(c, err, "Failed to suspend listing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UnsuspendListing handles POST /v1/admin/listing/:id/unsuspend
func (h *RestAdminHandler) UnsuspendListing(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.listingService.UnsuspendListing(c.Request.Context(), listingID, adminID); err != nil {
		respondServiceError(c, err, "Failed to unsuspend listing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListSuspendedListings handles GET /v1/admin/listing/suspended
func (h *RestAdminHandler) ListSuspendedListings(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	suspensions, err := h.listingService.ListSuspendedListings(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, err, "Failed to list suspended listings")
		return
	}
	c.JSON(http.StatusOK, suspensions)
}

// SuspendUser handles POST /v1/admin/user/:id/suspend
func (h *RestAdminHandler) SuspendUser(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req suspendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := h.userService.SuspendUser(c.Request.Context(), userID, adminID, req.Reason); err != nil {
		respondServiceError(c, err, "Failed to suspend user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UnsuspendUser handles POST /v1/admin/user/:id/unsuspend
func (h *RestAdminHandler) UnsuspendUser(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.userService.UnsuspendUser(c.Request.Context(), userID, adminID); err != nil {
		respondServiceError(c, err, "Failed to unsuspend user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListPendingVerifications handles GET /v1/admin/verification/pending
func (h *RestAdminHandler) ListPendingVerifications(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	pending, err := h.verificationService.ListPending(c.Request.Context(), limit)
	if err != nil {
		respondServiceError(c, err, "Failed to list pending verifications")
		return
	}
	c.JSON(http.StatusOK, pending)
}

type reviewRequest struct {
	Note string `json:"note"`
}

// ApproveVerification handles POST /v1/admin/verification/:id/approve
func (h *RestAdminHandler) ApproveVerification(c *gin.Context) {
	h.review(c, h.verificationService.Approve, "Verification approved",
		"Congratulations! Your seller verification has been approved. Your listings now carry the verified badge.")
}

// RejectVerification handles POST /v1/admin/verification/:id/reject
func (h *RestAdminHandler) RejectVerification(c *gin.Context) {
	h.review(c, h.verificationService.Reject, "Verification rejected",
		"Unfortunately your seller verification was not approved. You may correct the issues and submit again.")
}

func (h *RestAdminHandler) review(
	c *gin.Context,
	op func(ctx context.Context, verificationID, adminUserID primitive.ObjectID, note string) (*models.SellerVerification, error),
	subject, bodyText string,
) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	verificationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	reviewed, err := op(c.Request.Context(), verificationID, adminID, req.Note)
	if err != nil {
		respondServiceError(c, err, "Failed to review verification")
		return
	}

	h.notifySeller(c.Request.Context(), reviewed.SellerID, subject, bodyText, req.Note)
	c.JSON(http.StatusOK, reviewed)
}

// notifySeller emails a verification outcome, honoring the seller's
// preferences. Best effort.
func (h *RestAdminHandler) notifySeller(ctx context.Context, sellerID primitive.ObjectID, subject, bodyText, note string) {
	seller, err := h.userService.FindUserByID(ctx, sellerID)
	if err != nil {
		log.Printf("Verification email: failed to load seller %s: %v", sellerID.Hex(), err)
		return
	}
	if !seller.WantsEmail(func(p *models.NotificationPreferences) bool { return p.VerificationOutcome }) {
		return
	}

	body := fmt.Sprintf("Hello %s,\n\n%s", seller.Name, bodyText)
	if note != "" {
		body += fmt.Sprintf("\n\nReviewer note: %s", note)
	}
	body += fmt.Sprintf("\n\n%s", h.cfg.AppName)

	task, err := tasks.NewEmailDeliveryTask(seller.Email, subject, body)
	if err != nil {
		log.Printf("Verification email: failed to build task for %s: %v", seller.Email, err)
		return
	}
	if _, err := h.taskClient.EnqueueContext(ctx, task); err != nil {
		log.Printf("Verification email: failed to enqueue for %s: %v", seller.Email, err)
	}
}
