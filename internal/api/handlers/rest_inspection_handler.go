package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dennismathu/moomarket/internal/config"
	"github.com/dennismathu/moomarket/internal/models"
	"github.com/dennismathu/moomarket/internal/services"
	"github.com/dennismathu/moomarket/internal/tasks"
	"github.com/dennismathu/moomarket/internal/utils"
)

// RestInspectionHandler handles REST requests for viewing requests.
type RestInspectionHandler struct {
	cfg               *config.Config
	inspectionService services.IInspectionService
	listingService    services.IListingService
	userService       services.IUserService
	taskClient        IAsynqClient
}

// NewRestInspectionHandler creates a new RestInspectionHandler.
func NewRestInspectionHandler(
	cfg *config.Config,
	inspectionService services.IInspectionService,
	listingService services.IListingService,
	userService services.IUserService,
	taskClient IAsynqClient,
) *RestInspectionHandler {
	return &RestInspectionHandler{
		cfg:               cfg,
		inspectionService: inspectionService,
		listingService:    listingService,
		userService:       userService,
		taskClient:        taskClient,
	}
}

type createInspectionRequest struct {
	ListingID string `json:"listing_id" binding:"required"`
	Date      string `json:"date" binding:"required"` // YYYY-MM-DD
}

// Create handles POST /v1/inspection
func (h *RestInspectionHandler) Create(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req createInspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	listingID, err := primitive.ObjectIDFromHex(req.ListingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}
	date, err := utils.ParseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.inspectionService.RequestInspection(c.Request.Context(), listingID, buyerID, date)
	if err != nil {
		respondServiceError(c, err, "Failed to create viewing request")
		return
	}

	h.notifyParty(c.Request.Context(), created, created.SellerID,
		func(p *models.NotificationPreferences) bool { return p.InspectionRequested },
		"New viewing request",
		"A buyer has requested to view %q on %s. Log in to confirm or suggest another date.")

	c.JSON(http.StatusCreated, created)
}

// Confirm handles POST /v1/inspection/:id/confirm: the seller accepts the
// currently requested date.
func (h *RestInspectionHandler) Confirm(c *gin.Context) {
	h.transition(c, func(ctx context.Context, requestID, actorID primitive.ObjectID, _ time.Time) (*models.InspectionRequest, error) {
		return h.inspectionService.SellerConfirm(ctx, requestID, actorID)
	}, false, func(req *models.InspectionRequest, actorID primitive.ObjectID) (primitive.ObjectID, string, string) {
		return req.BuyerID, "Viewing confirmed", "The farmer confirmed your viewing of %q for %s."
	})
}

// Propose handles POST /v1/inspection/:id/propose: either party suggests a
// new date.
func (h *RestInspectionHandler) Propose(c *gin.Context) {
	h.transition(c, func(ctx context.Context, requestID, actorID primitive.ObjectID, date time.Time) (*models.InspectionRequest, error) {
		return h.inspectionService.Propose(ctx, requestID, actorID, date)
	}, true, func(req *models.InspectionRequest, actorID primitive.ObjectID) (primitive.ObjectID, string, string) {
		other := req.BuyerID
		if actorID == req.BuyerID {
			other = req.SellerID
		}
		return other, "New date suggested", "A new date has been suggested for the viewing of %q: %s. Log in to respond."
	})
}

// Accept handles POST /v1/inspection/:id/accept: the counterparty accepts
// a proposed date.
func (h *RestInspectionHandler) Accept(c *gin.Context) {
	h.transition(c, func(ctx context.Context, requestID, actorID primitive.ObjectID, _ time.Time) (*models.InspectionRequest, error) {
		return h.inspectionService.AcceptProposedDate(ctx, requestID, actorID)
	}, false, func(req *models.InspectionRequest, actorID primitive.ObjectID) (primitive.ObjectID, string, string) {
		other := req.BuyerID
		if actorID == req.BuyerID {
			other = req.SellerID
		}
		return other, "Suggested date accepted", "Your suggested date for the viewing of %q was accepted: %s."
	})
}

// Complete handles POST /v1/inspection/:id/complete: the seller marks the
// viewing as having taken place.
func (h *RestInspectionHandler) Complete(c *gin.Context) {
	h.transition(c, func(ctx context.Context, requestID, actorID primitive.ObjectID, _ time.Time) (*models.InspectionRequest, error) {
		return h.inspectionService.MarkCompleted(ctx, requestID, actorID)
	}, false, nil)
}

// EditDate handles PUT /v1/inspection/:id/date: the buyer adjusts the date
// of a still-pending request.
func (h *RestInspectionHandler) EditDate(c *gin.Context) {
	h.transition(c, func(ctx context.Context, requestID, actorID primitive.ObjectID, date time.Time) (*models.InspectionRequest, error) {
		return h.inspectionService.BuyerEditDate(ctx, requestID, actorID, date)
	}, true, func(req *models.InspectionRequest, actorID primitive.ObjectID) (primitive.ObjectID, string, string) {
		return req.SellerID, "Viewing request updated", "The buyer changed the requested date for the viewing of %q to %s."
	})
}

type dateBody struct {
	Date string `json:"date" binding:"required"` // YYYY-MM-DD
}

// transition factors the shared shape of the state-machine endpoints: parse
// IDs (and a date when needed), run the operation, then email the other
// party if they opted in to update notifications.
func (h *RestInspectionHandler) transition(
	c *gin.Context,
	op func(ctx context.Context, requestID, actorID primitive.ObjectID, date time.Time) (*models.InspectionRequest, error),
	needsDate bool,
	recipient func(req *models.InspectionRequest, actorID primitive.ObjectID) (primitive.ObjectID, string, string),
) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}
	requestID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var date time.Time
	if needsDate {
		var body dateBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		parsed, err := utils.ParseDate(body.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		date = parsed
	}

	updated, err := op(c.Request.Context(), requestID, actorID, date)
	if err != nil {
		respondServiceError(c, err, "Failed to update viewing request")
		return
	}

	if recipient != nil {
		to, subject, bodyFmt := recipient(updated, actorID)
		h.notifyParty(c.Request.Context(), updated, to,
			func(p *models.NotificationPreferences) bool { return p.InspectionUpdated },
			subject, bodyFmt)
	}

	c.JSON(http.StatusOK, updated)
}

// GetByID handles GET /v1/inspection/:id. Only the two parties may read a
// request.
func (h *RestInspectionHandler) GetByID(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	requestID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	req, err := h.inspectionService.FindByID(c.Request.Context(), requestID)
	if err != nil {
		respondServiceError(c, err, "Failed to retrieve viewing request")
		return
	}
	if req.PartyOf(userID) == models.PartyNone {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.JSON(http.StatusOK, req)
}

// ListMine handles GET /v1/me/inspections, returning both sides.
func (h *RestInspectionHandler) ListMine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	asBuyer, err := h.inspectionService.FindByBuyer(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch viewing requests")
		return
	}
	asSeller, err := h.inspectionService.FindBySeller(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch viewing requests")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"as_buyer":  asBuyer,
		"as_seller": asSeller,
	})
}

// notifyParty enqueues an email to one party of a request, honoring their
// notification preferences. Failures are logged, never surfaced: email is
// best effort and the state change has already committed.
func (h *RestInspectionHandler) notifyParty(
	ctx context.Context,
	req *models.InspectionRequest,
	to primitive.ObjectID,
	pick func(*models.NotificationPreferences) bool,
	subject, bodyFmt string,
) {
	user, err := h.userService.FindUserByID(ctx, to)
	if err != nil {
		log.Printf("Viewing email: failed to load user %s: %v", to.Hex(), err)
		return
	}
	if !user.WantsEmail(pick) {
		return
	}

	title := "a listed animal"
	if listing, err := h.listingService.FindListingByID(ctx, req.ListingID); err == nil {
		title = listing.Title
	}
	dateStr := req.PreferredDate.Format("Monday, 2 January 2006")

	body := fmt.Sprintf("Hello %s,\n\n", user.Name) +
		fmt.Sprintf(bodyFmt, title, dateStr) +
		fmt.Sprintf("\n\n%s", h.cfg.AppName)

	task, err := tasks.NewEmailDeliveryTask(user.Email, subject, body)
	if err != nil {
		log.Printf("Viewing email: failed to build task for %s: %v", user.Email, err)
		return
	}
	if _, err := h.taskClient.EnqueueContext(ctx, task); err != nil {
		log.Printf("Viewing email: failed to enqueue for %s: %v", user.Email, err)
	}
}
