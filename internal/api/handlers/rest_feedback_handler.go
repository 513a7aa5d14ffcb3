package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dennismathu/moomarket/internal/services"
)

// RestFeedbackHandler handles REST requests for post-viewing feedback.
type RestFeedbackHandler struct {
	feedbackService services.IFeedbackService
}

// NewRestFeedbackHandler creates a new RestFeedbackHandler.
func NewRestFeedbackHandler(feedbackService services.IFeedbackService) *RestFeedbackHandler {
	return &RestFeedbackHandler{feedbackService: feedbackService}
}

type leaveFeedbackRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// LeaveFeedback handles POST /v1/listing/:id/feedback
func (h *RestFeedbackHandler) LeaveFeedback(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req leaveFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	fb, err := h.feedbackService.LeaveFeedback(c.Request.Context(), buyerID, listingID, req.Rating, req.Comment)
	if err != nil {
		respondServiceError(c, err, "Failed to leave feedback")
		return
	}
	c.JSON(http.StatusCreated, fb)
}

// ListForSeller handles GET /v1/user/:id/feedback
func (h *RestFeedbackHandler) ListForSeller(c *gin.Context) {
	sellerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	feedback, err := h.feedbackService.ListForSeller(c.Request.Context(), sellerID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch feedback")
		return
	}
	c.JSON(http.StatusOK, feedback)
}
