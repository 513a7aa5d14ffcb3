package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dennismathu/moomarket/internal/models"
	"github.com/dennismathu/moomarket/internal/services"
)

// RestUserHandler handles REST requests for accounts and profiles.
type RestUserHandler struct {
	userService     services.IUserService
	feedbackService services.IFeedbackService
}

// NewRestUserHandler creates a new RestUserHandler.
func NewRestUserHandler(userService services.IUserService, feedbackService services.IFeedbackService) *RestUserHandler {
	return &RestUserHandler{
		userService:     userService,
		feedbackService: feedbackService,
	}
}

type registerRequest struct {
	Email    string      `json:"email" binding:"required"`
	Password string      `json:"password" binding:"required"`
	Name     string      `json:"name" binding:"required"`
	Phone    string      `json:"phone"`
	Role     models.Role `json:"role" binding:"required"`
	County   string      `json:"county"`
}

// Register handles POST /v1/user/register
func (h *RestUserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req.Email, req.Password, req.Name, req.Phone, req.Role, req.County)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		respondServiceError(c, err, "Failed to register")
		return
	}
	c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /v1/user/login
func (h *RestUserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	user, token, err := h.userService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		respondServiceError(c, err, "Failed to log in")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// GetUserByID handles GET /v1/user/:id: a public profile with the seller's
// rating attached.
func (h *RestUserHandler) GetUserByID(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	user, err := h.userService.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		} else {
			respondServiceError(c, err, "Failed to retrieve user")
		}
		return
	}

	profile := gin.H{
		"id":           user.ID,
		"name":         user.Name,
		"role":         user.Role,
		"county":       user.County,
		"verification": user.Verification,
		"created_at":   user.CreatedAt,
	}

	if user.Role == models.RoleSeller {
		if rating, err := h.feedbackService.RatingForSeller(c.Request.Context(), user.ID); err == nil {
			profile["rating"] = rating
		}
	}

	c.JSON(http.StatusOK, profile)
}

// GetMe handles GET /v1/me
func (h *RestUserHandler) GetMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	user, err := h.userService.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "Failed to retrieve account")
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe handles PUT /v1/me
func (h *RestUserHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), userID, updates)
	if err != nil {
		respondServiceError(c, err, "Failed to update profile")
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateNotificationPreferences handles PUT /v1/me/notifications
func (h *RestUserHandler) UpdateNotificationPreferences(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var prefs models.NotificationPreferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.userService.UpdateNotificationPreferences(c.Request.Context(), userID, prefs); err != nil {
		respondServiceError(c, err, "Failed to update preferences")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteMe handles DELETE /v1/me
func (h *RestUserHandler) DeleteMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.userService.DeleteUser(c.Request.Context(), userID); err != nil {
		respondServiceError(c, err, "Failed to delete account")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
