package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dennismathu/moomarket/internal/api/middleware"
	"github.com/dennismathu/moomarket/internal/services"
)

// IAsynqClient defines the asynq client methods used by the handlers. An
// interface allows easier mocking than the concrete asynq.Client.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// currentUserID reads the authenticated user's ID from the Gin context.
// Returns false with a 401 already written when the context carries no
// usable identity.
func currentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	idHex := c.GetString(middleware.ContextKeyUserID)
	userID, err := primitive.ObjectIDFromHex(idHex)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return primitive.NilObjectID, false
	}
	return userID, true
}

// parseIDParam parses an ObjectID path parameter, writing a 400 on failure.
func parseIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// respondServiceError maps service errors onto HTTP statuses: guard
// violations become 400, missing documents 404, everything else 500.
func respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case services.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, mongo.ErrNoDocuments):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
