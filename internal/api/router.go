package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dennismathu/moomarket/internal/api/handlers"
	"github.com/dennismathu/moomarket/internal/api/middleware"
	"github.com/dennismathu/moomarket/internal/captcha"
	"github.com/dennismathu/moomarket/internal/config"
	"github.com/dennismathu/moomarket/internal/services"
	"github.com/dennismathu/moomarket/internal/storage"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskClient handlers.IAsynqClient) *gin.Engine {
	// notificationService and inspectionService reference each other, so the
	// notification side is created first and linked afterwards.
	listingService := services.NewListingService(db, cfg)
	notificationService := services.NewNotificationService(cfg, rdb)
	inspectionService := services.NewInspectionService(db, cfg, listingService, notificationService)
	notificationService.SetInspectionService(inspectionService)

	userService := services.NewUserService(db, cfg)
	verificationService := services.NewVerificationService(db)
	savedListingService := services.NewSavedListingService(db, listingService)
	feedbackService := services.NewFeedbackService(db, inspectionService)

	s3StorageService, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize S3 storage for API: %v", err)
	}

	captchaVerifier := captcha.NewTurnstileVerifier(cfg)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Global middleware, order matters: CORS, then captcha, then limits.
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.CaptchaMiddleware(cfg, captchaVerifier))
	r.Use(rateLimiter.Limit())

	userHandler := handlers.NewRestUserHandler(userService, feedbackService)
	listingHandler := handlers.NewRestListingHandler(listingService, savedListingService, s3StorageService, taskClient)
	inspectionHandler := handlers.NewRestInspectionHandler(cfg, inspectionService, listingService, userService, taskClient)
	notificationHandler := handlers.NewRestNotificationHandler(notificationService)
	verificationHandler := handlers.NewRestVerificationHandler(verificationService, s3StorageService)
	feedbackHandler := handlers.NewRestFeedbackHandler(feedbackService)
	adminHandler := handlers.NewRestAdminHandler(cfg, listingService, userService, verificationService, taskClient)

	v1 := r.Group("/v1")
	{
		// Public routes
		v1.POST("/user/register", userHandler.Register)
		v1.POST("/user/login", userHandler.Login)
		v1.GET("/user/:id", userHandler.GetUserByID)
		v1.GET("/user/:id/listing", listingHandler.GetSellerListings)
		v1.GET("/user/:id/feedback", feedbackHandler.ListForSeller)

		v1.GET("/listing/search", listingHandler.SearchListings)
		v1.GET("/listing/:id", listingHandler.GetListingByID)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/me", userHandler.GetMe)
			authRequired.PUT("/me", userHandler.UpdateMe)
			authRequired.DELETE("/me", userHandler.DeleteMe)
			authRequired.PUT("/me/notifications", userHandler.UpdateNotificationPreferences)
			authRequired.GET("/me/saved", listingHandler.GetSavedListings)
			authRequired.GET("/me/inspections", inspectionHandler.ListMine)
			authRequired.GET("/me/notifications", notificationHandler.List)
			authRequired.GET("/me/notifications/unread", notificationHandler.UnreadCount)

			authRequired.POST("/listing", listingHandler.CreateListing)
			authRequired.PUT("/listing/:id", listingHandler.UpdateListing)
			authRequired.DELETE("/listing/:id", listingHandler.DeleteListing)
			authRequired.POST("/listing/:id/publish", listingHandler.PublishListing)
			authRequired.POST("/listing/:id/hide", listingHandler.HideListing)
			authRequired.POST("/listing/:id/unhide", listingHandler.UnhideListing)
			authRequired.POST("/listing/:id/photo", listingHandler.RequestPhotoUpload)
			authRequired.POST("/listing/:id/photo/confirm", listingHandler.ConfirmPhotoUpload)
			authRequired.POST("/listing/:id/save", listingHandler.SaveListing)
			authRequired.DELETE("/listing/:id/save", listingHandler.UnsaveListing)
			authRequired.POST("/listing/:id/feedback", feedbackHandler.LeaveFeedback)

			authRequired.POST("/inspection", inspectionHandler.Create)
			authRequired.GET("/inspection/:id", inspectionHandler.GetByID)
			authRequired.POST("/inspection/:id/confirm", inspectionHandler.Confirm)
			authRequired.POST("/inspection/:id/propose", inspectionHandler.Propose)
			authRequired.POST("/inspection/:id/accept", inspectionHandler.Accept)
			authRequired.POST("/inspection/:id/complete", inspectionHandler.Complete)
			authRequired.PUT("/inspection/:id/date", inspectionHandler.EditDate)

			authRequired.POST("/verification", verificationHandler.Submit)
			authRequired.GET("/verification", verificationHandler.GetMine)
			authRequired.POST("/verification/document", verificationHandler.RequestDocumentUpload)
		}

		// Admin routes
		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.GET("/listing/suspended", adminHandler.ListSuspendedListings)
			adminRequired.POST("/listing/:id/suspend", adminHandler.SuspendListing)
			adminRequired.POST("/listing/:id/unsuspend", adminHandler.UnsuspendListing)
			adminRequired.POST("/user/:id/suspend", adminHandler.SuspendUser)
			adminRequired.POST("/user/:id/unsuspend", adminHandler.UnsuspendUser)
			adminRequired.GET("/verification/pending", adminHandler.ListPendingVerifications)
			adminRequired.POST("/verification/:id/approve", adminHandler.ApproveVerification)
			adminRequired.POST("/verification/:id/reject", adminHandler.RejectVerification)
		}
	}

	return r
}

// SetupServiceRouter configures the internal service engine, used by
// operators and integration tests for shutdown and mock email retrieval.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		case "getTestEmail":
			var args []string // Expect ["category", "email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [category, email]"})
				return
			}
			redisKey := fmt.Sprintf("mockemail:%s:%s", args[1], args[0])

			var emailJsonData string
			var getErr error
			found := false
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			for i := 0; i < 10; i++ {
				emailJsonData, getErr = rdb.Get(ctx, redisKey).Result()
				if getErr == nil {
					found = true
					rdb.Del(ctx, redisKey)
					break
				}
				if getErr != redis.Nil {
					log.Printf("Service API: Error getting key %s from Redis: %v", redisKey, getErr)
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				time.Sleep(200 * time.Millisecond)
			}

			if !found {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
				return
			}

			var emailData map[string]interface{}
			if err := json.Unmarshal([]byte(emailJsonData), &emailData); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
