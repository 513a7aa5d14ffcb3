package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dennismathu/moomarket/internal/models"
	"github.com/dennismathu/moomarket/internal/services"
	"github.com/dennismathu/moomarket/internal/storage"
	"github.com/dennismathu/moomarket/internal/tasks"
)

// RestListingHandler handles REST requests for listings.
type RestListingHandler struct {
	listingService services.IListingService
	savedService   services.ISavedListingService
	storageService storage.IS3Storage
	taskClient     IAsynqClient
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(listingService services.IListingService, savedService services.ISavedListingService, storageService storage.IS3Storage, taskClient IAsynqClient) *RestListingHandler {
	return &RestListingHandler{
		listingService: listingService,
		savedService:   savedService,
		storageService: storageService,
		taskClient:     taskClient,
	}
}

// SearchListings handles GET /v1/listing/search
func (h *RestListingHandler) SearchListings(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}

	params := services.ListingSearchParams{Limit: limit}
	if q := c.Query("q"); q != "" {
		params.Query = &q
	}
	if breed := c.Query("breed"); breed != "" {
		params.Breed = &breed
	}
	if county := c.Query("county"); county != "" {
		params.County = &county
	}
	if minStr := c.Query("min_price"); minStr != "" {
		if min, err := strconv.ParseFloat(minStr, 64); err == nil {
			params.MinPrice = &min
		}
	}
	if maxStr := c.Query("max_price"); maxStr != "" {
		if max, err := strconv.ParseFloat(maxStr, 64); err == nil {
			params.MaxPrice = &max
		}
	}
	if cursor := c.Query("cursor"); cursor != "" {
		params.Cursor = &cursor
	}

	listings, nextCursor, err := h.listingService.SearchListings(c.Request.Context(), params)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search listings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":        listings,
		"next_cursor": nextCursor,
	})
}

// GetListingByID handles GET /v1/listing/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		} else {
			respondServiceError(c, err, "Failed to retrieve listing")
		}
		return
	}
	c.JSON(http.StatusOK, listing)
}

// GetSellerListings handles GET /v1/user/:id/listing
func (h *RestListingHandler) GetSellerListings(c *gin.Context) {
	sellerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	listings, err := h.listingService.FindListingsBySellerID(c.Request.Context(), sellerID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch seller listings")
		return
	}
	c.JSON(http.StatusOK, listings)
}

// CreateListing handles POST /v1/listing
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body models.Listing
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	listing, err := h.listingService.CreateListing(c.Request.Context(), sellerID, &body)
	if err != nil {
		respondServiceError(c, err, "Failed to create listing")
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// UpdateListing handles PUT /v1/listing/:id
func (h *RestListingHandler) UpdateListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	listing, err := h.listingService.UpdateListing(c.Request.Context(), listingID, sellerID, updates)
	if err != nil {
		respondServiceError(c, err, "Failed to update listing")
		return
	}
	c.JSON(http.StatusOK, listing)
}

// PublishListing handles POST /v1/listing/:id/publish
func (h *RestListingHandler) PublishListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.listingService.PublishListing(c.Request.Context(), listingID, sellerID); err != nil {
		respondServiceError(c, err, "Failed to publish listing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HideListing handles POST /v1/listing/:id/hide
func (h *RestListingHandler) HideListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.listingService.HideListing(c.Request.Context(), listingID, sellerID); err != nil {
		respondServiceError(c, err, "Failed to hide listing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UnhideListing handles POST /v1/listing/:id/unhide
func (h *RestListingHandler) UnhideListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.listingService.UnhideListing(c.Request.Context(), listingID, sellerID); err != nil {
		respondServiceError(c, err, "Failed to unhide listing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteListing handles DELETE /v1/listing/:id
func (h *RestListingHandler) DeleteListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.listingService.DeleteListing(c.Request.Context(), listingID, sellerID); err != nil {
		respondServiceError(c, err, "Failed to delete listing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type photoUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// RequestPhotoUpload handles POST /v1/listing/:id/photo. Returns a
// presigned PUT URL; the client uploads to it and then calls
// ConfirmPhotoUpload with the returned key.
func (h *RestListingHandler) RequestPhotoUpload(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req photoUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	// Ownership check: only the listing's seller may attach photos.
	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		respondServiceError(c, err, "Failed to retrieve listing")
		return
	}
	if listing.SellerID != sellerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Listing does not belong to you"})
		return
	}

	url, key, err := h.storageService.PresignListingPhotoUpload(c.Request.Context(), sellerID.Hex(), listingID.Hex(), req.Filename, req.ContentType)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create upload URL"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"upload_url": url, "key": key})
}

type photoConfirmRequest struct {
	Key string `json:"key" binding:"required"`
}

// ConfirmPhotoUpload handles POST /v1/listing/:id/photo/confirm. Enqueues
// the image worker, which normalizes the photo and attaches it.
func (h *RestListingHandler) ConfirmPhotoUpload(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req photoConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		respondServiceError(c, err, "Failed to retrieve listing")
		return
	}
	if listing.SellerID != sellerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Listing does not belong to you"})
		return
	}

	task, err := tasks.NewImageProcessTask(req.Key, listingID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue photo processing"})
		return
	}
	if _, err := h.taskClient.EnqueueContext(c.Request.Context(), task); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue photo processing"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

// SaveListing handles POST /v1/listing/:id/save
func (h *RestListingHandler) SaveListing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.savedService.Save(c.Request.Context(), userID, listingID); err != nil {
		respondServiceError(c, err, "Failed to save listing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UnsaveListing handles DELETE /v1/listing/:id/save
func (h *RestListingHandler) UnsaveListing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.savedService.Unsave(c.Request.Context(), userID, listingID); err != nil {
		respondServiceError(c, err, "Failed to unsave listing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetSavedListings handles GET /v1/me/saved
func (h *RestListingHandler) GetSavedListings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listings, err := h.savedService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch saved listings")
		return
	}
	c.JSON(http.StatusOK, listings)
}
