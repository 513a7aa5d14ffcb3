package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dennismathu/moomarket/internal/services"
	"github.com/dennismathu/moomarket/internal/storage"
)

// RestVerificationHandler handles REST requests for seller verification.
type RestVerificationHandler struct {
	verificationService services.IVerificationService
	storageService      storage.IS3Storage
}

// NewRestVerificationHandler creates a new RestVerificationHandler.
func NewRestVerificationHandler(verificationService services.IVerificationService, storageService storage.IS3Storage) *RestVerificationHandler {
	return &RestVerificationHandler{
		verificationService: verificationService,
		storageService:      storageService,
	}
}

type docUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// RequestDocumentUpload handles POST /v1/verification/document. Returns a
// presigned PUT URL for one identity document.
func (h *RestVerificationHandler) RequestDocumentUpload(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req docUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	url, key, err := h.storageService.PresignVerificationDocUpload(c.Request.Context(), sellerID.Hex(), req.Filename, req.ContentType)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create upload URL"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"upload_url": url, "key": key})
}

type submitVerificationRequest struct {
	NationalID   string   `json:"national_id" binding:"required"`
	DocumentKeys []string `json:"document_keys" binding:"required"`
}

// Submit handles POST /v1/verification
func (h *RestVerificationHandler) Submit(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req submitVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	submission, err := h.verificationService.Submit(c.Request.Context(), sellerID, req.NationalID, req.DocumentKeys)
	if err != nil {
		respondServiceError(c, err, "Failed to submit verification")
		return
	}
	c.JSON(http.StatusCreated, submission)
}

// GetMine handles GET /v1/verification
func (h *RestVerificationHandler) GetMine(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		return
	}
	submission, err := h.verificationService.FindBySeller(c.Request.Context(), sellerID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch verification")
		return
	}
	c.JSON(http.StatusOK, submission)
}
