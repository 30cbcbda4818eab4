package handlers

import (
	"net/http"

	"contest-vote-backend/internal/middleware"
	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// PhotoHandler handles photo-related HTTP requests
type PhotoHandler struct {
	photoService *services.PhotoService
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(photoService *services.PhotoService) *PhotoHandler {
	return &PhotoHandler{
		photoService: photoService,
	}
}

// UploadRequest represents a request to get a pre-signed URL
type UploadRequest struct {
	ContentType string `json:"content_type"`
}

// UploadPhoto handles POST /api/v1/contests/{contest_id}/photos/upload
func (h *PhotoHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, _ := middleware.GetClaims(ctx)
	contestID := chi.URLParam(r, "contest_id")

	var req UploadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ContentType == "" {
		req.ContentType = "image/jpeg"
	}

	resp, err := h.photoService.RegisterUpload(ctx, claims, contestID, req.ContentType)
	if err != nil {
		respondServiceError(w, err, "Failed to register upload")
		return
	}

	log.Info().
		Str("user_id", claims.UserID).
		Str("contest_id", contestID).
		Str("photo_id", resp.PhotoID).
		Msg("Photo upload registered")

	respondJSON(w, http.StatusOK, resp)
}

// ListPhotos handles GET /api/v1/contests/{contest_id}/photos?status=pending
func (h *PhotoHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, _ := middleware.GetClaims(ctx)

	status := models.PhotoStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.PhotoPending
	}

	photos, err := h.photoService.ListPhotos(ctx, claims, chi.URLParam(r, "contest_id"), status)
	if err != nil {
		respondServiceError(w, err, "Failed to list photos")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"photos": photos,
		"total":  len(photos),
	})
}

// ApprovePhoto handles POST /api/v1/photos/{photo_id}/approve
func (h *PhotoHandler) ApprovePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, _ := middleware.GetClaims(ctx)

	photo, err := h.photoService.ApprovePhoto(ctx, claims, chi.URLParam(r, "photo_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to approve photo")
		return
	}

	respondJSON(w, http.StatusOK, photo)
}

// RejectPhoto handles POST /api/v1/photos/{photo_id}/reject
func (h *PhotoHandler) RejectPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, _ := middleware.GetClaims(ctx)

	photo, err := h.photoService.RejectPhoto(ctx, claims, chi.URLParam(r, "photo_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to reject photo")
		return
	}

	respondJSON(w, http.StatusOK, photo)
}
