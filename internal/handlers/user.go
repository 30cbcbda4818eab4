package handlers

import (
	"errors"
	"io"
	"net/http"

	"contest-vote-backend/internal/middleware"
	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// CreateUserRequest is the optional body of POST /api/v1/users
type CreateUserRequest struct {
	PushToken *string `json:"push_token"`
}

// CreateUser handles POST /api/v1/users. Public sign-up always issues a voter
// token; staff tokens are minted out of band.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateUserRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userService.CreateUser(ctx, models.RoleVoter, req.PushToken)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create user")
		respondError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("user_id", user.ID).
		Str("role", string(user.Role)).
		Msg("User created")

	respondJSON(w, http.StatusOK, user)
}

// UpdatePushTokenRequest is the body of PUT /api/v1/users/me/push-token
type UpdatePushTokenRequest struct {
	PushToken *string `json:"push_token"`
}

// UpdatePushToken handles PUT /api/v1/users/me/push-token
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req UpdatePushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.userService.UpdatePushToken(ctx, userID, req.PushToken); err != nil {
		respondServiceError(w, err, "Failed to update push token")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
