package handlers

import (
	"net/http"

	"contest-vote-backend/internal/middleware"
	"contest-vote-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// ContestHandler handles contest registration and lifecycle requests
type ContestHandler struct {
	contestService *services.ContestService
	rankingService *services.RankingService
}

// NewContestHandler creates a new contest handler
func NewContestHandler(contestService *services.ContestService, rankingService *services.RankingService) *ContestHandler {
	return &ContestHandler{
		contestService: contestService,
		rankingService: rankingService,
	}
}

// CreateContest handles POST /api/v1/contests
func (h *ContestHandler) CreateContest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, _ := middleware.GetClaims(ctx)

	var req services.CreateContestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	contest, err := h.contestService.CreateContest(ctx, claims, req)
	if err != nil {
		respondServiceError(w, err, "Failed to create contest")
		return
	}

	respondJSON(w, http.StatusCreated, contest)
}

// GetContest handles GET /api/v1/contests/{contest_id}
func (h *ContestHandler) GetContest(w http.ResponseWriter, r *http.Request) {
	contest, err := h.contestService.GetContest(r.Context(), chi.URLParam(r, "contest_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to get contest")
		return
	}

	respondJSON(w, http.StatusOK, contest)
}

// CloseContest handles POST /api/v1/contests/{contest_id}/close
func (h *ContestHandler) CloseContest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, _ := middleware.GetClaims(ctx)
	contestID := chi.URLParam(r, "contest_id")

	result, err := h.contestService.CloseContest(ctx, claims, contestID)
	if err != nil {
		respondServiceError(w, err, "Failed to close contest")
		return
	}

	log.Info().
		Str("contest_id", contestID).
		Str("user_id", claims.UserID).
		Msg("Contest closed by organizer")

	respondJSON(w, http.StatusOK, result)
}

// GetStandings handles GET /api/v1/contests/{contest_id}/standings
func (h *ContestHandler) GetStandings(w http.ResponseWriter, r *http.Request) {
	result, err := h.rankingService.Standings(r.Context(), chi.URLParam(r, "contest_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to get standings")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ListVotes handles GET /api/v1/contests/{contest_id}/votes
func (h *ContestHandler) ListVotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, _ := middleware.GetClaims(ctx)

	votes, err := h.contestService.ListVotes(ctx, claims, chi.URLParam(r, "contest_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to list votes")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"votes": votes,
		"total": len(votes),
	})
}
