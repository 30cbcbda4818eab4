package handlers

import (
	"net/http"

	"contest-vote-backend/internal/middleware"
	"contest-vote-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// VotingHandler serves pairs to voters and records their votes
type VotingHandler struct {
	pairingService *services.PairingService
	voteService    *services.VoteService
}

// NewVotingHandler creates a new voting handler
func NewVotingHandler(pairingService *services.PairingService, voteService *services.VoteService) *VotingHandler {
	return &VotingHandler{
		pairingService: pairingService,
		voteService:    voteService,
	}
}

// GetPair handles GET /api/v1/contests/{contest_id}/pair
func (h *VotingHandler) GetPair(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	contestID := chi.URLParam(r, "contest_id")

	result, err := h.pairingService.NextPair(ctx, contestID, userID)
	if err != nil {
		respondServiceError(w, err, "Failed to get pair")
		return
	}

	status := http.StatusOK
	if result.Outcome == services.PairVotingClosed {
		status = http.StatusConflict
	}
	respondJSON(w, status, result)
}

// CastVoteRequest is the body of POST /api/v1/contests/{contest_id}/votes
type CastVoteRequest struct {
	WinnerPhotoID string `json:"winner_photo_id"`
	LoserPhotoID  string `json:"loser_photo_id"`
}

// CastVote handles POST /api/v1/contests/{contest_id}/votes
func (h *VotingHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	contestID := chi.URLParam(r, "contest_id")

	var req CastVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.voteService.CastVote(ctx, contestID, userID, req.WinnerPhotoID, req.LoserPhotoID)
	if err != nil {
		respondServiceError(w, err, "Failed to cast vote")
		return
	}

	status := http.StatusOK
	switch result.Outcome {
	case services.VotingClosed, services.DuplicatePair:
		status = http.StatusConflict
	case services.InvalidPhotoPair:
		log.Warn().
			Str("user_id", userID).
			Str("contest_id", contestID).
			Str("winner_photo_id", req.WinnerPhotoID).
			Str("loser_photo_id", req.LoserPhotoID).
			Str("reason", result.Reason).
			Msg("Rejected invalid photo pair")
		status = http.StatusBadRequest
	case services.QuotaExceeded:
		status = http.StatusTooManyRequests
	}

	respondJSON(w, status, result)
}

// GetVoteStatus handles GET /api/v1/contests/{contest_id}/vote-status
func (h *VotingHandler) GetVoteStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	status, err := h.voteService.VoteStatus(ctx, chi.URLParam(r, "contest_id"), userID)
	if err != nil {
		respondServiceError(w, err, "Failed to get vote status")
		return
	}

	respondJSON(w, http.StatusOK, status)
}
