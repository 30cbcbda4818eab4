package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"contest-vote-backend/internal/repository"
	"contest-vote-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// respondServiceError maps service and store errors to HTTP statuses.
// Unknown errors are logged and reported as 500 with the given message.
func respondServiceError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, services.ErrForbidden):
		respondError(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, services.ErrInvalidInput):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrContestFinished):
		respondError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrStandingsUnavailable):
		respondError(w, err.Error(), http.StatusForbidden)
	default:
		log.Error().Err(err).Msg(message)
		respondError(w, message, http.StatusInternalServerError)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
