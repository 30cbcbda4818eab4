package services

import (
	"math"

	"contest-vote-backend/internal/models"
)

// RatingUpdate describes the effect of one vote on the two photos involved
type RatingUpdate struct {
	WinnerID     string  `json:"winner_photo_id"`
	LoserID      string  `json:"loser_photo_id"`
	WinnerBefore float64 `json:"winner_before"`
	WinnerAfter  float64 `json:"winner_after"`
	LoserBefore  float64 `json:"loser_before"`
	LoserAfter   float64 `json:"loser_after"`
}

// ExpectedScore is the ELO probability that a photo rated ra beats one rated rb
func ExpectedScore(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/400))
}

// EloUpdate returns the new winner and loser ratings. The update is zero-sum:
// whatever the winner gains, the loser loses.
func EloUpdate(k, winner, loser float64) (float64, float64) {
	delta := k * (1 - ExpectedScore(winner, loser))
	return winner + delta, loser - delta
}

// ApplyVote updates both photos in place with a fixed K factor and bumps
// their comparison counts.
func ApplyVote(k float64, winner, loser *models.Photo) RatingUpdate {
	update := RatingUpdate{
		WinnerID:     winner.ID,
		LoserID:      loser.ID,
		WinnerBefore: winner.Rating,
		LoserBefore:  loser.Rating,
	}

	winner.Rating, loser.Rating = EloUpdate(k, winner.Rating, loser.Rating)
	winner.VoteCount++
	loser.VoteCount++

	update.WinnerAfter = winner.Rating
	update.LoserAfter = loser.Rating
	return update
}
