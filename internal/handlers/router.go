package handlers

import (
	"net/http"

	"contest-vote-backend/internal/metrics"
	"contest-vote-backend/internal/middleware"
	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Services bundles what the HTTP layer needs
type Services struct {
	Users       *services.UserService
	Contests    *services.ContestService
	Photos      *services.PhotoService
	Pairing     *services.PairingService
	Votes       *services.VoteService
	Ranking     *services.RankingService
	Hub         *services.ContestHub
	VoteLimiter *middleware.RateLimiter
	Metrics     *metrics.Metrics
	CORSOrigins string
}

// NewRouter builds the chi router with every API route
func NewRouter(svc Services) http.Handler {
	userHandler := NewUserHandler(svc.Users)
	contestHandler := NewContestHandler(svc.Contests, svc.Ranking)
	photoHandler := NewPhotoHandler(svc.Photos)
	votingHandler := NewVotingHandler(svc.Pairing, svc.Votes)
	wsHandler := NewWebSocketHandler(svc.Hub, svc.Users, svc.Contests, svc.Votes)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(svc.Metrics.Middleware)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(svc.CORSOrigins))

	staff := middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", userHandler.CreateUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(svc.Users))

			r.Put("/users/me/push-token", userHandler.UpdatePushToken)

			r.With(staff).Post("/contests", contestHandler.CreateContest)

			r.Route("/contests/{contest_id}", func(r chi.Router) {
				r.Get("/", contestHandler.GetContest)
				r.With(staff).Post("/close", contestHandler.CloseContest)
				r.Get("/standings", contestHandler.GetStandings)
				r.With(staff).Get("/votes", contestHandler.ListVotes)

				r.Post("/photos/upload", photoHandler.UploadPhoto)
				r.With(staff).Get("/photos", photoHandler.ListPhotos)

				r.Get("/pair", votingHandler.GetPair)
				r.Get("/vote-status", votingHandler.GetVoteStatus)
				if svc.VoteLimiter != nil {
					r.With(svc.VoteLimiter.Handler).Post("/votes", votingHandler.CastVote)
				} else {
					r.Post("/votes", votingHandler.CastVote)
				}
			})

			r.With(staff).Post("/photos/{photo_id}/approve", photoHandler.ApprovePhoto)
			r.With(staff).Post("/photos/{photo_id}/reject", photoHandler.RejectPhoto)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	if svc.Metrics != nil {
		r.Handle("/metrics", svc.Metrics.Handler())
	}

	return r
}
