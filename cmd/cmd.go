package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contest-vote-backend/internal/config"
	"contest-vote-backend/internal/handlers"
	"contest-vote-backend/internal/metrics"
	"contest-vote-backend/internal/middleware"
	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"
	"contest-vote-backend/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options are the command line settings
type Options struct {
	ConfigPath string
	// MintRole, when set, prints a token for a new user with that role and exits
	MintRole string
}

// ParseFlags reads command line options
func ParseFlags(args []string) (Options, error) {
	var opts Options

	fs := flag.NewFlagSet("contest-vote-backend", flag.ContinueOnError)
	fs.StringVar(&opts.ConfigPath, "config", "config.yaml", "Path to the YAML config file")
	fs.StringVar(&opts.MintRole, "mint-token", "", "Create a user with this role (voter, organizer, admin), print its token and exit")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	switch models.Role(opts.MintRole) {
	case "", models.RoleVoter, models.RoleOrganizer, models.RoleAdmin:
	default:
		return Options{}, fmt.Errorf("unknown role %q", opts.MintRole)
	}
	return opts, nil
}

func Run() {
	opts, err := ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid arguments")
	}

	// Load configuration
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, pool, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer store.Close()

	userService := services.NewUserService(store, cfg.JWT.Secret)

	if opts.MintRole != "" {
		user, err := userService.CreateUser(ctx, models.Role(opts.MintRole), nil)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to mint token")
		}
		fmt.Printf("user_id=%s\ntoken=%s\n", user.ID, user.Token)
		return
	}

	m := metrics.New(pool)

	// Initialize services
	cache := services.NewStandingsCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer cache.Close()
	cache.Instrument(m)

	notifier, err := services.NewAPNsNotifier(store, cfg.APNs.KeyFile, cfg.APNs.KeyID, cfg.APNs.TeamID, cfg.APNs.Topic, cfg.APNs.Production)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create push notifier")
	}

	photoService, err := services.NewPhotoService(ctx, store, services.StorageConfig{
		Region:     cfg.AWS.Region,
		Bucket:     cfg.AWS.S3Bucket,
		AccessKey:  cfg.AWS.AccessKey,
		SecretKey:  cfg.AWS.SecretKey,
		Endpoint:   cfg.AWS.Endpoint,
		DisableSSL: cfg.AWS.DisableSSL,
	}, cfg.Voting.BaseRating)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create photo service")
	}

	hub := services.NewContestHub()
	quotas := services.NewQuotaManager()
	rankingService := services.NewRankingService(store, cache, hub, notifier)
	contestService := services.NewContestService(store, rankingService, cfg.Voting)
	pairingService := services.NewPairingService(store, photoService, cfg.Voting.StratumFraction)
	voteService := services.NewVoteService(store, quotas, cache, hub)
	rankingService.Instrument(m)
	pairingService.Instrument(m)
	voteService.Instrument(m)

	closer := services.NewContestCloser(store, rankingService, cfg.Voting.CloseSweepInterval)
	go closer.Start(ctx)

	router := handlers.NewRouter(handlers.Services{
		Users:       userService,
		Contests:    contestService,
		Photos:      photoService,
		Pairing:     pairingService,
		Votes:       voteService,
		Ranking:     rankingService,
		Hub:         hub,
		VoteLimiter: middleware.NewVoteRateLimiter(cfg.Voting.VoteRateLimit),
		Metrics:     m,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("store", cfg.Database.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openStore connects the configured store and creates the schema. The pool
// is nil for the memory store.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (repository.Store, *pgxpool.Pool, error) {
	if cfg.Driver == "memory" {
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), nil, nil
	}

	db, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("Database connection established")

	store := repository.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, db, nil
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
