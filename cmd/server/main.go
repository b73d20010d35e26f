package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/config"
	"github.com/robotparty/game-server/internal/database"
	"github.com/robotparty/game-server/internal/generation"
	"github.com/robotparty/game-server/internal/handler"
	"github.com/robotparty/game-server/internal/jobs"
	"github.com/robotparty/game-server/internal/middleware"
	"github.com/robotparty/game-server/internal/pubsub"
	"github.com/robotparty/game-server/internal/redis"
	"github.com/robotparty/game-server/internal/repository"
	"github.com/robotparty/game-server/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	store := repository.NewPostgresStore(db)

	broker := pubsub.NewBroker(redisClient)
	defer broker.Close()

	var generator generation.Generator = generation.Disabled()
	if cfg.GeminiAPIKey != "" {
		gemini, err := generation.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create gemini client")
		}
		generator = gemini
		log.Info().Str("model", cfg.GeminiModel).Msg("npc generation enabled")
	}

	rateLimiter := service.NewRateLimiter(redisClient)
	events := service.NewEvents(store, broker)
	npcScheduler := service.NewNPCScheduler(store, events, generator, cfg.NPCGenerationTimeout())

	roomService := service.NewRoomService(store, events, service.RoomDefaults{
		RoundLength: cfg.DefaultRoundLength,
		RoundCount:  cfg.DefaultRoundCount,
		GuessTimer:  cfg.DefaultGuessTimer,
	})
	roundService := service.NewRoundService(store, events, npcScheduler)
	guessService := service.NewGuessService(store)
	chatService := service.NewChatService(store, events, rateLimiter, cfg.ChatRateLimitPerMin)
	contentService := service.NewContentService(store)

	joinLimitMiddleware := middleware.NewIPRateLimitMiddleware(rateLimiter, cfg.JoinRateLimitPerMin, time.Minute, "join")
	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(cfg.AdminPasswordHash)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	roomHandler := handler.NewRoomHandler(roomService, roundService, guessService, chatService, joinLimitMiddleware.Handler)
	contentHandler := handler.NewContentHandler(contentService)
	eventsHandler := handler.NewEventsHandler(broker, roomService)
	wsHandler := handler.NewWSHandler(broker, roomService, roomService, func(r *http.Request) bool {
		return cfg.OriginAllowed(r.Header.Get("Origin"), r.Host)
	})
	adminHandler := handler.NewAdminHandler(contentService, broker, adminAuthMiddleware.Handler)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Account)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := db.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		} else if err := redisClient.Ping(ctx).Err(); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    status,
			"clients":   broker.TotalClients(),
			"timestamp": time.Now().UnixMilli(),
		})
	})

	// Streams are long-lived and must not sit behind the request timeout.
	r.Get("/api/rooms/{code}/events", eventsHandler.ServeHTTP)
	r.Get("/api/rooms/{code}/ws", wsHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)

		r.Route("/api", func(r chi.Router) {
			r.Mount("/rooms", roomHandler.Routes())
			contentHandler.Register(r)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(securityHeadersMiddleware.Handler)
			r.Mount("/", adminHandler.Routes())
		})
	})

	if cfg.StaticDir != "" {
		r.NotFound(securityHeadersMiddleware.Handler(handler.StaticFileServer(cfg.StaticDir, "/")).ServeHTTP)
	}

	roundJob := jobs.NewRoundAdvancerJob(roundService, cfg.RoundTick())
	roundJob.Start()
	defer roundJob.Stop()

	finalizeJob := jobs.NewGameFinalizerJob(roundService, cfg.FinalizeTick())
	finalizeJob.Start()
	defer finalizeJob.Stop()

	cleanupJob := jobs.NewCleanupJob(store.Repos().Sessions, cfg.PendingRoomTTL(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	// Close streams first so Shutdown does not wait on them.
	broker.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	npcScheduler.Stop()

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
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
