package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warcore/internal/auth"
	"github.com/freeeve/warcore/internal/config"
	"github.com/freeeve/warcore/internal/handler"
	"github.com/freeeve/warcore/internal/logger"
	"github.com/freeeve/warcore/internal/middleware"
	"github.com/freeeve/warcore/internal/repository/postgres"
	redisrepo "github.com/freeeve/warcore/internal/repository/redis"
	"github.com/freeeve/warcore/internal/service"
	"github.com/freeeve/warcore/pkg/combat"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("port", cfg.Port).Dur("decisionTimeout", cfg.DecisionTimeout).Msg("Config loaded")

	defaults, err := loadRules(cfg.RulesFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.RulesFile).Msg("Rules file unreadable")
	}

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Deadline keys expire into keyspace events; the poller covers servers
	// where CONFIG SET is not allowed.
	if err := redisClient.Underlying().ConfigSet(context.Background(), "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (falling back to polling)")
	}

	// Repos
	userRepo := postgres.NewUserRepo(db)
	gameRepo := postgres.NewGameRepo(db)
	battleRepo := postgres.NewBattleRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	googleOAuth := auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	gameSvc := service.NewGameService(gameRepo, userRepo, redisClient, defaults)
	gameSvc.SetMaxSelectionRetries(cfg.MaxSelectionRetries)
	battleSvc := service.NewBattleService(gameRepo, battleRepo, redisClient, wsHub, cfg.DecisionTimeout)
	timer := service.NewDecisionTimer(redisClient.Underlying(), battleSvc)

	// Handlers
	authHandler := handler.NewAuthHandler(googleOAuth, jwtMgr, userRepo)
	userHandler := handler.NewUserHandler(userRepo)
	gameHandler := handler.NewGameHandler(gameSvc, wsHub)
	battleHandler := handler.NewBattleHandler(gameSvc, battleSvc)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, func(ctx context.Context, gameID, userID string) error {
		_, err := gameSvc.RequireMember(ctx, gameID, userID)
		return err
	})

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"postgres unavailable"}`))
			return
		}
		if err := redisClient.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"redis unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("GET /auth/google/login", authHandler.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", userHandler.GetMe)
	api.HandleFunc("PATCH /users/me", userHandler.UpdateMe)
	api.HandleFunc("GET /users/{id}", userHandler.GetUser)
	api.HandleFunc("POST /games", gameHandler.CreateGame)
	api.HandleFunc("GET /games", gameHandler.ListGames)
	api.HandleFunc("GET /games/{id}", gameHandler.GetGame)
	api.HandleFunc("POST /games/{id}/join", gameHandler.JoinGame)
	api.HandleFunc("POST /games/{id}/finish", gameHandler.FinishGame)
	api.HandleFunc("DELETE /games/{id}", gameHandler.DeleteGame)
	api.HandleFunc("POST /games/{id}/attacks", battleHandler.RegisterAttack)
	api.HandleFunc("GET /games/{id}/battles", battleHandler.ListBattles)
	api.HandleFunc("POST /games/{id}/battles/fight", battleHandler.FightAll)
	api.HandleFunc("POST /games/{id}/battles/{battleId}/fight", battleHandler.FightBattle)
	api.HandleFunc("POST /games/{id}/battles/{battleId}/casualties", battleHandler.SubmitCasualties)
	api.HandleFunc("POST /games/{id}/battles/{battleId}/retreat", battleHandler.SubmitRetreat)
	api.HandleFunc("POST /games/{id}/phase/end", battleHandler.EndPhase)
	api.HandleFunc("POST /games/{id}/estimate", battleHandler.Estimate)
	api.HandleFunc("GET /games/{id}/records", battleHandler.ListRecords)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Recoverer, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Restore decision deadlines lost while the server was down
	if err := battleSvc.RecoverSuspended(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to recover suspended battles (non-fatal)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timer.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}

// loadRules reads the default rule properties. No file means built-in defaults.
func loadRules(path string) (*combat.Rules, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return combat.ParseRules(data)
}
