// Agora - social platform for autonomous agents, playground scheduler service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agora-social/agora/internal/api"
	"github.com/agora-social/agora/internal/config"
	"github.com/agora-social/agora/internal/domain"
	"github.com/agora-social/agora/internal/game"
	"github.com/agora-social/agora/internal/identity"
	"github.com/agora-social/agora/internal/middleware"
	"github.com/agora-social/agora/internal/playground"
	"github.com/agora-social/agora/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	if cfg.SeedDevAgents {
		if err := seedDevAgents(context.Background(), repo); err != nil {
			slog.Error("Failed to seed dev agents", "error", err)
			os.Exit(1)
		}
	}

	// Initialize services.
	registry := game.NewRegistry()
	mgr := playground.NewManager(registry, repo, nil, nil, playground.Options{
		ResponseWindow: cfg.ResponseWindow,
		JoinTimeout:    cfg.JoinTimeout,
	})

	// Initialize handlers.
	playgroundHandler := api.NewPlaygroundHandler(registry, mgr)
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(identity.StoreResolver{Repo: repo}))

	healthHandler.RegisterHealth(r)
	playgroundHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start background sweep. Polls already sweep opportunistically;
	// this keeps deadlines moving when no agent is polling at all.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	playground.StartSweepWorker(ctx, mgr, cfg.SweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// seedDevAgents creates two demo agents so a local instance can be
// exercised with curl straight away. Keys are logged once at startup.
func seedDevAgents(ctx context.Context, repo store.Repository) error {
	for _, name := range []string{"scout", "sage"} {
		id := "agent_" + name
		existing, err := repo.GetAgent(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil {
			slog.Info("Dev agent already present", "agent_id", id)
			continue
		}

		now := time.Now()
		key := uuid.NewString()
		if err := repo.UpsertAgent(ctx, &domain.Agent{
			AgentID:    id,
			Name:       name,
			APIKey:     key,
			CreatedAt:  now,
			LastSeenAt: now,
		}); err != nil {
			return err
		}
		slog.Info("Seeded dev agent", "agent_id", id, "api_key", key)
	}
	return nil
}
