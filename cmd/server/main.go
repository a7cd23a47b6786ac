// Lemur Agent - LLM-driven HTML editing server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/lemurlabs/lemur-agent/internal/agent"
	"github.com/lemurlabs/lemur-agent/internal/api"
	"github.com/lemurlabs/lemur-agent/internal/channel"
	"github.com/lemurlabs/lemur-agent/internal/config"
	"github.com/lemurlabs/lemur-agent/internal/edit"
	"github.com/lemurlabs/lemur-agent/internal/middleware"
	"github.com/lemurlabs/lemur-agent/internal/oracle"
	"github.com/lemurlabs/lemur-agent/internal/patch"
	"github.com/lemurlabs/lemur-agent/internal/store"
	"github.com/lemurlabs/lemur-agent/web"
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

	// Completion backends. OpenRouter is the only backend today; the
	// registry keeps per-session backend selection open.
	oracles := oracle.NewRegistry(cfg.Oracle.Backend)
	oracles.Register("openrouter", oracle.NewOpenRouterClient(cfg.Oracle.OpenRouterAPIKey, cfg.Oracle.OpenRouterModel))
	slog.Info("Completion backends registered", "default", cfg.Oracle.Backend, "model", cfg.Oracle.OpenRouterModel)

	applier := patch.NewMorphApplier(cfg.Patch.MorphAPIKey, cfg.Patch.MorphModel)
	pipeline := edit.NewPipeline(applier)

	channels := channel.NewManager()
	archive := agent.NewArchiver(cfg.ArchiveDir)
	runner := agent.NewRunner(repo, oracles, pipeline, channels, archive, cfg)

	// Initialize handlers.
	handler := api.NewHandler(repo, runner, channels, oracles, cfg)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	handler.RegisterRoutes(r)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server.
	// Note: websocket sessions are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout, sessions stay open for minutes
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	// Start share sweeper.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartShareSweeper(ctx, repo, cfg.ShareTTLSweep)

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
