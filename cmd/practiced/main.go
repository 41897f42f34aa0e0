package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/torrance721/careerflow-practice/internal/api/coach"
	"github.com/torrance721/careerflow-practice/internal/config"
	"github.com/torrance721/careerflow-practice/internal/frontdoor"
	"github.com/torrance721/careerflow-practice/internal/server"
	"github.com/torrance721/careerflow-practice/internal/storage"
	"github.com/torrance721/careerflow-practice/internal/storage/memory"
	"github.com/torrance721/careerflow-practice/internal/storage/sqlite"
	"github.com/torrance721/careerflow-practice/internal/telemetry"
)

const configPath = "config.yaml"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	shutdownTracer, err := telemetry.InitTracer("careerflow-practice", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Configuration: file + env, with hot-reload of session settings
	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		log.Fatalf("Failed to create config watcher: %v", err)
	}
	defer watcher.Close()

	cfg, err := watcher.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store := newStore(cfg, logger)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", slog.String("error", err.Error()))
		}
	}()

	var coachOpts []coach.ClientOption
	if cfg.Coach.BaseURL != "" {
		coachOpts = append(coachOpts, coach.WithBaseURL(cfg.Coach.BaseURL))
	}
	client := coach.NewClient(cfg.Coach.APIKey, coachOpts...)

	manager := frontdoor.NewManager(client, store,
		frontdoor.WithLanguage(cfg.Session.Language),
		frontdoor.WithContextBudget(cfg.Session.ContextBudget),
	)

	// Config file edits apply to sessions created after the reload.
	if err := watcher.Watch(ctx, func(cfg *config.Config) {
		manager.UpdateSettings(cfg.Session.Language, cfg.Session.ContextBudget)
	}); err != nil {
		logger.Warn("config hot-reload disabled", slog.String("error", err.Error()))
	}

	handler := frontdoor.NewHandler(manager, store, client, logger)

	srv := server.New(cfg.Server.Port, logger)
	handler.Routes(srv.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("practice service started",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type),
	)

	// Wait for shutdown signal or server failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received, stopping")
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func newStore(cfg *config.Config, logger *slog.Logger) storage.TranscriptStore {
	switch cfg.Storage.Type {
	case "sqlite":
		path := cfg.Storage.SQLite.Path
		if path == "" {
			path = "./data/practice.db"
		}
		store, err := sqlite.New(path)
		if err != nil {
			log.Fatalf("Failed to open sqlite store: %v", err)
		}
		logger.Info("using sqlite transcript store", slog.String("path", path))
		return store
	default:
		logger.Info("using in-memory transcript store")
		return memory.New()
	}
}
