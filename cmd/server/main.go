// VetCare Pro - session gate server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/vetcare-gate/internal/config"
	"github.com/ashureev/vetcare-gate/internal/events"
	"github.com/ashureev/vetcare-gate/internal/probe"
	"github.com/ashureev/vetcare-gate/internal/retention"
	"github.com/ashureev/vetcare-gate/internal/server"
	"github.com/ashureev/vetcare-gate/internal/session"
	"github.com/ashureev/vetcare-gate/internal/store"
	"github.com/ashureev/vetcare-gate/web"
	"github.com/joho/godotenv"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
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
	level.Set(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "slot_backend", cfg.SlotBackend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	slots, err := openSlotBackend(ctx, cfg, repo)
	if err != nil {
		slog.Error("Failed to initialize slot backend", "backend", cfg.SlotBackend, "error", err)
		os.Exit(1)
	}
	if slots != store.SlotBackend(repo) {
		defer func() {
			if closeErr := slots.Close(); closeErr != nil {
				slog.Error("Failed to close slot backend", "error", closeErr)
			}
		}()
	}

	// Initialize services.
	registry := session.NewRegistry(func(deviceID string) session.Storage {
		return store.ForDevice(slots, deviceID)
	}, logger)
	hub := events.NewHub(logger)
	registry.SetNotifier(hub)

	checks := []probe.Check{
		{Name: "database", Pinger: repo},
		{Name: "slots", Pinger: slots},
	}

	tmpl, err := web.Templates()
	if err != nil {
		slog.Error("Failed to parse templates", "error", err)
		os.Exit(1)
	}

	r := server.NewRouter(ctx, server.Deps{
		Repo:        repo,
		Registry:    registry,
		Hub:         hub,
		Checks:      checks,
		Templates:   tmpl,
		LoginRate:   cfg.LoginRate,
		FrontendURL: cfg.FrontendURL,
		IsDev:       cfg.IsDevelopment(),
		Logger:      logger,
	})

	// Create server.
	// WriteTimeout stays 0 for the long-lived session feed.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start retention worker.
	sweeper := retention.NewSweeper(repo, retention.Config{
		TTL:         cfg.DeviceTTL,
		Interval:    cfg.SweepEvery,
		SlotBackend: slots,
		OnCleanup:   []retention.CleanupCallback{hub.CloseDevice, registry.Evict},
	})
	sweeper.Start(ctx)
	slog.Info("Retention worker started", "device_ttl", cfg.DeviceTTL, "interval", cfg.SweepEvery)

	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC probe", "port", cfg.GRPCPort, "error", err)
			os.Exit(1)
		}
		probeSrv := probe.New(checks, cfg.ProbeEvery, logger)
		go func() {
			if err := probeSrv.Serve(ctx, lis); err != nil {
				slog.Error("gRPC probe failed", "error", err)
			}
		}()
	}

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

// openSlotBackend returns the store persisted slots live in. The SQLite
// repository doubles as the default backend.
func openSlotBackend(ctx context.Context, cfg *config.Config, repo *store.SQLiteStore) (store.SlotBackend, error) {
	switch cfg.SlotBackend {
	case config.BackendRedis:
		rs, err := store.NewRedis(ctx, store.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("Redis slot backend connected", "addr", cfg.Redis.Addr)
		return rs, nil
	case config.BackendMemory:
		slog.Warn("Using in-memory slot backend, sessions will not survive a restart")
		return store.NewMemory(), nil
	default:
		return repo, nil
	}
}
