package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"progresspal-web/internal/apiclient"
	"progresspal-web/internal/config"
	"progresspal-web/internal/handlers"
	"progresspal-web/internal/logging"
	"progresspal-web/internal/middleware"
	"progresspal-web/internal/repository"
	"progresspal-web/internal/router"
	"progresspal-web/internal/services"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logger := logging.New(logging.ConfigFrom(cfg.LogLevel, cfg.LogFormat))
	logger.Info().Msg("Starting ProgressPal web server...")
	logger.Info().Str("env", cfg.Env).Str("auth_mode", cfg.AuthMode).Msg("✓ Environment variables loaded")

	// ──── Step 2: Initialize Snapshot Stores ────
	stores, err := repository.OpenStores(context.Background(), cfg.RedisURL, cfg.SnapshotTTL, cfg.UndoWindow)
	if err != nil {
		logger.Fatal().Err(err).Msg("✗ Snapshot store initialization failed")
	}
	defer stores.Close()
	logger.Info().Str("backend", stores.Backend).Msg("✓ Snapshot store ready")

	// ──── Step 3: Initialize API Client ────
	api := apiclient.New(cfg.APIURL, cfg.APITimeout)
	logger.Info().Str("api_url", cfg.APIURL).Msg("✓ ProgressPal API client initialized")

	// ──── Initialize Services ────
	liveService := services.NewLiveSessionService(api, stores.Snapshots, stores.Undo, logger)

	var auth middleware.Authenticator = middleware.HeaderIdentity{}
	if cfg.AuthMode == config.AuthModeJWT {
		auth = middleware.NewJWTAuth(cfg.JWTSecret)
	}

	// ──── Initialize Handlers ────
	liveHandler := handlers.NewLiveSessionHandler(liveService)

	// ──── Step 4: Start HTTP Server ────
	r := router.New(auth, liveHandler, cfg.MutationRateLimit, cfg.FrontendURL, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Info().Msgf("✓ ProgressPal web ready on http://localhost:%s", cfg.Port)
	logger.Info().Msgf("  API: http://localhost:%s/api/v1", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("Server error")
	}
}
