package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opencx/voicebridge/internal/auth"
	"github.com/opencx/voicebridge/internal/config"
	"github.com/opencx/voicebridge/internal/credstore"
	"github.com/opencx/voicebridge/internal/server"
	"github.com/opencx/voicebridge/internal/telemetry"
	"github.com/opencx/voicebridge/internal/upstream"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	level := slog.LevelInfo
	if os.Getenv("VB_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("voicebridge starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Open the delegated credential store. Only needed when the delegated
	// flow can run, i.e. an authorize endpoint is configured.
	var store *credstore.Store
	if cfg.AuthorizeURL != "" {
		store, err = credstore.Open(ctx, cfg.CredDBPath, cfg.CredSealKey)
		if err != nil {
			return fmt.Errorf("credstore: %w", err)
		}
		defer func() { _ = store.Close() }()
		logger.Info("delegated credential store open", "path", cfg.CredDBPath, "sealed", len(cfg.CredSealKey) > 0)
	}

	authOpts := auth.Options{
		TokenURL:     cfg.TokenURL,
		AuthorizeURL: cfg.AuthorizeURL,
		RedirectURL:  cfg.RedirectURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scope:        cfg.OAuthScope,
		Margin:       cfg.TokenMargin,
	}
	if store != nil {
		authOpts.Store = store
	}
	provider := auth.NewProvider(authOpts)

	client := upstream.NewClient(cfg.UpstreamBaseURL, cfg.OrgID, logger)

	srv := server.New(server.ServerConfig{
		Tokens:           provider,
		Upstream:         client,
		OAuth:            provider,
		Logger:           logger,
		LookbackDays:     cfg.LookbackDays,
		StrictAgentMatch: cfg.StrictAgentMatch,
		Port:             cfg.Port,
		ReadTimeout:      cfg.ReadTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		AllowedOrigin:    cfg.AllowedOrigin,
		Version:          version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("voicebridge stopped")
	return nil
}
