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

	"github.com/spf13/cobra"

	"github.com/mcpregistry/dashboard/internal/api"
	"github.com/mcpregistry/dashboard/internal/config"
	"github.com/mcpregistry/dashboard/internal/configstore"
	"github.com/mcpregistry/dashboard/internal/github"
	"github.com/mcpregistry/dashboard/internal/logs"
	"github.com/mcpregistry/dashboard/internal/manager"
	"github.com/mcpregistry/dashboard/internal/middleware"
	"github.com/mcpregistry/dashboard/internal/registry"
	"github.com/mcpregistry/dashboard/internal/sync"
)

func newCmdServe() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			return serve(cmd.Context(), cfg, logger)
		},
	}
}

// newLogger builds the JSON stdout logger used by every component
func newLogger(level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting MCP dashboard",
		"config_dir", cfg.ConfigDir,
		"log_dir", cfg.LogDir,
		"static_dir", cfg.StaticDir,
		"manager_cli", cfg.ManagerCLI,
		"git_history", cfg.GitHistory,
		"git_remote", cfg.GitRemoteURL != "",
	)

	store, reg, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reader, err := logs.NewReader(logs.Config{
		Dir:       cfg.LogDir,
		CacheSize: cfg.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize log reader: %w", err)
	}

	cli := manager.New(manager.Config{
		Command: cfg.ManagerCLI,
		Timeout: cfg.ManagerTimeout,
		Logger:  logger,
	})
	if !cli.Available() {
		logger.Warn("MANAGER_CLI not set, lifecycle actions are disabled")
	}

	syncMgr := sync.NewManager(sync.Config{
		Store:        store,
		Registry:     reg,
		Logs:         reader,
		PollInterval: cfg.PollInterval,
		Debounce:     10 * time.Second,
		Logger:       logger,
	})

	shutdownTracer, err := middleware.InitTracer(ctx, cfg.OTLPEndpoint, api.BuildInfo().Version)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	}

	router := api.NewRouter(api.Config{
		Registry:      reg,
		Logs:          reader,
		CLI:           cli,
		SyncManager:   syncMgr,
		WebhookSecret: cfg.WebhookSecret,
		StaticDir:     cfg.StaticDir,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      middleware.Chain(router, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ManagerTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	syncCtx, syncCancel := context.WithCancel(ctx)
	defer syncCancel()
	go syncMgr.Start(syncCtx)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
		logger.Info("context cancelled")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	syncCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if shutdownTracer != nil {
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}

	logger.Info("server stopped gracefully")
	return nil
}

// openRegistry opens the config directory and loads the registry over it.
// Missing or malformed documents are logged, not fatal.
func openRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*configstore.Store, *registry.Registry, error) {
	storeCfg := configstore.Config{
		Dir:       cfg.ConfigDir,
		History:   cfg.GitHistory,
		RemoteURL: cfg.GitRemoteURL,
		Branch:    cfg.GitBranch,
		Logger:    logger,
	}

	if cfg.GitHubAppEnabled() {
		ghAuth, err := github.NewAppAuth(
			cfg.GitHubAppID,
			cfg.GitHubInstallationID,
			cfg.GitHubAppPrivateKey,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize GitHub App auth: %w", err)
		}
		storeCfg.Auth = ghAuth
	}

	store, err := configstore.New(storeCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config store: %w", err)
	}

	openCtx, openCancel := context.WithTimeout(ctx, 2*time.Minute)
	defer openCancel()
	if err := store.Open(openCtx); err != nil {
		return nil, nil, fmt.Errorf("failed to open config directory: %w", err)
	}

	reg, err := registry.New(registry.Config{
		Store:     store,
		CacheSize: cfg.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize registry: %w", err)
	}

	for _, name := range []string{registry.ServersFile, registry.WorkspacesFile} {
		if !store.FileExists(name) {
			logger.Warn("config document not found, treating it as empty", "file", name)
		}
	}

	// A malformed document is reported via /health rather than
	// preventing startup, so it can be fixed from the manager side
	if err := reg.Load(); err != nil {
		logger.Warn("configuration is not valid", "error", err)
	}

	return store, reg, nil
}
