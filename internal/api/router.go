package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpregistry/dashboard/internal/logs"
	"github.com/mcpregistry/dashboard/internal/manager"
	"github.com/mcpregistry/dashboard/internal/registry"
	"github.com/mcpregistry/dashboard/internal/sync"
)

// Config holds API router configuration
type Config struct {
	Registry      *registry.Registry
	Logs          *logs.Reader
	CLI           *manager.CLI
	SyncManager   *sync.Manager
	WebhookSecret string
	StaticDir     string
	Logger        *slog.Logger
}

// NewRouter creates a new HTTP router with all API routes
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()

	// Request IDs and client IPs are assigned by middleware.Chain
	r.Use(chimiddleware.Recoverer)

	var status SyncStatus
	if cfg.SyncManager != nil {
		status = cfg.SyncManager
	}
	handlers := NewHandlers(cfg.Registry, cfg.Logs, cfg.CLI, status, cfg.Logger)

	// Health and utility endpoints
	r.Get("/health", handlers.Health)
	r.Get("/ping", handlers.Ping)
	r.Get("/version", handlers.Version)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// The webhook only makes sense with a secret and a loop to trigger
	if cfg.WebhookSecret != "" && cfg.SyncManager != nil {
		webhookHandler := sync.NewWebhookHandler(
			cfg.WebhookSecret,
			cfg.SyncManager,
			cfg.Registry.Store().Branch(),
			cfg.Logger,
		)
		r.Post("/webhooks/github", webhookHandler.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", handlers.Stats)

		r.Route("/servers", func(r chi.Router) {
			r.Get("/", handlers.ListServers)
			r.Post("/", handlers.CreateServer)
			r.Get("/{name}", handlers.GetServer)
			r.Put("/{name}", handlers.UpdateServer)
			r.Delete("/{name}", handlers.DeleteServer)
			r.Post("/{name}/start", handlers.StartServer)
			r.Post("/{name}/stop", handlers.StopServer)
		})

		r.Route("/workspaces", func(r chi.Router) {
			r.Get("/", handlers.ListWorkspaces)
			r.Post("/", handlers.CreateWorkspace)
			r.Get("/{name}", handlers.GetWorkspace)
			r.Put("/{name}", handlers.UpdateWorkspace)
			r.Delete("/{name}", handlers.DeleteWorkspace)
			r.Post("/{name}/run", handlers.RunWorkspace)
		})

		r.Get("/logs", handlers.ListLogs)
		r.Get("/log-files", handlers.ListLogFiles)

		r.Get("/config", handlers.ListConfigFiles)
		r.Get("/config/history", handlers.ConfigHistory)
		r.Get("/config/{file}", handlers.GetConfigFile)

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "Not Found", "no API route for "+r.URL.Path)
		})
	})

	if cfg.StaticDir != "" {
		r.Handle("/*", staticHandler(cfg.StaticDir))
	}

	return r
}

// staticHandler serves the pre-built frontend. Paths without a file
// fall back to index.html so client-side routes load the app.
func staticHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean := path.Clean("/" + r.URL.Path)
		_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(clean)))
		if errors.Is(err, fs.ErrNotExist) && !strings.Contains(path.Base(clean), ".") {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	})
}
