package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mcpregistry/dashboard/internal/domain"
	"github.com/mcpregistry/dashboard/internal/logs"
	"github.com/mcpregistry/dashboard/internal/manager"
	"github.com/mcpregistry/dashboard/internal/registry"
)

// Build information (set at compile time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

// SyncStatus reports the state of the background sync loop
type SyncStatus interface {
	LastSyncTime() time.Time
	IsSyncing() bool
}

// Handlers provides HTTP handlers for the API
type Handlers struct {
	registry *registry.Registry
	logs     *logs.Reader
	cli      *manager.CLI
	sync     SyncStatus
	logger   *slog.Logger
}

// NewHandlers creates a new handlers instance. status may be nil when no
// background loop runs.
func NewHandlers(reg *registry.Registry, reader *logs.Reader, cli *manager.CLI, status SyncStatus, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		registry: reg,
		logs:     reader,
		cli:      cli,
		sync:     status,
		logger:   logger,
	}
}

// Health returns health check information
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	store := h.registry.Store()

	status := "ok"
	configStatus := h.registry.ConfigStatus()
	if configStatus != "valid" {
		status = "degraded"
	}

	last := h.registry.LastSyncAt()
	syncing := false
	if h.sync != nil {
		if t := h.sync.LastSyncTime(); t.After(last) {
			last = t
		}
		syncing = h.sync.IsSyncing()
	}
	lastSync := ""
	if !last.IsZero() {
		lastSync = last.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, domain.HealthResponse{
		Status:         status,
		ConfigDir:      store.Dir(),
		LogDir:         h.logs.Dir(),
		CommitSHA:      store.CurrentCommit(),
		LastSyncAt:     lastSync,
		ConfigStatus:   configStatus,
		ServerCount:    h.registry.ServerCount(),
		WorkspaceCount: h.registry.WorkspaceCount(),
		Syncing:        syncing,
		CacheStats:     h.registry.CacheStats(),
		LogCacheStats:  h.logs.CacheStats(),
	})
}

// Ping returns a simple pong response
func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.PingResponse{Pong: true})
}

// Version returns build version information
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildInfo())
}

// BuildInfo reports the linked-in version, falling back to the module
// build info when no version was stamped
func BuildInfo() domain.VersionResponse {
	version := Version
	commit := GitCommit
	buildTime := BuildTime

	if info, ok := debug.ReadBuildInfo(); ok && version == "dev" {
		if info.Main.Version != "" {
			version = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				commit = setting.Value
			case "vcs.time":
				buildTime = setting.Value
			}
		}
	}

	return domain.VersionResponse{
		Version:   version,
		GitCommit: commit,
		BuildTime: buildTime,
	}
}

// Stats returns configuration and log totals
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.registry.Stats()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	files, err := h.logs.ListFiles()
	if err != nil {
		h.logger.Warn("failed to list log files", "error", err)
	}
	stats.LogFiles = len(files)

	writeJSON(w, http.StatusOK, stats)
}

// Helper functions

func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, title, detail string) {
	writeJSON(w, status, domain.ErrorResponse{
		Status: status,
		Title:  title,
		Detail: detail,
	})
}

// writeErr maps domain and component errors onto HTTP responses
func (h *Handlers) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verrs   validator.ValidationErrors
		exitErr *manager.ExitError
	)

	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusUnprocessableEntity, domain.ErrorResponse{
			Status: http.StatusUnprocessableEntity,
			Title:  "Unprocessable Entity",
			Detail: "validation failed",
			Errors: domain.ValidationDetails(err),
		})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, domain.ErrCLIUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Service Unavailable", err.Error())
	case errors.As(err, &exitErr):
		writeJSON(w, http.StatusBadGateway, domain.ErrorResponse{
			Status: http.StatusBadGateway,
			Title:  "Bad Gateway",
			Detail: exitErr.Error(),
			Errors: []domain.ErrorDetail{{Message: exitErr.Output, Location: "manager.output"}},
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusBadGateway, "Bad Gateway", err.Error())
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
}
