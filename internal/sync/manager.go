package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpregistry/dashboard/internal/configstore"
	"github.com/mcpregistry/dashboard/internal/domain"
	"github.com/mcpregistry/dashboard/internal/middleware"
	"github.com/mcpregistry/dashboard/internal/registry"
)

// LogLister reports the log files currently on disk
type LogLister interface {
	ListFiles() ([]domain.LogFile, error)
}

// Manager watches the config directory for changes made by the manager
// (or pushed to the config remote) and refreshes the registry
type Manager struct {
	store        *configstore.Store
	registry     *registry.Registry
	logs         LogLister
	pollInterval time.Duration
	debounce     time.Duration
	retries      int
	logger       *slog.Logger

	triggerChan     chan struct{}
	mu              sync.Mutex
	lastSync        time.Time
	lastFingerprint string
	syncing         bool
}

// Config holds sync manager configuration
type Config struct {
	Store        *configstore.Store
	Registry     *registry.Registry
	Logs         LogLister
	PollInterval time.Duration
	Debounce     time.Duration
	PullRetries  int
	Logger       *slog.Logger
}

// NewManager creates a new sync manager
func NewManager(cfg Config) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 10 * time.Second
	}
	if cfg.PullRetries <= 0 {
		cfg.PullRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		store:        cfg.Store,
		registry:     cfg.Registry,
		logs:         cfg.Logs,
		pollInterval: cfg.PollInterval,
		debounce:     cfg.Debounce,
		retries:      cfg.PullRetries,
		logger:       cfg.Logger,
		triggerChan:  make(chan struct{}, 1),
	}
}

// Start begins the polling loop. It blocks until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.logger.Info("sync manager started",
		"poll_interval", m.pollInterval,
		"debounce", m.debounce,
		"remote", m.store.RemoteEnabled(),
	)

	m.Sync(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("sync manager stopped")
			return

		case <-ticker.C:
			m.Sync(ctx, "poll")

		case <-m.triggerChan:
			m.debounceSync(ctx)
		}
	}
}

// Trigger requests a sync (called by the webhook handler)
func (m *Manager) Trigger() {
	select {
	case m.triggerChan <- struct{}{}:
		m.logger.Debug("sync triggered")
	default:
		m.logger.Debug("sync already pending")
	}
}

// LastSyncTime returns the last successful sync time
func (m *Manager) LastSyncTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync
}

// IsSyncing returns whether a sync is in progress
func (m *Manager) IsSyncing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncing
}

func (m *Manager) debounceSync(ctx context.Context) {
	m.mu.Lock()
	if time.Since(m.lastSync) < m.debounce {
		m.mu.Unlock()
		m.logger.Debug("sync debounced", "last_sync", m.lastSync)
		return
	}
	m.mu.Unlock()

	m.Sync(ctx, "webhook")
}

// Sync pulls the config remote (when configured), reloads the registry if
// the documents changed on disk and refreshes the gauges. It reports
// whether the registry was reloaded.
func (m *Manager) Sync(ctx context.Context, source string) bool {
	m.mu.Lock()
	if m.syncing {
		m.mu.Unlock()
		m.logger.Debug("sync already in progress")
		return false
	}
	m.syncing = true
	previous := m.lastFingerprint
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.syncing = false
		m.mu.Unlock()
	}()

	start := time.Now()
	defer func() {
		middleware.SyncDuration.Observe(time.Since(start).Seconds())
		m.updateGauges()
	}()

	m.logger.Debug("starting sync", "source", source)

	pulled := false
	if m.store.RemoteEnabled() {
		var err error
		pulled, err = m.store.PullWithRetry(ctx, m.retries)
		if err != nil {
			middleware.SyncErrors.Inc()
			m.logger.Error("sync failed",
				"source", source,
				"error", err,
				"duration", time.Since(start),
			)
			return false
		}
	}

	fingerprint, err := m.store.Fingerprint()
	if err != nil {
		middleware.SyncErrors.Inc()
		m.logger.Error("failed to fingerprint config directory",
			"source", source,
			"error", err,
		)
		return false
	}

	if !pulled && fingerprint == previous {
		m.logger.Debug("no changes detected", "source", source)
		m.markSynced(fingerprint)
		return false
	}

	// Reload the documents; a parse failure is recorded by the registry
	// and surfaces as an invalid config status
	if err := m.registry.Refresh(); err != nil {
		middleware.SyncErrors.Inc()
		m.logger.Error("failed to refresh registry",
			"source", source,
			"error", err,
		)
		m.mu.Lock()
		m.lastFingerprint = fingerprint
		m.mu.Unlock()
		return true
	}

	m.markSynced(fingerprint)

	m.logger.Info("sync completed",
		"source", source,
		"fingerprint", fingerprint,
		"commit", m.store.CurrentCommit(),
		"server_count", m.registry.ServerCount(),
		"workspace_count", m.registry.WorkspaceCount(),
		"duration", time.Since(start),
	)
	return true
}

func (m *Manager) markSynced(fingerprint string) {
	m.mu.Lock()
	m.lastSync = time.Now()
	m.lastFingerprint = fingerprint
	m.mu.Unlock()
}

func (m *Manager) updateGauges() {
	middleware.ServersTotal.Set(float64(m.registry.ServerCount()))
	middleware.WorkspacesTotal.Set(float64(m.registry.WorkspaceCount()))
	if m.registry.ConfigStatus() == "valid" {
		middleware.ConfigValid.Set(1)
	} else {
		middleware.ConfigValid.Set(0)
	}

	if m.logs == nil {
		return
	}
	files, err := m.logs.ListFiles()
	if err != nil {
		m.logger.Warn("failed to list log files", "error", err)
		return
	}
	middleware.LogFilesTotal.Set(float64(len(files)))
}
