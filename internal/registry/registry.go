package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mcpregistry/dashboard/internal/configstore"
	"github.com/mcpregistry/dashboard/internal/domain"
)

// Manager config file names
const (
	ServersFile    = "servers.json"
	WorkspacesFile = "workspaces.json"
)

// cachedDoc is the raw content of a document and the file stat it was read at
type cachedDoc struct {
	data    []byte
	size    int64
	modTime time.Time
}

// Registry provides CRUD access to the manager's server and workspace records
type Registry struct {
	store     *configstore.Store
	cache     *lru.Cache[string, cachedDoc]
	cacheSize int
	logger    *slog.Logger

	// writeMu serialises read-modify-write cycles
	writeMu sync.Mutex

	// Stats
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	lastSyncAt  atomic.Value // time.Time
	lastErr     atomic.Value // string
}

// Config holds registry configuration
type Config struct {
	Store     *configstore.Store
	CacheSize int
	Logger    *slog.Logger
}

// New creates a new registry instance
func New(cfg Config) (*Registry, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cache, err := lru.New[string, cachedDoc](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	r := &Registry{
		store:     cfg.Store,
		cache:     cache,
		cacheSize: cfg.CacheSize,
		logger:    cfg.Logger,
	}
	r.lastSyncAt.Store(time.Time{})
	r.lastErr.Store("")

	return r, nil
}

// Load parses both documents and reports whether they are usable
func (r *Registry) Load() error {
	servers, err := r.servers()
	if err != nil {
		r.lastErr.Store(err.Error())
		return err
	}
	workspaces, err := r.workspaces()
	if err != nil {
		r.lastErr.Store(err.Error())
		return err
	}

	r.lastErr.Store("")
	r.lastSyncAt.Store(time.Now())

	r.logger.Info("configuration loaded",
		"server_count", len(servers.Servers),
		"workspace_count", len(workspaces.Workspaces),
	)
	return nil
}

// Refresh invalidates cached documents and reloads them
func (r *Registry) Refresh() error {
	r.cache.Purge()
	r.cacheHits.Store(0)
	r.cacheMisses.Store(0)

	return r.Load()
}

// ListServers returns servers matching the filter in file order
func (r *Registry) ListServers(filter domain.ServerFilter) ([]domain.Server, error) {
	doc, err := r.servers()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Server, 0, len(doc.Servers))
	for i := range doc.Servers {
		if filter.Match(&doc.Servers[i]) {
			out = append(out, doc.Servers[i])
		}
	}
	return out, nil
}

// GetServer returns the first server with the given name or namespace/name
func (r *Registry) GetServer(name string) (*domain.Server, error) {
	doc, err := r.servers()
	if err != nil {
		return nil, err
	}

	idx := findServer(doc.Servers, name)
	if idx < 0 {
		return nil, fmt.Errorf("server %s: %w", name, domain.ErrNotFound)
	}
	s := doc.Servers[idx]
	return &s, nil
}

// CreateServer appends a server record. Name uniqueness is left to the manager.
func (r *Registry) CreateServer(ctx context.Context, s domain.Server) error {
	if err := domain.ValidateServer(&s); err != nil {
		return err
	}

	return r.updateServers(ctx, "dashboard: add server "+s.Name, func(doc *domain.ServersDocument) error {
		doc.Servers = append(doc.Servers, s)
		return nil
	})
}

// UpdateServer replaces the first server matching name
func (r *Registry) UpdateServer(ctx context.Context, name string, s domain.Server) error {
	if err := domain.ValidateServer(&s); err != nil {
		return err
	}

	return r.updateServers(ctx, "dashboard: update server "+name, func(doc *domain.ServersDocument) error {
		idx := findServer(doc.Servers, name)
		if idx < 0 {
			return fmt.Errorf("server %s: %w", name, domain.ErrNotFound)
		}
		doc.Servers[idx] = s
		return nil
	})
}

// DeleteServer removes the first server matching name
func (r *Registry) DeleteServer(ctx context.Context, name string) error {
	return r.updateServers(ctx, "dashboard: remove server "+name, func(doc *domain.ServersDocument) error {
		idx := findServer(doc.Servers, name)
		if idx < 0 {
			return fmt.Errorf("server %s: %w", name, domain.ErrNotFound)
		}
		doc.Servers = append(doc.Servers[:idx], doc.Servers[idx+1:]...)
		return nil
	})
}

// ListWorkspaces returns all workspaces with member references resolved
func (r *Registry) ListWorkspaces() ([]domain.WorkspaceView, error) {
	doc, err := r.workspaces()
	if err != nil {
		return nil, err
	}
	servers, err := r.servers()
	if err != nil {
		return nil, err
	}

	out := make([]domain.WorkspaceView, 0, len(doc.Workspaces))
	for _, ws := range doc.Workspaces {
		out = append(out, resolve(ws, servers.Servers))
	}
	return out, nil
}

// GetWorkspace returns the first workspace with the given name
func (r *Registry) GetWorkspace(name string) (*domain.WorkspaceView, error) {
	doc, err := r.workspaces()
	if err != nil {
		return nil, err
	}

	idx := findWorkspace(doc.Workspaces, name)
	if idx < 0 {
		return nil, fmt.Errorf("workspace %s: %w", name, domain.ErrNotFound)
	}

	servers, err := r.servers()
	if err != nil {
		return nil, err
	}
	view := resolve(doc.Workspaces[idx], servers.Servers)
	return &view, nil
}

// CreateWorkspace appends a workspace record
func (r *Registry) CreateWorkspace(ctx context.Context, ws domain.Workspace) error {
	if ws.Servers == nil {
		ws.Servers = []string{}
	}
	if err := domain.ValidateWorkspace(&ws); err != nil {
		return err
	}

	return r.updateWorkspaces(ctx, "dashboard: add workspace "+ws.Name, func(doc *domain.WorkspacesDocument) error {
		doc.Workspaces = append(doc.Workspaces, ws)
		return nil
	})
}

// UpdateWorkspace replaces the first workspace named name
func (r *Registry) UpdateWorkspace(ctx context.Context, name string, ws domain.Workspace) error {
	if ws.Servers == nil {
		ws.Servers = []string{}
	}
	if err := domain.ValidateWorkspace(&ws); err != nil {
		return err
	}

	return r.updateWorkspaces(ctx, "dashboard: update workspace "+name, func(doc *domain.WorkspacesDocument) error {
		idx := findWorkspace(doc.Workspaces, name)
		if idx < 0 {
			return fmt.Errorf("workspace %s: %w", name, domain.ErrNotFound)
		}
		doc.Workspaces[idx] = ws
		return nil
	})
}

// DeleteWorkspace removes the first workspace named name
func (r *Registry) DeleteWorkspace(ctx context.Context, name string) error {
	return r.updateWorkspaces(ctx, "dashboard: remove workspace "+name, func(doc *domain.WorkspacesDocument) error {
		idx := findWorkspace(doc.Workspaces, name)
		if idx < 0 {
			return fmt.Errorf("workspace %s: %w", name, domain.ErrNotFound)
		}
		doc.Workspaces = append(doc.Workspaces[:idx], doc.Workspaces[idx+1:]...)
		return nil
	})
}

// Stats summarises the configuration
func (r *Registry) Stats() (*domain.StatsResponse, error) {
	servers, err := r.servers()
	if err != nil {
		return nil, err
	}
	workspaces, err := r.workspaces()
	if err != nil {
		return nil, err
	}

	stats := &domain.StatsResponse{
		Servers:            len(servers.Servers),
		Workspaces:         len(workspaces.Workspaces),
		ServersByType:      make(map[string]int),
		ServersByNamespace: make(map[string]int),
		LastRefreshedAt:    r.LastSyncAt(),
	}
	for _, s := range servers.Servers {
		stats.ServersByType[s.Type]++
		ns := s.Namespace
		if ns == "" {
			ns = "default"
		}
		stats.ServersByNamespace[ns]++
	}
	for _, ws := range workspaces.Workspaces {
		stats.WorkspaceMembers += len(ws.Servers)
	}

	if fp, err := r.store.Fingerprint(); err == nil {
		stats.ConfigFingerprint = fp
	}

	return stats, nil
}

// ServerCount returns the number of server records, 0 if unreadable
func (r *Registry) ServerCount() int {
	doc, err := r.servers()
	if err != nil {
		return 0
	}
	return len(doc.Servers)
}

// WorkspaceCount returns the number of workspace records, 0 if unreadable
func (r *Registry) WorkspaceCount() int {
	doc, err := r.workspaces()
	if err != nil {
		return 0
	}
	return len(doc.Workspaces)
}

// ConfigStatus returns "valid" or "invalid" for the last load
func (r *Registry) ConfigStatus() string {
	if r.lastErr.Load().(string) != "" {
		return "invalid"
	}
	return "valid"
}

// CacheStats returns current cache statistics
func (r *Registry) CacheStats() *domain.CacheStats {
	hits := r.cacheHits.Load()
	misses := r.cacheMisses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return &domain.CacheStats{
		Size:     r.cache.Len(),
		Capacity: r.cacheSize,
		HitRate:  hitRate,
	}
}

// LastSyncAt returns the last successful load timestamp
func (r *Registry) LastSyncAt() time.Time {
	return r.lastSyncAt.Load().(time.Time)
}

// Store returns the underlying config store
func (r *Registry) Store() *configstore.Store {
	return r.store
}

func (r *Registry) servers() (*domain.ServersDocument, error) {
	var doc domain.ServersDocument
	if err := r.load(ServersFile, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *Registry) workspaces() (*domain.WorkspacesDocument, error) {
	var doc domain.WorkspacesDocument
	if err := r.load(WorkspacesFile, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// load decodes a document into out, going through the cache.
// Cached entries are raw bytes validated against the file's size and
// mtime, so edits made by the manager are seen on the next read.
func (r *Registry) load(name string, out any) error {
	info, statErr := r.store.Stat(name)

	if cached, ok := r.cache.Get(name); ok {
		if fresh(cached, info, statErr) {
			r.cacheHits.Add(1)
			return decode(name, cached.data, out)
		}
		r.cache.Remove(name)
	}
	r.cacheMisses.Add(1)

	data, err := r.store.ReadFile(name)
	if errors.Is(err, domain.ErrNotFound) {
		// The manager has not written this file yet
		data = []byte("{}")
	} else if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	if err := decode(name, data, out); err != nil {
		return err
	}

	entry := cachedDoc{data: data}
	if statErr == nil {
		entry.size = info.Size
		entry.modTime = info.ModifiedAt
	}
	r.cache.Add(name, entry)
	return nil
}

func fresh(c cachedDoc, info *domain.ConfigFile, statErr error) bool {
	if statErr != nil {
		// Missing file is cached as an empty document
		return errors.Is(statErr, domain.ErrNotFound) && c.modTime.IsZero()
	}
	return c.size == info.Size && c.modTime.Equal(info.ModifiedAt)
}

func decode(name string, data []byte, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w: %v", name, domain.ErrInvalidDocument, err)
	}
	return nil
}

func (r *Registry) updateServers(ctx context.Context, message string, fn func(*domain.ServersDocument) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.cache.Remove(ServersFile)
	doc, err := r.servers()
	if err != nil {
		return err
	}
	if doc.Servers == nil {
		doc.Servers = []domain.Server{}
	}
	if err := fn(doc); err != nil {
		return err
	}
	return r.save(ctx, ServersFile, doc, message)
}

func (r *Registry) updateWorkspaces(ctx context.Context, message string, fn func(*domain.WorkspacesDocument) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.cache.Remove(WorkspacesFile)
	doc, err := r.workspaces()
	if err != nil {
		return err
	}
	if doc.Workspaces == nil {
		doc.Workspaces = []domain.Workspace{}
	}
	if err := fn(doc); err != nil {
		return err
	}
	return r.save(ctx, WorkspacesFile, doc, message)
}

func (r *Registry) save(ctx context.Context, name string, doc any, message string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	data = append(data, '\n')

	r.cache.Remove(name)
	if err := r.store.WriteFile(ctx, name, data, message); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	r.logger.Info("configuration updated", "file", name, "change", message)
	return nil
}

// findServer returns the first server named name or namespace/name
func findServer(servers []domain.Server, name string) int {
	for i := range servers {
		if servers[i].Matches(name) {
			return i
		}
	}
	return -1
}

func findWorkspace(workspaces []domain.Workspace, name string) int {
	for i := range workspaces {
		if workspaces[i].Name == name {
			return i
		}
	}
	return -1
}

func resolve(ws domain.Workspace, servers []domain.Server) domain.WorkspaceView {
	view := domain.WorkspaceView{Workspace: ws}
	if view.Servers == nil {
		view.Servers = []string{}
	}

	for _, ref := range ws.Servers {
		found := false
		for i := range servers {
			if servers[i].Matches(ref) {
				found = true
				break
			}
		}
		if !found {
			view.MissingServers = append(view.MissingServers, ref)
		}
	}
	sort.Strings(view.MissingServers)
	return view
}
