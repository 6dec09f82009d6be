package domain

import (
	"encoding/json"
	"time"
)

// ServerListResponse represents a list of servers
type ServerListResponse struct {
	Servers  []Server     `json:"servers"`
	Metadata ListMetadata `json:"metadata"`
}

// WorkspaceListResponse represents a list of workspaces
type WorkspaceListResponse struct {
	Workspaces []WorkspaceView `json:"workspaces"`
	Metadata   ListMetadata    `json:"metadata"`
}

// WorkspaceView is a workspace with member references resolved against servers.json
type WorkspaceView struct {
	Workspace
	MissingServers []string `json:"missing_servers,omitempty"`
}

// ListMetadata contains list metadata
type ListMetadata struct {
	Count int `json:"count"`
}

// StatsResponse summarises the manager configuration and logs
type StatsResponse struct {
	Servers            int            `json:"servers"`
	Workspaces         int            `json:"workspaces"`
	WorkspaceMembers   int            `json:"workspace_members"`
	ServersByType      map[string]int `json:"servers_by_type"`
	ServersByNamespace map[string]int `json:"servers_by_namespace"`
	LogFiles           int            `json:"log_files"`
	ConfigFingerprint  string         `json:"config_fingerprint,omitempty"`
	LastRefreshedAt    time.Time      `json:"last_refreshed_at"`
}

// LogsResponse is returned by the logs endpoint. It carries either
// entries or groups, picked by Grouped, and that list is never null.
type LogsResponse struct {
	Entries []LogEntry     `json:"entries,omitempty"`
	Groups  []LogGroup     `json:"groups,omitempty"`
	Total   int            `json:"total"`
	Levels  map[string]int `json:"levels"`
	Grouped bool           `json:"-"`
}

// MarshalJSON always writes the requested list, as [] when empty
func (r LogsResponse) MarshalJSON() ([]byte, error) {
	type plain LogsResponse
	out := struct {
		plain
		Entries *[]LogEntry `json:"entries,omitempty"`
		Groups  *[]LogGroup `json:"groups,omitempty"`
	}{plain: plain(r)}

	if r.Grouped {
		groups := r.Groups
		if groups == nil {
			groups = []LogGroup{}
		}
		out.Groups = &groups
	} else {
		entries := r.Entries
		if entries == nil {
			entries = []LogEntry{}
		}
		out.Entries = &entries
	}
	return json.Marshal(out)
}

// LogFileListResponse lists log files
type LogFileListResponse struct {
	Files []LogFile `json:"files"`
	Dir   string    `json:"dir"`
}

// ConfigFile describes a JSON document in the manager config directory
type ConfigFile struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ConfigListResponse lists config files
type ConfigListResponse struct {
	Dir            string       `json:"dir"`
	Files          []ConfigFile `json:"files"`
	HistoryEnabled bool         `json:"history_enabled"`
}

// ConfigCommit is one entry of the config directory's git history
type ConfigCommit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// ActionResponse reports the outcome of a delegated manager CLI call
type ActionResponse struct {
	Action   string `json:"action"`
	Target   string `json:"target"`
	Output   string `json:"output"`
	Duration string `json:"duration"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string      `json:"status"`
	ConfigDir      string      `json:"config_dir"`
	LogDir         string      `json:"log_dir"`
	CommitSHA      string      `json:"commit_sha,omitempty"`
	LastSyncAt     string      `json:"last_sync_at"`
	ConfigStatus   string      `json:"config_status"`
	ServerCount    int         `json:"server_count"`
	WorkspaceCount int         `json:"workspace_count"`
	Syncing        bool        `json:"syncing"`
	CacheStats     *CacheStats `json:"cache_stats,omitempty"`
	LogCacheStats  *CacheStats `json:"log_cache_stats,omitempty"`
}

// CacheStats contains cache statistics
type CacheStats struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	HitRate  float64 `json:"hit_rate"`
}

// PingResponse represents the ping response
type PingResponse struct {
	Pong bool `json:"pong"`
}

// VersionResponse represents the version info response
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// ErrorResponse represents an API error following Huma format
type ErrorResponse struct {
	Status int           `json:"status"`
	Title  string        `json:"title"`
	Detail string        `json:"detail,omitempty"`
	Errors []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail provides detailed error information
type ErrorDetail struct {
	Message  string      `json:"message"`
	Location string      `json:"location,omitempty"`
	Value    interface{} `json:"value,omitempty"`
}
