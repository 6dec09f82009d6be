package domain

import "strings"

// Transport types understood by the manager
const (
	TypeStdio          = "stdio"
	TypeSSE            = "sse"
	TypeStreamableHTTP = "streamable-http"
)

// Server represents a provider/server record from servers.json
type Server struct {
	Name        string           `json:"name" validate:"required,not_blank"`
	Namespace   string           `json:"namespace,omitempty" validate:"omitempty,not_blank"`
	Type        string           `json:"type" validate:"required,oneof=stdio sse streamable-http"`
	Description string           `json:"description,omitempty" validate:"max=500"`
	Config      ConnectionConfig `json:"config"`
}

// ConnectionConfig holds how the manager reaches a server.
// Command is used by stdio servers, URL by the HTTP transports.
type ConnectionConfig struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	URL     string            `json:"url,omitempty" validate:"omitempty,url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// QualifiedName returns namespace/name, or just name without a namespace
func (s *Server) QualifiedName() string {
	if s.Namespace == "" {
		return s.Name
	}
	return s.Namespace + "/" + s.Name
}

// Matches reports whether a reference points at this server.
// References are either a bare name or namespace/name.
func (s *Server) Matches(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref == s.Name || ref == s.QualifiedName()
}

// ServersDocument is the on-disk shape of servers.json
type ServersDocument struct {
	Servers []Server `json:"servers"`
}

// Workspace is a named grouping of servers
type Workspace struct {
	Name        string   `json:"name" validate:"required,not_blank"`
	Description string   `json:"description,omitempty" validate:"max=500"`
	Servers     []string `json:"servers" validate:"dive,required"`
}

// WorkspacesDocument is the on-disk shape of workspaces.json
type WorkspacesDocument struct {
	Workspaces []Workspace `json:"workspaces"`
}

// ServerFilter narrows a server listing. Empty fields match everything.
type ServerFilter struct {
	Namespace string
	Type      string
}

// Match reports whether the server passes the filter
func (f ServerFilter) Match(s *Server) bool {
	if f.Namespace != "" && f.Namespace != s.Namespace {
		return false
	}
	if f.Type != "" && !strings.EqualFold(f.Type, s.Type) {
		return false
	}
	return true
}
