package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpregistry/dashboard/internal/configstore"
	"github.com/mcpregistry/dashboard/internal/domain"
)

const serversFixture = `{
  "servers": [
    {"name": "filesystem", "namespace": "local", "type": "stdio", "config": {"command": "npx", "args": ["-y", "@modelcontextprotocol/server-filesystem"]}},
    {"name": "search", "namespace": "remote", "type": "sse", "config": {"url": "https://search.example.com/sse"}},
    {"name": "github", "type": "stdio", "config": {"command": "github-mcp"}}
  ]
}`

const workspacesFixture = `{
  "workspaces": [
    {"name": "dev", "servers": ["filesystem", "remote/search"]},
    {"name": "broken", "servers": ["github", "missing", "local/search"]}
  ]
}`

func newRegistry(t *testing.T, files map[string]string) *Registry {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	store, err := configstore.New(configstore.Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Open(context.Background()))

	reg, err := New(Config{Store: store})
	require.NoError(t, err)
	return reg
}

func fixtures() map[string]string {
	return map[string]string{
		ServersFile:    serversFixture,
		WorkspacesFile: workspacesFixture,
	}
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestRegistry_LoadMissingFiles(t *testing.T) {
	reg := newRegistry(t, nil)

	require.NoError(t, reg.Load())
	assert.Equal(t, "valid", reg.ConfigStatus())
	assert.False(t, reg.LastSyncAt().IsZero())

	servers, err := reg.ListServers(domain.ServerFilter{})
	require.NoError(t, err)
	assert.Empty(t, servers)

	workspaces, err := reg.ListWorkspaces()
	require.NoError(t, err)
	assert.Empty(t, workspaces)
}

func TestRegistry_LoadMalformed(t *testing.T) {
	reg := newRegistry(t, map[string]string{ServersFile: `{"servers": [`})

	err := reg.Load()
	require.ErrorIs(t, err, domain.ErrInvalidDocument)
	assert.Equal(t, "invalid", reg.ConfigStatus())

	_, err = reg.ListServers(domain.ServerFilter{})
	require.ErrorIs(t, err, domain.ErrInvalidDocument)
}

func TestRegistry_ListServers(t *testing.T) {
	reg := newRegistry(t, fixtures())

	all, err := reg.ListServers(domain.ServerFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "filesystem", all[0].Name)

	stdio, err := reg.ListServers(domain.ServerFilter{Type: domain.TypeStdio})
	require.NoError(t, err)
	assert.Len(t, stdio, 2)

	remote, err := reg.ListServers(domain.ServerFilter{Namespace: "remote"})
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, "search", remote[0].Name)
}

func TestRegistry_GetServer(t *testing.T) {
	reg := newRegistry(t, fixtures())

	s, err := reg.GetServer("search")
	require.NoError(t, err)
	assert.Equal(t, "https://search.example.com/sse", s.Config.URL)

	s, err = reg.GetServer("remote/search")
	require.NoError(t, err)
	assert.Equal(t, "remote", s.Namespace)

	_, err = reg.GetServer("local/search")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = reg.GetServer("nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_QualifiedNameSelectsNamespace(t *testing.T) {
	reg := newRegistry(t, map[string]string{ServersFile: `{
  "servers": [
    {"name": "search", "namespace": "staging", "type": "sse", "config": {"url": "https://staging.example.com/sse"}},
    {"name": "search", "namespace": "prod", "type": "sse", "config": {"url": "https://prod.example.com/sse"}}
  ]
}`})
	ctx := context.Background()

	got, err := reg.GetServer("prod/search")
	require.NoError(t, err)
	assert.Equal(t, "https://prod.example.com/sse", got.Config.URL)

	got.Description = "production"
	require.NoError(t, reg.UpdateServer(ctx, "prod/search", *got))

	staging, err := reg.GetServer("staging/search")
	require.NoError(t, err)
	assert.Empty(t, staging.Description)

	require.NoError(t, reg.DeleteServer(ctx, "prod/search"))
	all, err := reg.ListServers(domain.ServerFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "staging", all[0].Namespace)
}

func TestRegistry_UpdateManagerWrittenName(t *testing.T) {
	reg := newRegistry(t, map[string]string{ServersFile: `{
  "servers": [
    {"name": "@scope/fs", "type": "stdio", "config": {"command": "npx"}}
  ]
}`})

	got, err := reg.GetServer("@scope/fs")
	require.NoError(t, err)

	got.Config.Args = []string{"-y", "@scope/fs"}
	require.NoError(t, reg.UpdateServer(context.Background(), "@scope/fs", *got))

	got, err = reg.GetServer("@scope/fs")
	require.NoError(t, err)
	assert.Equal(t, []string{"-y", "@scope/fs"}, got.Config.Args)
}

func TestRegistry_ServerCRUD(t *testing.T) {
	reg := newRegistry(t, nil)
	ctx := context.Background()

	s := domain.Server{Name: "fs", Type: domain.TypeStdio, Config: domain.ConnectionConfig{Command: "fs-mcp"}}
	require.NoError(t, reg.CreateServer(ctx, s))

	got, err := reg.GetServer("fs")
	require.NoError(t, err)
	assert.Equal(t, "fs-mcp", got.Config.Command)

	s.Config.Command = "fs-mcp2"
	s.Namespace = "local"
	require.NoError(t, reg.UpdateServer(ctx, "fs", s))

	got, err = reg.GetServer("fs")
	require.NoError(t, err)
	assert.Equal(t, "fs-mcp2", got.Config.Command)
	assert.Equal(t, "local", got.Namespace)

	require.ErrorIs(t, reg.UpdateServer(ctx, "missing", s), domain.ErrNotFound)

	require.NoError(t, reg.DeleteServer(ctx, "fs"))
	_, err = reg.GetServer("fs")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, reg.DeleteServer(ctx, "fs"), domain.ErrNotFound)

	// File on disk is still a valid, empty document
	data, err := reg.Store().ReadFile(ServersFile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"servers": []}`, string(data))
}

func TestRegistry_CreateServerInvalid(t *testing.T) {
	reg := newRegistry(t, nil)

	err := reg.CreateServer(context.Background(), domain.Server{Name: "fs", Type: domain.TypeStdio})
	require.Error(t, err)
	assert.False(t, reg.Store().FileExists(ServersFile))
}

func TestRegistry_DuplicateNamesAreNotRejected(t *testing.T) {
	reg := newRegistry(t, nil)
	ctx := context.Background()

	s := domain.Server{Name: "fs", Type: domain.TypeStdio, Config: domain.ConnectionConfig{Command: "a"}}
	require.NoError(t, reg.CreateServer(ctx, s))
	s.Config.Command = "b"
	require.NoError(t, reg.CreateServer(ctx, s))

	all, err := reg.ListServers(domain.ServerFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Lookups resolve to the first record
	got, err := reg.GetServer("fs")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Config.Command)
}

func TestRegistry_Workspaces(t *testing.T) {
	reg := newRegistry(t, fixtures())
	ctx := context.Background()

	list, err := reg.ListWorkspaces()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Empty(t, list[0].MissingServers)
	assert.Equal(t, []string{"local/search", "missing"}, list[1].MissingServers)

	require.NoError(t, reg.CreateWorkspace(ctx, domain.Workspace{Name: "prod", Servers: []string{"github"}}))
	ws, err := reg.GetWorkspace("prod")
	require.NoError(t, err)
	assert.Equal(t, []string{"github"}, ws.Servers)

	require.NoError(t, reg.UpdateWorkspace(ctx, "prod", domain.Workspace{Name: "production"}))
	_, err = reg.GetWorkspace("prod")
	require.ErrorIs(t, err, domain.ErrNotFound)
	ws, err = reg.GetWorkspace("production")
	require.NoError(t, err)
	assert.Empty(t, ws.Servers)

	require.NoError(t, reg.DeleteWorkspace(ctx, "production"))
	require.ErrorIs(t, reg.DeleteWorkspace(ctx, "production"), domain.ErrNotFound)
	require.Error(t, reg.CreateWorkspace(ctx, domain.Workspace{}))
}

func TestRegistry_SeesExternalEdits(t *testing.T) {
	reg := newRegistry(t, fixtures())

	require.Equal(t, 3, reg.ServerCount())
	require.Equal(t, 3, reg.ServerCount())
	assert.Greater(t, reg.CacheStats().HitRate, 0.0)

	path := filepath.Join(reg.Store().Dir(), ServersFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"servers":[{"name":"only","type":"stdio","config":{"command":"x"}}]}`), 0644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Equal(t, 1, reg.ServerCount())
}

func TestRegistry_Stats(t *testing.T) {
	reg := newRegistry(t, fixtures())

	stats, err := reg.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Servers)
	assert.Equal(t, 2, stats.Workspaces)
	assert.Equal(t, 5, stats.WorkspaceMembers)
	assert.Equal(t, map[string]int{"stdio": 2, "sse": 1}, stats.ServersByType)
	assert.Equal(t, map[string]int{"local": 1, "remote": 1, "default": 1}, stats.ServersByNamespace)
	assert.NotEmpty(t, stats.ConfigFingerprint)
}

func TestRegistry_Refresh(t *testing.T) {
	reg := newRegistry(t, fixtures())

	require.NoError(t, reg.Load())
	require.NoError(t, reg.Refresh())
	assert.Equal(t, 2, reg.CacheStats().Size)
	assert.Equal(t, 2, reg.WorkspaceCount())
}
