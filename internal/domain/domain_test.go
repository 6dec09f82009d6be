package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateServer(t *testing.T) {
	tests := []struct {
		name    string
		server  Server
		wantErr bool
	}{
		{
			name: "stdio with command",
			server: Server{
				Name: "filesystem", Namespace: "local", Type: TypeStdio,
				Config: ConnectionConfig{Command: "npx", Args: []string{"-y", "@mcp/fs"}},
			},
		},
		{
			name: "sse with url",
			server: Server{
				Name: "search", Type: TypeSSE,
				Config: ConnectionConfig{URL: "https://example.com/sse"},
			},
		},
		{
			name:    "stdio without command",
			server:  Server{Name: "fs", Type: TypeStdio},
			wantErr: true,
		},
		{
			name:    "http without url",
			server:  Server{Name: "remote", Type: TypeStreamableHTTP},
			wantErr: true,
		},
		{
			name: "unknown type",
			server: Server{
				Name: "x", Type: "websocket",
				Config: ConnectionConfig{URL: "https://example.com"},
			},
			wantErr: true,
		},
		{
			name: "scoped package name",
			server: Server{
				Name: "@scope/fs", Namespace: "_internal", Type: TypeStdio,
				Config: ConnectionConfig{Command: "run"},
			},
		},
		{
			name: "name with spaces",
			server: Server{
				Name: "my server", Type: TypeStdio,
				Config: ConnectionConfig{Command: "run"},
			},
		},
		{
			name: "blank name",
			server: Server{
				Name: "   ", Type: TypeStdio,
				Config: ConnectionConfig{Command: "run"},
			},
			wantErr: true,
		},
		{
			name:    "missing name",
			server:  Server{Type: TypeStdio, Config: ConnectionConfig{Command: "run"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServer(&tt.server)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateWorkspace(t *testing.T) {
	require.NoError(t, ValidateWorkspace(&Workspace{Name: "dev", Servers: []string{"fs", "local/search"}}))
	require.NoError(t, ValidateWorkspace(&Workspace{Name: "empty"}))
	require.Error(t, ValidateWorkspace(&Workspace{Name: ""}))
	require.Error(t, ValidateWorkspace(&Workspace{Name: " \t"}))
	require.NoError(t, ValidateWorkspace(&Workspace{Name: "team a/dev"}))
	require.Error(t, ValidateWorkspace(&Workspace{Name: "dev", Servers: []string{""}}))
}

func TestValidationDetails(t *testing.T) {
	err := ValidateServer(&Server{Name: "fs", Type: TypeStdio})
	require.Error(t, err)

	details := ValidationDetails(err)
	require.Len(t, details, 1)
	assert.Contains(t, details[0].Location, "Config.Command")
	assert.Contains(t, details[0].Message, "required_for_stdio")
}

func TestServerMatches(t *testing.T) {
	s := Server{Name: "fs", Namespace: "local"}

	assert.True(t, s.Matches("fs"))
	assert.True(t, s.Matches("local/fs"))
	assert.True(t, s.Matches(" fs "))
	assert.False(t, s.Matches("remote/fs"))
	assert.False(t, s.Matches("search"))

	scoped := Server{Name: "@scope/fs"}
	assert.True(t, scoped.Matches("@scope/fs"))
	assert.False(t, scoped.Matches("fs"))
	assert.Equal(t, "local/fs", s.QualifiedName())
	assert.Equal(t, "fs", (&Server{Name: "fs"}).QualifiedName())
}

func TestServerFilter(t *testing.T) {
	s := &Server{Name: "fs", Namespace: "local", Type: TypeStdio}

	assert.True(t, ServerFilter{}.Match(s))
	assert.True(t, ServerFilter{Namespace: "local"}.Match(s))
	assert.True(t, ServerFilter{Type: "STDIO"}.Match(s))
	assert.False(t, ServerFilter{Namespace: "remote"}.Match(s))
	assert.False(t, ServerFilter{Type: TypeSSE}.Match(s))
}
