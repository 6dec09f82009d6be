package sync

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
	"github.com/mcpregistry/dashboard/internal/registry"
)

type fakeLogs struct {
	files []domain.LogFile
}

func (f *fakeLogs) ListFiles() ([]domain.LogFile, error) {
	return f.files, nil
}

func newManager(t *testing.T) (*Manager, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := configstore.New(configstore.Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Open(context.Background()))

	reg, err := registry.New(registry.Config{Store: store})
	require.NoError(t, err)

	m := NewManager(Config{
		Store:    store,
		Registry: reg,
		Logs:     &fakeLogs{files: []domain.LogFile{{Name: "dev.log"}}},
	})
	return m, dir
}

func writeServers(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, registry.ServersFile), []byte(content), 0644))
}

func TestSync_DetectsChanges(t *testing.T) {
	m, dir := newManager(t)
	ctx := context.Background()

	writeServers(t, dir, `{"servers":[{"name":"a","type":"stdio","config":{"command":"a"}}]}`)

	assert.True(t, m.Sync(ctx, "test"))
	assert.Equal(t, 1, m.registry.ServerCount())
	assert.False(t, m.LastSyncTime().IsZero())

	// Nothing changed on disk
	assert.False(t, m.Sync(ctx, "test"))

	writeServers(t, dir, `{"servers":[{"name":"a","type":"stdio","config":{"command":"a"}},{"name":"bb","type":"stdio","config":{"command":"b"}}]}`)
	assert.True(t, m.Sync(ctx, "test"))
	assert.Equal(t, 2, m.registry.ServerCount())
}

func TestSync_InvalidDocument(t *testing.T) {
	m, dir := newManager(t)
	ctx := context.Background()

	writeServers(t, dir, `{"servers": [`)

	assert.True(t, m.Sync(ctx, "test"))
	assert.Equal(t, "invalid", m.registry.ConfigStatus())
	assert.True(t, m.LastSyncTime().IsZero())

	// The broken fingerprint is remembered, so it is not reloaded again
	assert.False(t, m.Sync(ctx, "test"))

	writeServers(t, dir, `{"servers": []}`)
	assert.True(t, m.Sync(ctx, "test"))
	assert.Equal(t, "valid", m.registry.ConfigStatus())
}

func TestTrigger_NonBlocking(t *testing.T) {
	m, _ := newManager(t)

	m.Trigger()
	m.Trigger()

	assert.Len(t, m.triggerChan, 1)
	assert.False(t, m.IsSyncing())
}

func TestStart_StopsOnCancel(t *testing.T) {
	m, dir := newManager(t)
	writeServers(t, dir, `{"servers":[]}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return !m.LastSyncTime().IsZero() }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
