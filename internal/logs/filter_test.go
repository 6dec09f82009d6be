package logs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpregistry/dashboard/internal/domain"
)

func sampleEntries() []domain.LogEntry {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []domain.LogEntry{
		{ID: "1", Timestamp: base.Add(3 * time.Minute), Level: "info", Workspace: "prod", Server: "github", Message: "Synced repos"},
		{ID: "2", Timestamp: base, Level: "warn", Workspace: "dev", Server: "fs", Message: "slow disk"},
		{ID: "3", Timestamp: base.Add(1 * time.Minute), Level: "WARNING", Workspace: "dev", Server: "search", Message: "rate limited"},
		{ID: "4", Timestamp: base.Add(2 * time.Minute), Level: "error", Workspace: "prod", Server: "github", Message: "token expired"},
		{ID: "5", Timestamp: base.Add(4 * time.Minute), Level: " Info ", Workspace: "dev", Server: "fs", Message: "ok"},
	}
}

func ids(entries []domain.LogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestApply_NoFilter(t *testing.T) {
	entries := sampleEntries()

	out := Apply(entries, Filter{})
	assert.Equal(t, []string{"2", "3", "4", "1", "5"}, ids(out))

	// Input is left untouched
	assert.Equal(t, "1", entries[0].ID)
}

func TestApply_AllIsNoFilter(t *testing.T) {
	out := Apply(sampleEntries(), Filter{Workspace: "all", Level: "ALL"})
	assert.Len(t, out, 5)
}

func TestApply_Workspace(t *testing.T) {
	out := Apply(sampleEntries(), Filter{Workspace: " dev "})
	assert.Equal(t, []string{"2", "3", "5"}, ids(out))

	out = Apply(sampleEntries(), Filter{Workspace: "staging"})
	assert.Empty(t, out)
}

func TestApply_LevelNormalization(t *testing.T) {
	// warn and warning are the same level, regardless of case or padding
	for _, level := range []string{"warn", "WARNING", " Warning ", "Warn"} {
		out := Apply(sampleEntries(), Filter{Level: level})
		assert.Equal(t, []string{"2", "3"}, ids(out), "level %q", level)
	}

	out := Apply(sampleEntries(), Filter{Level: "info"})
	assert.Equal(t, []string{"1", "5"}, ids(out))
}

func TestApply_Combined(t *testing.T) {
	out := Apply(sampleEntries(), Filter{Workspace: "prod", Level: "error"})
	assert.Equal(t, []string{"4"}, ids(out))

	out = Apply(sampleEntries(), Filter{Server: "fs"})
	assert.Equal(t, []string{"2", "5"}, ids(out))

	out = Apply(sampleEntries(), Filter{Query: "TOKEN"})
	assert.Equal(t, []string{"4"}, ids(out))

	since := time.Date(2024, 5, 1, 10, 2, 0, 0, time.UTC)
	out = Apply(sampleEntries(), Filter{Since: since})
	assert.Equal(t, []string{"4", "1", "5"}, ids(out))
}

func TestApply_LimitKeepsNewest(t *testing.T) {
	out := Apply(sampleEntries(), Filter{Limit: 2})
	assert.Equal(t, []string{"1", "5"}, ids(out))

	out = Apply(sampleEntries(), Filter{Limit: 100})
	assert.Len(t, out, 5)
}

func TestGroup(t *testing.T) {
	groups := Group(Apply(sampleEntries(), Filter{}))
	require.Len(t, groups, 2)

	assert.Equal(t, "dev", groups[0].Workspace)
	assert.Equal(t, 3, groups[0].Count)
	assert.Equal(t, []string{"2", "3", "5"}, ids(groups[0].Entries))

	assert.Equal(t, "prod", groups[1].Workspace)
	assert.Equal(t, 2, groups[1].Count)
	assert.Equal(t, []string{"4", "1"}, ids(groups[1].Entries))

	empty := Group(nil)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCountLevels(t *testing.T) {
	counts := CountLevels(sampleEntries())
	assert.Equal(t, map[string]int{"debug": 0, "info": 2, "warn": 2, "error": 1}, counts)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := ParseSince("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = ParseSince("15m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-15*time.Minute), got)

	got, err = ParseSince("2024-05-01T10:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), got)

	_, err = ParseSince("yesterday", now)
	require.Error(t, err)

	_, err = ParseSince("-5m", now)
	require.Error(t, err)
}
