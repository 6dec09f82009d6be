package logs

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpregistry/dashboard/internal/domain"
)

func writeLog(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()

	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func newReader(t *testing.T, dir string) *Reader {
	t.Helper()

	r, err := NewReader(Config{Dir: dir})
	require.NoError(t, err)
	return r
}

func TestNewReader_RequiresDir(t *testing.T) {
	_, err := NewReader(Config{})
	require.Error(t, err)
}

func TestReader_ListFiles(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "dev.log", "a")
	writeLog(t, dir, "prod/github.log", "b")
	writeLog(t, dir, "notes.txt", "c")
	writeLog(t, dir, ".cache/x.log", "d")

	files, err := newReader(t, dir).ListFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "dev.log", files[0].Name)
	assert.Equal(t, "dev", files[0].Workspace)
	assert.Equal(t, "prod/github.log", files[1].Name)
	assert.Equal(t, "prod", files[1].Workspace)
	assert.Positive(t, files[1].Size)
}

func TestReader_ListFilesMissingDir(t *testing.T) {
	files, err := newReader(t, filepath.Join(t.TempDir(), "nope")).ListFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestReader_ReadFile(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "dev.log",
		"2024-05-01T10:00:00Z [INFO] [dev/fs] started",
		"2024-05-01T10:00:01Z [ERROR] [dev/fs] crashed",
		"    at handler.go:42",
		"",
		"2024-05-01T10:00:02Z [INFO] restarted",
	)

	r := newReader(t, dir)
	entries, err := r.ReadFile(context.Background(), "dev.log")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "crashed", entries[1].Message)
	assert.Equal(t, "at handler.go:42", entries[2].Message)
	assert.Equal(t, entries[1].Timestamp, entries[2].Timestamp)
	assert.Equal(t, "dev", entries[3].Workspace)
	assert.Equal(t, "", entries[3].Server)
	assert.Equal(t, 5, entries[3].Line)
	assert.Equal(t, "dev.log", entries[0].File)

	// IDs are unique and stable across reads
	seen := map[string]bool{}
	for _, e := range entries {
		assert.False(t, seen[e.ID])
		seen[e.ID] = true
	}

	again, err := r.ReadFile(context.Background(), "dev.log")
	require.NoError(t, err)
	assert.Equal(t, entries[0].ID, again[0].ID)
	assert.Equal(t, 0.5, r.CacheStats().HitRate)
}

func TestReader_ReadFileInvalidNames(t *testing.T) {
	r := newReader(t, t.TempDir())
	ctx := context.Background()

	for _, name := range []string{"", "../etc/passwd.log", "/abs/x.log", "dev.txt", ".."} {
		_, err := r.ReadFile(ctx, name)
		assert.ErrorIs(t, err, domain.ErrInvalidPath, name)
	}

	_, err := r.ReadFile(ctx, "missing.log")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReader_ReadFileSeesAppends(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "dev.log", "2024-05-01T10:00:00Z [INFO] one")

	r := newReader(t, dir)
	entries, err := r.ReadFile(context.Background(), "dev.log")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("2024-05-01T10:00:01Z [INFO] two\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err = r.ReadFile(context.Background(), "dev.log")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestReader_TailsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, "2024-05-01T10:00:00Z [INFO] line-padding-padding")
	}
	lines = append(lines, "2024-05-01T10:00:01Z [ERROR] last")
	writeLog(t, dir, "big.log", lines...)

	r, err := NewReader(Config{Dir: dir, MaxBytes: 200})
	require.NoError(t, err)

	entries, err := r.ReadFile(context.Background(), "big.log")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Less(t, len(entries), 10)
	assert.Equal(t, "last", entries[len(entries)-1].Message)
	for _, e := range entries {
		assert.False(t, e.Timestamp.IsZero(), "partial first line must be dropped")
	}
}

func TestReader_OversizedLineIsTruncated(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "dev.log",
		"2024-05-01T10:00:00Z [INFO] dump "+strings.Repeat("x", 2<<20),
		"2024-05-01T10:00:01Z [INFO] after dump",
	)
	writeLog(t, dir, "ops.log", "2024-05-01T10:00:02Z [WARN] ops line")

	r := newReader(t, dir)

	all, err := r.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)

	long := all[0]
	assert.Equal(t, "dev.log", long.File)
	assert.Equal(t, domain.LevelInfo, long.Level)
	assert.True(t, strings.HasSuffix(long.Message, truncatedMarker))
	assert.LessOrEqual(t, len(long.Message), maxLineSize+len(truncatedMarker))

	assert.Equal(t, "after dump", all[1].Message)
	assert.Equal(t, 2, all[1].Line)
	assert.Equal(t, "ops line", all[2].Message)
}

func TestReader_CRLFOffsets(t *testing.T) {
	dir := t.TempDir()
	first := "2024-05-01T10:00:00Z [INFO] one\r\n"
	second := "2024-05-01T10:00:01Z [INFO] two\r\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crlf.log"), []byte(first+second), 0644))

	r := newReader(t, dir)

	entries, err := r.ReadFile(context.Background(), "crlf.log")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "one", entries[0].Message)
	assert.Equal(t, "two", entries[1].Message)

	wantID := uuid.NewSHA1(entryNamespace, []byte("crlf.log:"+strconv.Itoa(len(first)))).String()
	assert.Equal(t, wantID, entries[1].ID)
}

func TestReader_TailedIDsUseFileOffsets(t *testing.T) {
	dir := t.TempDir()
	var content strings.Builder
	for i := 0; i < 50; i++ {
		content.WriteString("2024-05-01T10:00:00Z [INFO] padding line\r\n")
	}
	last := "2024-05-01T10:00:01Z [ERROR] last\r\n"
	content.WriteString(last)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.log"), []byte(content.String()), 0644))

	r, err := NewReader(Config{Dir: dir, MaxBytes: 200})
	require.NoError(t, err)

	entries, err := r.ReadFile(context.Background(), "big.log")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	got := entries[len(entries)-1]
	assert.Equal(t, "last", got.Message)
	wantOffset := content.Len() - len(last)
	assert.Equal(t, uuid.NewSHA1(entryNamespace, []byte("big.log:"+strconv.Itoa(wantOffset))).String(), got.ID)
}

func TestReader_ReadAllAndQuery(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "dev.log",
		"2024-05-01T10:00:00Z [INFO] [dev/fs] a",
		"2024-05-01T10:00:02Z [WARNING] [dev/fs] c",
	)
	writeLog(t, dir, "prod.log",
		"2024-05-01T10:00:01Z [WARN] [prod/github] b",
		"2024-05-01T10:00:03Z [ERROR] d",
	)

	r := newReader(t, dir)
	ctx := context.Background()

	all, err := r.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, []string{all[0].Message, all[1].Message, all[2].Message, all[3].Message})

	warns, err := r.Query(ctx, "", Filter{Level: "warning"})
	require.NoError(t, err)
	require.Len(t, warns, 2)
	assert.Equal(t, "b", warns[0].Message)
	assert.Equal(t, "c", warns[1].Message)

	prod, err := r.Query(ctx, "", Filter{Workspace: "prod"})
	require.NoError(t, err)
	assert.Len(t, prod, 2)

	one, err := r.Query(ctx, "dev.log", Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "c", one[0].Message)
}

func TestReader_ReadAllCancelled(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for i := 0; i < 5000; i++ {
		lines = append(lines, "2024-05-01T10:00:00Z [INFO] x")
	}
	writeLog(t, dir, "dev.log", lines...)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := newReader(t, dir).ReadAll(ctx)
	require.Error(t, err)
}
