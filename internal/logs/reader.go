package logs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mcpregistry/dashboard/internal/domain"
)

const (
	// DefaultMaxBytes is how much of the end of each file is parsed
	DefaultMaxBytes = 8 << 20

	maxLineSize = 1 << 20
	logSuffix   = ".log"

	truncatedMarker = " ...[truncated]"
)

// entryNamespace seeds the name-based UUIDs given to entries
var entryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mcp-dashboard/log-entry"))

// Reader loads and parses log files from the manager's log directory
type Reader struct {
	dir         string
	maxBytes    int64
	concurrency int
	cacheSize   int
	cache       *lru.Cache[string, cachedFile]
	logger      *slog.Logger

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

type cachedFile struct {
	size    int64
	modTime time.Time
	entries []domain.LogEntry
}

// Config holds reader configuration
type Config struct {
	Dir         string
	MaxBytes    int64
	Concurrency int
	CacheSize   int
	Logger      *slog.Logger
}

// NewReader creates a new log reader
func NewReader(cfg Config) (*Reader, error) {
	if cfg.Dir == "" {
		return nil, errors.New("log dir is required")
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cache, err := lru.New[string, cachedFile](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	return &Reader{
		dir:         cfg.Dir,
		maxBytes:    cfg.MaxBytes,
		concurrency: cfg.Concurrency,
		cacheSize:   cfg.CacheSize,
		cache:       cache,
		logger:      cfg.Logger,
	}, nil
}

// Dir returns the log directory
func (r *Reader) Dir() string {
	return r.dir
}

// ListFiles returns the *.log files under the log directory.
// Files directly in the directory belong to the workspace named by their
// stem; files in a subdirectory belong to the workspace named by it.
func (r *Reader) ListFiles() ([]domain.LogFile, error) {
	var files []domain.LogFile

	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == r.dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if path != r.dir && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), logSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(r.dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		files = append(files, domain.LogFile{
			Name:       rel,
			Workspace:  WorkspaceForFile(rel),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}

	if files == nil {
		files = []domain.LogFile{}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// WorkspaceForFile derives the default workspace of a log file from its
// slash-separated path relative to the log directory
func WorkspaceForFile(rel string) string {
	if dir, _, ok := strings.Cut(rel, "/"); ok {
		return dir
	}
	return strings.TrimSuffix(rel, logSuffix)
}

// ReadFile parses a single log file given its path relative to the log directory
func (r *Reader) ReadFile(ctx context.Context, name string) ([]domain.LogEntry, error) {
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("log file %s: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	if cached, ok := r.cache.Get(path); ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		r.cacheHits.Add(1)
		return slices.Clone(cached.entries), nil
	}
	r.cacheMisses.Add(1)

	entries, err := r.parseFile(ctx, path, filepath.ToSlash(name), info.Size())
	if err != nil {
		return nil, err
	}

	r.cache.Add(path, cachedFile{
		size:    info.Size(),
		modTime: info.ModTime(),
		entries: entries,
	})
	return slices.Clone(entries), nil
}

// ReadAll parses every log file in parallel and returns the merged
// entries ordered by timestamp
func (r *Reader) ReadAll(ctx context.Context) ([]domain.LogEntry, error) {
	files, err := r.ListFiles()
	if err != nil {
		return nil, err
	}

	results := make([][]domain.LogEntry, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, f := range files {
		g.Go(func() error {
			entries, err := r.ReadFile(gctx, f.Name)
			if errors.Is(err, domain.ErrNotFound) {
				// Rotated away between listing and reading
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []domain.LogEntry
	for _, entries := range results {
		all = append(all, entries...)
	}
	SortByTime(all)
	return all, nil
}

// Query loads entries from one file, or all files when file is empty,
// and applies the filter
func (r *Reader) Query(ctx context.Context, file string, f Filter) ([]domain.LogEntry, error) {
	var (
		entries []domain.LogEntry
		err     error
	)
	if file != "" {
		entries, err = r.ReadFile(ctx, file)
	} else {
		entries, err = r.ReadAll(ctx)
	}
	if err != nil {
		return nil, err
	}
	return Apply(entries, f), nil
}

// CacheStats returns parsed-file cache statistics
func (r *Reader) CacheStats() *domain.CacheStats {
	hits := r.cacheHits.Load()
	misses := r.cacheMisses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return &domain.CacheStats{
		Size:     r.cache.Len(),
		Capacity: r.cacheSize,
		HitRate:  hitRate,
	}
}

func (r *Reader) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("%q: %w", name, domain.ErrInvalidPath)
	}
	if !strings.HasSuffix(clean, logSuffix) {
		return "", fmt.Errorf("%q: %w", name, domain.ErrInvalidPath)
	}
	return filepath.Join(r.dir, clean), nil
}

// parseFile reads the last maxBytes of a file and parses it line by line.
// Lines without a timestamp inherit the previous line's, so continuation
// lines such as stack traces stay next to their origin. Lines longer than
// maxLineSize are cut and marked rather than failing the file.
func (r *Reader) parseFile(ctx context.Context, path, name string, size int64) ([]domain.LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var offset int64
	if size > r.maxBytes {
		offset = size - r.maxBytes
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek log file: %w", err)
		}
	}

	reader := bufio.NewReaderSize(f, 64*1024)
	if offset > 0 {
		// Drop the partial first line
		_, n, _, err := readLine(reader)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read log file: %w", err)
		}
		offset += int64(n)
	}

	workspace := WorkspaceForFile(name)
	var (
		entries   []domain.LogEntry
		lastTS    time.Time
		lineNo    int
		truncated int
	)

	for {
		line, n, cut, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}

		lineOffset := offset
		offset += int64(n)
		lineNo++

		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		raw := string(line)
		if cut {
			raw += truncatedMarker
			truncated++
		}

		e, ok := ParseLine(raw, workspace)
		if !ok {
			continue
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = lastTS
		} else {
			lastTS = e.Timestamp
		}

		e.File = name
		e.Line = lineNo
		e.ID = uuid.NewSHA1(entryNamespace, []byte(name+":"+strconv.FormatInt(lineOffset, 10))).String()
		entries = append(entries, e)
	}

	if truncated > 0 {
		r.logger.Warn("log lines truncated", "file", name, "lines", truncated, "max_line_bytes", maxLineSize)
	}
	r.logger.Debug("log file parsed", "file", name, "entries", len(entries), "bytes", size)
	return entries, nil
}

// readLine returns the next line without its terminator, the number of
// bytes it occupied in the file and whether it was cut to maxLineSize.
// io.EOF is only returned when no bytes remain.
func readLine(br *bufio.Reader) (line []byte, n int, truncated bool, err error) {
	for {
		chunk, rerr := br.ReadSlice('\n')
		n += len(chunk)
		chunk = bytes.TrimSuffix(chunk, []byte{'\n'})
		if room := maxLineSize - len(line); len(chunk) > room {
			chunk = chunk[:room]
			truncated = true
		}
		line = append(line, chunk...)

		if errors.Is(rerr, bufio.ErrBufferFull) {
			continue
		}
		if rerr != nil && (!errors.Is(rerr, io.EOF) || n == 0) {
			return nil, n, truncated, rerr
		}
		return bytes.TrimSuffix(line, []byte{'\r'}), n, truncated, nil
	}
}
