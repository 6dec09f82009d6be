package configstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/mcpregistry/dashboard/internal/domain"
)

// TokenSource provides access tokens for the git remote
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Store provides access to the manager's JSON configuration directory.
// When history is enabled the directory is also a git worktree and every
// write made through the store is committed.
type Store struct {
	config        Config
	repo          *git.Repository
	worktree      *git.Worktree
	currentCommit string
	mu            sync.RWMutex
	logger        *slog.Logger
}

// Config holds config store configuration
type Config struct {
	Dir         string
	History     bool
	RemoteURL   string
	Branch      string
	Auth        TokenSource
	AuthorName  string
	AuthorEmail string
	Logger      *slog.Logger
}

// New creates a new config store instance
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("config dir is required")
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.RemoteURL != "" {
		cfg.History = true
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = "mcp-dashboard"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "mcp-dashboard@localhost"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Store{
		config: cfg,
		logger: cfg.Logger,
	}, nil
}

// Open prepares the config directory. With history enabled it opens the
// git repository in the directory, cloning it from the remote or
// initialising it when absent.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.History {
		if err := os.MkdirAll(s.config.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		return nil
	}

	repo, err := git.PlainOpen(s.config.Dir)
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists) && s.config.RemoteURL != "":
		repo, err = s.clone(ctx)
		if err != nil {
			return err
		}
	case errors.Is(err, git.ErrRepositoryNotExists):
		if err := os.MkdirAll(s.config.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		s.logger.Info("initialising config history", "path", s.config.Dir)
		repo, err = git.PlainInit(s.config.Dir, false)
		if err != nil {
			return fmt.Errorf("failed to init repository: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	s.repo = repo
	s.worktree = worktree

	if s.config.RemoteURL != "" {
		if err := s.ensureRemote(); err != nil {
			return err
		}
	}

	// Snapshot whatever the manager has already written
	if _, err := s.commitAll("dashboard: snapshot existing configuration"); err != nil {
		return fmt.Errorf("failed to snapshot configuration: %w", err)
	}
	_ = s.updateCurrentCommit()

	s.logger.Info("config history ready",
		"path", s.config.Dir,
		"commit", s.currentCommit,
		"remote", s.config.RemoteURL,
	)
	return nil
}

func (s *Store) clone(ctx context.Context) (*git.Repository, error) {
	entries, err := os.ReadDir(s.config.Dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}
	if len(entries) > 0 {
		return nil, fmt.Errorf("config dir %s is not empty and not a git repository", s.config.Dir)
	}

	auth, err := s.getAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth: %w", err)
	}

	s.logger.Info("cloning config repository",
		"url", s.config.RemoteURL,
		"branch", s.config.Branch,
		"path", s.config.Dir,
	)

	repo, err := git.PlainCloneContext(ctx, s.config.Dir, false, &git.CloneOptions{
		URL:           s.config.RemoteURL,
		Auth:          auth,
		SingleBranch:  true,
		ReferenceName: plumbing.NewBranchReferenceName(s.config.Branch),
	})
	if err != nil {
		return nil, fmt.Errorf("clone failed: %w", err)
	}
	return repo, nil
}

func (s *Store) ensureRemote() error {
	_, err := s.repo.Remote("origin")
	if err == nil {
		return nil
	}
	if !errors.Is(err, git.ErrRemoteNotFound) {
		return fmt.Errorf("failed to read remote: %w", err)
	}
	_, err = s.repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{s.config.RemoteURL},
	})
	if err != nil {
		return fmt.Errorf("failed to create remote: %w", err)
	}
	return nil
}

// ReadFile reads a config document by file name
func (s *Store) ReadFile(name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.config.Dir, name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrNotFound)
	}
	return data, err
}

// WriteFile atomically replaces a config document and records the change
// in history when enabled. Once the document is replaced the write
// succeeds; history and push failures are only logged.
func (s *Store) WriteFile(ctx context.Context, name string, data []byte, message string) error {
	if err := checkName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.config.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(s.config.Dir, name)
	tmp, err := os.CreateTemp(s.config.Dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}

	if s.repo == nil {
		return nil
	}

	if message == "" {
		message = "dashboard: update " + name
	}
	committed, err := s.commitAll(message)
	if err != nil {
		// The document is already in place; the next write commits it.
		s.logger.Warn("failed to commit config change", "file", name, "error", err)
		return nil
	}
	if !committed {
		return nil
	}
	if err := s.updateCurrentCommit(); err != nil {
		s.logger.Warn("failed to read new commit", "file", name, "error", err)
	}

	if s.config.RemoteURL != "" {
		if err := s.push(ctx); err != nil {
			// The local write and commit stand; the next sync retries the push.
			s.logger.Warn("failed to push config change", "file", name, "error", err)
		}
	}
	return nil
}

// commitAll stages every change in the worktree and commits it.
// Returns false when the tree is clean.
func (s *Store) commitAll(message string) (bool, error) {
	status, err := s.worktree.Status()
	if err != nil {
		return false, err
	}
	if status.IsClean() {
		return false, nil
	}

	if err := s.worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return false, err
	}

	hash, err := s.worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  s.config.AuthorName,
			Email: s.config.AuthorEmail,
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.logger.Debug("config change committed", "commit", hash.String(), "message", message)
	return true, nil
}

func (s *Store) push(ctx context.Context) error {
	auth, err := s.getAuth(ctx)
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	err = s.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// Pull fetches and merges changes from the remote.
// Returns true if HEAD moved.
func (s *Store) Pull(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil || s.config.RemoteURL == "" {
		return false, nil
	}

	oldCommit := s.currentCommit

	auth, err := s.getAuth(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get auth: %w", err)
	}

	err = s.worktree.PullContext(ctx, &git.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.config.Branch),
		SingleBranch:  true,
		Auth:          auth,
		Force:         true,
	})

	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pull failed: %w", err)
	}

	if err := s.updateCurrentCommit(); err != nil {
		return false, fmt.Errorf("failed to update commit: %w", err)
	}

	changed := oldCommit != s.currentCommit
	if changed {
		s.logger.Info("config repository updated",
			"old_commit", oldCommit,
			"new_commit", s.currentCommit,
		)
	}

	return changed, nil
}

// PullWithRetry attempts to pull with exponential backoff
func (s *Store) PullWithRetry(ctx context.Context, maxRetries int) (bool, error) {
	var lastErr error
	backoff := 1 * time.Second

	for attempt := 0; attempt < maxRetries; attempt++ {
		changed, err := s.Pull(ctx)
		if err == nil {
			return changed, nil
		}

		lastErr = err
		s.logger.Warn("pull attempt failed",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"error", err,
			"next_backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
	}

	return false, fmt.Errorf("pull failed after %d retries: %w", maxRetries, lastErr)
}

// ListFiles returns the JSON documents in the config directory
func (s *Store) ListFiles() ([]domain.ConfigFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.config.Dir)
	if os.IsNotExist(err) {
		return []domain.ConfigFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	files := make([]domain.ConfigFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isConfigFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, domain.ConfigFile{
			Name:       entry.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// FileExists checks if a config document exists
func (s *Store) FileExists(name string) bool {
	if checkName(name) != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(filepath.Join(s.config.Dir, name))
	return err == nil
}

// Stat returns size and modification time of a config document
func (s *Store) Stat(name string) (*domain.ConfigFile, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := os.Stat(filepath.Join(s.config.Dir, name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &domain.ConfigFile{
		Name:       name,
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
	}, nil
}

// Fingerprint summarises name, size and mtime of every JSON document.
// It changes whenever the manager or the dashboard rewrites a file.
func (s *Store) Fingerprint() (string, error) {
	files, err := s.ListFiles()
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s:%d:%d\n", f.Name, f.Size, f.ModifiedAt.UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// History returns up to limit recent commits, optionally only those touching file
func (s *Store) History(file string, limit int) ([]domain.ConfigCommit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.repo == nil {
		return nil, errors.New("config history is not enabled")
	}
	if limit <= 0 {
		limit = 50
	}

	if _, err := s.repo.Head(); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []domain.ConfigCommit{}, nil
		}
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	opts := &git.LogOptions{}
	if file != "" {
		if err := checkName(file); err != nil {
			return nil, err
		}
		opts.FileName = &file
	}

	iter, err := s.repo.Log(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	commits := make([]domain.ConfigCommit, 0, limit)
	err = iter.ForEach(func(c *object.Commit) error {
		if len(commits) >= limit {
			return storer.ErrStop
		}
		commits = append(commits, domain.ConfigCommit{
			Hash:    c.Hash.String(),
			Message: strings.TrimSpace(c.Message),
			Author:  c.Author.Name,
			When:    c.Author.When,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk log: %w", err)
	}

	return commits, nil
}

// CurrentCommit returns the current HEAD commit SHA, empty without history
func (s *Store) CurrentCommit() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentCommit
}

// Dir returns the configured directory
func (s *Store) Dir() string {
	return s.config.Dir
}

// Branch returns the configured branch
func (s *Store) Branch() string {
	return s.config.Branch
}

// HistoryEnabled reports whether writes are committed to git
func (s *Store) HistoryEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo != nil
}

// RemoteEnabled reports whether the store syncs with a git remote
func (s *Store) RemoteEnabled() bool {
	return s.config.RemoteURL != ""
}

func (s *Store) getAuth(ctx context.Context) (transport.AuthMethod, error) {
	if s.config.Auth == nil {
		return nil, nil
	}

	token, err := s.config.Auth.Token(ctx)
	if err != nil {
		return nil, err
	}

	return &http.BasicAuth{
		Username: "x-access-token",
		Password: token,
	}, nil
}

func (s *Store) updateCurrentCommit() error {
	ref, err := s.repo.Head()
	if err != nil {
		return err
	}
	s.currentCommit = ref.Hash().String()
	return nil
}

// checkName rejects names that are not plain .json files inside the directory
func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || !isConfigFile(name) {
		return fmt.Errorf("%q: %w", name, domain.ErrInvalidPath)
	}
	return nil
}

func isConfigFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
