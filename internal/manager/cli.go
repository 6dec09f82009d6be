package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mcpregistry/dashboard/internal/domain"
)

// maxOutput caps the captured CLI output returned to callers
const maxOutput = 64 << 10

// CLI delegates lifecycle actions to the manager's command-line tool
type CLI struct {
	path    string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

// Config holds CLI configuration. Command may carry leading arguments,
// e.g. "npx mcp-manager".
type Config struct {
	Command string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Result is the outcome of one CLI invocation
type Result struct {
	Output   string
	Duration time.Duration
}

// ExitError is returned when the CLI exits non-zero
type ExitError struct {
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("manager CLI exited with code %d", e.Code)
}

// New creates a CLI wrapper. An empty command yields a CLI whose actions
// fail with domain.ErrCLIUnavailable.
func New(cfg Config) *CLI {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &CLI{
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
	if fields := strings.Fields(cfg.Command); len(fields) > 0 {
		c.path = fields[0]
		c.args = fields[1:]
	}
	return c
}

// Available reports whether a CLI command is configured
func (c *CLI) Available() bool {
	return c.path != ""
}

// StartServer asks the manager to start a server
func (c *CLI) StartServer(ctx context.Context, name string) (*Result, error) {
	return c.run(ctx, "server", "start", name)
}

// StopServer asks the manager to stop a server
func (c *CLI) StopServer(ctx context.Context, name string) (*Result, error) {
	return c.run(ctx, "server", "stop", name)
}

// RunWorkspace asks the manager to run a workspace
func (c *CLI) RunWorkspace(ctx context.Context, name string) (*Result, error) {
	return c.run(ctx, "workspace", "run", name)
}

func (c *CLI) run(ctx context.Context, args ...string) (*Result, error) {
	if !c.Available() {
		return nil, domain.ErrCLIUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	argv := append(append([]string{}, c.args...), args...)
	cmd := exec.CommandContext(ctx, c.path, argv...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	// Children of the CLI may keep the output pipes open after it is killed
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	output := tailOutput(out.Bytes(), maxOutput)

	c.logger.Info("manager CLI invoked",
		"command", c.path,
		"args", argv,
		"duration_ms", duration.Milliseconds(),
		"error", err,
	)

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("manager CLI timed out after %s: %w", c.timeout, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, &ExitError{Code: exitErr.ExitCode(), Output: output}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run manager CLI: %w", err)
	}

	return &Result{Output: output, Duration: duration}, nil
}

// tailOutput keeps the last limit bytes of b, starting on a rune boundary
func tailOutput(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	start := len(b) - limit
	for start < len(b) && !utf8.RuneStart(b[start]) {
		start++
	}
	return string(b[start:])
}
