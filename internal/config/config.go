package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Manager directories
	ConfigDir string `yaml:"config_dir"`
	LogDir    string `yaml:"log_dir"`
	StaticDir string `yaml:"static_dir"`

	// Manager CLI delegation
	ManagerCLI     string        `yaml:"manager_cli"`
	ManagerTimeout time.Duration `yaml:"manager_timeout"`

	// Config history and remote
	GitHistory   bool   `yaml:"git_history"`
	GitRemoteURL string `yaml:"git_remote_url"`
	GitBranch    string `yaml:"git_branch"`

	// GitHub App authentication for the remote
	GitHubAppID          int64  `yaml:"github_app_id"`
	GitHubAppPrivateKey  []byte `yaml:"-"`
	GitHubInstallationID int64  `yaml:"github_installation_id"`
	PrivateKeyPath       string `yaml:"github_app_private_key_path"`

	// Webhook settings
	WebhookSecret string `yaml:"webhook_secret"`

	// Sync settings
	PollInterval time.Duration `yaml:"poll_interval"`

	// Cache settings
	CacheSize int `yaml:"cache_size"`

	// Server settings
	Port int `yaml:"port"`

	// Observability
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		ConfigDir:      "./config",
		LogDir:         "./logs",
		ManagerTimeout: 30 * time.Second,
		GitBranch:      "main",
		PollInterval:   30 * time.Second,
		CacheSize:      64,
		Port:           8080,
		LogLevel:       "info",
	}
}

// Load reads the optional YAML file named by DASHBOARD_CONFIG, then
// applies environment variables on top of it
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("DASHBOARD_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.loadPrivateKey(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.ConfigDir, "CONFIG_DIR")
	setString(&c.LogDir, "LOG_DIR")
	setString(&c.StaticDir, "STATIC_DIR")
	setString(&c.ManagerCLI, "MANAGER_CLI")
	setString(&c.GitRemoteURL, "GIT_REMOTE_URL")
	setString(&c.GitBranch, "GIT_BRANCH")
	setString(&c.PrivateKeyPath, "GITHUB_APP_PRIVATE_KEY_PATH")
	setString(&c.WebhookSecret, "WEBHOOK_SECRET")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.OTLPEndpoint, "OTLP_ENDPOINT")

	if v := os.Getenv("GITHUB_APP_PRIVATE_KEY"); v != "" {
		c.GitHubAppPrivateKey = []byte(v)
	}

	if v := os.Getenv("GIT_HISTORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid GIT_HISTORY: %w", err)
		}
		c.GitHistory = b
	}

	if err := setDuration(&c.ManagerTimeout, "MANAGER_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.PollInterval, "POLL_INTERVAL"); err != nil {
		return err
	}
	if err := setInt(&c.CacheSize, "CACHE_SIZE"); err != nil {
		return err
	}
	if err := setInt(&c.Port, "PORT"); err != nil {
		return err
	}

	if v := os.Getenv("GITHUB_APP_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
		}
		c.GitHubAppID = id
	}
	if v := os.Getenv("GITHUB_INSTALLATION_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid GITHUB_INSTALLATION_ID: %w", err)
		}
		c.GitHubInstallationID = id
	}

	return nil
}

// loadPrivateKey reads the key file unless the key was given inline
func (c *Config) loadPrivateKey() error {
	if len(c.GitHubAppPrivateKey) > 0 || c.PrivateKeyPath == "" {
		return nil
	}
	key, err := os.ReadFile(c.PrivateKeyPath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	c.GitHubAppPrivateKey = key
	return nil
}

// Validate checks value ranges and the GitHub App all-or-nothing rule
func (c *Config) Validate() error {
	if c.ConfigDir == "" {
		return errors.New("CONFIG_DIR must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("invalid CACHE_SIZE: %d", c.CacheSize)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid POLL_INTERVAL: %s", c.PollInterval)
	}
	if c.ManagerTimeout <= 0 {
		return fmt.Errorf("invalid MANAGER_TIMEOUT: %s", c.ManagerTimeout)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	set := 0
	if c.GitHubAppID != 0 {
		set++
	}
	if c.GitHubInstallationID != 0 {
		set++
	}
	if len(c.GitHubAppPrivateKey) > 0 {
		set++
	}
	if set != 0 && set != 3 {
		return errors.New("GITHUB_APP_ID, GITHUB_INSTALLATION_ID and GITHUB_APP_PRIVATE_KEY must be set together")
	}
	if set == 3 && c.GitRemoteURL == "" {
		return errors.New("GitHub App credentials require GIT_REMOTE_URL")
	}

	return nil
}

// GitHubAppEnabled reports whether remote pushes authenticate as a GitHub App
func (c *Config) GitHubAppEnabled() bool {
	return c.GitHubAppID != 0 && c.GitHubInstallationID != 0 && len(c.GitHubAppPrivateKey) > 0
}

// ParseLevel maps a LOG_LEVEL value to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL: %q", s)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
