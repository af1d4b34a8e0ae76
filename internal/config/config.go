package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	ReplayRoot string `toml:"replay_root"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// API contains configuration for the remote profile API.
type API struct {
	BaseURL                  string `toml:"base_url"`
	TimeoutSeconds           int    `toml:"timeout_seconds"`
	MinIntervalMillis        int    `toml:"min_interval_ms"`
	RateLimitCooldownSeconds int    `toml:"rate_limit_cooldown_seconds"`
}

// Screp contains configuration for the external replay analysis tool.
type Screp struct {
	Command        string `toml:"command"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Download contains retry and timeout settings for replay binary fetches.
type Download struct {
	MaxAttempts          int `toml:"max_attempts"`
	InitialBackoffMillis int `toml:"initial_backoff_ms"`
	MaxBackoffMillis     int `toml:"max_backoff_ms"`
	TimeoutSeconds       int `toml:"timeout_seconds"`
}

// Pipeline contains curation pipeline knobs.
type Pipeline struct {
	Concurrency        int `toml:"concurrency"`
	MinDurationSeconds int `toml:"min_duration_seconds"`
	MaxCount           int `toml:"max_count"`
	ResolveRetries     int `toml:"resolve_retries"`
}

// History contains configuration for the SQLite run ledger.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for bwtools.
//
// Configuration sections by subsystem:
//   - Paths: replay library root, staging and log directories
//   - API: remote profile API endpoint and pacing
//   - Screp: replay analysis tool invocation
//   - Download: replay binary fetch retries
//   - Pipeline: concurrency, curation policy, and candidate limits
//   - History: optional run ledger
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	API      API      `toml:"api"`
	Screp    Screp    `toml:"screp"`
	Download Download `toml:"download"`
	Pipeline Pipeline `toml:"pipeline"`
	History  History  `toml:"history"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/bwtools/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("bwtools.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a curation run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.LibraryRoot(), c.MetaDir(), c.Paths.StagingDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LibraryRoot returns the bwtools directory under the replay root.
func (c *Config) LibraryRoot() string {
	return filepath.Join(c.Paths.ReplayRoot, "bwtools")
}

// MetaDir returns the bookkeeping directory that holds the manifest.
func (c *Config) MetaDir() string {
	return filepath.Join(c.LibraryRoot(), ".meta")
}

// ManifestPath returns the location of the dedup manifest.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.MetaDir(), "manifest.json")
}

// ScrepBinary returns the replay analysis executable name or path.
func (c *Config) ScrepBinary() string {
	if cmd := strings.TrimSpace(c.Screp.Command); cmd != "" {
		return cmd
	}
	return defaultScrepCommand
}

// RequireAPI reports whether the remote API settings are usable for a curation run.
func (c *Config) RequireAPI() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/bwtools/config.toml"
		}
		return fmt.Errorf("api.base_url is required. Set BWTOOLS_API_BASE_URL env var or edit %s (create with 'bwtools config init')", defaultPath)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
