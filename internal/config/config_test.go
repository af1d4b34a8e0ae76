package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"bwtools/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("USER", "sc_user")
	t.Setenv("BWTOOLS_API_BASE_URL", "http://127.0.0.1:57421/")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if runtime.GOOS != "windows" {
		wantRoot := filepath.Join(tempHome, ".wine-battlenet", "drive_c", "users", "sc_user", "Documents", "StarCraft", "Maps", "Replays")
		if cfg.Paths.ReplayRoot != wantRoot {
			t.Fatalf("unexpected replay root: got %q want %q", cfg.Paths.ReplayRoot, wantRoot)
		}
	}
	if cfg.Paths.StagingDir != filepath.Join(cfg.LibraryRoot(), ".meta", "staging") {
		t.Fatalf("expected staging under library meta dir, got %q", cfg.Paths.StagingDir)
	}
	if cfg.ManifestPath() != filepath.Join(cfg.Paths.ReplayRoot, "bwtools", ".meta", "manifest.json") {
		t.Fatalf("unexpected manifest path: %q", cfg.ManifestPath())
	}
	if cfg.API.BaseURL != "http://127.0.0.1:57421" {
		t.Fatalf("expected base url from env without trailing slash, got %q", cfg.API.BaseURL)
	}
	if cfg.Pipeline.MinDurationSeconds != 120 {
		t.Fatalf("unexpected min duration: %d", cfg.Pipeline.MinDurationSeconds)
	}
	if cfg.Pipeline.MaxCount != 20 {
		t.Fatalf("unexpected max count: %d", cfg.Pipeline.MaxCount)
	}
	if cfg.Download.MaxAttempts != 3 {
		t.Fatalf("unexpected download attempts: %d", cfg.Download.MaxAttempts)
	}
	if cfg.ScrepBinary() != "screp" {
		t.Fatalf("unexpected screp binary: %q", cfg.ScrepBinary())
	}
	if err := cfg.RequireAPI(); err != nil {
		t.Fatalf("RequireAPI returned error: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.LibraryRoot(), cfg.MetaDir(), cfg.Paths.StagingDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "bwtools.toml")

	type payload struct {
		Paths struct {
			ReplayRoot string `toml:"replay_root"`
		} `toml:"paths"`
		API struct {
			BaseURL string `toml:"base_url"`
		} `toml:"api"`
		Pipeline struct {
			Concurrency int `toml:"concurrency"`
		} `toml:"pipeline"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.ReplayRoot = filepath.Join(tempDir, "replays")
	custom.API.BaseURL = "http://localhost:1234"
	custom.Pipeline.Concurrency = 5
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.ReplayRoot != filepath.Join(tempDir, "replays") {
		t.Fatalf("unexpected replay root: %q", cfg.Paths.ReplayRoot)
	}
	if cfg.Pipeline.Concurrency != 5 {
		t.Fatalf("unexpected concurrency: %d", cfg.Pipeline.Concurrency)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized log format, got %q", cfg.Logging.Format)
	}
	if cfg.History.Path != filepath.Join(tempDir, "replays", "bwtools", ".meta", "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.History.Path)
	}
}

func TestValidateRejectsOversizedCount(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Pipeline.MaxCount = 50
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "pipeline.max_count") {
		t.Fatalf("expected max_count validation error, got %v", err)
	}
}

func TestValidateBoundsResolveRetries(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Pipeline.ResolveRetries = 3
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "pipeline.resolve_retries") {
		t.Fatalf("expected resolve_retries validation error, got %v", err)
	}

	cfg.Pipeline.ResolveRetries = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero retries should be valid: %v", err)
	}
}

func TestValidateRejectsInvertedBackoff(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Download.InitialBackoffMillis = 1000
	cfg.Download.MaxBackoffMillis = 10
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected backoff validation error")
	}
}

func TestRequireAPIWithoutBaseURL(t *testing.T) {
	cfg := config.Default()
	if err := cfg.RequireAPI(); err == nil || !strings.Contains(err.Error(), "api.base_url") {
		t.Fatalf("expected api.base_url error, got %v", err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("expected sample config to load, exists=%v err=%v", exists, err)
	}
}
