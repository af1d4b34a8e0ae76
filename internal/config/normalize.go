package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeScrep()
	c.normalizeDownload()
	c.normalizePipeline()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ReplayRoot) == "" {
		c.Paths.ReplayRoot = defaultReplayRoot()
	}
	if c.Paths.ReplayRoot, err = expandPath(c.Paths.ReplayRoot); err != nil {
		return fmt.Errorf("paths.replay_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		// Staging shares the library filesystem so finalize can rename atomically.
		c.Paths.StagingDir = filepath.Join(c.MetaDir(), "staging")
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if c.API.BaseURL == "" {
		if value, ok := os.LookupEnv("BWTOOLS_API_BASE_URL"); ok {
			c.API.BaseURL = strings.TrimSpace(value)
		}
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = defaultAPITimeoutSeconds
	}
	if c.API.MinIntervalMillis < 0 {
		c.API.MinIntervalMillis = 0
	}
	if c.API.RateLimitCooldownSeconds <= 0 {
		c.API.RateLimitCooldownSeconds = defaultRateLimitCooldownSeconds
	}
}

func (c *Config) normalizeScrep() {
	c.Screp.Command = strings.TrimSpace(c.Screp.Command)
	if c.Screp.Command == "" {
		c.Screp.Command = defaultScrepCommand
	}
	if c.Screp.TimeoutSeconds <= 0 {
		c.Screp.TimeoutSeconds = defaultScrepTimeoutSeconds
	}
}

func (c *Config) normalizeDownload() {
	if c.Download.MaxAttempts <= 0 {
		c.Download.MaxAttempts = defaultDownloadMaxAttempts
	}
	if c.Download.InitialBackoffMillis <= 0 {
		c.Download.InitialBackoffMillis = defaultDownloadInitialBackoffMs
	}
	if c.Download.MaxBackoffMillis <= 0 {
		c.Download.MaxBackoffMillis = defaultDownloadMaxBackoffMs
	}
	if c.Download.TimeoutSeconds <= 0 {
		c.Download.TimeoutSeconds = defaultDownloadTimeoutSeconds
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.Concurrency <= 0 {
		c.Pipeline.Concurrency = defaultPipelineConcurrency
	}
	if c.Pipeline.MaxCount <= 0 {
		c.Pipeline.MaxCount = defaultMaxCount
	}
	if c.Pipeline.ResolveRetries < 0 {
		c.Pipeline.ResolveRetries = 0
	}
}

func (c *Config) normalizeHistory() error {
	var err error
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.MetaDir(), "history.db")
	}
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
