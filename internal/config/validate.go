package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxPipelineConcurrency = 16
	maxProfileReplays      = 20
	maxResolveRetries      = 1
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ReplayRoot) == "" {
		return errors.New("paths.replay_root must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	if err := ensurePositiveMap(map[string]int{
		"api.timeout_seconds":      c.API.TimeoutSeconds,
		"screp.timeout_seconds":    c.Screp.TimeoutSeconds,
		"download.timeout_seconds": c.Download.TimeoutSeconds,
		"download.max_attempts":    c.Download.MaxAttempts,
	}); err != nil {
		return err
	}
	if c.Download.MaxBackoffMillis < c.Download.InitialBackoffMillis {
		return errors.New("download.max_backoff_ms must be >= download.initial_backoff_ms")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Concurrency > maxPipelineConcurrency {
		return fmt.Errorf("pipeline.concurrency must be <= %d", maxPipelineConcurrency)
	}
	if c.Pipeline.MaxCount > maxProfileReplays {
		return fmt.Errorf("pipeline.max_count must be <= %d (profile payload cap)", maxProfileReplays)
	}
	if c.Pipeline.ResolveRetries < 0 || c.Pipeline.ResolveRetries > maxResolveRetries {
		return fmt.Errorf("pipeline.resolve_retries must be between 0 and %d", maxResolveRetries)
	}
	if c.Pipeline.MinDurationSeconds < 0 {
		return errors.New("pipeline.min_duration_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
