package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	defaultLogDir                   = "~/.local/share/bwtools/logs"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultScrepCommand             = "screp"
	defaultScrepTimeoutSeconds      = 30
	defaultAPITimeoutSeconds        = 15
	defaultAPIMinIntervalMillis     = 250
	defaultRateLimitCooldownSeconds = 10
	defaultDownloadMaxAttempts      = 3
	defaultDownloadInitialBackoffMs = 500
	defaultDownloadMaxBackoffMs     = 8000
	defaultDownloadTimeoutSeconds   = 60
	defaultPipelineConcurrency      = 3
	defaultMinDurationSeconds       = 120
	defaultMaxCount                 = 20
	defaultResolveRetries           = 1
	defaultUnixUser                 = "default"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ReplayRoot: defaultReplayRoot(),
			LogDir:     defaultLogDir,
		},
		API: API{
			TimeoutSeconds:           defaultAPITimeoutSeconds,
			MinIntervalMillis:        defaultAPIMinIntervalMillis,
			RateLimitCooldownSeconds: defaultRateLimitCooldownSeconds,
		},
		Screp: Screp{
			Command:        defaultScrepCommand,
			TimeoutSeconds: defaultScrepTimeoutSeconds,
		},
		Download: Download{
			MaxAttempts:          defaultDownloadMaxAttempts,
			InitialBackoffMillis: defaultDownloadInitialBackoffMs,
			MaxBackoffMillis:     defaultDownloadMaxBackoffMs,
			TimeoutSeconds:       defaultDownloadTimeoutSeconds,
		},
		Pipeline: Pipeline{
			Concurrency:        defaultPipelineConcurrency,
			MinDurationSeconds: defaultMinDurationSeconds,
			MaxCount:           defaultMaxCount,
			ResolveRetries:     defaultResolveRetries,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultReplayRoot() string {
	if runtime.GOOS == "windows" {
		return windowsReplayDir(windowsUserProfileDir())
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return wineReplayDir(home, unixUser())
}

func windowsUserProfileDir() string {
	if value, ok := os.LookupEnv("USERPROFILE"); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return "."
}

func windowsReplayDir(profile string) string {
	return filepath.Join(profile, "Documents", "StarCraft", "Maps", "Replays")
}

func unixUser() string {
	if value, ok := os.LookupEnv("USER"); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return defaultUnixUser
}

func wineUserRoot(home, user string) string {
	return filepath.Join(home, ".wine-battlenet", "drive_c", "users", user)
}

func wineReplayDir(home, user string) string {
	return filepath.Join(wineUserRoot(home, user), "Documents", "StarCraft", "Maps", "Replays")
}
