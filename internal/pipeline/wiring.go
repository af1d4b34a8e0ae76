package pipeline

import (
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"bwtools/internal/analysis"
	"bwtools/internal/backoff"
	"bwtools/internal/bwapi"
	"bwtools/internal/config"
	"bwtools/internal/curation"
	"bwtools/internal/download"
	"bwtools/internal/finalize"
	"bwtools/internal/resolver"
)

// NewFromConfig wires the production collaborators described by cfg: one
// backoff gate shared by metadata lookups and binary downloads, the screp
// analyzer, and the default curation policy. ledger and observer may be nil.
func NewFromConfig(cfg *config.Config, manifest finalize.Store, ledger Ledger, observer Observer, logger *slog.Logger) (*Orchestrator, error) {
	if err := cfg.RequireAPI(); err != nil {
		return nil, err
	}
	gate := backoff.NewGate(
		time.Duration(cfg.API.MinIntervalMillis)*time.Millisecond,
		time.Duration(cfg.API.RateLimitCooldownSeconds)*time.Second,
	)
	client, err := bwapi.New(cfg.API.BaseURL,
		bwapi.WithGate(gate),
		bwapi.WithTimeout(time.Duration(cfg.API.TimeoutSeconds)*time.Second),
	)
	if err != nil {
		return nil, err
	}

	fsys := afero.NewOsFs()
	policy := backoff.Policy{
		MaxAttempts: cfg.Download.MaxAttempts,
		Initial:     time.Duration(cfg.Download.InitialBackoffMillis) * time.Millisecond,
		Max:         time.Duration(cfg.Download.MaxBackoffMillis) * time.Millisecond,
	}
	executor := download.New(policy, logger,
		download.WithFs(fsys),
		download.WithGate(gate),
		download.WithTimeout(time.Duration(cfg.Download.TimeoutSeconds)*time.Second),
	)
	screp := analysis.NewScrep(cfg.ScrepBinary(), time.Duration(cfg.Screp.TimeoutSeconds)*time.Second, logger)

	return New(cfg, Deps{
		Candidates: resolver.New(client, logger),
		Downloader: executor,
		Analyzer:   screp,
		Policy:     curation.Default(cfg.Pipeline.MinDurationSeconds),
		Manifest:   manifest,
		Ledger:     ledger,
		Observer:   observer,
		Fs:         fsys,
	}, logger)
}
