package preflight

import (
	"context"
	"errors"
	"fmt"

	"bwtools/internal/analysis"
	"bwtools/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes every preflight check for the given config. The API check
// is skipped when no base URL is configured, since curate refuses to start
// without one anyway.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Replay library", cfg.LibraryRoot()),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckManifestLock(cfg.ManifestPath()),
		CheckAnalyzer(analysis.NewScrep(cfg.ScrepBinary(), 0, nil)),
	}

	if cfg.API.BaseURL != "" {
		results = append(results, CheckAPI(ctx, cfg.API.BaseURL))
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// CheckAnalyzer reports whether the analysis tool can be run. It uses the
// same lookup curate performs before listing candidates.
func CheckAnalyzer(screp *analysis.Screp) Result {
	if err := screp.Available(); err != nil {
		var aerr *analysis.Error
		if errors.As(err, &aerr) {
			return Result{Name: "screp", Passed: false, Detail: fmt.Sprintf("binary %q not found", aerr.Path)}
		}
		return Result{Name: "screp", Passed: false, Detail: err.Error()}
	}
	return Result{Name: "screp", Passed: true, Detail: screp.Binary()}
}
