package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"bwtools/internal/logging"
	"bwtools/internal/replay"
)

// Analyzer extracts match facts from a replay file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (replay.AnalysisResult, error)
}

// Screp invokes `screp -overview <path>`.
type Screp struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

var _ Analyzer = (*Screp)(nil)

// NewScrep creates a screp-backed Analyzer. A zero timeout disables the
// per-invocation deadline.
func NewScrep(binary string, timeout time.Duration, logger *slog.Logger) *Screp {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "screp"
	}
	return &Screp{binary: binary, timeout: timeout, logger: logging.NewComponentLogger(logger, "analysis")}
}

// Binary returns the configured executable.
func (s *Screp) Binary() string {
	return s.binary
}

// Available reports a KindToolMissing error when the binary cannot be found.
func (s *Screp) Available() error {
	if _, err := exec.LookPath(s.binary); err != nil {
		return &Error{Kind: KindToolMissing, Path: s.binary, Err: err}
	}
	return nil
}

// Analyze runs the tool once against path. There is no retry: a replay that
// fails to analyze is treated as corrupt.
func (s *Screp) Analyze(ctx context.Context, path string) (replay.AnalysisResult, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return replay.AnalysisResult{}, &Error{Kind: KindCorrupt, Path: path, Err: errors.New("empty path")}
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, s.binary, "-overview", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return replay.AnalysisResult{}, ctxErr
		}
		if isMissingTool(err) {
			return replay.AnalysisResult{}, &Error{Kind: KindToolMissing, Path: path, Err: fmt.Errorf("%s: %w", s.binary, err)}
		}
		detail := strings.TrimSpace(stderr.String())
		if runCtx.Err() != nil {
			detail = fmt.Sprintf("timed out after %s", s.timeout)
		}
		return replay.AnalysisResult{}, &Error{Kind: KindCorrupt, Path: path, Err: fmt.Errorf("%s exited: %w: %s", s.binary, err, detail)}
	}

	result, err := ParseOverview(stdout.String())
	if err != nil {
		return replay.AnalysisResult{}, &Error{Kind: KindCorrupt, Path: path, Err: err}
	}
	s.logger.Debug("replay analyzed",
		logging.String("path", path),
		logging.Int("duration_seconds", result.DurationSeconds),
		logging.Int("players", len(result.PlayerNames)))
	return result, nil
}

func isMissingTool(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && (errors.Is(pathErr.Err, fs.ErrNotExist) || errors.Is(pathErr.Err, fs.ErrPermission)) {
		return true
	}
	return false
}
