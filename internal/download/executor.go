package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"

	"bwtools/internal/backoff"
	"bwtools/internal/logging"
	"bwtools/internal/replay"
	"bwtools/internal/services"
	"bwtools/internal/textutil"
)

// PartSuffix marks in-progress downloads in the staging directory.
const PartSuffix = ".part"

// MaxReplayBytes bounds a single replay download.
const MaxReplayBytes = 32 << 20

var md5Pattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// StagedFile is a fully fetched replay waiting in the staging directory.
type StagedFile struct {
	Path        string
	IdentityKey string
	Size        int64
	MD5         string
}

// Fetcher fetches resolved downloads into a staging directory.
type Fetcher interface {
	Fetch(ctx context.Context, resolved replay.ResolvedDownload, stagingDir string) (StagedFile, error)
}

// Executor is the HTTP Fetcher.
type Executor struct {
	fs     afero.Fs
	client *http.Client
	gate   *backoff.Gate
	policy backoff.Policy
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

var _ Fetcher = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithFs swaps the filesystem staging files are written to.
func WithFs(fsys afero.Fs) Option {
	return func(e *Executor) {
		if fsys != nil {
			e.fs = fsys
		}
	}
}

// WithGate shares call pacing with other remote callers.
func WithGate(gate *backoff.Gate) Option {
	return func(e *Executor) {
		e.gate = gate
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		if timeout > 0 {
			e.client = &http.Client{Timeout: timeout}
		}
	}
}

// New creates an Executor using policy for retries.
func New(policy backoff.Policy, logger *slog.Logger, opts ...Option) *Executor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	e := &Executor{
		fs:     afero.NewOsFs(),
		client: &http.Client{Timeout: 60 * time.Second},
		policy: policy,
		logger: logging.NewComponentLogger(logger, "download"),
		sleep:  backoff.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fetch streams resolved.URL into stagingDir. On success the returned file is
// complete and digest-verified; on failure nothing is left behind.
func (e *Executor) Fetch(ctx context.Context, resolved replay.ResolvedDownload, stagingDir string) (StagedFile, error) {
	key := resolved.IdentityKey()
	if strings.TrimSpace(resolved.URL) == "" {
		return StagedFile{}, &Error{Kind: KindFatal, URL: resolved.URL, Err: errors.New("empty url")}
	}
	if err := e.fs.MkdirAll(stagingDir, 0o755); err != nil {
		return StagedFile{}, &Error{Kind: KindFatal, URL: resolved.URL, Err: fmt.Errorf("create staging dir: %w", err)}
	}

	file, err := afero.TempFile(e.fs, stagingDir, stagingPrefix(key)+"-*"+PartSuffix)
	if err != nil {
		return StagedFile{}, &Error{Kind: KindFatal, URL: resolved.URL, Err: fmt.Errorf("create staging file: %w", err)}
	}
	path := file.Name()
	committed := false
	defer func() {
		if !committed {
			_ = file.Close()
			_ = e.fs.Remove(path)
		}
	}()

	var (
		digest  string
		size    int64
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := e.policy.Delay(attempt - 1)
			logging.WarnWithContext(e.logger, "replay download failed, retrying", "download_retry",
				logging.String("url", resolved.URL),
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", e.policy.MaxAttempts),
				logging.Duration("backoff", delay),
				logging.Error(lastErr),
				logging.String(logging.FieldErrorHint, "check network connectivity or remote API availability"),
				logging.String(logging.FieldImpact, "candidate delayed"),
			)
			if err := e.sleep(ctx, delay); err != nil {
				return StagedFile{}, err
			}
		}
		if err := e.gate.Wait(ctx); err != nil {
			return StagedFile{}, err
		}
		size, digest, lastErr = e.attempt(ctx, file, resolved.URL)
		e.gate.Observe(lastErr)
		if lastErr == nil {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return StagedFile{}, ctxErr
		}
		if !backoff.IsRetriable(lastErr) {
			return StagedFile{}, &Error{Kind: KindFatal, URL: resolved.URL, Attempts: attempt, Err: lastErr}
		}
	}
	if lastErr != nil {
		return StagedFile{}, &Error{Kind: KindTransient, URL: resolved.URL, Attempts: e.policy.MaxAttempts, Err: lastErr}
	}
	attempts := min(attempt, e.policy.MaxAttempts)

	if err := file.Sync(); err != nil {
		return StagedFile{}, &Error{Kind: KindFatal, URL: resolved.URL, Attempts: attempts, Err: fmt.Errorf("sync staging file: %w", err)}
	}
	if err := file.Close(); err != nil {
		return StagedFile{}, &Error{Kind: KindFatal, URL: resolved.URL, Attempts: attempts, Err: fmt.Errorf("close staging file: %w", err)}
	}

	if expected := strings.ToLower(strings.TrimSpace(resolved.ContentHash)); expected != "" {
		if md5Pattern.MatchString(expected) {
			if expected != digest {
				return StagedFile{}, &Error{Kind: KindIntegrity, URL: resolved.URL, Attempts: attempts, Err: fmt.Errorf("md5 mismatch: expected %s, got %s", expected, digest)}
			}
		} else {
			e.logger.Debug("content hash is not an md5 digest, skipping verification",
				logging.String("content_hash", expected))
		}
	}

	committed = true
	e.logger.Debug("replay staged",
		logging.String("path", path),
		logging.Int64("bytes", size),
		logging.Int("attempts", attempts))
	return StagedFile{Path: path, IdentityKey: key, Size: size, MD5: digest}, nil
}

// Discard removes a staged file that will not be finalized.
func (e *Executor) Discard(staged StagedFile) error {
	if staged.Path == "" {
		return nil
	}
	if err := e.fs.Remove(staged.Path); err != nil && !errors.Is(err, afero.ErrFileNotFound) {
		return err
	}
	return nil
}

func (e *Executor) attempt(ctx context.Context, file afero.File, url string) (int64, string, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, "", fmt.Errorf("rewind staging file: %w", err)
	}
	if err := file.Truncate(0); err != nil {
		return 0, "", fmt.Errorf("truncate staging file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, "", services.Wrap(services.ErrTransient, "download", "fetch", "request failed", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return 0, "", err
	}

	hasher := md5.New()
	written, err := io.Copy(io.MultiWriter(file, hasher), io.LimitReader(resp.Body, MaxReplayBytes+1))
	if err != nil {
		return 0, "", services.Wrap(services.ErrTransient, "download", "fetch", "stream body", err)
	}
	if written > MaxReplayBytes {
		return 0, "", fmt.Errorf("replay exceeds %d bytes", MaxReplayBytes)
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return 0, "", services.Wrap(services.ErrTransient, "download", "fetch", fmt.Sprintf("short body: got %d of %d bytes", written, resp.ContentLength), nil)
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "download", "fetch", fmt.Sprintf("status %d", code), backoff.ErrRateLimited)
	case code >= 500:
		return services.Wrap(services.ErrTransient, "download", "fetch", fmt.Sprintf("status %d", code), nil)
	default:
		return services.Wrap(services.ErrValidation, "download", "fetch", fmt.Sprintf("status %d", code), nil)
	}
}

func stagingPrefix(key string) string {
	token := textutil.SanitizeToken(key)
	if len(token) > 40 {
		token = token[:40]
	}
	return token
}
