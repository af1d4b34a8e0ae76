package finalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"bwtools/internal/download"
	"bwtools/internal/fileutil"
	"bwtools/internal/logging"
	"bwtools/internal/manifest"
	"bwtools/internal/replay"
)

// DefaultMaxCollisions bounds the -N suffix search.
const DefaultMaxCollisions = 999

// CopyTempSuffix ends the hidden name a cross-device copy is written under
// before it is renamed into place. Reconcile removes leftovers.
const CopyTempSuffix = ".copy"

// Store is the manifest surface the finalizer needs.
type Store interface {
	Contains(key string) bool
	Reserve(ctx context.Context, key string) (bool, error)
	Release(key string)
	Record(entry manifest.Entry) error
}

// Finalizer moves accepted replays into the library.
type Finalizer struct {
	fs            afero.Fs
	layout        Layout
	mainPlayer    string
	store         Store
	logger        *slog.Logger
	maxCollisions int
	now           func() time.Time

	// placeMu serializes the name-search-then-move sequence so concurrent
	// finalizes cannot claim the same free name.
	placeMu sync.Mutex
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithFs swaps the filesystem used for staging and library paths.
func WithFs(fsys afero.Fs) Option {
	return func(f *Finalizer) {
		if fsys != nil {
			f.fs = fsys
		}
	}
}

// WithMaxCollisions overrides DefaultMaxCollisions.
func WithMaxCollisions(n int) Option {
	return func(f *Finalizer) {
		if n >= 0 {
			f.maxCollisions = n
		}
	}
}

// New creates a Finalizer writing under layout. mainPlayer is listed first in
// file names when present in the analysis.
func New(layout Layout, mainPlayer string, store Store, logger *slog.Logger, opts ...Option) *Finalizer {
	f := &Finalizer{
		fs:            afero.NewOsFs(),
		layout:        layout,
		mainPlayer:    mainPlayer,
		store:         store,
		logger:        logging.NewComponentLogger(logger, "finalize"),
		maxCollisions: DefaultMaxCollisions,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Layout returns the directory layout the finalizer writes into.
func (f *Finalizer) Layout() Layout {
	return f.layout
}

// Finalize places staged under its collision-free name and records it in the
// manifest. A worker holding the same identity key is waited for; if it
// records the key, ErrDuplicate is returned and staged removed. A KindRecord
// error still carries the placed replay: the file stays in the library.
func (f *Finalizer) Finalize(ctx context.Context, staged download.StagedFile, candidate replay.Candidate, result replay.AnalysisResult) (replay.FinalizedReplay, error) {
	key := strings.TrimSpace(staged.IdentityKey)
	if key == "" {
		return replay.FinalizedReplay{}, &Error{Kind: KindIO, Path: staged.Path, Err: errors.New("staged file has no identity key")}
	}
	ok, err := f.store.Reserve(ctx, key)
	if err != nil {
		return replay.FinalizedReplay{}, err
	}
	if !ok {
		f.discard(staged)
		return replay.FinalizedReplay{}, ErrDuplicate
	}
	defer f.store.Release(key)

	first, second := OrderPlayers(result, f.mainPlayer)
	name := FileName(first, second)
	dir := f.layout.Dir()
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return replay.FinalizedReplay{}, &Error{Kind: KindIO, Path: dir, Err: fmt.Errorf("create library dir: %w", err)}
	}

	dest, err := f.place(ctx, staged, key, dir, name)
	if err != nil {
		return replay.FinalizedReplay{}, err
	}

	finalized := replay.FinalizedReplay{
		Matchup:         replay.KeyFor(first.Race, second.Race),
		DestinationPath: dest,
		IdentityKey:     key,
		Source:          candidate,
	}
	if err := f.store.Record(manifest.Entry{Key: key, Path: dest, SavedAt: f.now().Unix()}); err != nil {
		logging.WarnWithContext(f.logger, "replay placed but manifest commit failed", "manifest_record_failed",
			logging.String("path", dest),
			logging.String("identity_key", key),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'bwtools manifest reconcile' to adopt the file"),
			logging.String(logging.FieldImpact, "a later run may download this replay again"),
		)
		return finalized, &Error{Kind: KindRecord, Path: dest, Err: err}
	}

	f.logger.Info("replay finalized",
		logging.String("path", dest),
		logging.String("matchup", finalized.Matchup),
		logging.String("identity_key", key))
	return finalized, nil
}

func (f *Finalizer) place(ctx context.Context, staged download.StagedFile, key, dir, name string) (string, error) {
	f.placeMu.Lock()
	defer f.placeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	dest, err := f.freeName(dir, name)
	if err != nil {
		return "", err
	}
	// Last check before the library changes.
	if f.store.Contains(key) {
		f.discard(staged)
		return "", ErrDuplicate
	}
	if err := f.move(staged.Path, dest, key); err != nil {
		return "", &Error{Kind: KindIO, Path: dest, Err: err}
	}
	if err := fileutil.SyncDir(f.fs, dir); err != nil {
		f.logger.Debug("library dir sync failed", logging.String("dir", dir), logging.Error(err))
	}
	return dest, nil
}

func (f *Finalizer) freeName(dir, name string) (string, error) {
	for n := 0; n <= f.maxCollisions; n++ {
		candidate := filepath.Join(dir, suffixed(name, n))
		exists, err := afero.Exists(f.fs, candidate)
		if err != nil {
			return "", &Error{Kind: KindIO, Path: candidate, Err: err}
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", &Error{Kind: KindCollisionExhausted, Path: filepath.Join(dir, name), Err: fmt.Errorf("no free name after %d suffixes", f.maxCollisions)}
}

// move renames src to dest, falling back to a verified copy when they live on
// different filesystems. The copy lands under a hidden temporary name first so
// dest only ever appears complete.
func (f *Finalizer) move(src, dest, key string) error {
	err := f.fs.Rename(src, dest)
	if err == nil {
		return nil
	}
	if !fileutil.IsCrossDevice(err) {
		return fmt.Errorf("rename staged replay: %w", err)
	}

	tmp := copyTempPath(dest, src)
	if err := fileutil.CopyVerified(f.fs, src, tmp); err != nil {
		return fmt.Errorf("copy staged replay: %w", err)
	}
	if err := f.fs.Rename(tmp, dest); err != nil {
		_ = f.fs.Remove(tmp)
		return fmt.Errorf("rename copied replay: %w", err)
	}
	if err := f.fs.Remove(src); err != nil && !os.IsNotExist(err) {
		// The staged copy is a .part file; the next run's staging sweep removes it.
		f.logger.Warn("failed to remove staged replay after copy",
			logging.String("path", src),
			logging.String("identity_key", key),
			logging.Error(err),
			logging.String(logging.FieldEventType, "staging_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "remove the file manually or rerun bwtools"),
			logging.String(logging.FieldImpact, "staging directory holds a stale copy"),
		)
	}
	return nil
}

func copyTempPath(dest, src string) string {
	return filepath.Join(filepath.Dir(dest), "."+filepath.Base(src)+CopyTempSuffix)
}

func (f *Finalizer) discard(staged download.StagedFile) {
	if staged.Path == "" {
		return
	}
	if err := f.fs.Remove(staged.Path); err != nil && !os.IsNotExist(err) {
		f.logger.Debug("failed to discard staged replay", logging.String("path", staged.Path), logging.Error(err))
	}
}
