package finalize

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"bwtools/internal/fileutil"
	"bwtools/internal/logging"
	"bwtools/internal/manifest"
)

// Ledger is the manifest surface Reconcile needs.
type Ledger interface {
	Contains(key string) bool
	Entries() []manifest.Entry
	Record(entry manifest.Entry) error
}

// ReconcileReport summarizes a Reconcile pass.
type ReconcileReport struct {
	Scanned   int
	Adopted   []manifest.Entry
	Duplicate []string
	// Removed lists interrupted cross-device copies that were deleted.
	Removed []string
}

// Reconcile adopts library replays the manifest does not reference, keyed by
// their MD5, so files placed by a run whose manifest commit failed are not
// downloaded again. Files under hidden directories are skipped. Hidden copy
// temporaries left by an interrupted finalize are removed.
func Reconcile(ctx context.Context, fsys afero.Fs, libraryRoot string, ledger Ledger, logger *slog.Logger) (ReconcileReport, error) {
	logger = logging.NewComponentLogger(logger, "reconcile")
	known := make(map[string]struct{})
	for _, entry := range ledger.Entries() {
		known[filepath.Clean(entry.Path)] = struct{}{}
	}

	var report ReconcileReport
	err := afero.Walk(fsys, libraryRoot, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			if path != libraryRoot && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isCopyTemp(info.Name()) {
			if err := fsys.Remove(path); err != nil {
				return err
			}
			report.Removed = append(report.Removed, path)
			logger.Info("removed interrupted copy", logging.String("path", path))
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ReplayExt) {
			return nil
		}
		report.Scanned++
		if _, ok := known[filepath.Clean(path)]; ok {
			return nil
		}
		sum, err := fileutil.MD5File(fsys, path)
		if err != nil {
			return err
		}
		if ledger.Contains(sum) {
			report.Duplicate = append(report.Duplicate, path)
			return nil
		}
		entry := manifest.Entry{Key: sum, Path: path, SavedAt: info.ModTime().Unix()}
		if entry.SavedAt <= 0 {
			entry.SavedAt = time.Now().Unix()
		}
		if err := ledger.Record(entry); err != nil {
			return err
		}
		report.Adopted = append(report.Adopted, entry)
		logger.Info("adopted untracked replay", logging.String("path", path), logging.String("identity_key", sum))
		return nil
	})
	if err != nil {
		return report, &Error{Kind: KindIO, Path: libraryRoot, Err: err}
	}
	return report, nil
}

func isCopyTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, CopyTempSuffix)
}
