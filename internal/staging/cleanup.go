package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"bwtools/internal/download"
	"bwtools/internal/logging"
)

// CleanResult contains the outcome of a staging cleanup.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a file path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanPartials removes partial downloads (*.part) from stagingDir whose
// modification time is older than maxAge. A zero maxAge removes every partial,
// which is safe whenever the caller holds the manifest lock: no other run can
// be writing into staging. Files currently listed in keep are left alone.
func CleanPartials(ctx context.Context, fsys afero.Fs, stagingDir string, maxAge time.Duration, keep map[string]struct{}, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}

	entries, err := afero.ReadDir(fsys, stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), download.PartSuffix) {
			continue
		}
		path := filepath.Join(stagingDir, entry.Name())
		if _, active := keep[path]; active {
			continue
		}
		if maxAge > 0 && !entry.ModTime().Before(cutoff) {
			continue
		}

		if err := fsys.Remove(path); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove partial download",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "staging_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, path)
		if logger != nil {
			logger.Info("removed partial download",
				logging.String("path", path),
				logging.Duration("age", time.Since(entry.ModTime())),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}

	return result
}

// FileInfo describes one file in the staging directory.
type FileInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
	Partial bool
}

// ListFiles returns the regular files in stagingDir, oldest first. A missing
// directory yields no files.
func ListFiles(fsys afero.Fs, stagingDir string) ([]FileInfo, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}

	entries, err := afero.ReadDir(fsys, stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Mode().IsRegular() {
			continue
		}
		files = append(files, fileInfo(stagingDir, entry))
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ModTime.Before(files[j].ModTime)
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

func fileInfo(dir string, entry fs.FileInfo) FileInfo {
	return FileInfo{
		Name:    entry.Name(),
		Path:    filepath.Join(dir, entry.Name()),
		ModTime: entry.ModTime(),
		Size:    entry.Size(),
		Partial: strings.HasSuffix(entry.Name(), download.PartSuffix),
	}
}
