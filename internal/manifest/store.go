package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"bwtools/internal/fileutil"
	"bwtools/internal/logging"
)

// Entry is one finalized replay.
type Entry struct {
	Key     string `json:"-"`
	Path    string `json:"path"`
	SavedAt int64  `json:"saved_at"`
}

// RecordedAt returns SavedAt as a UTC timestamp.
func (e Entry) RecordedAt() time.Time {
	return time.Unix(e.SavedAt, 0).UTC()
}

type document struct {
	Entries map[string]Entry `json:"entries"`
}

// Store provides serialized access to the manifest file.
type Store struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	entries  map[string]Entry
	inFlight map[string]chan struct{}
}

// Open locks and loads the manifest at path. A missing file starts an empty
// manifest; an unreadable or corrupt file is a KindIO error rather than a
// silent reset, since resetting would re-download the whole library.
func Open(path string, logger *slog.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, &Error{Kind: KindIO, Op: "open", Err: errors.New("manifest path required")}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &Error{Kind: KindIO, Op: "open", Path: path, Err: err}
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, &Error{Kind: KindIO, Op: "lock", Path: path, Err: err}
	}
	if !ok {
		return nil, &Error{Kind: KindLocked, Op: "lock", Path: path, Err: errors.New("another bwtools run holds the manifest")}
	}

	s := &Store{
		path:     path,
		lock:     lock,
		logger:   logging.NewComponentLogger(logger, "manifest"),
		now:      time.Now,
		entries:  make(map[string]Entry),
		inFlight: make(map[string]chan struct{}),
	}
	if err := s.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return s, nil
}

// Path returns the manifest file location.
func (s *Store) Path() string {
	return s.path
}

// Contains reports whether key has already been finalized.
func (s *Store) Contains(key string) bool {
	_, ok := s.Lookup(key)
	return ok
}

// Lookup returns the entry recorded for key.
func (s *Store) Lookup(key string) (Entry, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Entry{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok
}

// Reserve claims key for a finalize in progress. While another worker holds
// the claim, Reserve waits for it to be released and then re-checks the
// recorded entries, so a failed finalize hands the key to the next waiter.
// It returns false when the key is recorded and ctx.Err() when ctx ends first.
// Callers that get true must call Release once they have recorded or
// abandoned the key.
func (s *Store) Reserve(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	for {
		s.mu.Lock()
		if _, done := s.entries[key]; done {
			s.mu.Unlock()
			return false, nil
		}
		busy, held := s.inFlight[key]
		if !held {
			s.inFlight[key] = make(chan struct{})
			s.mu.Unlock()
			return true, nil
		}
		s.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// Release drops a claim taken with Reserve and wakes its waiters.
func (s *Store) Release(key string) {
	key = strings.TrimSpace(key)
	s.mu.Lock()
	if ch, ok := s.inFlight[key]; ok {
		delete(s.inFlight, key)
		close(ch)
	}
	s.mu.Unlock()
}

// Record commits entry and rewrites the manifest. Recording a key that is
// already present is a successful no-op.
func (s *Store) Record(entry Entry) error {
	entry.Key = strings.TrimSpace(entry.Key)
	if entry.Key == "" {
		return &Error{Kind: KindIO, Op: "record", Path: s.path, Err: errors.New("identity key required")}
	}
	if entry.SavedAt == 0 {
		entry.SavedAt = s.now().Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.Key]; exists {
		return nil
	}
	s.entries[entry.Key] = entry
	if err := s.save(); err != nil {
		delete(s.entries, entry.Key)
		return &Error{Kind: KindIO, Op: "record", Path: s.path, Err: err}
	}

	s.logger.Debug("recorded manifest entry",
		logging.String("identity_key", entry.Key),
		logging.String("path", entry.Path))
	return nil
}

// Entries returns all entries, newest first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SavedAt != entries[j].SavedAt {
			return entries[i].SavedAt > entries[j].SavedAt
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}

// Len returns the number of recorded entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close releases the manifest lock.
func (s *Store) Close() error {
	if s == nil || s.lock == nil {
		return nil
	}
	if err := s.lock.Unlock(); err != nil {
		return &Error{Kind: KindIO, Op: "unlock", Path: s.path, Err: err}
	}
	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &Error{Kind: KindIO, Op: "load", Path: s.path, Err: err}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return &Error{Kind: KindIO, Op: "load", Path: s.path, Err: fmt.Errorf("parse manifest: %w", err)}
	}
	for key, entry := range doc.Entries {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		entry.Key = key
		s.entries[key] = entry
	}

	s.logger.Debug("loaded manifest",
		logging.Int("entry_count", len(s.entries)),
		logging.String("path", s.path))
	return nil
}

// save writes the manifest atomically. Callers hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(document{Entries: s.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	if err := fileutil.SyncDir(afero.NewOsFs(), filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("sync manifest dir: %w", err)
	}
	return nil
}
