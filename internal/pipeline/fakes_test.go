package pipeline_test

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"bwtools/internal/analysis"
	"bwtools/internal/download"
	"bwtools/internal/replay"
	"bwtools/internal/resolver"
)

// fakeSource serves a fixed candidate list. resolve maps a link to the
// download it resolves to; errs holds per-link failures consumed in order.
type fakeSource struct {
	mu         sync.Mutex
	candidates []replay.Candidate
	resolve    map[string]replay.ResolvedDownload
	errs       map[string][]error
	listErr    error
	calls      map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		resolve: make(map[string]replay.ResolvedDownload),
		errs:    make(map[string][]error),
		calls:   make(map[string]int),
	}
}

func (s *fakeSource) add(link, hash string) {
	c := replay.Candidate{Link: link, PlayerNames: []string{"Foo", "Bar"}, PlayerRaces: []string{"Protoss", "Terran"}, RaceList: "protoss,terran"}
	s.candidates = append(s.candidates, c)
	s.resolve[link] = replay.ResolvedDownload{Candidate: &c, URL: "http://replays.test/" + link, ContentHash: hash}
}

func (s *fakeSource) ListCandidates(ctx context.Context, req resolver.Request) iter.Seq2[replay.Candidate, error] {
	return func(yield func(replay.Candidate, error) bool) {
		if s.listErr != nil {
			yield(replay.Candidate{}, &resolver.Error{Kind: resolver.KindUpstream, Err: s.listErr})
			return
		}
		for _, c := range s.candidates {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (s *fakeSource) Resolve(ctx context.Context, candidate replay.Candidate) (replay.ResolvedDownload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[candidate.Link]++
	if queued := s.errs[candidate.Link]; len(queued) > 0 {
		s.errs[candidate.Link] = queued[1:]
		return replay.ResolvedDownload{}, queued[0]
	}
	return s.resolve[candidate.Link], nil
}

func (s *fakeSource) resolveCalls(link string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[link]
}

// fakeDownloader writes the identity key as file contents so fakeAnalyzer
// can look results up by key. fail leaves a partial behind to exercise the
// staging sweep; block waits for cancellation after starting.
type fakeDownloader struct {
	mu      sync.Mutex
	fail    map[string]error
	block   map[string]bool
	started chan string
	fetches int
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{fail: make(map[string]error), block: make(map[string]bool), started: make(chan string, 16)}
}

func (d *fakeDownloader) Fetch(ctx context.Context, resolved replay.ResolvedDownload, stagingDir string) (download.StagedFile, error) {
	d.mu.Lock()
	d.fetches++
	d.mu.Unlock()

	key := resolved.IdentityKey()
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return download.StagedFile{}, err
	}
	file, err := os.CreateTemp(stagingDir, "stage-*"+download.PartSuffix)
	if err != nil {
		return download.StagedFile{}, err
	}
	_, _ = file.WriteString(key)
	_ = file.Close()

	if err := d.fail[resolved.URL]; err != nil {
		return download.StagedFile{}, &download.Error{Kind: download.KindTransient, URL: resolved.URL, Err: err}
	}
	if d.block[resolved.URL] {
		d.started <- resolved.URL
		<-ctx.Done()
		return download.StagedFile{}, ctx.Err()
	}
	return download.StagedFile{Path: file.Name(), IdentityKey: key, Size: int64(len(key))}, nil
}

func (d *fakeDownloader) Discard(staged download.StagedFile) error {
	if err := os.Remove(staged.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (d *fakeDownloader) fetchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetches
}

// fakeAnalyzer returns results keyed by the identity key written to the file.
type fakeAnalyzer struct {
	results map[string]replay.AnalysisResult
	err     error
	missing error
}

func (a *fakeAnalyzer) Available() error { return a.missing }

func (a *fakeAnalyzer) Analyze(ctx context.Context, path string) (replay.AnalysisResult, error) {
	if a.err != nil {
		return replay.AnalysisResult{}, a.err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return replay.AnalysisResult{}, &analysis.Error{Kind: analysis.KindCorrupt, Path: path, Err: err}
	}
	result, ok := a.results[strings.TrimSpace(string(data))]
	if !ok {
		return replay.AnalysisResult{}, &analysis.Error{Kind: analysis.KindCorrupt, Path: path, Err: errors.New("no fixture")}
	}
	return result, nil
}

func fooVsBar(duration int) replay.AnalysisResult {
	return replay.AnalysisResult{
		PlayerNames:     []string{"Foo", "Bar"},
		PlayerRaces:     []string{"Protoss", "Terran"},
		DurationSeconds: duration,
	}
}

func partials(dir string) []string {
	matches, _ := filepath.Glob(filepath.Join(dir, "*"+download.PartSuffix))
	return matches
}
