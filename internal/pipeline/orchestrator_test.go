package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"bwtools/internal/analysis"
	"bwtools/internal/bwapi"
	"bwtools/internal/config"
	"bwtools/internal/history"
	"bwtools/internal/manifest"
	"bwtools/internal/pipeline"
	"bwtools/internal/replay"
	"bwtools/internal/resolver"
	"bwtools/internal/services"
	"bwtools/internal/testsupport"
)

type harness struct {
	cfg        *config.Config
	store      *manifest.Store
	source     *fakeSource
	downloader *fakeDownloader
	analyzer   *fakeAnalyzer
	ledger     pipeline.Ledger
	observer   pipeline.Observer
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return &harness{
		cfg:        cfg,
		store:      testsupport.MustOpenManifest(t, cfg),
		source:     newFakeSource(),
		downloader: newFakeDownloader(),
		analyzer:   &fakeAnalyzer{results: make(map[string]replay.AnalysisResult)},
	}
}

func (h *harness) orchestrator(t *testing.T) *pipeline.Orchestrator {
	t.Helper()
	o, err := pipeline.New(h.cfg, pipeline.Deps{
		Candidates: h.source,
		Downloader: h.downloader,
		Analyzer:   h.analyzer,
		Manifest:   h.store,
		Ledger:     h.ledger,
		Observer:   h.observer,
	}, nil)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return o
}

func request() pipeline.Request {
	m, _ := replay.ParseMatchup("PvT")
	return pipeline.Request{Toon: "Foo", Gateway: bwapi.Korea, Matchup: m, MaxCount: 20}
}

func TestRunFinalizesThenSkipsOnSecondRun(t *testing.T) {
	h := newHarness(t)
	h.source.add("link-1", "0123456789abcdef0123456789abcdef")
	h.analyzer.results["0123456789abcdef0123456789abcdef"] = fooVsBar(600)

	first, err := h.orchestrator(t).Run(context.Background(), request())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Summary != (pipeline.Summary{Downloaded: 1}) {
		t.Fatalf("unexpected first summary: %+v", first.Summary)
	}
	want := filepath.Join(h.cfg.LibraryRoot(), "Foo", "PvT", "Foo(Protoss)_vs_Bar(Terran).rep")
	if len(first.Finalized) != 1 || first.Finalized[0].DestinationPath != want {
		t.Fatalf("unexpected finalized replays: %+v", first.Finalized)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected finalized file: %v", err)
	}
	if h.store.Len() != 1 {
		t.Fatalf("expected one manifest entry, got %d", h.store.Len())
	}

	second, err := h.orchestrator(t).Run(context.Background(), request())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Summary != (pipeline.Summary{Skipped: 1}) || len(second.Finalized) != 0 {
		t.Fatalf("expected all skipped on second run, got %+v", second.Summary)
	}
	if h.downloader.fetchCount() != 1 {
		t.Fatalf("expected dedup before download, got %d fetches", h.downloader.fetchCount())
	}
	entries, _ := os.ReadDir(filepath.Dir(want))
	if len(entries) != 1 {
		t.Fatalf("expected no new files, got %d", len(entries))
	}
	if first.RunID == "" || first.RunID == second.RunID {
		t.Fatalf("expected distinct run ids, got %q and %q", first.RunID, second.RunID)
	}
}

func TestRunDurationBoundary(t *testing.T) {
	h := newHarness(t)
	h.source.add("short", "short-hash")
	h.source.add("edge", "edge-hash")
	h.source.add("long", "long-hash")
	h.analyzer.results["short-hash"] = fooVsBar(95)
	h.analyzer.results["edge-hash"] = fooVsBar(120)
	h.analyzer.results["long-hash"] = fooVsBar(121)

	result, err := h.orchestrator(t).Run(context.Background(), request())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Summary != (pipeline.Summary{Downloaded: 1, Rejected: 2}) {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
	states := map[string]pipeline.State{}
	for _, o := range result.Outcomes {
		states[o.Candidate.Link] = o.State
	}
	if states["short"] != pipeline.StateRejected || states["edge"] != pipeline.StateRejected || states["long"] != pipeline.StateFinalized {
		t.Fatalf("unexpected states: %v", states)
	}
	if h.store.Contains("short-hash") || h.store.Contains("edge-hash") || !h.store.Contains("long-hash") {
		t.Fatal("manifest should only hold the accepted replay")
	}
	if left := partials(h.cfg.Paths.StagingDir); len(left) != 0 {
		t.Fatalf("rejected replays left in staging: %v", left)
	}
}

func TestRunSharedIdentityFinalizesOnce(t *testing.T) {
	h := newHarness(t, testsupport.WithConcurrency(4))
	for _, link := range []string{"a", "b", "c"} {
		h.source.add(link, "shared-hash")
	}
	h.analyzer.results["shared-hash"] = fooVsBar(600)

	result, err := h.orchestrator(t).Run(context.Background(), request())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Summary.Downloaded != 1 || result.Summary.Skipped != 2 {
		t.Fatalf("expected one finalized and two skipped, got %+v", result.Summary)
	}
	if h.store.Len() != 1 {
		t.Fatalf("expected a single manifest entry, got %d", h.store.Len())
	}
	entries, _ := os.ReadDir(filepath.Join(h.cfg.LibraryRoot(), "Foo", "PvT"))
	if len(entries) != 1 {
		t.Fatalf("expected a single library file, got %d", len(entries))
	}
	if left := partials(h.cfg.Paths.StagingDir); len(left) != 0 {
		t.Fatalf("duplicates left in staging: %v", left)
	}
}

func TestRunLeavesNoPartialsAfterFailureAndCancellation(t *testing.T) {
	h := newHarness(t, testsupport.WithConcurrency(2))
	h.source.add("broken", "broken-hash")
	h.source.add("slow", "slow-hash")
	h.source.add("never", "never-hash")
	h.downloader.fail["http://replays.test/broken"] = errors.New("connection reset")
	h.downloader.block["http://replays.test/slow"] = true
	h.downloader.block["http://replays.test/never"] = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-h.downloader.started
		cancel()
	}()

	result, err := h.orchestrator(t).Run(ctx, request())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Summary.Failed != 1 || result.Summary.Cancelled != 2 || result.Summary.Downloaded != 0 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
	if left := partials(h.cfg.Paths.StagingDir); len(left) != 0 {
		t.Fatalf("expected staging to be swept, found %v", left)
	}
	if h.store.Len() != 0 {
		t.Fatal("cancelled run must not commit manifest entries")
	}
}

func TestRunToolMissingAbortsRun(t *testing.T) {
	h := newHarness(t, testsupport.WithConcurrency(1))
	h.source.add("one", "one-hash")
	h.source.add("two", "two-hash")
	h.analyzer.err = &analysis.Error{Kind: analysis.KindToolMissing, Err: errors.New("screp not found")}

	result, err := h.orchestrator(t).Run(context.Background(), request())
	var aerr *analysis.Error
	if !errors.As(err, &aerr) || aerr.Kind != analysis.KindToolMissing {
		t.Fatalf("expected tool missing error, got %v", err)
	}
	if result.Summary.Failed != 1 || result.Summary.Cancelled != 1 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
	if h.downloader.fetchCount() != 1 {
		t.Fatalf("expected the run to stop after the first analysis, got %d fetches", h.downloader.fetchCount())
	}
	if left := partials(h.cfg.Paths.StagingDir); len(left) != 0 {
		t.Fatalf("expected staging to be empty, found %v", left)
	}
}

func TestRunChecksToolBeforeListing(t *testing.T) {
	h := newHarness(t)
	h.source.add("one", "one-hash")
	h.analyzer.missing = &analysis.Error{Kind: analysis.KindToolMissing, Path: "screp", Err: errors.New("not found in PATH")}

	result, err := h.orchestrator(t).Run(context.Background(), request())
	var aerr *analysis.Error
	if !errors.As(err, &aerr) || aerr.Kind != analysis.KindToolMissing {
		t.Fatalf("expected tool missing error, got %v", err)
	}
	if result.Summary.Total() != 0 {
		t.Fatalf("expected no candidates to be processed, got %+v", result.Summary)
	}
	if h.downloader.fetchCount() != 0 {
		t.Fatalf("expected no downloads, got %d", h.downloader.fetchCount())
	}
}

func TestRunProfileFailure(t *testing.T) {
	h := newHarness(t)
	h.source.listErr = errors.New("503 service unavailable")

	result, err := h.orchestrator(t).Run(context.Background(), request())
	var rerr *resolver.Error
	if !errors.As(err, &rerr) || rerr.Kind != resolver.KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if result.Summary.Total() != 0 {
		t.Fatalf("expected empty summary, got %+v", result.Summary)
	}
}

func TestRunRetriesUpstreamResolveOnce(t *testing.T) {
	h := newHarness(t)
	h.source.add("flaky", "flaky-hash")
	h.source.add("gone", "gone-hash")
	h.source.add("down", "down-hash")
	h.source.errs["flaky"] = []error{&resolver.Error{Kind: resolver.KindUpstream, Link: "flaky", Err: errors.New("timeout")}}
	h.source.errs["gone"] = []error{&resolver.Error{Kind: resolver.KindNoURL, Link: "gone", Err: errors.New("no urls")}}
	upstream := &resolver.Error{Kind: resolver.KindUpstream, Link: "down", Err: errors.New("502")}
	h.source.errs["down"] = []error{upstream, upstream, upstream}
	h.analyzer.results["flaky-hash"] = fooVsBar(300)

	result, err := h.orchestrator(t).Run(context.Background(), request())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Summary.Downloaded != 1 || result.Summary.Failed != 2 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
	if got := h.source.resolveCalls("flaky"); got != 2 {
		t.Fatalf("expected flaky to be resolved twice, got %d", got)
	}
	if got := h.source.resolveCalls("gone"); got != 1 {
		t.Fatalf("expected no retry for missing url, got %d", got)
	}
	if got := h.source.resolveCalls("down"); got != 2 {
		t.Fatalf("expected one retry for upstream failure, got %d", got)
	}
}

func TestRunRecordsLedgerAndEvents(t *testing.T) {
	h := newHarness(t)
	h.source.add("keep", "keep-hash")
	h.source.add("drop", "drop-hash")
	h.analyzer.results["keep-hash"] = fooVsBar(400)
	h.analyzer.results["drop-hash"] = fooVsBar(30)

	ledger, err := history.Open(h.cfg.History.Path)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	h.ledger = ledger

	var (
		mu     sync.Mutex
		states = map[string][]pipeline.State{}
	)
	h.observer = pipeline.ObserverFunc(func(ctx context.Context, event pipeline.Event) {
		if id, ok := services.RunIDFromContext(ctx); !ok || id != event.RunID {
			t.Errorf("expected run id on context, got %q", id)
		}
		mu.Lock()
		states[event.Candidate.Link] = append(states[event.Candidate.Link], event.State)
		mu.Unlock()
	})

	result, err := h.orchestrator(t).Run(context.Background(), request())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, err := ledger.GetRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !run.Finished() || run.Downloaded != 1 || run.Rejected != 1 || run.Matchup != "PvT" || run.Gateway != int(bwapi.Korea) {
		t.Fatalf("unexpected ledger run: %+v", run)
	}
	outcomes, err := ledger.Outcomes(context.Background(), result.RunID)
	if err != nil || len(outcomes) != 2 {
		t.Fatalf("expected two outcomes, got %+v err=%v", outcomes, err)
	}

	mu.Lock()
	defer mu.Unlock()
	wantKeep := []pipeline.State{
		pipeline.StateDiscovered, pipeline.StateResolved, pipeline.StateDownloading,
		pipeline.StateDownloaded, pipeline.StateAnalyzed, pipeline.StateAccepting, pipeline.StateFinalized,
	}
	if got := states["keep"]; len(got) != len(wantKeep) {
		t.Fatalf("unexpected transitions for keep: %v", got)
	}
	for i, state := range wantKeep {
		if states["keep"][i] != state {
			t.Fatalf("transition %d = %s, want %s", i, states["keep"][i], state)
		}
	}
	if last := states["drop"][len(states["drop"])-1]; last != pipeline.StateRejected {
		t.Fatalf("expected drop to end rejected, got %s", last)
	}
}

func TestRunValidatesRequest(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t)
	if _, err := o.Run(context.Background(), pipeline.Request{Gateway: bwapi.Korea}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing player, got %v", err)
	}
	if _, err := o.Run(context.Background(), pipeline.Request{Toon: "Foo", Gateway: 99}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for gateway, got %v", err)
	}
}

func TestRunSweepsLeftoverPartials(t *testing.T) {
	h := newHarness(t)
	if err := os.MkdirAll(h.cfg.Paths.StagingDir, 0o755); err != nil {
		t.Fatal(err)
	}
	leftover := filepath.Join(h.cfg.Paths.StagingDir, "crashed-123.part")
	testsupport.WriteFile(t, leftover, 10)

	if _, err := h.orchestrator(t).Run(context.Background(), request()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Fatalf("expected leftover partial to be removed, stat err=%v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := pipeline.New(cfg, pipeline.Deps{}, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
