package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"bwtools/internal/analysis"
	"bwtools/internal/bwapi"
	"bwtools/internal/config"
	"bwtools/internal/curation"
	"bwtools/internal/download"
	"bwtools/internal/finalize"
	"bwtools/internal/history"
	"bwtools/internal/logging"
	"bwtools/internal/replay"
	"bwtools/internal/resolver"
	"bwtools/internal/services"
	"bwtools/internal/staging"
)

// CandidateSource lists and resolves candidates.
type CandidateSource interface {
	ListCandidates(ctx context.Context, req resolver.Request) iter.Seq2[replay.Candidate, error]
	Resolve(ctx context.Context, candidate replay.Candidate) (replay.ResolvedDownload, error)
}

// Downloader fetches resolved replays into staging and discards unused ones.
type Downloader interface {
	download.Fetcher
	Discard(staged download.StagedFile) error
}

// Ledger records runs and outcomes. Ledger failures are logged, never fatal.
type Ledger interface {
	BeginRun(ctx context.Context, run history.Run) error
	RecordOutcome(ctx context.Context, outcome history.Outcome) error
	FinishRun(ctx context.Context, run history.Run) error
}

// ToolChecker is implemented by analyzers that can confirm their tool is
// installed. Run checks it before listing candidates.
type ToolChecker interface {
	Available() error
}

// Deps bundles the collaborators an Orchestrator drives.
type Deps struct {
	Candidates CandidateSource
	Downloader Downloader
	Analyzer   analysis.Analyzer
	Policy     curation.Policy
	Manifest   finalize.Store
	Ledger     Ledger
	Observer   Observer
	Fs         afero.Fs
}

// Request selects what a run curates.
type Request struct {
	Toon     string
	Gateway  bwapi.Gateway
	Matchup  replay.Matchup
	Alias    string
	MaxCount int
}

// Outcome is the terminal record of one candidate.
type Outcome struct {
	Candidate   replay.Candidate
	IdentityKey string
	State       State
	Finalized   *replay.FinalizedReplay
	Reason      string
	Err         error
}

// Result is what a run returns to its caller.
type Result struct {
	RunID     string
	Summary   Summary
	Finalized []replay.FinalizedReplay
	Outcomes  []Outcome
}

// Orchestrator runs curate requests.
type Orchestrator struct {
	cfg    *config.Config
	deps   Deps
	root   *slog.Logger
	logger *slog.Logger
	newID  func() string
}

// New creates an Orchestrator. Manifest, Candidates, Downloader and Analyzer
// are required.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "config required", nil)
	}
	switch {
	case deps.Candidates == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "candidate source required", nil)
	case deps.Downloader == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "downloader required", nil)
	case deps.Analyzer == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "analyzer required", nil)
	case deps.Manifest == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "manifest required", nil)
	}
	if deps.Policy == nil {
		deps.Policy = curation.Default(cfg.Pipeline.MinDurationSeconds)
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		root:   logger,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		newID:  uuid.NewString,
	}, nil
}

// Run processes one request to completion. The returned error is non-nil when
// the run could not proceed: invalid request, profile lookup failure, missing
// analysis tool, or cancellation. Result is populated in every case.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	req.Toon = strings.TrimSpace(req.Toon)
	if req.Toon == "" {
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "run", "player required", nil)
	}
	if !req.Gateway.Valid() {
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "run", fmt.Sprintf("unknown gateway %d", int(req.Gateway)), nil)
	}

	runID := o.newID()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)
	started := time.Now()

	limit := resolver.Request{MaxCount: req.MaxCount}.Limit()
	run := history.Run{
		ID:        runID,
		Toon:      req.Toon,
		Gateway:   int(req.Gateway),
		Matchup:   req.Matchup.Key(),
		Alias:     req.Alias,
		MaxCount:  limit,
		StartedAt: started,
	}
	o.ledger(ctx, "begin", func(l Ledger) error { return l.BeginRun(ctx, run) })

	o.sweepStaging(ctx, logger)
	logger.Info("curate run started",
		logging.String("toon", req.Toon),
		logging.String("gateway", req.Gateway.Label()),
		logging.String("matchup", req.Matchup.Key()),
		logging.Int("max_count", limit),
		logging.String(logging.FieldEventType, "run_started"))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	layout := finalize.NewLayout(o.cfg.LibraryRoot(), req.Toon, req.Alias, req.Matchup)
	fin := finalize.New(layout, req.Toon, o.deps.Manifest, o.root, finalize.WithFs(o.deps.Fs))

	w := &runState{runID: runID, cancel: cancel}
	concurrency := max(o.cfg.Pipeline.Concurrency, 1)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	if checker, ok := o.deps.Analyzer.(ToolChecker); ok {
		if err := checker.Available(); err != nil {
			w.fail(fmt.Errorf("analysis tool unavailable: %w", err))
		}
	}

	if w.err() == nil {
		listReq := resolver.Request{Toon: req.Toon, Gateway: req.Gateway, Matchup: req.Matchup, MaxCount: req.MaxCount}
		seq := 0
		for candidate, err := range o.deps.Candidates.ListCandidates(runCtx, listReq) {
			if err != nil {
				w.fail(fmt.Errorf("list candidates: %w", err))
				break
			}
			index := seq
			seq++
			o.notify(runCtx, runID, candidate, StateDiscovered, "", nil)

			if runCtx.Err() != nil {
				w.add(index, o.terminal(runCtx, runID, Outcome{Candidate: candidate, State: StateCancelled, Err: runCtx.Err()}))
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				w.add(index, o.terminal(runCtx, runID, Outcome{Candidate: candidate, State: StateCancelled, Err: runCtx.Err()}))
				continue
			}

			wg.Add(1)
			go func(index int, candidate replay.Candidate) {
				defer wg.Done()
				defer func() { <-sem }()
				outcome := o.process(runCtx, w, fin, candidate)
				w.add(index, o.terminal(runCtx, runID, outcome))
			}(index, candidate)
		}
	}
	wg.Wait()

	o.sweepStaging(ctx, logger)

	result := w.result()
	runErr := w.err()
	if runErr == nil {
		runErr = ctx.Err()
	}

	run.Downloaded = result.Summary.Downloaded
	run.Skipped = result.Summary.Skipped
	run.Rejected = result.Summary.Rejected
	run.Failed = result.Summary.Failed + result.Summary.Cancelled
	if runErr != nil {
		run.Error = runErr.Error()
	}
	o.ledger(context.WithoutCancel(ctx), "finish", func(l Ledger) error { return l.FinishRun(context.WithoutCancel(ctx), run) })

	attrs := []logging.Attr{
		logging.Int("downloaded", result.Summary.Downloaded),
		logging.Int("skipped", result.Summary.Skipped),
		logging.Int("rejected", result.Summary.Rejected),
		logging.Int("failed", result.Summary.Failed),
		logging.Int("cancelled", result.Summary.Cancelled),
		logging.Duration("elapsed", time.Since(started)),
	}
	if runErr != nil {
		logging.ErrorWithContext(logger, "curate run aborted", "run_aborted",
			append(attrs,
				logging.Error(runErr),
				logging.String(logging.FieldErrorHint, "run bwtools preflight and check the API and screp"),
			)...)
		return result, runErr
	}
	logger.Info("curate run finished", logging.Args(append(attrs, logging.String(logging.FieldEventType, "run_finished"))...)...)
	return result, nil
}

// process advances one candidate to a terminal state.
func (o *Orchestrator) process(ctx context.Context, w *runState, fin *finalize.Finalizer, candidate replay.Candidate) Outcome {
	ctx = services.WithCandidate(ctx, candidate.Link)
	outcome := Outcome{Candidate: candidate}
	step := func(state State) context.Context {
		o.notify(ctx, w.runID, candidate, state, "", nil)
		return services.WithStage(ctx, string(state))
	}
	end := func(state State, err error) Outcome {
		if ctxErr := ctx.Err(); ctxErr != nil && err != nil && errors.Is(err, ctxErr) {
			state = StateCancelled
			err = ctxErr
		}
		outcome.State = state
		outcome.Err = err
		return outcome
	}

	resolveCtx := services.WithStage(ctx, string(StateDiscovered))
	resolved, err := o.resolve(resolveCtx, candidate)
	if err != nil {
		return end(StateResolveFailed, err)
	}
	outcome.IdentityKey = resolved.IdentityKey()
	step(StateResolved)

	if o.deps.Manifest.Contains(outcome.IdentityKey) {
		outcome.Reason = "already in manifest"
		return end(StateSkipped, nil)
	}

	downloadCtx := step(StateDownloading)
	staged, err := o.deps.Downloader.Fetch(downloadCtx, resolved, o.cfg.Paths.StagingDir)
	if err != nil {
		return end(StateDownloadFailed, err)
	}
	analyzeCtx := step(StateDownloaded)

	result, err := o.deps.Analyzer.Analyze(analyzeCtx, staged.Path)
	if err != nil {
		o.discard(ctx, staged)
		var aerr *analysis.Error
		if errors.As(err, &aerr) && aerr.Kind == analysis.KindToolMissing {
			w.fail(err)
		}
		return end(StateAnalysisFailed, err)
	}
	step(StateAnalyzed)

	if accepted, reason := curation.Evaluate(o.deps.Policy, result); !accepted {
		o.discard(ctx, staged)
		outcome.Reason = reason
		return end(StateRejected, nil)
	}

	finalizeCtx := step(StateAccepting)
	finalized, err := fin.Finalize(finalizeCtx, staged, candidate, result)
	switch {
	case errors.Is(err, finalize.ErrDuplicate):
		outcome.Reason = "identity finalized by another candidate"
		return end(StateSkipped, nil)
	case err != nil && finalized.DestinationPath != "":
		// Placed but not recorded; the replay is in the library.
		outcome.Finalized = &finalized
		outcome.Err = err
		outcome.State = StateFinalized
		return outcome
	case err != nil:
		o.discard(ctx, staged)
		return end(StateFinalizeFailed, err)
	}
	outcome.Finalized = &finalized
	return end(StateFinalized, nil)
}

// resolve retries upstream failures ResolveRetries times. NoURL is final.
func (o *Orchestrator) resolve(ctx context.Context, candidate replay.Candidate) (replay.ResolvedDownload, error) {
	attempts := 1 + max(o.cfg.Pipeline.ResolveRetries, 0)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resolved, err := o.deps.Candidates.Resolve(ctx, candidate)
		if err == nil {
			return resolved, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return replay.ResolvedDownload{}, err
		}
		var rerr *resolver.Error
		if !errors.As(err, &rerr) || rerr.Kind != resolver.KindUpstream {
			return replay.ResolvedDownload{}, err
		}
		if attempt < attempts {
			logging.WarnWithContext(logging.WithContext(ctx, o.logger), "replay lookup failed, retrying", "resolve_retry",
				logging.Int("attempt", attempt),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check remote API availability"),
				logging.String(logging.FieldImpact, "candidate delayed"),
			)
		}
	}
	return replay.ResolvedDownload{}, lastErr
}

// terminal logs and publishes the final state of outcome.
func (o *Orchestrator) terminal(ctx context.Context, runID string, outcome Outcome) Outcome {
	ctx = services.WithCandidate(ctx, outcome.Candidate.Link)
	logger := logging.WithContext(ctx, o.logger)
	attrs := []logging.Attr{
		logging.String("state", string(outcome.State)),
		logging.String("identity_key", outcome.IdentityKey),
	}
	if outcome.Reason != "" {
		attrs = append(attrs, logging.String("reason", outcome.Reason))
	}
	switch {
	case outcome.State.Failed():
		logging.WarnWithContext(logger, "candidate failed", "candidate_failed", append(attrs,
			logging.Error(outcome.Err),
			logging.String(logging.FieldErrorHint, hintFor(outcome.State)),
			logging.String(logging.FieldImpact, "replay not added to library"),
		)...)
	case outcome.Err != nil && outcome.State != StateCancelled:
		logging.WarnWithContext(logger, "candidate finished with warning", "candidate_warning", append(attrs, logging.Error(outcome.Err))...)
	default:
		logger.Info("candidate finished", logging.Args(attrs...)...)
	}

	o.notify(ctx, runID, outcome.Candidate, outcome.State, outcome.Reason, outcome.Err)

	record := history.Outcome{
		RunID:       runID,
		Link:        outcome.Candidate.Link,
		IdentityKey: outcome.IdentityKey,
		State:       string(outcome.State),
		Error:       errString(outcome.Err),
	}
	if outcome.Finalized != nil {
		record.Path = outcome.Finalized.DestinationPath
	}
	if record.Error == "" {
		record.Error = outcome.Reason
	}
	o.ledger(ctx, "outcome", func(l Ledger) error { return l.RecordOutcome(context.WithoutCancel(ctx), record) })
	return outcome
}

func (o *Orchestrator) notify(ctx context.Context, runID string, candidate replay.Candidate, state State, reason string, err error) {
	if o.deps.Observer == nil {
		return
	}
	o.deps.Observer.Observe(ctx, Event{RunID: runID, Candidate: candidate, State: state, Reason: reason, Err: err})
}

func (o *Orchestrator) ledger(ctx context.Context, op string, fn func(Ledger) error) {
	if o.deps.Ledger == nil {
		return
	}
	if err := fn(o.deps.Ledger); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "run ledger update failed", "history_write_failed",
			logging.String("op", op),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check history.path or disable history"),
			logging.String(logging.FieldImpact, "run history incomplete"),
		)
	}
}

func (o *Orchestrator) discard(ctx context.Context, staged download.StagedFile) {
	if err := o.deps.Downloader.Discard(staged); err != nil {
		logging.WithContext(ctx, o.logger).Debug("discard staged replay failed",
			logging.String("path", staged.Path), logging.Error(err))
	}
}

func (o *Orchestrator) sweepStaging(ctx context.Context, logger *slog.Logger) {
	result := staging.CleanPartials(context.WithoutCancel(ctx), o.deps.Fs, o.cfg.Paths.StagingDir, 0, nil, logger)
	if len(result.Removed) > 0 {
		logger.Debug("swept staging", logging.Int("removed", len(result.Removed)))
	}
}

func hintFor(state State) string {
	switch state {
	case StateResolveFailed:
		return "check remote API availability and base_url"
	case StateDownloadFailed:
		return "check network connectivity and staging_dir free space"
	case StateAnalysisFailed:
		return "replay may be corrupt; inspect with screp -overview"
	case StateFinalizeFailed:
		return "check replay_root permissions and free space"
	default:
		return ""
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// runState collects outcomes from workers and the first run-fatal error.
type runState struct {
	runID  string
	cancel context.CancelFunc

	mu       sync.Mutex
	outcomes []indexedOutcome
	fatal    error
}

type indexedOutcome struct {
	index   int
	outcome Outcome
}

func (w *runState) add(index int, outcome Outcome) {
	w.mu.Lock()
	w.outcomes = append(w.outcomes, indexedOutcome{index: index, outcome: outcome})
	w.mu.Unlock()
}

// fail records err as run-fatal and cancels the remaining candidates.
func (w *runState) fail(err error) {
	w.mu.Lock()
	if w.fatal == nil {
		w.fatal = err
	}
	w.mu.Unlock()
	w.cancel()
}

func (w *runState) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fatal
}

func (w *runState) result() Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	sort.Slice(w.outcomes, func(i, j int) bool { return w.outcomes[i].index < w.outcomes[j].index })

	res := Result{RunID: w.runID, Outcomes: make([]Outcome, 0, len(w.outcomes))}
	for _, item := range w.outcomes {
		res.Outcomes = append(res.Outcomes, item.outcome)
		res.Summary.add(item.outcome.State)
		if item.outcome.State == StateFinalized && item.outcome.Finalized != nil {
			res.Finalized = append(res.Finalized, *item.outcome.Finalized)
		}
	}
	return res
}
