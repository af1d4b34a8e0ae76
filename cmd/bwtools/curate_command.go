package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"bwtools/internal/bwapi"
	"bwtools/internal/config"
	"bwtools/internal/history"
	"bwtools/internal/manifest"
	"bwtools/internal/pipeline"
	"bwtools/internal/preflight"
	"bwtools/internal/replay"
)

type curateOptions struct {
	player     string
	gateway    string
	matchup    string
	alias      string
	count      int
	jsonOutput bool
	quiet      bool
}

func newCurateCommand(ctx *commandContext) *cobra.Command {
	opts := curateOptions{}

	cmd := &cobra.Command{
		Use:   "curate",
		Short: "Download, analyze and file a player's recent ladder replays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			req, err := opts.request(cfg)
			if err != nil {
				return err
			}
			return runCurate(cmd, cfg, logger, req, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.player, "player", "p", "", "Ladder toon to curate replays for")
	cmd.Flags().StringVarP(&opts.gateway, "gateway", "g", "", "Gateway id or name (10 \"US West\", 11 \"US East\", 20 Europe, 30 Korea, 45 Asia)")
	cmd.Flags().StringVarP(&opts.matchup, "matchup", "m", "", "Matchup filter such as PvT (default: all 1v1)")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 0, "Maximum candidates to consider (default from config)")
	cmd.Flags().StringVar(&opts.alias, "alias", "", "Directory name to file replays under instead of the toon")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Emit the run result as JSON")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress per-replay progress lines")
	_ = cmd.MarkFlagRequired("player")
	_ = cmd.MarkFlagRequired("gateway")

	return cmd
}

func (o curateOptions) request(cfg *config.Config) (pipeline.Request, error) {
	gateway, err := bwapi.ParseGateway(o.gateway)
	if err != nil {
		return pipeline.Request{}, err
	}
	matchup, err := replay.ParseMatchup(o.matchup)
	if err != nil {
		return pipeline.Request{}, err
	}
	count := o.count
	if count <= 0 {
		count = cfg.Pipeline.MaxCount
	}
	return pipeline.Request{
		Toon:     strings.TrimSpace(o.player),
		Gateway:  gateway,
		Matchup:  matchup,
		Alias:    strings.TrimSpace(o.alias),
		MaxCount: count,
	}, nil
}

func runCurate(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, req pipeline.Request, opts curateOptions) error {
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}

	if failed := preflight.Failed(preflight.RunAll(runCtx, cfg)); len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, r := range failed {
			names = append(names, fmt.Sprintf("%s (%s)", r.Name, r.Detail))
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, "; "))
	}

	store, err := manifest.Open(cfg.ManifestPath(), logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var ledger pipeline.Ledger
	if cfg.History.Enabled {
		hist, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer func() { _ = hist.Close() }()
		ledger = hist
	}

	var observer pipeline.Observer
	if !opts.quiet && !opts.jsonOutput {
		observer = newProgressPrinter(cmd.ErrOrStderr())
	}

	orch, err := pipeline.NewFromConfig(cfg, store, ledger, observer, logger)
	if err != nil {
		return err
	}

	result, runErr := orch.Run(runCtx, req)
	if opts.jsonOutput {
		if err := writeJSON(cmd, curateJSON(result, runErr)); err != nil {
			return err
		}
	} else {
		printCurateResult(cmd.OutOrStdout(), result)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("curate run %s: %w", result.RunID, runErr)
	}
	return runErr
}

// progressPrinter writes one line per terminal candidate state.
type progressPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, colorize: shouldColorize(out)}
}

func (p *progressPrinter) Observe(_ context.Context, event pipeline.Event) {
	if !event.State.Terminal() {
		return
	}
	msg := event.Reason
	if event.Err != nil {
		msg = event.Err.Error()
	}
	label := event.Candidate.GameID
	if label == "" {
		label = event.Candidate.Link
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, renderStatusLine(label, stateKind(event.State), strings.TrimSpace(string(event.State)+" "+msg), p.colorize))
}

func printCurateResult(out io.Writer, result pipeline.Result) {
	s := result.Summary
	fmt.Fprintln(out, renderTable(
		[]string{"Downloaded", "Skipped", "Rejected", "Failed", "Cancelled", "Total"},
		[][]string{{
			strconv.Itoa(s.Downloaded),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Rejected),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Cancelled),
			strconv.Itoa(s.Total()),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
		nil,
	))
	if len(result.Finalized) == 0 {
		return
	}
	rows := make([][]string, 0, len(result.Finalized))
	for _, f := range result.Finalized {
		rows = append(rows, []string{f.Matchup, f.DestinationPath})
	}
	fmt.Fprintln(out, renderTable([]string{"Matchup", "Path"}, rows, []columnAlignment{alignLeft, alignLeft}, nil))
}

type curateOutcomeJSON struct {
	Link        string `json:"link"`
	IdentityKey string `json:"identity_key,omitempty"`
	State       string `json:"state"`
	Path        string `json:"path,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
}

type curateResultJSON struct {
	RunID      string              `json:"run_id"`
	Downloaded int                 `json:"downloaded"`
	Skipped    int                 `json:"skipped"`
	Rejected   int                 `json:"rejected"`
	Failed     int                 `json:"failed"`
	Cancelled  int                 `json:"cancelled"`
	Outcomes   []curateOutcomeJSON `json:"outcomes"`
	Error      string              `json:"error,omitempty"`
}

func curateJSON(result pipeline.Result, runErr error) curateResultJSON {
	payload := curateResultJSON{
		RunID:      result.RunID,
		Downloaded: result.Summary.Downloaded,
		Skipped:    result.Summary.Skipped,
		Rejected:   result.Summary.Rejected,
		Failed:     result.Summary.Failed,
		Cancelled:  result.Summary.Cancelled,
		Outcomes:   make([]curateOutcomeJSON, 0, len(result.Outcomes)),
	}
	if runErr != nil {
		payload.Error = runErr.Error()
	}
	for _, o := range result.Outcomes {
		item := curateOutcomeJSON{
			Link:        o.Candidate.Link,
			IdentityKey: o.IdentityKey,
			State:       string(o.State),
			Reason:      o.Reason,
		}
		if o.Finalized != nil {
			item.Path = o.Finalized.DestinationPath
		}
		if o.Err != nil {
			item.Error = o.Err.Error()
		}
		payload.Outcomes = append(payload.Outcomes, item)
	}
	return payload
}
