package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bwtools/internal/bwapi"
	"bwtools/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent curate runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.ID,
					run.StartedAt.Local().Format("2006-01-02 15:04"),
					run.Toon,
					bwapi.Gateway(run.Gateway).Label(),
					run.Matchup,
					strconv.Itoa(run.Downloaded),
					strconv.Itoa(run.Skipped),
					strconv.Itoa(run.Rejected),
					strconv.Itoa(run.Failed),
					runStatus(run),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "Toon", "Gateway", "Matchup", "Down", "Skip", "Rej", "Fail", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
				nil,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit runs as JSON")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show per-replay outcomes of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runID := strings.TrimSpace(args[0])
			run, err := store.GetRun(cmd.Context(), runID)
			if errors.Is(err, history.ErrRunNotFound) {
				return fmt.Errorf("run %s not found", runID)
			}
			if err != nil {
				return err
			}
			outcomes, err := store.Outcomes(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, struct {
					Run      history.Run       `json:"run"`
					Outcomes []history.Outcome `json:"outcomes"`
				}{run, outcomes})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s: %s on %s, %s, %s\n", run.ID, run.Toon, bwapi.Gateway(run.Gateway).Label(), run.Matchup, runStatus(run))
			if run.Error != "" {
				fmt.Fprintf(out, "Error: %s\n", run.Error)
			}
			rows := make([][]string, 0, len(outcomes))
			for _, o := range outcomes {
				detail := o.Path
				if detail == "" {
					detail = o.Error
				}
				rows = append(rows, []string{o.State, o.Link, detail})
			}
			fmt.Fprintln(out, renderTable([]string{"State", "Link", "Detail"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft}, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the run as JSON")
	return cmd
}

func openHistory(ctx *commandContext) (*history.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, errors.New("run history is disabled (set history.enabled = true)")
	}
	return history.Open(cfg.History.Path)
}

func runStatus(run history.Run) string {
	switch {
	case !run.Finished():
		return "running"
	case run.Error != "":
		return "failed"
	default:
		return fmt.Sprintf("done in %s", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
}
