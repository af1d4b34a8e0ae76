package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"bwtools/internal/finalize"
	"bwtools/internal/manifest"
)

func newManifestCommand(ctx *commandContext) *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect and repair the library manifest",
	}

	manifestCmd.AddCommand(newManifestListCommand(ctx))
	manifestCmd.AddCommand(newManifestReconcileCommand(ctx))

	return manifestCmd
}

type manifestEntryJSON struct {
	Key     string `json:"key"`
	Path    string `json:"path"`
	SavedAt string `json:"saved_at"`
}

func newManifestListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List finalized replays, newest first",
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
			store, err := manifest.Open(cfg.ManifestPath(), logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries := store.Entries()
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			if jsonOutput {
				payload := make([]manifestEntryJSON, 0, len(entries))
				for _, e := range entries {
					payload = append(payload, manifestEntryJSON{
						Key:     e.Key,
						Path:    e.Path,
						SavedAt: e.RecordedAt().Format(time.RFC3339),
					})
				}
				return writeJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Manifest is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.RecordedAt().Local().Format("2006-01-02 15:04"),
					shortKey(e.Key),
					e.Path,
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Saved", "Key", "Path"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
				[]string{"Total", strconv.Itoa(store.Len()), ""},
			))
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit entries as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many entries")
	return cmd
}

func newManifestReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Record replays present in the library but missing from the manifest",
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
			store, err := manifest.Open(cfg.ManifestPath(), logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			report, err := finalize.Reconcile(cmd.Context(), afero.NewOsFs(), cfg.LibraryRoot(), store, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanned %d replay(s): %d adopted, %d duplicate(s) of tracked replays\n",
				report.Scanned, len(report.Adopted), len(report.Duplicate))
			for _, entry := range report.Adopted {
				fmt.Fprintf(out, "  adopted   %s\n", entry.Path)
			}
			for _, path := range report.Duplicate {
				fmt.Fprintf(out, "  duplicate %s\n", path)
			}
			for _, path := range report.Removed {
				fmt.Fprintf(out, "  removed   %s\n", path)
			}
			return nil
		},
	}
}

func shortKey(key string) string {
	const width = 12
	if len(key) <= width {
		return key
	}
	return key[:width]
}
