package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"bwtools/internal/manifest"
	"bwtools/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and clean the download staging directory",
	}

	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))

	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List files left in staging",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			files, err := staging.ListFiles(afero.NewOsFs(), cfg.Paths.StagingDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintf(out, "Staging directory %s is empty\n", cfg.Paths.StagingDir)
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				kind := "file"
				if f.Partial {
					kind = "partial"
				}
				rows = append(rows, []string{f.Name, kind, humanize.Bytes(uint64(max(f.Size, 0))), humanize.Time(f.ModTime)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Name", "Kind", "Size", "Modified"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				nil,
			))
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove partial downloads left by interrupted runs",
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
			// Holding the manifest guarantees no run is writing into staging.
			store, err := manifest.Open(cfg.ManifestPath(), logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			result := staging.CleanPartials(cmd.Context(), afero.NewOsFs(), cfg.Paths.StagingDir, olderThan, nil, logger)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d partial download(s)\n", len(result.Removed))
			for _, failure := range result.Errors {
				fmt.Fprintf(out, "  failed %s: %v\n", failure.Path, failure.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d partial download(s) could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only remove partials older than this age")
	return cmd
}
