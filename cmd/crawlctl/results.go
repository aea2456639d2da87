package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawl-console/internal/crawler"
	"github.com/JakeFAU/crawl-console/internal/export"
)

func newResultsCmd() *cobra.Command {
	var (
		fromDB bool
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Export the engine's live or persisted results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			var results []crawler.CrawlResult
			if fromDB {
				results, err = instance.Engine().DBResults(cmd.Context())
			} else {
				results, err = instance.Engine().Results(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("fetch results: %w", err)
			}
			artifact, err := export.Export(results, f)
			if err != nil {
				return err
			}
			return writeArtifact(cmd.OutOrStdout(), artifact, out)
		},
	}
	cmd.Flags().BoolVar(&fromDB, "db", false, "read the engine's persisted results instead of the live set")
	cmd.Flags().StringVar(&format, "format", string(export.FormatJSON), "csv, json or excel")
	cmd.Flags().StringVar(&out, "out", "-", `destination file, "-" for stdout`)
	return cmd
}
