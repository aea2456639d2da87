package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-console/internal/crawler"
	"github.com/JakeFAU/crawl-console/internal/export"
	"github.com/JakeFAU/crawl-console/internal/report"
	"github.com/JakeFAU/crawl-console/internal/session"
)

const terminateTimeout = 15 * time.Second

type crawlOptions struct {
	cfg    crawler.CrawlConfig
	format string
	out    string
}

func newCrawlCmd() *cobra.Command {
	var opts crawlOptions
	cmd := &cobra.Command{
		Use:   "crawl <seed-url>",
		Short: "Run one crawl session and print its report",
		Long: `Starts a session at seed-url and follows it until the engine reports it
finished. SIGINT terminates the session. The Markdown report goes to stdout;
--export writes the collected results as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args[0], opts)
		},
	}
	defaults := crawler.DefaultCrawlConfig()
	flags := cmd.Flags()
	flags.IntVar(&opts.cfg.MaxDepth, "depth", defaults.MaxDepth, "maximum link depth")
	flags.IntVar(&opts.cfg.Threads, "threads", defaults.Threads, "engine worker threads")
	flags.IntVar(&opts.cfg.DelayMs, "delay", defaults.DelayMs, "delay between requests in milliseconds")
	flags.StringVar(&opts.cfg.UserAgent, "user-agent", defaults.UserAgent, "User-Agent header")
	flags.StringVar(&opts.cfg.FilterPattern, "filter", "", "URL filter pattern")
	flags.IntVar(&opts.cfg.TimeoutMs, "timeout", defaults.TimeoutMs, "per-request timeout in milliseconds")
	flags.StringVar(&opts.format, "export", "", "also export results: csv, json or excel")
	flags.StringVar(&opts.out, "out", "", "export destination (default: the artifact's file name)")
	return cmd
}

func runCrawl(cmd *cobra.Command, seed string, opts crawlOptions) error {
	instance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := instance.Logger().Named("crawl")
	ctrl := instance.Controller()

	var format export.Format
	if opts.format != "" {
		if format, err = export.ParseFormat(opts.format); err != nil {
			return err
		}
	}

	cfg := mergeCrawlConfig(cmd, instance.Config().Crawl, opts.cfg)
	cfg.SeedURL = seed
	if err := ctrl.Start(cmd.Context(), cfg); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	logger.Info("session started", zap.String("session_id", ctrl.Snapshot().SessionID), zap.String("seed_url", seed))

	state, err := ctrl.WaitFinished(cmd.Context())
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted, terminating session")
		state, err = terminate(ctrl)
	}
	if err != nil {
		return err
	}
	logger.Info("session finished", zap.String("state", string(state)))

	now := time.Now().UTC()
	if err := report.WriteMarkdown(cmd.OutOrStdout(),
		report.FromSnapshot(ctrl.Snapshot(), ctrl.Pipeline().Results(), now)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if format == "" {
		return nil
	}
	artifact, err := export.Export(ctrl.Pipeline().Results(), format)
	if err != nil {
		return err
	}
	return writeArtifact(cmd.OutOrStdout(), artifact, opts.out)
}

// mergeCrawlConfig starts from the configured defaults and applies only the
// flags set on the command line.
func mergeCrawlConfig(cmd *cobra.Command, base, flagged crawler.CrawlConfig) crawler.CrawlConfig {
	if base == (crawler.CrawlConfig{}) {
		base = crawler.DefaultCrawlConfig()
	}
	flags := cmd.Flags()
	if flags.Changed("depth") {
		base.MaxDepth = flagged.MaxDepth
	}
	if flags.Changed("threads") {
		base.Threads = flagged.Threads
	}
	if flags.Changed("delay") {
		base.DelayMs = flagged.DelayMs
	}
	if flags.Changed("user-agent") {
		base.UserAgent = flagged.UserAgent
	}
	if flags.Changed("filter") {
		base.FilterPattern = flagged.FilterPattern
	}
	if flags.Changed("timeout") {
		base.TimeoutMs = flagged.TimeoutMs
	}
	return base
}

func terminate(ctrl *session.Controller) (session.State, error) {
	ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
	defer cancel()
	if err := ctrl.Terminate(ctx); err != nil && !errors.Is(err, crawler.ErrInvalidTransition) {
		return ctrl.State(), fmt.Errorf("terminate session: %w", err)
	}
	return ctrl.WaitFinished(ctx)
}

// writeArtifact writes to path, or to the artifact's own file name when path
// is empty. "-" means stdout.
func writeArtifact(stdout io.Writer, artifact export.Artifact, path string) error {
	if path == "-" {
		_, err := stdout.Write(artifact.Data)
		return err
	}
	if path == "" {
		path = artifact.Filename
	}
	if err := os.WriteFile(path, artifact.Data, 0o644); err != nil { //nolint:gosec // exports are meant to be shared
		return fmt.Errorf("write %s: %w", path, err)
	}
	_, err := fmt.Fprintf(stdout, "\nwrote %d bytes to %s\n", len(artifact.Data), path)
	return err
}
