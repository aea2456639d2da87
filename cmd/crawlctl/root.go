package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawl-console/internal/app"
	"github.com/JakeFAU/crawl-console/internal/config"
)

type appKeyType string

const appKey appKeyType = "app"

const closeTimeout = 10 * time.Second

// newApp is the application factory; tests replace it to inject options.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.Build(ctx, cfg)
}

// newRootCmd builds the command tree. The returned func closes the services
// built for the command; it runs even when the command fails, which cobra's
// post-run hooks do not.
func newRootCmd() (*cobra.Command, func() error) {
	var (
		cfgFile  string
		instance *app.App
	)
	cmd := &cobra.Command{
		Use:   "crawlctl",
		Short: "Control and inspect crawl sessions on a crawl engine.",
		Long: `crawlctl starts, pauses, terminates and resets crawl sessions on an external
crawl engine, follows their progress, and turns the collected results into
stats, link graphs, reports and exports.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			instance, err = newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, instance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.AddCommand(newServeCmd(), newCrawlCmd(), newResultsCmd(), newClearDBCmd())

	closeApp := func() error {
		if instance == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		err := instance.Close(ctx)
		instance = nil
		return err
	}
	return cmd, closeApp
}

func resolveApp(ctx context.Context) (*app.App, error) {
	instance, ok := ctx.Value(appKey).(*app.App)
	if !ok || instance == nil {
		return nil, errors.New("application services not initialized")
	}
	return instance, nil
}
