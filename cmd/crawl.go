package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/app"
	"github.com/teamindigo/ragline/internal/pipeline"
)

func newCrawlCmd() *cobra.Command {
	var seedURLs []string
	var recurse bool

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one ingestion pass over the configured seeds",
		Long: `Fetches the seed URLs, follows in-scope links up to the configured
depth, normalizes and chunks each page and writes embeddings into the
vector index. Seeds come from the config file unless --seed is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, seedURLs, recurse)
		},
	}
	cmd.Flags().StringSliceVar(&seedURLs, "seed", nil, "seed URL (repeatable, overrides config seeds)")
	cmd.Flags().BoolVar(&recurse, "recurse", true, "follow links discovered on seed pages")
	return cmd
}

func runCrawl(cmd *cobra.Command, seedURLs []string, recurse bool) error {
	cfg, logger, err := loadEnv()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}
	defer a.Close()

	seeds := cfg.Seeds
	if len(seedURLs) > 0 {
		seeds = nil
		for _, u := range seedURLs {
			seeds = append(seeds, pipeline.Seed{URL: u, Recurse: recurse})
		}
	}
	if len(seeds) == 0 {
		return errors.New("no seeds configured; set seeds in the config file or pass --seed")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := a.RunCrawl(ctx, seeds)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("crawl: %w", err)
	}

	logger.Info("ingestion pass complete",
		zap.String("run_id", summary.RunID),
		zap.Int("pages_fetched", summary.PagesFetched),
		zap.Int("pages_failed", summary.PagesFailed),
		zap.Bool("cancelled", summary.Cancelled),
	)
	return nil
}
