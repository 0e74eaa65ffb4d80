// Package cmd defines the CLI commands for the ragline executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teamindigo/ragline/internal/config"
	"github.com/teamindigo/ragline/internal/logging"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragline",
		Short: "Crawl, index and query a document corpus.",
		Long: `ragline ingests web content into a local vector index and answers
questions against it. The crawl command runs one ingestion pass, serve
exposes the HTTP API, and query asks a single question from the shell.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newQueryCmd())

	return cmd
}

// loadEnv builds the config and logger shared by all commands.
func loadEnv() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ragline: %v\n", err)
		os.Exit(1)
	}
}
