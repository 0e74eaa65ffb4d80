package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teamindigo/ragline/internal/app"
	"github.com/teamindigo/ragline/internal/retrieve"
)

func newQueryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ask a single question against the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, strings.Join(args, " "), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the full answer as JSON")
	return cmd
}

func runQuery(cmd *cobra.Command, question string, asJSON bool) error {
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

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	answer, err := a.Orchestrator.Answer(ctx, question)
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	switch {
	case answer.Generated:
		fmt.Println(answer.Text)
	case !answer.Context.Empty():
		fmt.Println("No answer could be generated; closest matching context:")
		fmt.Println(retrieve.RenderContext(answer.Context))
	default:
		fmt.Println("No relevant content found in the index.")
	}
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range answer.Sources {
			fmt.Printf("  - %s\n", src)
		}
	}
	if answer.LowConfidence {
		fmt.Println("\n(low confidence)")
	}
	return nil
}
