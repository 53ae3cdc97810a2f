package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragweb/ragweb/internal/app"
	"github.com/ragweb/ragweb/internal/config"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question grounded in the stored documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd, strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, question string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, newLogger())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(context.Background()); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	answer, err := a.System.Ask(ctx, question)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, answer.Text)

	if len(answer.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for _, src := range answer.Sources {
			fmt.Fprintf(out, "  - %s (similarity %.3f)\n", src.Title, src.Similarity)
		}
	}
	if answer.Skipped > 0 {
		fmt.Fprintf(out, "\n%d stored documents could not be ranked and were skipped.\n", answer.Skipped)
	}
	return nil
}
