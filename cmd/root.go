// Package cmd implements the ragweb command line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ragweb/ragweb/internal/log"
)

var (
	flagDebug   bool
	flagLogJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "ragweb",
	Short: "ragweb - grounded document Q&A over PostgreSQL",
	Long: `ragweb stores documents with vector embeddings in PostgreSQL and
answers questions grounded in the most similar documents.

When the pgvector extension is available, similarity ranking runs in
the database; otherwise embeddings are stored as JSON and ranked
in-process. Run "ragweb serve" for the HTTP API or "ragweb ask" for
one-shot questions.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "log in JSON format")
}

// newLogger builds the process logger from the persistent flags.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagLogJSON})
}
