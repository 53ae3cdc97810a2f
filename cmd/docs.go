package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragweb/ragweb/internal/app"
	"github.com/ragweb/ragweb/internal/config"
	"github.com/ragweb/ragweb/internal/knowledge"
)

var (
	flagDocTitle    string
	flagDocContent  string
	flagDocMetadata map[string]string

	flagListTitle string
	flagListMeta  map[string]string
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage knowledge base documents",
}

var docsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a document to the knowledge base",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			id, err := a.System.AddDocument(ctx, flagDocTitle, flagDocContent, flagDocMetadata)
			if err != nil {
				return fmt.Errorf("adding document: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Document added with ID %d\n", id)
			return nil
		})
	},
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			var results []knowledge.Result
			var err error
			if flagListTitle != "" || len(flagListMeta) > 0 {
				results, err = a.System.SearchDocuments(ctx, flagListTitle, flagListMeta)
			} else {
				results, err = a.System.ListDocuments(ctx)
			}
			if err != nil {
				return fmt.Errorf("listing documents: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No documents stored.")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "%6d  %s  %s\n",
					r.Document.ID,
					r.Document.CreatedAt.Format("2006-01-02 15:04:05"),
					r.Document.Title,
				)
			}
			fmt.Fprintf(out, "\n%d documents\n", len(results))
			return nil
		})
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid document ID %q", args[0])
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			deleted, err := a.System.DeleteDocument(ctx, id)
			if err != nil {
				return fmt.Errorf("deleting document: %w", err)
			}
			if !deleted {
				return fmt.Errorf("document %d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Document %d deleted\n", id)
			return nil
		})
	},
}

func init() {
	docsAddCmd.Flags().StringVar(&flagDocTitle, "title", "", "document title (required)")
	docsAddCmd.Flags().StringVar(&flagDocContent, "content", "", "document content (required)")
	docsAddCmd.Flags().StringToStringVar(&flagDocMetadata, "meta", nil, "metadata entries (key=value, repeatable)")
	_ = docsAddCmd.MarkFlagRequired("title")
	_ = docsAddCmd.MarkFlagRequired("content")

	docsListCmd.Flags().StringVar(&flagListTitle, "title", "", "filter by title substring")
	docsListCmd.Flags().StringToStringVar(&flagListMeta, "meta", nil, "filter by metadata entries (key=value)")

	docsCmd.AddCommand(docsAddCmd, docsListCmd, docsDeleteCmd)
	rootCmd.AddCommand(docsCmd)
}

// withApp loads configuration, builds the application and tears it down
// around fn. Shared by the one-shot document commands.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
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

	return fn(ctx, a)
}
