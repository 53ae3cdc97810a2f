package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragweb/ragweb/internal/app"
)

var flagReset bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database schema",
	Long: `Creates the documents table and indexes if they do not exist.

With --reset the table is dropped and recreated first, permanently
discarding all stored documents.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			// Setup already ensured the schema; a reset run drops and
			// recreates it.
			if flagReset {
				if err := a.Store.EnsureSchema(ctx, true); err != nil {
					return fmt.Errorf("resetting schema: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Schema reset complete, all documents dropped.")
				return nil
			}
			count, err := a.System.Count(ctx)
			if err != nil {
				return fmt.Errorf("counting documents: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema ready (backend mode: %s, %d documents)\n",
				a.Store.Mode(), count)
			return nil
		})
	},
}

func init() {
	initCmd.Flags().BoolVar(&flagReset, "reset", false, "drop and recreate the schema, discarding all documents")
	rootCmd.AddCommand(initCmd)
}
