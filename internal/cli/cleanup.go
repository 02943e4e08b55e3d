package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shoprec/shoprec/internal/app"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge events older than the retention window",
	Long: `Delete interaction and tracking events older than the configured
retention window. Purchase history is never touched. Intended to be run
periodically, e.g. from cron; re-running is harmless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			removed, err := a.RunRetentionCleanup(context.Background())
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			fmt.Printf("Removed %d expired events.\n", removed)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
