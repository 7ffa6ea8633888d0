package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupMaxAge string

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old execution records",
	Long: `Remove execution records that started before now minus --max-age.

When retention.archive is enabled the removed records are archived first;
if archiving fails nothing is deleted.

Examples:
  cadence cleanup
  cadence cleanup --max-age 7d`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupMaxAge, "max-age", "", "Age of executions to remove (default: retention.max_age)")

	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	maxAge := cfg.Retention.MaxAge
	if cleanupMaxAge != "" {
		d, err := parseDuration(cleanupMaxAge)
		if err != nil {
			return fmt.Errorf("invalid max age: %w", err)
		}
		maxAge = d
	}

	fs, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	deleted, err := fs.CleanupOldExecutions(cmd.Context(), maxAge)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d execution(s) older than %s\n", deleted, maxAge)
	return nil
}
