package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent triage cycles",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "number of cycles to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := wire(ctx, needRuns); err != nil {
		return err
	}
	defer closeApp()

	runs, err := runStore.Recent(ctx, statusLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		cmd.Println("No cycles recorded yet. Run 'triage once' or 'triage run'.")
		return nil
	}

	cmd.Println("STARTED              DURATION  SYNCED  LISTED  DRAFTED  SKIPPED  FAILED")
	for _, r := range runs {
		cmd.Printf("%-20s %8s  %6d  %6d  %7d  %7d  %6d\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.EndedAt.Sub(r.StartedAt).Round(time.Second),
			r.Synced, r.Listed, r.Drafted, r.Skipped, r.Failed)
		if r.SyncError != "" {
			cmd.Printf("  sync error: %s\n", r.SyncError)
		}
	}
	return nil
}
