package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/triage/internal/connectors/google/gmail"
	"github.com/custodia-labs/triage/internal/core/domain"
)

var (
	historyLimit int
	historyDays  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and sync the email history ledger",
}

var historySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull new mail into the history ledger",
	Long: `Fetches messages added since the stored watermark. The first sync, or a
sync whose watermark has expired, fetches a bounded window instead
(history.full_sync_days).`,
	RunE: runHistorySync,
}

var historySimilarCmd = &cobra.Command{
	Use:   "similar [text]",
	Short: "Find past emails similar to text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHistorySimilar,
}

var historyRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List emails received recently",
	RunE:  runHistoryRecent,
}

func init() {
	historySimilarCmd.Flags().IntVarP(&historyLimit, "limit", "n", 5, "maximum number of results")
	historyRecentCmd.Flags().IntVarP(&historyDays, "days", "d", 7, "number of days to list")
	historyCmd.AddCommand(historySyncCmd)
	historyCmd.AddCommand(historySimilarCmd)
	historyCmd.AddCommand(historyRecentCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistorySync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := wire(ctx, needHistory|needMailbox); err != nil {
		return err
	}
	defer closeApp()

	report, err := historyService.SyncFromWatermark(ctx)
	if err != nil {
		return err
	}

	mode := "incremental"
	if report.FullSync {
		mode = "full window"
	}
	cmd.Printf("Sync complete (%s): fetched %d, stored %d new.\n", mode, report.Fetched, report.Inserted)
	if report.To != 0 {
		cmd.Printf("Watermark: %d -> %d\n", report.From, report.To)
	}
	return nil
}

func runHistorySimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := wire(ctx, needHistory); err != nil {
		return err
	}
	defer closeApp()

	matches, err := historyService.SearchSimilar(ctx, strings.Join(args, " "), historyLimit)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		cmd.Println("No similar emails found.")
		return nil
	}
	for i, m := range matches {
		cmd.Printf("  [%d] (%.2f) ", i+1, m.Score)
		printRecord(cmd, m.Record)
	}
	return nil
}

func runHistoryRecent(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := wire(ctx, needHistory); err != nil {
		return err
	}
	defer closeApp()

	records, err := historyService.Recent(ctx, historyDays)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		cmd.Printf("No emails in the last %d days.\n", historyDays)
		return nil
	}
	for _, r := range records {
		cmd.Print("  ")
		printRecord(cmd, r)
	}
	return nil
}

func printRecord(cmd *cobra.Command, r domain.EmailRecord) {
	cmd.Printf("%s  %s\n", r.Timestamp.Local().Format("2006-01-02 15:04"), r.Subject)
	cmd.Printf("      From: %s\n", r.Sender)
	cmd.Printf("      %s\n", snippet(r.Body, 160))
	cmd.Printf("      %s\n\n", gmail.WebURL(r.ID))
}
