package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/triage/internal/connectors/filesystem"
	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/services"
	"github.com/custodia-labs/triage/internal/logger"
)

var (
	runInterval    time.Duration
	runWatchCorpus bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the inbox and draft replies until interrupted",
	Long: `Runs a triage cycle immediately and then once per poll interval.

Each cycle syncs new mail into the history ledger, then drafts a reply for
every unread message that has not been handled yet. Drafts are saved to
Gmail and the message is labelled; nothing is sent.`,
	RunE: runRun,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single triage cycle and exit",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "poll interval (default from poll.interval)")
	runCmd.Flags().BoolVar(&runWatchCorpus, "watch-corpus", false, "rebuild the knowledge index when corpus files change")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := wire(ctx, needHistory|needIndexer|needPoller|needRuns); err != nil {
		return err
	}
	defer closeApp()

	interval := runInterval
	if interval <= 0 {
		settings, err := settingsService.Get()
		if err != nil {
			return err
		}
		interval = settings.Poll.Interval
	}

	if runWatchCorpus {
		go watchCorpus(ctx)
	}

	scheduler := services.NewScheduler(interval, cyclePoller, runStore)
	cmd.Printf("Polling every %s. Press Ctrl+C to stop.\n", interval)

	err := scheduler.Start(ctx)
	if errors.Is(err, context.Canceled) {
		cmd.Println("Stopped.")
		return nil
	}
	return err
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := wire(ctx, needHistory|needPoller|needRuns); err != nil {
		return err
	}
	defer closeApp()

	result, err := cyclePoller.RunCycle(ctx)
	if result != nil && runStore != nil {
		if recErr := runStore.Record(context.WithoutCancel(ctx), result); recErr != nil {
			logger.Warn("failed to record cycle result", "error", recErr)
		}
	}
	if err != nil {
		return err
	}
	printCycle(cmd, result)
	return nil
}

func printCycle(cmd *cobra.Command, r *domain.CycleResult) {
	cmd.Printf("Cycle finished in %s\n", r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond))
	cmd.Printf("  Synced:  %d\n", r.Synced)
	cmd.Printf("  Listed:  %d\n", r.Listed)
	cmd.Printf("  Drafted: %d\n", r.Drafted)
	cmd.Printf("  Skipped: %d\n", r.Skipped)
	cmd.Printf("  Failed:  %d\n", r.Failed)
	if r.SyncError != "" {
		cmd.Printf("  Sync error: %s\n", r.SyncError)
	}
}

// watchCorpus rebuilds the index after corpus changes until ctx ends.
func watchCorpus(ctx context.Context) {
	if current == nil || knowledgeIndexer == nil {
		logger.Warn("corpus watch unavailable")
		return
	}
	root := current.settings.Corpus.Path
	watcher, err := filesystem.NewWatcher(current.loader, root, filesystem.DefaultDebounce)
	if err != nil {
		logger.Warn("corpus watch unavailable", "path", root, "error", err)
		return
	}
	defer watcher.Close()

	logger.Info("watching corpus", "path", root)
	err = watcher.Run(ctx, func(ctx context.Context) error {
		n, err := knowledgeIndexer.Rebuild(ctx)
		if err == nil {
			logger.Info("knowledge index rebuilt", "chunks", n)
		}
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("corpus watch stopped", "error", err)
	}
}
