package cli

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/triage/internal/core/services"
)

var indexWatch bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the knowledge base index",
	Long: `Reads every matching file under corpus.path, splits it into overlapping
chunks, embeds them and saves the index snapshot.

With --watch the index is rebuilt again whenever corpus files change.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexWatch, "watch", "w", false, "keep running and rebuild on corpus changes")
	rootCmd.AddCommand(indexCmd)
}

// progressSetter is implemented by indexers that report embedding progress.
type progressSetter interface {
	SetProgress(fn services.ProgressFunc)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := wire(ctx, needIndexer); err != nil {
		return err
	}
	defer closeApp()

	if ps, ok := knowledgeIndexer.(progressSetter); ok && term.IsTerminal(int(os.Stderr.Fd())) {
		ps.SetProgress(newProgress())
	}

	n, err := knowledgeIndexer.Rebuild(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Indexed %d chunks.\n", n)

	if !indexWatch {
		return nil
	}
	cmd.Println("Watching for changes. Press Ctrl+C to stop.")
	watchCorpus(ctx)
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// newProgress returns a callback drawing one bar per rebuild.
func newProgress() services.ProgressFunc {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil || bar.IsFinished() {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionOnCompletion(func() {
					os.Stderr.WriteString("\n") //nolint:errcheck
				}),
			)
		}
		_ = bar.Set(done)
	}
}
