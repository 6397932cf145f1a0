// Package cli provides the cobra command tree for the triage binary.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/triage/internal/adapters/driven/ai"
	"github.com/custodia-labs/triage/internal/adapters/driven/config/file"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/core/ports/driving"
	"github.com/custodia-labs/triage/internal/core/services"
	"github.com/custodia-labs/triage/internal/logger"
)

// version is set at build time through Execute.
var version = "dev"

// Global flags.
var (
	verbose   bool
	logFormat string
	configDir string
)

// Services used by commands. Commands fill the ones they need with wire;
// tests assign stubs directly.
var (
	configStore      driven.ConfigStore
	settingsService  driving.SettingsService
	knowledgeSearch  driving.KnowledgeSearch
	knowledgeIndexer driving.KnowledgeIndexer
	historyService   driving.HistoryService
	responsePipeline driving.ResponsePipeline
	cyclePoller      driving.Poller
	runStore         driven.RunStore
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Draft replies to support email from a knowledge base",
	Long: `triage watches a Gmail inbox and drafts replies to new messages.

Each reply is grounded in a local knowledge base (text, markdown, PDF and
email files) and in similar past emails. Drafts are saved to Gmail for a
person to review; nothing is ever sent.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if err := logger.SetFormat(logger.Format(logFormat)); err != nil {
			return err
		}
		return initSettings()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", string(logger.FormatText), "log format: text or json")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"configuration directory (default $"+file.EnvConfigDir+" or ~/.triage)")
}

// Execute runs the root command with the given build version.
func Execute(ctx context.Context, buildVersion string) error {
	if buildVersion != "" {
		version = buildVersion
	}
	return rootCmd.ExecuteContext(ctx)
}

// initSettings opens the config file unless a settings service is already set.
func initSettings() error {
	if settingsService != nil {
		return nil
	}
	store, err := file.NewConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	configStore = store
	settingsService = services.NewSettingsService(store, ai.NewConfigValidator())
	return nil
}
