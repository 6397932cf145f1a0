package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/triage/internal/adapters/driven/ai"
	"github.com/custodia-labs/triage/internal/adapters/driven/config/file"
	tokenstore "github.com/custodia-labs/triage/internal/adapters/driven/oauth"
	"github.com/custodia-labs/triage/internal/adapters/driven/storage/bolt"
	statefile "github.com/custodia-labs/triage/internal/adapters/driven/storage/file"
	"github.com/custodia-labs/triage/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/triage/internal/adapters/driven/tokens"
	"github.com/custodia-labs/triage/internal/connectors/filesystem"
	"github.com/custodia-labs/triage/internal/connectors/google"
	"github.com/custodia-labs/triage/internal/connectors/google/gmail"
	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/core/services"
	"github.com/custodia-labs/triage/internal/logger"
	"github.com/custodia-labs/triage/internal/normalisers"
	"github.com/custodia-labs/triage/internal/normalisers/eml"
	"github.com/custodia-labs/triage/internal/normalisers/html"
	"github.com/custodia-labs/triage/internal/normalisers/markdown"
	"github.com/custodia-labs/triage/internal/normalisers/pdf"
	"github.com/custodia-labs/triage/internal/normalisers/plaintext"
	"github.com/custodia-labs/triage/internal/postprocessors"
)

// need names the services a command uses.
type need int

const (
	// needKnowledge loads the index snapshot, rebuilding it if stale.
	needKnowledge need = 1 << iota
	// needIndexer builds an index without loading the snapshot.
	needIndexer
	needHistory
	needPipeline
	// needMailbox requires Gmail credentials.
	needMailbox
	needPoller
	needRuns
)

// app holds everything wire opened, so a command can release it on exit.
type app struct {
	settings  *domain.Settings
	ai        *ai.InitResult
	store     *sqlite.Store
	snapshots *bolt.SnapshotStore
	loader    *filesystem.Loader
	index     *services.RetrievalIndex
	history   *services.HistoryStore
	pipeline  *services.ResponsePipeline
	mailbox   *gmail.Client
	runs      driven.RunStore
}

// current is the app opened by wire in this process.
var current *app

// satisfied reports whether every needed service is already set. needMailbox
// only shapes how services are built, so it is not checked.
func satisfied(needs need) bool {
	checks := []struct {
		flag need
		set  bool
	}{
		{needKnowledge, knowledgeSearch != nil},
		{needIndexer, knowledgeIndexer != nil},
		{needHistory, historyService != nil},
		{needPipeline, responsePipeline != nil},
		{needPoller, cyclePoller != nil},
		{needRuns, runStore != nil},
	}
	for _, c := range checks {
		if needs&c.flag != 0 && !c.set {
			return false
		}
	}
	return true
}

// wire opens the stores and builds the services named by needs. Services
// that are already set are left alone.
func wire(ctx context.Context, needs need) error {
	if satisfied(needs) {
		return nil
	}
	if current == nil {
		a, err := openApp(ctx, needs)
		if err != nil {
			return err
		}
		current = a
	}
	a := current

	if needs&needKnowledge != 0 && knowledgeSearch == nil {
		if err := a.index.LoadOrRebuild(ctx); err != nil {
			return err
		}
		knowledgeSearch = a.index
	}
	if needs&needIndexer != 0 && knowledgeIndexer == nil {
		knowledgeIndexer = a.index
	}
	if needs&needHistory != 0 && historyService == nil {
		historyService = a.history
	}
	if needs&(needPipeline|needPoller) != 0 && responsePipeline == nil {
		if a.pipeline == nil {
			return fmt.Errorf("%w: configure one with 'triage config llm'", domain.ErrLLMUnavailable)
		}
		if knowledgeSearch == nil {
			if err := a.index.LoadOrRebuild(ctx); err != nil {
				return err
			}
			knowledgeSearch = a.index
		}
		responsePipeline = a.pipeline
	}
	if needs&needRuns != 0 && runStore == nil {
		runStore = a.runs
	}
	if needs&needPoller != 0 && cyclePoller == nil {
		cyclePoller = services.NewPoller(a.mailbox, a.mailbox,
			statefile.NewProcessedStore(a.settings.DataDir), historyService, responsePipeline,
			services.PollerConfig{
				MinWords:  a.settings.Draft.MinWords,
				Label:     a.settings.Draft.Label,
				TodayOnly: a.settings.Gmail.TodayOnly,
			})
	}
	return nil
}

func openApp(ctx context.Context, needs need) (_ *app, err error) {
	settings, err := settingsService.Get()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(settings.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	a := &app{settings: settings}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if needs&(needMailbox|needPoller) != 0 {
		if a.mailbox, err = openMailbox(ctx, settings); err != nil {
			return nil, err
		}
		if settings.Gmail.Address == "" {
			if addr, err := a.mailbox.Address(ctx); err == nil {
				settings.Gmail.Address = addr
			}
		}
	}

	if a.store, err = sqlite.NewStore(settings.DataDir); err != nil {
		return nil, err
	}
	a.runs = a.store.RunStore()
	if needs == needRuns {
		return a, nil
	}

	prompts, err := file.NewPromptStore(promptDir())
	if err != nil {
		return nil, err
	}
	if a.ai, err = ai.Init(*settings, prompts); err != nil {
		return nil, err
	}

	if a.snapshots, err = bolt.NewSnapshotStore(settings.DataDir); err != nil {
		return nil, err
	}

	chunker, err := postprocessors.DefaultPipeline(settings.Retrieval)
	if err != nil {
		return nil, err
	}
	a.loader = filesystem.NewLoader(normalisers.NewRegistry(
		plaintext.New(), markdown.New(), html.New(), eml.New(), pdf.New(),
	), settings.Corpus.Include, settings.Corpus.Exclude)
	a.index = services.NewRetrievalIndex(a.loader, chunker, a.ai.EmbeddingService, a.snapshots, settings.Corpus.Path)

	var source driven.MessageSource
	if a.mailbox != nil {
		source = a.mailbox
	}
	a.history = services.NewHistoryStore(a.store.Ledger(), a.ai.EmbeddingService, source,
		statefile.NewWatermarkStore(settings.DataDir), settings.History)

	if a.ai.LLMService != nil {
		var tb driven.TokenBudget
		if budget, err := tokens.Default(); err != nil {
			logger.Warn("token budget unavailable, prompts will not be truncated", "error", err)
		} else {
			tb = budget
		}
		a.pipeline = services.NewResponsePipeline(a.ai.LLMService, a.index, a.history, prompts, tb,
			services.PipelineConfigFromSettings(*settings))
	}
	return a, nil
}

// openMailbox builds a Gmail client from the stored OAuth token.
func openMailbox(ctx context.Context, settings *domain.Settings) (*gmail.Client, error) {
	oauthCfg, err := google.OAuthConfigFromFile(credentialsPath(settings), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthRequired, err)
	}
	ts, err := google.NewTokenSource(ctx, oauthCfg, tokenstore.NewFileTokenStore(tokenPath(settings)))
	if err != nil {
		return nil, err
	}
	return gmail.New(ctx, ts, gmail.ConfigFromSettings(*settings))
}

func (a *app) close() {
	if a == nil {
		return
	}
	var errs []error
	if a.ai != nil {
		a.ai.Close()
	}
	if a.snapshots != nil {
		errs = append(errs, a.snapshots.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("closing stores", "error", err)
	}
}

// closeApp releases the app opened by wire and clears the wired services.
func closeApp() {
	if current == nil {
		return
	}
	current.close()
	current = nil
	knowledgeSearch = nil
	knowledgeIndexer = nil
	historyService = nil
	responsePipeline = nil
	cyclePoller = nil
	runStore = nil
}

func promptDir() string {
	if configDir != "" {
		return filepath.Join(configDir, "prompts")
	}
	return ""
}

func credentialsPath(settings *domain.Settings) string {
	if settings.Gmail.CredentialsFile != "" {
		return settings.Gmail.CredentialsFile
	}
	return filepath.Join(settings.DataDir, "credentials.json")
}

func tokenPath(settings *domain.Settings) string {
	if settings.Gmail.TokenFile != "" {
		return settings.Gmail.TokenFile
	}
	return filepath.Join(settings.DataDir, "token.json")
}
