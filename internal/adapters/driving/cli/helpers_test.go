package cli

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/triage/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/services"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "triage-cli-test")
	if err != nil {
		panic(err)
	}
	os.Setenv("TRIAGE_CONFIG_DIR", dir) //nolint:errcheck
	code := m.Run()
	os.RemoveAll(dir) //nolint:errcheck
	os.Exit(code)
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// useSettings installs a settings service over an in-memory config store.
func useSettings(t *testing.T, seed map[string]any) *memory.ConfigStore {
	t.Helper()
	// Keys exported in the developer's shell would override the seed.
	for _, env := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "TRIAGE_OPENAI_API_KEY"} {
		t.Setenv(env, "")
	}
	if seed == nil {
		seed = map[string]any{}
	}
	if _, ok := seed["data_dir"]; !ok {
		seed["data_dir"] = t.TempDir()
	}
	store := memory.NewConfigStore(seed)

	prevStore, prevSettings := configStore, settingsService
	configStore = store
	settingsService = services.NewSettingsService(store, nil)
	t.Cleanup(func() {
		configStore, settingsService = prevStore, prevSettings
	})
	return store
}

// useServices installs stubs and clears them after the test.
func useServices(t *testing.T) {
	t.Helper()
	useSettings(t, nil)
	t.Cleanup(func() {
		knowledgeSearch = nil
		knowledgeIndexer = nil
		historyService = nil
		responsePipeline = nil
		cyclePoller = nil
		runStore = nil
	})
}

type stubKnowledge struct {
	hits []domain.ScoredChunk
	gotK int
}

func (s *stubKnowledge) Search(_ context.Context, _ string, k int) ([]domain.ScoredChunk, error) {
	s.gotK = k
	return s.hits, nil
}

type stubHistory struct {
	matches []domain.EmailMatch
	recent  []domain.EmailRecord
	report  *domain.SyncReport
	gotDays int
}

func (s *stubHistory) AddEmail(context.Context, domain.EmailRecord) error { return nil }

func (s *stubHistory) SearchSimilar(context.Context, string, int) ([]domain.EmailMatch, error) {
	return s.matches, nil
}

func (s *stubHistory) SyncFromWatermark(context.Context) (*domain.SyncReport, error) {
	return s.report, nil
}

func (s *stubHistory) Recent(_ context.Context, days int) ([]domain.EmailRecord, error) {
	s.gotDays = days
	return s.recent, nil
}

type stubPipeline struct {
	state *domain.PipelineState
	err   error
	got   domain.PipelineInput
}

func (s *stubPipeline) Run(_ context.Context, in domain.PipelineInput) (*domain.PipelineState, error) {
	s.got = in
	return s.state, s.err
}

type stubPoller struct {
	result *domain.CycleResult
}

func (s *stubPoller) RunCycle(context.Context) (*domain.CycleResult, error) {
	return s.result, nil
}

func requireNoErr(t *testing.T, out string, err error) {
	t.Helper()
	require.NoError(t, err, out)
}
