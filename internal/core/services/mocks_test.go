package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
)

// --- Embedding ---

// conceptEmbedder maps text onto one dimension per concept. Text mentioning
// none of the concept keywords embeds to the zero vector.
type conceptEmbedder struct {
	concepts [][]string
	failOn   string
	calls    int

	// rejectEmpty mimics hosted APIs that refuse blank input.
	rejectEmpty bool
}

func newConceptEmbedder() *conceptEmbedder {
	return &conceptEmbedder{concepts: [][]string{
		{"refund", "reimburs", "money back", "returned"},
		{"shipping", "delivery", "courier", "parcel"},
		{"office", "holiday", "closed"},
		{"hello", "hi ", "greetings"},
	}}
}

func (e *conceptEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text) + " "
	v := make([]float32, len(e.concepts))
	for i, words := range e.concepts {
		for _, w := range words {
			if strings.Contains(lower, w) {
				v[i]++
			}
		}
	}
	return v
}

func (e *conceptEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.rejectEmpty && strings.TrimSpace(text) == "" {
		return nil, errors.New("input must not be empty")
	}
	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return nil, errors.New("embedding backend down")
	}
	return e.vector(text), nil
}

func (e *conceptEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *conceptEmbedder) Dimensions() int              { return len(e.concepts) }
func (e *conceptEmbedder) ModelName() string            { return "concept-test" }
func (e *conceptEmbedder) Ping(_ context.Context) error { return nil }
func (e *conceptEmbedder) Close() error                 { return nil }

// --- LLM ---

// scriptedLLM answers prompts by matching substrings. Unmatched prompts get
// a generic reply. failOn makes any prompt containing it fail.
type scriptedLLM struct {
	mu        sync.Mutex
	replies   map[string]string
	failOn    string
	prompts   []string
	temps     []float64
	summaries int
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{replies: make(map[string]string)}
}

func (m *scriptedLLM) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	m.temps = append(m.temps, opts.Temperature)
	if m.failOn != "" && strings.Contains(prompt, m.failOn) {
		return "", errors.New("model timeout")
	}
	for key, reply := range m.replies {
		if strings.HasPrefix(prompt, key) {
			return reply, nil
		}
	}
	return "generic reply", nil
}

func (m *scriptedLLM) Chat(ctx context.Context, msgs []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	last := ""
	if len(msgs) > 0 {
		last = msgs[len(msgs)-1].Content
	}
	return m.Generate(ctx, last, driven.GenerateOptions{MaxTokens: opts.MaxTokens, Temperature: opts.Temperature})
}

func (m *scriptedLLM) Summarise(_ context.Context, content string, maxLength int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries++
	if m.failOn != "" && strings.Contains(content, m.failOn) {
		return "", errors.New("model timeout")
	}
	words := strings.Fields(content)
	if len(words) > maxLength {
		words = words[:maxLength]
	}
	return "summary of " + strings.Join(words, " "), nil
}

func (m *scriptedLLM) ModelName() string            { return "scripted" }
func (m *scriptedLLM) Ping(_ context.Context) error { return nil }
func (m *scriptedLLM) Close() error                 { return nil }

// --- Prompts ---

// testPrompts tags every template with its stage name so scriptedLLM can
// match on it.
type testPrompts struct{}

func (testPrompts) Load(name string) (string, error) {
	switch name {
	case driven.PromptQueryGeneration:
		return "[query] subject=%[1]s body=%[2]s", nil
	case driven.PromptKnowledgeSynthesis:
		return "[synthesis] query=%[1]s results=%[2]s", nil
	case driven.PromptContextSummary:
		return "[context] subject=%[1]s body=%[2]s", nil
	case driven.PromptDrafting:
		return "[draft] from=%[1]s subject=%[2]s body=%[3]s sender=%[4]s kb=%[5]s history=%[6]s context=%[7]s", nil
	case driven.PromptFinalReview:
		return "[review] query=%[1]s draft=%[2]s", nil
	}
	return "", fmt.Errorf("no prompt %q", name)
}

func (testPrompts) Reload() {}

// --- Corpus ---

type stubLoader struct {
	docs []domain.Document
	err  error
}

func (l *stubLoader) Load(_ context.Context, _ string) ([]domain.Document, error) {
	return l.docs, l.err
}

// --- Mailbox ---

// fakeMailbox implements MessageSource and DraftSink.
type fakeMailbox struct {
	mu sync.Mutex

	messages map[string]domain.Message
	unread   []string

	// history holds messages served by ListSince, in ascending Cursor order.
	history    []domain.Message
	pageSize   int
	sinceCalls []uint64
	expired    bool

	// window is returned by ListWindow as a single page.
	window      []domain.Message
	windowCalls int
	head        uint64

	// failAfter makes ListSince fail once this many messages were served.
	// Negative disables the failure.
	failAfter int
	served    int
	listErr   error

	drafts   []domain.Reply
	labels   map[string][]string
	draftErr error
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages:  make(map[string]domain.Message),
		labels:    make(map[string][]string),
		failAfter: -1,
	}
}

func (f *fakeMailbox) add(m domain.Message, unread bool) {
	f.messages[m.ID] = m
	if unread {
		f.unread = append(f.unread, m.ID)
	}
}

func (f *fakeMailbox) ListUnprocessed(_ context.Context) ([]domain.MessageSummary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.MessageSummary, 0, len(f.unread))
	for _, id := range f.unread {
		out = append(out, domain.MessageSummary{ID: id, ThreadID: f.messages[id].ThreadID})
	}
	return out, nil
}

func (f *fakeMailbox) Get(_ context.Context, id string) (*domain.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (f *fakeMailbox) ListSince(_ context.Context, cursor uint64, pageToken string) (*domain.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinceCalls = append(f.sinceCalls, cursor)
	if f.expired {
		return nil, domain.ErrCursorExpired
	}

	var pending []domain.Message
	for _, m := range f.history {
		if m.Cursor > cursor {
			pending = append(pending, m)
		}
	}

	offset := 0
	if pageToken != "" {
		_, _ = fmt.Sscanf(pageToken, "offset-%d", &offset)
	}
	end := offset + f.pageSize
	if f.pageSize <= 0 || end > len(pending) {
		end = len(pending)
	}

	page := &domain.HistoryPage{Cursor: f.head}
	for _, m := range pending[offset:end] {
		if f.failAfter >= 0 && f.served >= f.failAfter {
			return nil, errors.New("connection reset")
		}
		f.served++
		page.Messages = append(page.Messages, m)
	}
	if end < len(pending) {
		page.More = true
		page.NextPageToken = fmt.Sprintf("offset-%d", end)
		page.Cursor = pending[end-1].Cursor
	}
	return page, nil
}

func (f *fakeMailbox) ListWindow(_ context.Context, _ time.Time, _ string) (*domain.HistoryPage, error) {
	f.windowCalls++
	return &domain.HistoryPage{Messages: f.window}, nil
}

func (f *fakeMailbox) CurrentCursor(_ context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeMailbox) CreateDraft(_ context.Context, reply domain.Reply) (string, error) {
	if f.draftErr != nil {
		return "", f.draftErr
	}
	f.drafts = append(f.drafts, reply)
	return fmt.Sprintf("draft-%d", len(f.drafts)), nil
}

func (f *fakeMailbox) ApplyLabel(_ context.Context, messageID, label string) error {
	f.labels[messageID] = append(f.labels[messageID], label)
	return nil
}
