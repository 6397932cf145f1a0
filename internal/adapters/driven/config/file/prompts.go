package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/logger"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore serves prompt templates from <dir>/<name>.txt, falling back to
// the built-in templates.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
}

// defaultPrompts are written to the prompt directory on first use and
// served whenever a file is missing.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptQueryGeneration: `You read incoming customer emails and turn them into search queries for a company knowledge base.

Identify the main question or topic of the email. Keep the terms most likely to appear in policy or help documents. Return ONLY the query on a single line, without quotes.

Email subject: %[1]s
Email body:
%[2]s

Search query:`,

	driven.PromptKnowledgeSynthesis: `You condense knowledge base search results into notes for someone answering an email.

Keep only what is relevant to the query. Mention which result each point comes from. Be brief.

Query: %[1]s

Search results:
%[2]s

Relevant notes:`,

	driven.PromptContextSummary: `Summarise the context of this email in two or three sentences.
Say whether it starts a new conversation or continues an earlier one.

Subject: %[1]s
Body:
%[2]s

Context:`,

	driven.PromptDrafting: `You answer email on behalf of %[1]s. Write a professional, helpful reply that addresses every point the sender raised, using the knowledge base notes and past correspondence where they apply.

Subject: %[2]s
Body:
%[3]s

Sender: %[4]s

Knowledge base notes:
%[5]s

Past correspondence:
%[6]s

Context summary:
%[7]s

Use exactly these Markdown headings, in this order:

# Context Summary
(one or two sentences)

# Knowledge Base Insights
(the facts you relied on, citing the knowledge base)

# Relevant Email History
(what earlier messages tell you, or "None")

# Draft Response
(the reply to send, addressed to the sender)`,

	driven.PromptFinalReview: `Review the reply below before it is saved as a draft. Correct mistakes, remove anything unsupported by the knowledge base insights, and keep it concise and professional.

Keep exactly the four Markdown headings: # Context Summary, # Knowledge Base Insights, # Relevant Email History, # Draft Response.

Search query: %[1]s

Reply to review:
%[2]s

Revised reply:`,

	driven.PromptSummarise: `Summarise this email in at most %[1]d words. Keep names, dates and commitments.

%[2]s

Summary:`,
}

// DefaultPrompt returns the built-in template for name.
func DefaultPrompt(name string) (string, bool) {
	p, ok := defaultPrompts[name]
	return p, ok
}

// NewPromptStore creates a prompt store rooted at promptDir.
// An empty promptDir means the prompts directory next to config.toml.
// No I/O happens until the first Load.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		promptDir = filepath.Join(dir, "prompts")
	}
	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the template for name. The first call seeds the directory with
// the defaults. A missing or empty file falls back to the built-in template.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.initialise)

	s.mu.RLock()
	prompt, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return prompt, nil
	}

	prompt, err := s.loadFromFile(name)
	if err != nil || prompt == "" {
		if def, ok := defaultPrompts[name]; ok {
			if err != nil && !os.IsNotExist(err) {
				logger.Warn("prompt file unreadable, using default", "prompt", name, "error", err)
			}
			return def, nil
		}
		if err == nil {
			err = errors.New("empty template")
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()
	return prompt, nil
}

// Reload drops cached templates so edits on disk are picked up.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// promptFiles describes each template for the README.
var promptFiles = []struct{ name, about string }{
	{driven.PromptQueryGeneration, "turns an email into a knowledge base query (subject, body)"},
	{driven.PromptKnowledgeSynthesis, "condenses search results (query, results)"},
	{driven.PromptContextSummary, "summarises the email's context (subject, body)"},
	{driven.PromptDrafting, "writes the four-section reply (address, subject, body, sender, notes, history, context)"},
	{driven.PromptFinalReview, "reviews the reply (query, draft)"},
	{driven.PromptSummarise, "summarises one past email (max words, body)"},
}

// initialise writes default templates that do not exist yet, plus a README.
// Failures are logged; Load keeps serving the built-in templates.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		logger.Warn("cannot create prompt directory", "dir", s.promptDir, "error", err)
		return
	}
	for _, p := range promptFiles {
		path := filepath.Join(s.promptDir, p.name+".txt")
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			continue
		}
		if err := os.WriteFile(path, []byte(defaultPrompts[p.name]), 0600); err != nil {
			logger.Warn("cannot write default prompt", "prompt", p.name, "error", err)
			return
		}
	}
	if err := s.writeReadme(); err != nil {
		logger.Warn("cannot write prompt README", "error", err)
	}
}

func (s *PromptStore) loadFromFile(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.promptDir, name+".txt"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *PromptStore) writeReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	var b strings.Builder
	b.WriteString("# Triage Prompts\n\n")
	b.WriteString("Templates used when drafting replies. Edit a file to change how the\n")
	b.WriteString("model is instructed; delete it to restore the built-in default.\n\n")
	b.WriteString("## Files\n\n")
	for _, p := range promptFiles {
		fmt.Fprintf(&b, "- `%s.txt` - %s\n", p.name, p.about)
	}
	b.WriteString("\n## Placeholders\n\n")
	b.WriteString("Templates use Go fmt verbs with argument indexes, e.g. `%[2]s`.\n")
	b.WriteString("Indexed verbs may be moved or dropped, but not renumbered.\n")
	return os.WriteFile(path, []byte(b.String()), 0600)
}
