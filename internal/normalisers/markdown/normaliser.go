// Package markdown normalises Markdown files to plain text.
package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

var (
	frontMatter  = regexp.MustCompile(`(?s)\A---\n.*?\n---\n`)
	codeFence    = regexp.MustCompile("(?m)^```.*$")
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	images       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headings     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasis     = regexp.MustCompile(`(\*\*|__|\*|_)([^*_\n]+)(\*\*|__|\*|_)`)
	blockquote   = regexp.MustCompile(`(?m)^>\s?`)
	rule         = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
	listMarker   = regexp.MustCompile(`(?m)^(\s*)([-*+]|\d+\.)\s+`)
	tableRule    = regexp.MustCompile(`(?m)^\|?(\s*:?-+:?\s*\|)+\s*:?-*:?\s*$\n?`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
	firstHeading = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise strips Markdown syntax, keeping the text of code blocks, links
// and emphasis. The first level-one heading becomes the title.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.Document, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	src := strings.ReplaceAll(string(raw.Content), "\r\n", "\n")
	title := ""
	if m := firstHeading.FindStringSubmatch(src); m != nil {
		title = strings.TrimSpace(m[1])
	}
	return normalisers.NewDocument(raw, title, Strip(src), "markdown"), nil
}

// Strip converts Markdown to plain text.
func Strip(src string) string {
	out := frontMatter.ReplaceAllString(src, "")
	out = codeFence.ReplaceAllString(out, "")
	out = inlineCode.ReplaceAllString(out, "$1")
	out = images.ReplaceAllString(out, "$1")
	out = links.ReplaceAllString(out, "$1")
	out = headings.ReplaceAllString(out, "")
	out = emphasis.ReplaceAllString(out, "$2")
	out = blockquote.ReplaceAllString(out, "")
	out = tableRule.ReplaceAllString(out, "")
	out = rule.ReplaceAllString(out, "")
	out = listMarker.ReplaceAllString(out, "$1")
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
