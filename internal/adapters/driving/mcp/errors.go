// Package mcp provides an MCP (Model Context Protocol) server adapter for triage.
// It lets AI assistants search the knowledge base and email history and
// request reply drafts.
package mcp

import "errors"

// ErrMissingKnowledgeSearch is returned when the knowledge search is not provided.
var ErrMissingKnowledgeSearch = errors.New("mcp: knowledge search is required")
