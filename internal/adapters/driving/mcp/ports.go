package mcp

import (
	"github.com/custodia-labs/triage/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Knowledge searches the knowledge base.
	Knowledge driving.KnowledgeSearch

	// History searches past email. Optional; its tool and resource are only
	// registered when set.
	History driving.HistoryService

	// Pipeline drafts replies. Optional; needs a configured LLM.
	Pipeline driving.ResponsePipeline
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Knowledge == nil {
		return ErrMissingKnowledgeSearch
	}
	return nil
}
