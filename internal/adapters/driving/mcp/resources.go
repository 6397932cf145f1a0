package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for triage resources.
	uriScheme = "triage://"

	// recentDays is the window of the recent history resource.
	recentDays = 7
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.History == nil {
		return
	}
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "history/recent",
		Name:        "recent-history",
		Description: fmt.Sprintf("Emails received in the last %d days, newest first", recentDays),
		MIMEType:    "application/json",
	}, s.handleRecentHistory)
}

func (s *Server) handleRecentHistory(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	records, err := s.ports.History.Recent(ctx, recentDays)
	if err != nil {
		return nil, fmt.Errorf("listing recent history: %w", err)
	}

	hits := make([]HistoryHit, len(records))
	for i, r := range records {
		hits[i] = historyHit(r, 0)
	}
	data, err := json.MarshalIndent(hits, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding history: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
