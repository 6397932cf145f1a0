package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/triage/internal/adapters/driving/mcp"
	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/logger"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so AI assistants can search the
knowledge base and email history and request reply drafts.

By default the server communicates over stdio. Use --port to serve
streamable HTTP instead.

Examples:
  # Stdio mode (default, for desktop assistants)
  triage mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  triage mcp serve --port 8080

Assistant configuration:
  {
    "mcpServers": {
      "triage": {
        "command": "/path/to/triage",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	ctx := cmd.Context()
	if err := wireServing(cmd); err != nil {
		return err
	}
	defer closeApp()

	server, err := mcp.NewServer(&mcp.Ports{
		Knowledge: knowledgeSearch,
		History:   historyService,
		Pipeline:  responsePipeline,
	})
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(ctx, addr)
	}
	return server.Run(ctx)
}

// wireServing wires search and history, and the pipeline when an LLM is
// configured. Servers still start without one.
func wireServing(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if err := wire(ctx, needKnowledge|needHistory); err != nil {
		return err
	}
	err := wire(ctx, needPipeline)
	if errors.Is(err, domain.ErrLLMUnavailable) {
		logger.Warn("drafting disabled", "error", err)
		return nil
	}
	return err
}
