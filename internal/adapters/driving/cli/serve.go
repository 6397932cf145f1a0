package cli

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	api "github.com/custodia-labs/triage/internal/adapters/driving/http"
	"github.com/custodia-labs/triage/internal/logger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API",
	Long: `Serves knowledge search, history search and drafting over HTTP:

  GET  /healthz
  GET  /v1/knowledge/search?q=...&k=3
  GET  /v1/history/similar?q=...&k=5
  POST /v1/drafts  {"subject": "...", "body": "...", "sender": "..."}`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if !logger.IsVerbose() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := wireServing(cmd); err != nil {
		return err
	}
	defer closeApp()

	server, err := api.NewServer(api.Ports{
		Knowledge: knowledgeSearch,
		History:   historyService,
		Pipeline:  responsePipeline,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", serveAddr)
	return server.Run(cmd.Context(), serveAddr)
}
