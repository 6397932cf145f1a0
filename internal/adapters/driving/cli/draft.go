package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/triage/internal/core/domain"
)

var (
	draftSubject string
	draftBody    string
	draftSender  string
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Draft a reply to an email without touching the mailbox",
	Long: `Runs the response pipeline on the given email and prints the draft.

Use --body - to read the body from stdin.`,
	Example: `  triage draft --subject "Refund" --body "Where is my refund?"
  cat message.txt | triage draft --subject "Refund" --body -`,
	RunE: runDraft,
}

func init() {
	draftCmd.Flags().StringVarP(&draftSubject, "subject", "s", "", "subject of the email")
	draftCmd.Flags().StringVarP(&draftBody, "body", "b", "", "body of the email, or - for stdin")
	draftCmd.Flags().StringVar(&draftSender, "sender", "", "address of the sender")
	rootCmd.AddCommand(draftCmd)
}

func runDraft(cmd *cobra.Command, _ []string) error {
	body := draftBody
	if body == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		body = string(data)
	}
	if strings.TrimSpace(draftSubject) == "" && strings.TrimSpace(body) == "" {
		return errors.New("--subject or --body is required")
	}

	ctx := cmd.Context()
	if err := wire(ctx, needHistory|needPipeline); err != nil {
		return err
	}
	defer closeApp()

	state, err := responsePipeline.Run(ctx, domain.PipelineInput{
		Subject: draftSubject,
		Body:    body,
		Sender:  draftSender,
	})
	if err != nil {
		var pe *domain.PipelineError
		if errors.As(err, &pe) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Draft failed at stage %s.\n", pe.Stage)
		}
		return err
	}

	cmd.Println(state.FinalDraft.Render())
	cmd.Printf("\n(%d words in the response)\n", state.FinalDraft.WordCount())
	return nil
}
