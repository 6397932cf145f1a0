package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	tokenstore "github.com/custodia-labs/triage/internal/adapters/driven/oauth"
	"github.com/custodia-labs/triage/internal/adapters/driving/oauth"
	"github.com/custodia-labs/triage/internal/connectors/google"
	"github.com/custodia-labs/triage/internal/core/domain"
)

var (
	authCredentials string
	authNoBrowser   bool
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Gmail authorisation",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorise triage to read mail and create drafts",
	Long: `Opens the Google consent page and stores the resulting token.

The OAuth client JSON comes from a Google Cloud "Desktop app" client. Pass
it with --credentials, set gmail.credentials_file, or place it in the data
directory as credentials.json.`,
	RunE: runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a Gmail token is stored",
	RunE:  runAuthStatus,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the stored Gmail token",
	RunE:  runAuthLogout,
}

func init() {
	authLoginCmd.Flags().StringVar(&authCredentials, "credentials", "", "path to the OAuth client JSON")
	authLoginCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "print the consent URL instead of opening it")
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, _ []string) error {
	settings, err := settingsService.Get()
	if err != nil {
		return err
	}

	credentials := authCredentials
	if credentials == "" {
		credentials = credentialsPath(settings)
	}
	cfg, err := google.OAuthConfigFromFile(credentials, "")
	if err != nil {
		return fmt.Errorf("%w. Download a Desktop app client from Google Cloud Console", err)
	}

	if err := os.MkdirAll(settings.DataDir, 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	store := tokenstore.NewFileTokenStore(tokenPath(settings))

	openURL := func(url string) error {
		cmd.Printf("Open this URL to authorise triage:\n\n  %s\n\n", url)
		if authNoBrowser {
			return nil
		}
		if err := oauth.OpenBrowser(url); err != nil {
			cmd.Println("Could not open a browser; copy the URL above.")
		}
		return nil
	}

	cmd.Println("Waiting for authorisation...")
	if _, err := oauth.Login(cmd.Context(), cfg, store, oauth.LoginOptions{OpenURL: openURL}); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	cmd.Printf("Authorised. Token saved to %s\n", store.Path())
	return nil
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	settings, err := settingsService.Get()
	if err != nil {
		return err
	}
	store := tokenstore.NewFileTokenStore(tokenPath(settings))

	tok, err := store.Load()
	if errors.Is(err, domain.ErrAuthRequired) {
		cmd.Println("Not authorised. Run 'triage auth login'.")
		return nil
	}
	if err != nil {
		return err
	}

	cmd.Printf("Token file: %s\n", store.Path())
	cmd.Printf("Refresh token: %s\n", yesNo(tok.RefreshToken != ""))
	if !tok.Expiry.IsZero() {
		cmd.Printf("Access token expires: %s\n", tok.Expiry.Local().Format(time.RFC1123))
	}

	if mailbox, err := openMailbox(cmd.Context(), settings); err == nil {
		if addr, err := mailbox.Address(cmd.Context()); err == nil {
			cmd.Printf("Mailbox: %s\n", addr)
		} else {
			cmd.Printf("Mailbox: unreachable (%v)\n", err)
		}
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, _ []string) error {
	settings, err := settingsService.Get()
	if err != nil {
		return err
	}
	store := tokenstore.NewFileTokenStore(tokenPath(settings))
	if err := store.Delete(); err != nil {
		return err
	}
	cmd.Println("Token removed.")
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
