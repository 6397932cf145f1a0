package google

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Scopes are requested by "triage auth login".
var Scopes = []string{gmail.GmailModifyScope}

// OAuthConfig builds the OAuth client from the credentials JSON downloaded
// from Google Cloud (either "installed" or "web" application type).
func OAuthConfig(credentialsJSON []byte, redirectURL string) (*oauth2.Config, error) {
	cfg, err := googleoauth.ConfigFromJSON(credentialsJSON, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client credentials: %w", err)
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return cfg, nil
}

// OAuthConfigFromFile reads the credentials JSON from path.
func OAuthConfigFromFile(path, redirectURL string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth client credentials: %w", err)
	}
	return OAuthConfig(data, redirectURL)
}

// NewGmailService creates a Gmail API service using the provided TokenSource.
// Extra options are appended, e.g. option.WithEndpoint in tests.
func NewGmailService(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*gmail.Service, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	return gmail.NewService(ctx, opts...)
}
