package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/triage/internal/connectors/google"
	"github.com/custodia-labs/triage/internal/logger"
)

// Loopback ports tried for the redirect, matching the range registered for
// desktop clients.
const (
	callbackPortStart = 8085
	callbackPortEnd   = 8185
)

// LoginOptions customises Login.
type LoginOptions struct {
	// OpenURL shows the consent page to the user. Defaults to OpenBrowser.
	OpenURL func(url string) error

	// Port fixes the callback port. Zero searches the default range.
	Port int
}

// Login runs the authorisation code flow with PKCE: it serves the loopback
// redirect, sends the user to the consent page, exchanges the code and saves
// the token. cfg.RedirectURL is overwritten with the loopback address.
func Login(ctx context.Context, cfg *oauth2.Config, store google.TokenStore, opts LoginOptions) (*oauth2.Token, error) {
	if opts.OpenURL == nil {
		opts.OpenURL = OpenBrowser
	}

	port := opts.Port
	if port == 0 {
		var err error
		if port, err = FindAvailablePort(callbackPortStart, callbackPortEnd); err != nil {
			return nil, err
		}
	}

	state, err := randomState()
	if err != nil {
		return nil, err
	}

	server := NewCallbackServer(port, state)
	if err := server.Start(); err != nil {
		return nil, err
	}
	defer func() { _ = server.Stop() }()

	cfg.RedirectURL = server.RedirectURI()
	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	logger.Info("opening browser for authorisation", "redirect", cfg.RedirectURL)
	if err := opts.OpenURL(authURL); err != nil {
		logger.Warn("could not open browser, visit the URL manually", "url", authURL, "error", err)
	}

	code, err := server.WaitForCode(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if err := store.Save(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
