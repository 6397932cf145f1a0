package google

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/logger"
)

// TokenStore persists the OAuth token between runs.
type TokenStore interface {
	// Load returns the saved token, or domain.ErrAuthRequired if none exists.
	Load() (*oauth2.Token, error)

	// Save replaces the saved token.
	Save(token *oauth2.Token) error
}

// persistingTokenSource refreshes through oauth2 and writes every new token
// back to the store, so a rotated refresh token survives a restart.
type persistingTokenSource struct {
	mu    sync.Mutex
	base  oauth2.TokenSource
	store TokenStore
	last  string
}

// NewTokenSource creates a TokenSource that starts from the stored token and
// refreshes it with cfg. Returns domain.ErrAuthRequired when nothing is stored.
func NewTokenSource(ctx context.Context, cfg *oauth2.Config, store TokenStore) (oauth2.TokenSource, error) {
	tok, err := store.Load()
	if err != nil {
		return nil, err
	}
	if tok == nil || (tok.RefreshToken == "" && !tok.Valid()) {
		return nil, domain.ErrAuthRequired
	}
	return &persistingTokenSource{
		base:  cfg.TokenSource(ctx, tok),
		store: store,
		last:  tok.AccessToken,
	}, nil
}

// Token implements oauth2.TokenSource.
func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.store.Save(tok); err != nil {
			logger.Warn("failed to persist refreshed token", "error", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}
