// Package google holds the shared plumbing for the Gmail connector: OAuth
// client configuration, a persisting token source, API error mapping and
// request rate limiting.
//
// The mailbox itself lives in the gmail subpackage:
//
//	cfg, err := google.OAuthConfigFromFile(credentialsFile, redirectURL)
//	ts := google.NewTokenSource(ctx, cfg, tokenStore)
//	client, err := gmail.New(ctx, ts, gmail.DefaultConfig())
//
// # OAuth2 Scopes
//
// gmail.modify covers reading messages, creating drafts and labelling. It is
// a restricted scope; user-created internal apps need no verification.
package google
