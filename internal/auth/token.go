package auth

import (
	"context"
	"net/url"
	"sync"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"golang.org/x/oauth2"
)

// SecureTokenURL is the endpoint that exchanges refresh tokens for ID tokens.
const SecureTokenURL = "https://securetoken.googleapis.com/v1/token"

// TokenSource returns a token source that presents the credential's ID token
// and refreshes it against the secure token endpoint when it expires.
func TokenSource(ctx context.Context, apiKey string, cred *model.Credential) oauth2.TokenSource {
	return tokenSourceWithURL(ctx, SecureTokenURL, apiKey, cred)
}

func tokenSourceWithURL(ctx context.Context, endpoint, apiKey string, cred *model.Credential) oauth2.TokenSource {
	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  endpoint + "?key=" + url.QueryEscape(apiKey),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	initial := &oauth2.Token{
		AccessToken:  cred.IDToken,
		TokenType:    "Bearer",
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.ExpiresAt,
	}
	return oauth2.ReuseTokenSource(initial, conf.TokenSource(ctx, initial))
}

// Refresh exchanges the credential's refresh token for a fresh ID token.
func Refresh(ts oauth2.TokenSource, cred *model.Credential) (*model.Credential, error) {
	tok, err := ts.Token()
	if err != nil {
		return nil, err
	}

	refreshed := *cred
	refreshed.IDToken = tok.AccessToken
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		refreshed.IDToken = idToken
	}
	if tok.RefreshToken != "" {
		refreshed.RefreshToken = tok.RefreshToken
	}
	refreshed.ExpiresAt = tok.Expiry
	return &refreshed, nil
}

// CredentialTokenSource presents the ID token of whichever credential is
// currently signed in. It lets a remote client be created before sign-in.
type CredentialTokenSource struct {
	ctx    context.Context
	ts     oauth2.TokenSource
	apiKey string
	mu     sync.Mutex
}

var _ oauth2.TokenSource = (*CredentialTokenSource)(nil)

// NewCredentialTokenSource creates a token source with no credential.
func NewCredentialTokenSource(ctx context.Context, apiKey string) *CredentialTokenSource {
	return &CredentialTokenSource{ctx: context.WithoutCancel(ctx), apiKey: apiKey}
}

// SetCredential switches to cred. A nil credential signs the source out.
func (s *CredentialTokenSource) SetCredential(cred *model.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred == nil {
		s.ts = nil
		return
	}
	s.ts = TokenSource(s.ctx, s.apiKey, cred)
}

// Token returns the current ID token, refreshing it when expired.
func (s *CredentialTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	ts := s.ts
	s.mu.Unlock()

	if ts == nil {
		return nil, common.ErrNotSignedIn
	}
	return ts.Token()
}
