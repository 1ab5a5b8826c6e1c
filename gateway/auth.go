// ABOUTME: Credential source abstraction for backend authentication
// ABOUTME: Adapts oauth2 token sources and supports a one-shot refresh on expiry
package gateway

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// CredentialSource supplies the bearer credential for gateway calls.
// Credential lifecycle (login, storage) belongs to an external collaborator;
// the engine only reads tokens and asks for a refresh when the server rejects
// one.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// OAuthCredentials adapts an oauth2.TokenSource to CredentialSource. The
// source itself handles refresh-token exchange; Refresh drops the cached
// token and forces a fresh fetch.
type OAuthCredentials struct {
	source oauth2.TokenSource

	mu      sync.Mutex
	current *oauth2.Token
}

// NewOAuthCredentials creates a credential source backed by an oauth2 token
// source (e.g. oauth2.Config.TokenSource with a stored refresh token).
func NewOAuthCredentials(source oauth2.TokenSource) *OAuthCredentials {
	return &OAuthCredentials{source: source}
}

func (c *OAuthCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Valid() {
		return c.current.AccessToken, nil
	}

	token, err := c.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain token: %w", err)
	}
	c.current = token
	return token.AccessToken, nil
}

func (c *OAuthCredentials) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = nil
	token, err := c.source.Token()
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	c.current = token
	return nil
}

// StaticCredentials is a fixed bearer token with no refresh path. Refresh
// fails, which the orchestrator surfaces as an unauthorized pass.
type StaticCredentials string

func (s StaticCredentials) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

func (s StaticCredentials) Refresh(ctx context.Context) error {
	return fmt.Errorf("static credentials cannot be refreshed")
}
