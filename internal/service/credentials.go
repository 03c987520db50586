package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Rrens/chatvault/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// CredentialChange describes a bearer token transition
type CredentialChange struct {
	Previous string
	Current  string
}

// Acquired reports a transition from no token to a token
func (c CredentialChange) Acquired() bool {
	return c.Previous == "" && c.Current != ""
}

// Credentials holds the bearer token for the backup API. It is the token
// source of the backup clients, so a replaced token applies to the next request.
type Credentials struct {
	mu       sync.RWMutex
	token    string
	store    domain.LocalStore
	handlers []func(context.Context, CredentialChange)
}

// NewCredentials restores the token saved in store. An unreadable token is
// dropped; the user signs in again.
func NewCredentials(ctx context.Context, store domain.LocalStore) *Credentials {
	token, err := store.BearerToken(ctx)
	if err != nil {
		log.Warn().Err(err).
			Str("kind", domain.ErrorKind(err)).
			Msg("Failed to restore bearer token")
		token = ""
	}
	return &Credentials{token: token, store: store}
}

// BearerToken returns the current token and whether one is present
func (c *Credentials) BearerToken() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// Token implements oauth2.TokenSource
func (c *Credentials) Token() (*oauth2.Token, error) {
	token, ok := c.BearerToken()
	if !ok {
		return nil, fmt.Errorf("%w: no bearer token", domain.ErrAuthExpired)
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// OnChange registers a handler called after every token change
func (c *Credentials) OnChange(h func(context.Context, CredentialChange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Set persists and installs token. Handlers run synchronously before Set
// returns. An unchanged token is not reported.
func (c *Credentials) Set(ctx context.Context, token string) (CredentialChange, error) {
	c.mu.Lock()
	change := CredentialChange{Previous: c.token, Current: token}
	if change.Previous == change.Current {
		c.mu.Unlock()
		return change, nil
	}
	if err := c.store.SetBearerToken(ctx, token); err != nil {
		c.mu.Unlock()
		return change, fmt.Errorf("failed to store bearer token: %w", err)
	}
	c.token = token
	handlers := append([]func(context.Context, CredentialChange){}, c.handlers...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(ctx, change)
	}
	return change, nil
}

// Clear removes the token
func (c *Credentials) Clear(ctx context.Context) error {
	_, err := c.Set(ctx, "")
	return err
}

// forget drops the in-memory token without touching storage
func (c *Credentials) forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}
