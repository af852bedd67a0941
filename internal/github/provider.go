package github

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/fclairamb/ghsync/internal/apperrors"
)

// TokenProvider builds an authenticated Client on demand from a static
// token. The client is constructed once and reused across calls.
type TokenProvider struct {
	token string
	opts  []ClientOption

	once   sync.Once
	client *Client
	err    error
}

// NewTokenProvider creates a provider for the given token. Extra client
// options are applied to the constructed client.
func NewTokenProvider(token string, opts ...ClientOption) *TokenProvider {
	return &TokenProvider{token: token, opts: opts}
}

// Client returns the authenticated API client, building it on first use.
func (p *TokenProvider) Client(ctx context.Context) (*Client, error) {
	p.once.Do(func() {
		if p.token == "" {
			p.err = apperrors.ErrTokenRequired
			return
		}

		// Route requests through an oauth2 transport so token handling
		// stays out of the request path.
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.token})
		httpClient := oauth2.NewClient(ctx, ts)
		httpClient.Timeout = httpTimeout

		opts := append([]ClientOption{WithHTTPClient(httpClient)}, p.opts...)
		p.client = NewClient("", opts...)
	})

	return p.client, p.err
}

// StaticProvider wraps an already-built client. Used in tests and wherever
// the caller manages the client lifecycle itself.
type StaticProvider struct {
	client *Client
}

// NewStaticProvider creates a provider returning the given client.
func NewStaticProvider(client *Client) *StaticProvider {
	return &StaticProvider{client: client}
}

// Client returns the wrapped client.
func (p *StaticProvider) Client(_ context.Context) (*Client, error) {
	return p.client, nil
}
