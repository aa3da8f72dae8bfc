package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// CredentialType identifies how a federated credential authorizes requests.
type CredentialType string

const (
	CredentialTypeOAuth CredentialType = "OAuth"
	CredentialTypeBasic CredentialType = "Basic"
)

// TokenProviderFactory builds the token provider for one server. resp is the
// response that triggered authorization, or nil.
type TokenProviderFactory func(fc *FederatedCredential, serverURL *url.URL, resp *http.Response) *TokenProvider

// FederatedCredential produces authorization material through token
// providers created lazily, one per server URL.
type FederatedCredential struct {
	credType CredentialType
	token    *AccessToken
	factory  TokenProviderFactory

	mu        sync.Mutex
	providers map[string]*TokenProvider
}

// NewFederatedCredential returns a credential of credType. token may be nil
// for schemes whose token providers issue their own tokens.
func NewFederatedCredential(credType CredentialType, token *AccessToken, factory TokenProviderFactory) (*FederatedCredential, error) {
	if credType == "" {
		return nil, errors.New("credential type is required")
	}
	if err := notNil(factory == nil, "factory"); err != nil {
		return nil, err
	}
	return &FederatedCredential{
		credType:  credType,
		token:     token,
		factory:   factory,
		providers: make(map[string]*TokenProvider),
	}, nil
}

// CredentialType returns the credential type.
func (c *FederatedCredential) CredentialType() CredentialType { return c.credType }

// Token returns the pre-issued token, or nil.
func (c *FederatedCredential) Token() *AccessToken { return c.token }

// CreateTokenProvider builds a new token provider for serverURL without
// consulting the cache.
func (c *FederatedCredential) CreateTokenProvider(serverURL *url.URL, resp *http.Response) (*TokenProvider, error) {
	if err := notNil(serverURL == nil, "serverURL"); err != nil {
		return nil, err
	}
	p := c.factory(c, serverURL, resp)
	if p == nil {
		return nil, errors.New("token provider factory returned nil")
	}
	return p, nil
}

// TokenProvider returns the token provider for serverURL, creating it on
// first use. Concurrent callers for the same URL get the same instance.
func (c *FederatedCredential) TokenProvider(serverURL *url.URL, resp *http.Response) (*TokenProvider, error) {
	if err := notNil(serverURL == nil, "serverURL"); err != nil {
		return nil, err
	}
	key := providerKey(serverURL)

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.providers[key]; ok {
		return p, nil
	}
	p, err := c.CreateTokenProvider(serverURL, resp)
	if err != nil {
		return nil, err
	}
	c.providers[key] = p
	return p, nil
}

func providerKey(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.TrimSuffix(u.Path, "/")
}

// TokenProvider produces authorization tokens for a single server.
type TokenProvider struct {
	credential  *FederatedCredential
	serverURL   *url.URL
	signInURL   *url.URL
	interactive bool
	source      oauth2.TokenSource
}

// NewTokenProvider binds source to (credential, serverURL). signInURL may be nil.
func NewTokenProvider(credential *FederatedCredential, serverURL, signInURL *url.URL, interactive bool, source oauth2.TokenSource) *TokenProvider {
	return &TokenProvider{
		credential:  credential,
		serverURL:   serverURL,
		signInURL:   signInURL,
		interactive: interactive,
		source:      source,
	}
}

// Credential returns the credential the provider belongs to.
func (p *TokenProvider) Credential() *FederatedCredential { return p.credential }

// ServerURL returns the server the provider is scoped to.
func (p *TokenProvider) ServerURL() *url.URL { return p.serverURL }

// SignInURL returns the interactive sign-in URL, or nil.
func (p *TokenProvider) SignInURL() *url.URL { return p.signInURL }

// GetTokenIsInteractive reports whether obtaining a token may block on a human.
func (p *TokenProvider) GetTokenIsInteractive() bool { return p.interactive }

// Token implements oauth2.TokenSource. Errors match ErrTokenAcquisition.
func (p *TokenProvider) Token() (*oauth2.Token, error) {
	if p.source == nil {
		return nil, fmt.Errorf("%w: token provider has no token source", ErrTokenAcquisition)
	}
	tok, err := p.source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenAcquisition, err)
	}
	if tok == nil {
		return nil, fmt.Errorf("%w: token source returned no token", ErrTokenAcquisition)
	}
	return tok, nil
}

// TokenContext is Token bounded by ctx. When ctx ends first the source keeps
// running in the background and its result is dropped.
func (p *TokenProvider) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	type result struct {
		tok *oauth2.Token
		err error
	}
	ch := make(chan result, 1)
	go func() {
		tok, err := p.Token()
		ch <- result{tok, err}
	}()
	select {
	case r := <-ch:
		return r.tok, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTokenAcquisition, ctx.Err())
	}
}
