package credential

import (
	"fmt"
	"slices"
	"sync"
)

// Scheme names an authentication method.
type Scheme string

// Built-in schemes.
const (
	SchemeOAuthAccessToken      Scheme = "OAuthAccessToken"
	SchemeOAuth                 Scheme = "OAuth"
	SchemePersonalAccessToken   Scheme = "PersonalAccessToken"
	SchemeAzureWorkloadIdentity Scheme = "AzureWorkloadIdentity"
)

// Factory creates an unprovisioned provider.
type Factory func() Provider

var (
	registryMu sync.RWMutex
	registry   = map[Scheme]Factory{
		SchemeOAuthAccessToken:      func() Provider { return NewOAuthAccessTokenProvider() },
		SchemeOAuth:                 func() Provider { return NewOAuthClientProvider() },
		SchemePersonalAccessToken:   func() Provider { return NewPATProvider() },
		SchemeAzureWorkloadIdentity: func() Provider { return NewAzureProvider() },
	}
)

// Register adds or replaces the factory for scheme.
func Register(scheme Scheme, factory Factory) {
	if scheme == "" || factory == nil {
		panic("credential: Register requires a scheme and a factory")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[scheme] = factory
}

// NewProvider instantiates the provider registered for scheme.
func NewProvider(scheme Scheme) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return factory(), nil
}

// Restore instantiates the provider for data's scheme and loads data into it.
func Restore(data *Data) (Provider, error) {
	if err := notNil(data == nil, "data"); err != nil {
		return nil, err
	}
	p, err := NewProvider(data.Scheme())
	if err != nil {
		return nil, err
	}
	if err := p.SetCredentialData(data); err != nil {
		return nil, err
	}
	return p, nil
}

// Schemes returns the registered schemes in sorted order.
func Schemes() []Scheme {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Scheme, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
