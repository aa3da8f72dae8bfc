package credential

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// tokenRequestTimeout bounds a single request to a token endpoint.
const tokenRequestTimeout = 30 * time.Second

// tokenHTTPClient is used for token endpoint requests.
var tokenHTTPClient = &http.Client{
	Timeout:   tokenRequestTimeout,
	Transport: otelhttp.NewTransport(http.DefaultTransport),
}

// ErrInteractiveToken is returned by the round tripper when a token provider
// would need a human to produce a token.
var ErrInteractiveToken = errors.New("token provider requires interaction")

// PromptType controls whether credential acquisition may prompt a user.
type PromptType int

const (
	DoNotPrompt PromptType = iota
	PromptIfNeeded
)

func (p PromptType) String() string {
	switch p {
	case DoNotPrompt:
		return "DoNotPrompt"
	case PromptIfNeeded:
		return "PromptIfNeeded"
	default:
		return fmt.Sprintf("PromptType(%d)", int(p))
	}
}

// Credentials is the runtime credential handed to the transport layer.
type Credentials struct {
	Federated  *FederatedCredential
	PromptType PromptType
}

// NewCredentials wraps a federated credential.
func NewCredentials(federated *FederatedCredential, prompt PromptType) (*Credentials, error) {
	if federated == nil {
		return nil, fmt.Errorf("%w: nil federated credential", ErrConstruction)
	}
	return &Credentials{Federated: federated, PromptType: prompt}, nil
}

// RoundTripper returns a transport that authorizes every request through the
// token provider of the request's origin. Token acquisition is bounded by the
// request context. A nil base uses http.DefaultTransport.
func (c *Credentials) RoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{creds: c, base: base}
}

type roundTripper struct {
	creds *Credentials
	base  http.RoundTripper
}

func (t *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	origin := &url.URL{Scheme: req.URL.Scheme, Host: req.URL.Host}
	provider, err := t.creds.Federated.TokenProvider(origin, nil)
	if err != nil {
		closeBody(req)
		return nil, fmt.Errorf("token provider for %s: %w", origin, err)
	}
	if provider.GetTokenIsInteractive() {
		closeBody(req)
		return nil, ErrInteractiveToken
	}
	tok, err := provider.TokenContext(req.Context())
	if err != nil {
		closeBody(req)
		return nil, err
	}
	authed := req.Clone(req.Context())
	tok.SetAuthHeader(authed)
	return t.base.RoundTrip(authed)
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
