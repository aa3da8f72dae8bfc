package credential

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
)

// patUser is the placeholder user name sent with a personal access token.
const patUser = "pat"

// PATProvider provisions a personal access token. Obtaining one needs a
// human, so the scheme is interactive.
type PATProvider struct {
	base
}

// NewPATProvider returns an unprovisioned provider.
func NewPATProvider() *PATProvider {
	return &PATProvider{base: newBase(SchemePersonalAccessToken)}
}

func (p *PATProvider) RequireInteractive() bool { return true }

// EnsureCredential stores the token supplied on the command line.
func (p *PATProvider) EnsureCredential(hc HostContext, cmd CommandInput, _ string) error {
	if err := notNil(isNil(hc), "hc"); err != nil {
		return err
	}
	hc.GetTrace("PATProvider").Info("EnsureCredential")
	if err := notNil(isNil(cmd), "cmd"); err != nil {
		return err
	}
	p.data.Set(KeyToken, cmd.GetToken())
	return nil
}

// GetCredential returns basic-auth credentials, or nil when no token is stored.
func (p *PATProvider) GetCredential(hc HostContext) (*Credentials, error) {
	if err := notNil(isNil(hc), "hc"); err != nil {
		return nil, err
	}
	trace := hc.GetTrace("PATProvider")

	token := p.lookup(KeyToken)
	if token == "" {
		trace.Error("personal access token is missing or empty", "scheme", p.Scheme())
		return nil, nil
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(patUser + ":" + token))
	tok, err := NewAccessToken(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	federated, err := NewFederatedCredential(CredentialTypeBasic, tok, basicTokenProvider)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	trace.Info("credential created", "scheme", p.Scheme(), "token_length", len(token), "credential_type", CredentialTypeBasic)
	return NewCredentials(federated, PromptIfNeeded)
}

func basicTokenProvider(fc *FederatedCredential, serverURL *url.URL, _ *http.Response) *TokenProvider {
	return NewTokenProvider(fc, serverURL, nil, false, oauth2.StaticTokenSource(fc.Token().toOAuth2("Basic")))
}
