package credential

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"golang.org/x/oauth2"
)

// AzureProvider authenticates with Azure Workload Identity / Managed Identity.
// Only the token scope is persisted; the identity comes from the environment.
type AzureProvider struct {
	base
	newCredential func() (azcore.TokenCredential, error)
	timeout       time.Duration
}

// NewAzureProvider returns an unprovisioned provider backed by azidentity's
// default credential chain.
func NewAzureProvider() *AzureProvider {
	return &AzureProvider{
		base: newBase(SchemeAzureWorkloadIdentity),
		newCredential: func() (azcore.TokenCredential, error) {
			return azidentity.NewDefaultAzureCredential(nil)
		},
		timeout: tokenRequestTimeout,
	}
}

// EnsureCredential stores the token scope supplied on the command line.
func (p *AzureProvider) EnsureCredential(hc HostContext, cmd CommandInput, _ string) error {
	if err := notNil(isNil(hc), "hc"); err != nil {
		return err
	}
	hc.GetTrace("AzureProvider").Info("EnsureCredential")
	if err := notNil(isNil(cmd), "cmd"); err != nil {
		return err
	}
	p.data.Set(KeyScope, strings.TrimSpace(cmd.GetArg(KeyScope)))
	return nil
}

// GetCredential returns credentials acquiring tokens for the stored scope,
// or nil when no scope is stored.
func (p *AzureProvider) GetCredential(hc HostContext) (*Credentials, error) {
	if err := notNil(isNil(hc), "hc"); err != nil {
		return nil, err
	}
	trace := hc.GetTrace("AzureProvider")

	scope := p.lookup(KeyScope)
	if scope == "" {
		trace.Error("azure token scope is missing or empty", "scheme", p.Scheme())
		return nil, nil
	}

	azCred, err := p.newCredential()
	if err != nil {
		return nil, fmt.Errorf("%w: create azure credential: %w", ErrConstruction, err)
	}
	federated, err := NewFederatedCredential(CredentialTypeOAuth, nil, func(fc *FederatedCredential, serverURL *url.URL, _ *http.Response) *TokenProvider {
		src := &azureTokenSource{cred: azCred, scope: scope, timeout: p.timeout}
		return NewTokenProvider(fc, serverURL, nil, false, oauth2.ReuseTokenSource(nil, src))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	trace.Info("credential created", "scheme", p.Scheme(), "credential_type", CredentialTypeOAuth, "scope", scope)
	return NewCredentials(federated, DoNotPrompt)
}

type azureTokenSource struct {
	cred    azcore.TokenCredential
	scope   string
	timeout time.Duration
}

func (s *azureTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	tok, err := s.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{s.scope},
	})
	if err != nil {
		return nil, fmt.Errorf("acquire azure token: %w", err)
	}
	return &oauth2.Token{
		AccessToken: tok.Token,
		TokenType:   "Bearer",
		Expiry:      tok.ExpiresOn,
	}, nil
}
