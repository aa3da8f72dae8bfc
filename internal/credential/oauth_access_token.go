package credential

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// OAuthAccessTokenProvider provisions a pre-issued OAuth access token.
type OAuthAccessTokenProvider struct {
	base
}

// NewOAuthAccessTokenProvider returns an unprovisioned provider.
func NewOAuthAccessTokenProvider() *OAuthAccessTokenProvider {
	return &OAuthAccessTokenProvider{base: newBase(SchemeOAuthAccessToken)}
}

// EnsureCredential stores the token supplied on the command line.
func (p *OAuthAccessTokenProvider) EnsureCredential(hc HostContext, cmd CommandInput, _ string) error {
	if err := notNil(isNil(hc), "hc"); err != nil {
		return err
	}
	trace := hc.GetTrace("OAuthAccessTokenProvider")
	trace.Info("EnsureCredential")
	if err := notNil(isNil(cmd), "cmd"); err != nil {
		return err
	}
	p.data.Set(KeyToken, cmd.GetToken())
	return nil
}

// GetCredential returns credentials for the stored token, or nil when no
// token has been provisioned.
func (p *OAuthAccessTokenProvider) GetCredential(hc HostContext) (*Credentials, error) {
	if err := notNil(isNil(hc), "hc"); err != nil {
		return nil, err
	}
	trace := hc.GetTrace("OAuthAccessTokenProvider")
	trace.Info("GetCredential", "scheme", p.Scheme())

	token := p.lookup(KeyToken)
	if token == "" {
		trace.Error("token is missing or empty", "scheme", p.Scheme())
		return nil, nil
	}

	federated, err := NewOAuthAccessTokenCredential(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	creds, err := NewCredentials(federated, DoNotPrompt)
	if err != nil {
		return nil, err
	}

	trace.Info("credential created",
		"scheme", p.Scheme(),
		"token_length", len(token),
		"credential_type", creds.Federated.CredentialType(),
		"prompt_type", creds.PromptType.String(),
	)
	return creds, nil
}

// NewOAuthAccessTokenCredential builds an OAuth credential from a raw token.
func NewOAuthAccessTokenCredential(raw string) (*FederatedCredential, error) {
	tok, err := NewAccessToken(raw)
	if err != nil {
		return nil, err
	}
	return OAuthAccessTokenCredentialFromToken(tok)
}

// OAuthAccessTokenCredentialFromJWT builds an OAuth credential from a parsed JWT.
func OAuthAccessTokenCredentialFromJWT(jwtToken *jwt.Token) (*FederatedCredential, error) {
	tok, err := AccessTokenFromJWT(jwtToken)
	if err != nil {
		return nil, err
	}
	return OAuthAccessTokenCredentialFromToken(tok)
}

// OAuthAccessTokenCredentialFromToken builds an OAuth credential from a wrapped token.
func OAuthAccessTokenCredentialFromToken(tok *AccessToken) (*FederatedCredential, error) {
	if err := notNil(tok == nil, "token"); err != nil {
		return nil, err
	}
	return NewFederatedCredential(CredentialTypeOAuth, tok, oauthAccessTokenProvider)
}

// The token is pre-issued, so the triggering response is not inspected.
func oauthAccessTokenProvider(fc *FederatedCredential, serverURL *url.URL, _ *http.Response) *TokenProvider {
	src := oauth2.StaticTokenSource(fc.Token().toOAuth2("Bearer"))
	return NewTokenProvider(fc, serverURL, nil, false, src)
}
