package credential

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	clientAssertionType     = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	clientAssertionLifetime = 5 * time.Minute
)

// OAuthClientProvider provisions an OAuth client registration. Token
// providers issue access tokens from the authorization URL with the client
// credentials grant, authenticating with either a client secret or an RS256
// client assertion signed by a private key.
type OAuthClientProvider struct {
	base
	now    func() time.Time
	client *http.Client
}

// NewOAuthClientProvider returns an unprovisioned provider.
func NewOAuthClientProvider() *OAuthClientProvider {
	return &OAuthClientProvider{base: newBase(SchemeOAuth), now: time.Now, client: tokenHTTPClient}
}

// EnsureCredential stores the client registration supplied on the command line.
func (p *OAuthClientProvider) EnsureCredential(hc HostContext, cmd CommandInput, _ string) error {
	if err := notNil(isNil(hc), "hc"); err != nil {
		return err
	}
	hc.GetTrace("OAuthClientProvider").Info("EnsureCredential")
	if err := notNil(isNil(cmd), "cmd"); err != nil {
		return err
	}
	for _, key := range []string{KeyClientID, KeyAuthorizationURL, KeyClientSecret, KeyPrivateKeyFile, KeyScope} {
		p.data.Set(key, strings.TrimSpace(cmd.GetArg(key)))
	}
	return nil
}

// GetCredential returns credentials for the stored registration, or nil when
// the registration is incomplete.
func (p *OAuthClientProvider) GetCredential(hc HostContext) (*Credentials, error) {
	if err := notNil(isNil(hc), "hc"); err != nil {
		return nil, err
	}
	trace := hc.GetTrace("OAuthClientProvider")

	clientID := p.lookup(KeyClientID)
	authURL := p.lookup(KeyAuthorizationURL)
	secret := p.lookup(KeyClientSecret)
	keyFile := p.lookup(KeyPrivateKeyFile)
	if clientID == "" || authURL == "" || (secret == "" && keyFile == "") {
		trace.Error("oauth client registration is incomplete",
			"scheme", p.Scheme(),
			"has_client_id", clientID != "",
			"has_authorization_url", authURL != "",
			"has_secret", secret != "" || keyFile != "",
		)
		return nil, nil
	}

	src := &clientCredentialsSource{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: secret,
			TokenURL:     authURL,
		},
		now:    p.now,
		client: p.client,
	}
	if scope := p.lookup(KeyScope); scope != "" {
		src.cfg.Scopes = strings.Fields(scope)
	}
	if keyFile != "" {
		key, err := loadRSAKey(keyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
		}
		src.key = key
	}

	federated, err := NewFederatedCredential(CredentialTypeOAuth, nil, func(fc *FederatedCredential, serverURL *url.URL, _ *http.Response) *TokenProvider {
		return NewTokenProvider(fc, serverURL, nil, false, oauth2.ReuseTokenSource(nil, src))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	trace.Info("credential created",
		"scheme", p.Scheme(),
		"credential_type", CredentialTypeOAuth,
		"client_assertion", src.key != nil,
	)
	return NewCredentials(federated, DoNotPrompt)
}

func loadRSAKey(path string) (*rsa.PrivateKey, error) {
	pemBytes, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	return key, nil
}

type clientCredentialsSource struct {
	cfg    clientcredentials.Config
	key    *rsa.PrivateKey
	now    func() time.Time
	client *http.Client
}

func (s *clientCredentialsSource) Token() (*oauth2.Token, error) {
	cfg := s.cfg
	if s.key != nil {
		assertion, err := s.assertion()
		if err != nil {
			return nil, err
		}
		cfg.AuthStyle = oauth2.AuthStyleInParams
		cfg.EndpointParams = url.Values{
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
		}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, s.client)
	return cfg.Token(ctx)
}

// assertion signs a short-lived JWT identifying the client to the token endpoint.
func (s *clientCredentialsSource) assertion() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.cfg.ClientID,
		Subject:   s.cfg.ClientID,
		Audience:  jwt.ClaimStrings{s.cfg.TokenURL},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(clientAssertionLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign client assertion: %w", err)
	}
	return signed, nil
}
