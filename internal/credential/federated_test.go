package credential

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

func countingCredential(t *testing.T, calls *atomic.Int32) *FederatedCredential {
	t.Helper()
	tok, err := NewAccessToken("tok")
	if err != nil {
		t.Fatal(err)
	}
	fc, err := NewFederatedCredential(CredentialTypeOAuth, tok, func(fc *FederatedCredential, u *url.URL, _ *http.Response) *TokenProvider {
		calls.Add(1)
		return NewTokenProvider(fc, u, nil, false, oauth2.StaticTokenSource(fc.Token().toOAuth2("Bearer")))
	})
	if err != nil {
		t.Fatal(err)
	}
	return fc
}

func TestTokenProvider_AtMostOncePerURLConcurrently(t *testing.T) {
	var calls atomic.Int32
	fc := countingCredential(t, &calls)
	u, _ := url.Parse("https://a.example.test")

	const workers = 64
	got := make([]*TokenProvider, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := fc.TokenProvider(u, nil)
			if err != nil {
				t.Errorf("TokenProvider: %v", err)
				return
			}
			got[i] = p
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("expected factory to run once, ran %d times", n)
	}
	for i := 1; i < workers; i++ {
		if got[i] != got[0] {
			t.Fatalf("worker %d got a different provider", i)
		}
	}
}

func TestTokenProvider_KeyedByURL(t *testing.T) {
	var calls atomic.Int32
	fc := countingCredential(t, &calls)

	same := []string{"https://a.example.test/org", "HTTPS://A.EXAMPLE.TEST/org/", "https://a.example.test/org?x=1"}
	var first *TokenProvider
	for _, raw := range same {
		u, _ := url.Parse(raw)
		p, err := fc.TokenProvider(u, nil)
		if err != nil {
			t.Fatalf("TokenProvider(%s): %v", raw, err)
		}
		if first == nil {
			first = p
		} else if p != first {
			t.Errorf("%s: expected cached provider", raw)
		}
	}

	other, _ := url.Parse("https://b.example.test/org")
	p, err := fc.TokenProvider(other, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p == first {
		t.Error("expected a distinct provider for another server")
	}
	if p.ServerURL().Host != "b.example.test" {
		t.Errorf("provider bound to %v", p.ServerURL())
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 factory calls, got %d", n)
	}
}

func TestCreateTokenProvider_NotCached(t *testing.T) {
	var calls atomic.Int32
	fc := countingCredential(t, &calls)
	u, _ := url.Parse("https://a.example.test")

	p1, err := fc.CreateTokenProvider(u, &http.Response{StatusCode: http.StatusUnauthorized})
	if err != nil {
		t.Fatal(err)
	}
	p2, err := fc.CreateTokenProvider(u, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p1 == p2 {
		t.Error("CreateTokenProvider must not memoize")
	}
	if p1.GetTokenIsInteractive() != p2.GetTokenIsInteractive() {
		t.Error("expected identical interactivity")
	}
}

func TestTokenProvider_NilURL(t *testing.T) {
	var calls atomic.Int32
	fc := countingCredential(t, &calls)
	if _, err := fc.TokenProvider(nil, nil); !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument, got %v", err)
	}
	if _, err := fc.CreateTokenProvider(nil, nil); !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("factory must not run for a nil URL")
	}
}

func TestNewFederatedCredential_Validation(t *testing.T) {
	if _, err := NewFederatedCredential("", nil, oauthAccessTokenProvider); err == nil {
		t.Error("expected error for empty credential type")
	}
	if _, err := NewFederatedCredential(CredentialTypeOAuth, nil, nil); !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument for nil factory, got %v", err)
	}
	if _, err := NewCredentials(nil, DoNotPrompt); !errors.Is(err, ErrConstruction) {
		t.Errorf("expected ErrConstruction, got %v", err)
	}
}

func TestOAuthAccessTokenCredential_ConstructionPaths(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "runner",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatal(err)
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(signed, jwt.MapClaims{})
	if err != nil {
		t.Fatal(err)
	}
	wrapped, err := NewAccessToken(signed)
	if err != nil {
		t.Fatal(err)
	}

	builders := map[string]func() (*FederatedCredential, error){
		"string": func() (*FederatedCredential, error) { return NewOAuthAccessTokenCredential(signed) },
		"jwt":    func() (*FederatedCredential, error) { return OAuthAccessTokenCredentialFromJWT(parsed) },
		"token":  func() (*FederatedCredential, error) { return OAuthAccessTokenCredentialFromToken(wrapped) },
	}
	for name, build := range builders {
		t.Run(name, func(t *testing.T) {
			fc, err := build()
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if fc.CredentialType() != CredentialTypeOAuth {
				t.Errorf("expected OAuth, got %s", fc.CredentialType())
			}
			if fc.Token().Value() != signed {
				t.Error("token value differs between construction paths")
			}
			if !fc.Token().Expiry().Equal(exp) {
				t.Errorf("expiry = %v, want %v", fc.Token().Expiry(), exp)
			}
		})
	}
}

func TestOAuthAccessTokenCredential_Invalid(t *testing.T) {
	if _, err := NewOAuthAccessTokenCredential(""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("expected ErrEmptyToken, got %v", err)
	}
	if _, err := OAuthAccessTokenCredentialFromJWT(nil); !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument, got %v", err)
	}
	if _, err := OAuthAccessTokenCredentialFromJWT(&jwt.Token{}); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("expected ErrEmptyToken, got %v", err)
	}
	if _, err := OAuthAccessTokenCredentialFromToken(nil); !errors.Is(err, ErrArgument) {
		t.Errorf("expected ErrArgument, got %v", err)
	}
}

func TestNewAccessToken_OpaqueHasNoExpiry(t *testing.T) {
	for _, raw := range []string{"abc123", "a.b.c", "not.a.jwt.at.all"} {
		tok, err := NewAccessToken(raw)
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if !tok.Expiry().IsZero() {
			t.Errorf("%s: expected no expiry, got %v", raw, tok.Expiry())
		}
		if tok.Value() != raw {
			t.Errorf("%s: value changed to %q", raw, tok.Value())
		}
		if strings.Contains(tok.Masked(), raw) {
			t.Errorf("%s: masked form leaks value: %s", raw, tok.Masked())
		}
	}
}

func TestCredentials_RoundTripperAttachesToken(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	creds := mustOAuthCredentials(t, "abc123")
	client := &http.Client{Transport: creds.RoundTripper(srv.Client().Transport)}

	for range 3 {
		resp, err := client.Get(srv.URL + "/_apis/connectionData")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		_ = resp.Body.Close()
	}
	if got := gotAuth.Load(); got != "Bearer abc123" {
		t.Errorf("Authorization = %v, want Bearer abc123", got)
	}

	u, _ := url.Parse(srv.URL)
	p1, _ := creds.Federated.TokenProvider(u, nil)
	p2, _ := creds.Federated.TokenProvider(u, nil)
	if p1 != p2 {
		t.Error("round tripper should reuse the cached provider")
	}
}

func TestCredentials_RoundTripperRefusesInteractive(t *testing.T) {
	tok, _ := NewAccessToken("tok")
	fc, err := NewFederatedCredential(CredentialTypeOAuth, tok, func(fc *FederatedCredential, u *url.URL, _ *http.Response) *TokenProvider {
		signIn, _ := url.Parse("https://login.example.test")
		return NewTokenProvider(fc, u, signIn, true, nil)
	})
	if err != nil {
		t.Fatal(err)
	}
	creds, _ := NewCredentials(fc, PromptIfNeeded)

	req, _ := http.NewRequest(http.MethodGet, "https://server.example.test/x", nil)
	_, err = creds.RoundTripper(nil).RoundTrip(req)
	if !errors.Is(err, ErrInteractiveToken) {
		t.Errorf("expected ErrInteractiveToken, got %v", err)
	}
}

func TestTokenProvider_NoSource(t *testing.T) {
	p := NewTokenProvider(nil, nil, nil, false, nil)
	if _, err := p.Token(); !errors.Is(err, ErrTokenAcquisition) {
		t.Errorf("expected ErrTokenAcquisition, got %v", err)
	}
}

type failingSource struct{ err error }

func (s failingSource) Token() (*oauth2.Token, error) { return nil, s.err }

type blockingSource struct{ release chan struct{} }

func (s blockingSource) Token() (*oauth2.Token, error) {
	<-s.release
	return &oauth2.Token{AccessToken: "late"}, nil
}

func TestTokenProvider_WrapsSourceErrors(t *testing.T) {
	cause := errors.New("acquire azure token: boom")
	p := NewTokenProvider(nil, nil, nil, false, failingSource{err: cause})
	_, err := p.Token()
	if !errors.Is(err, ErrTokenAcquisition) || !errors.Is(err, cause) {
		t.Errorf("expected ErrTokenAcquisition wrapping the cause, got %v", err)
	}

	var re *oauth2.RetrieveError
	p = NewTokenProvider(nil, nil, nil, false, failingSource{err: &oauth2.RetrieveError{ErrorCode: "invalid_client"}})
	if _, err := p.Token(); !errors.Is(err, ErrTokenAcquisition) || !errors.As(err, &re) {
		t.Errorf("expected wrapped RetrieveError, got %v", err)
	}
}

func TestTokenProvider_TokenContextDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	p := NewTokenProvider(nil, nil, nil, false, blockingSource{release: release})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := p.TokenContext(ctx)
	if !errors.Is(err, ErrTokenAcquisition) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline token error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("TokenContext returned after %v", elapsed)
	}
}

func TestCredentials_RoundTripperHonorsRequestContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	fc, err := NewFederatedCredential(CredentialTypeOAuth, nil, func(fc *FederatedCredential, u *url.URL, _ *http.Response) *TokenProvider {
		return NewTokenProvider(fc, u, nil, false, blockingSource{release: release})
	})
	if err != nil {
		t.Fatal(err)
	}
	creds, _ := NewCredentials(fc, DoNotPrompt)
	client := &http.Client{Transport: creds.RoundTripper(srv.Client().Transport)}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)

	start := time.Now()
	_, err = client.Do(req)
	if !errors.Is(err, ErrTokenAcquisition) {
		t.Errorf("expected ErrTokenAcquisition, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("request took %v", elapsed)
	}
	if hits.Load() != 0 {
		t.Error("request reached the server without a token")
	}
}

func TestPromptType_String(t *testing.T) {
	tests := map[PromptType]string{
		DoNotPrompt:    "DoNotPrompt",
		PromptIfNeeded: "PromptIfNeeded",
		PromptType(7):  "PromptType(7)",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
