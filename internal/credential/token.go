package credential

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// AccessToken is a pre-issued access token.
//
// The value is only reachable through Value; String, Masked and LogValue
// report the length so a token can be passed to a logger safely.
type AccessToken struct {
	value  string
	expiry time.Time
}

// NewAccessToken wraps a raw token. JWTs are parsed without verification to
// pick up their expiry; opaque tokens are accepted as is.
func NewAccessToken(raw string) (*AccessToken, error) {
	if raw == "" {
		return nil, ErrEmptyToken
	}
	t := &AccessToken{value: raw}
	if exp, ok := jwtExpiry(raw); ok {
		t.expiry = exp
	}
	return t, nil
}

// AccessTokenFromJWT wraps an already parsed JWT.
func AccessTokenFromJWT(tok *jwt.Token) (*AccessToken, error) {
	if err := notNil(tok == nil, "token"); err != nil {
		return nil, err
	}
	if tok.Raw == "" {
		return nil, ErrEmptyToken
	}
	t := &AccessToken{value: tok.Raw}
	if tok.Claims != nil {
		if exp, err := tok.Claims.GetExpirationTime(); err == nil && exp != nil {
			t.expiry = exp.Time
		}
	}
	return t, nil
}

func jwtExpiry(raw string) (time.Time, bool) {
	if strings.Count(raw, ".") != 2 {
		return time.Time{}, false
	}
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Value returns the raw token.
func (t *AccessToken) Value() string { return t.value }

// Len returns the length of the raw token.
func (t *AccessToken) Len() int { return len(t.value) }

// Expiry returns the token expiry, or the zero time when unknown.
func (t *AccessToken) Expiry() time.Time { return t.expiry }

// Masked returns a form of the token suitable for log messages.
func (t *AccessToken) Masked() string {
	return fmt.Sprintf("[redacted len=%d]", len(t.value))
}

func (t *AccessToken) String() string { return t.Masked() }

// LogValue implements slog.LogValuer.
func (t *AccessToken) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("length", len(t.value)),
		slog.Bool("expires", !t.expiry.IsZero()),
	)
}

func (t *AccessToken) toOAuth2(tokenType string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.value,
		TokenType:   tokenType,
		Expiry:      t.expiry,
	}
}
