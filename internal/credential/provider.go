package credential

import (
	"context"
	"fmt"
)

// Tracing is the logging side channel handed out by a HostContext.
type Tracing interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// HostContext carries the request context and tracing sinks of the agent process.
type HostContext interface {
	Context() context.Context
	GetTrace(name string) Tracing
}

// CommandInput exposes the raw values supplied on the command line.
type CommandInput interface {
	GetToken() string
	// GetArg returns the named argument or "" if it was not supplied.
	GetArg(name string) string
}

// Provider provisions and issues credentials for one scheme.
type Provider interface {
	Scheme() Scheme
	// RequireInteractive reports whether a human must be present to provision the scheme.
	RequireInteractive() bool
	CredentialData() *Data
	SetCredentialData(data *Data) error
	// GetCredential returns the runtime credentials, or nil without an error
	// when no secret has been provisioned.
	GetCredential(hc HostContext) (*Credentials, error)
	// EnsureCredential extracts the scheme's secret from cmd and stores it.
	EnsureCredential(hc HostContext, cmd CommandInput, serverURL string) error
}

// base holds the state shared by all schemes.
type base struct {
	data *Data
}

func newBase(scheme Scheme) base {
	return base{data: NewData(scheme)}
}

func (b *base) Scheme() Scheme { return b.data.Scheme() }

func (b *base) RequireInteractive() bool { return false }

func (b *base) CredentialData() *Data { return b.data }

func (b *base) SetCredentialData(data *Data) error {
	if err := notNil(data == nil, "data"); err != nil {
		return err
	}
	if data.Scheme() != b.data.Scheme() {
		return fmt.Errorf("%w: provider %s, data %s", ErrSchemeMismatch, b.data.Scheme(), data.Scheme())
	}
	b.data = data
	return nil
}

// lookup returns the stored value for key, treating absence as empty.
func (b *base) lookup(key string) string {
	v, _ := b.data.Get(key)
	return v
}
