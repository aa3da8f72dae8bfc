package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"golang.org/x/term"

	"github.com/lsm/agentauth/internal/config"
	"github.com/lsm/agentauth/internal/credential"
	"github.com/lsm/agentauth/internal/observability"
)

var (
	// ErrInteractiveRequired is returned when a scheme needs a terminal and none is attached.
	ErrInteractiveRequired = errors.New("authentication scheme requires an interactive terminal")
	// ErrNoCredential is returned when the configured scheme yields no credential.
	ErrNoCredential = errors.New("no credential available")
)

var tracer = otel.Tracer("github.com/lsm/agentauth/internal/cli")

// stdinIsTerminal reports whether stdin is attached to a terminal.
// Tests replace it.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readSecret reads a line from the terminal without echo. Tests replace it.
var readSecret = func(out io.Writer, prompt string) (string, error) {
	_, _ = fmt.Fprint(out, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return string(b), nil
}

// commandInput carries configure flags to providers.
type commandInput struct {
	token string
	args  map[string]string
}

func (c *commandInput) GetToken() string { return c.token }

func (c *commandInput) GetArg(name string) string { return c.args[name] }

// common flags shared by every command that touches the config directory.
type common struct {
	dir      string
	logLevel string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.dir, "dir", "", "configuration directory (default $"+config.DirEnv+" or ~/.agentauth)")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func (c *common) resolveDir() (string, error) {
	return config.Dir(c.dir)
}

// hostContext builds the logging host for provider calls. Diagnostics go to
// stderr so command output stays parseable.
func (c *common) hostContext(ctx context.Context, component string) *observability.HostContext {
	logger := observability.NewLogger(component, observability.GetLogLevel(c.logLevel))
	return observability.NewHostContext(ctx, observability.NewTraceLogger(logger))
}

// parse parses args, treating -h as success.
func parse(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func newFlagSet(name, usage string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(out, usage)
		_, _ = fmt.Fprintln(out, "\nFlags:")
		fs.PrintDefaults()
	}
	return fs
}

// loadProvider restores the persisted provider and settings from dir.
func loadProvider(dir string) (*config.Settings, credential.Provider, error) {
	settings, err := config.LoadSettings(filepath.Join(dir, config.SettingsFileName))
	if err != nil {
		return nil, nil, err
	}
	file, err := config.LoadCredentials(settings.CredentialsPath(dir))
	if err != nil {
		return nil, nil, err
	}
	data, err := file.ToData()
	if err != nil {
		return nil, nil, err
	}
	provider, err := credential.Restore(data)
	if err != nil {
		return nil, nil, err
	}
	return settings, provider, nil
}
