package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/lsm/agentauth/internal/config"
	"github.com/lsm/agentauth/internal/credential"
	"github.com/lsm/agentauth/internal/tracing"
)

const configureUsage = `Usage: agentauth configure --url <server> [--auth <scheme>] [flags]

Provisions a credential for the agent and stores it in the configuration
directory. Use "--token -" to read the token from stdin.

Examples:
  agentauth configure --url https://dev.example.test/org --token "$ACCESS_TOKEN"
  agentauth configure --url https://dev.example.test/org --auth OAuth \
      --client-id runner-1 --authorization-url https://login.example.test/token \
      --private-key ~/.agentauth/runner.pem`

// RunConfigure provisions credentials for a scheme and persists them.
func RunConfigure(args []string, in io.Reader, out io.Writer) error {
	fs := newFlagSet("configure", configureUsage, out)
	var c common
	c.register(fs)
	serverURL := fs.String("url", "", "server URL (required)")
	auth := fs.String("auth", "", "authentication scheme (default "+string(credential.SchemeOAuthAccessToken)+", prompted on a terminal)")
	token := fs.String("token", "", "access token or personal access token")
	clientID := fs.String("client-id", "", "OAuth client ID")
	clientSecret := fs.String("client-secret", "", "OAuth client secret")
	privateKey := fs.String("private-key", "", "PEM file with the RSA key used to sign client assertions")
	authURL := fs.String("authorization-url", "", "OAuth token endpoint")
	scope := fs.String("scope", "", "token scope")
	listen := fs.String("listen", "", "proxy listen address (default "+config.DefaultListenAddr+")")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	dir, err := c.resolveDir()
	if err != nil {
		return err
	}

	p := newPrompter(in, out)
	tty := stdinIsTerminal()
	if *serverURL == "" && tty {
		*serverURL = p.ask("Server URL", "")
	}
	if *auth == "" {
		*auth = string(credential.SchemeOAuthAccessToken)
		if tty {
			*auth = chooseScheme(p)
		}
	}

	settings := &config.Settings{ServerURL: strings.TrimSpace(*serverURL), ListenAddr: *listen}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("--url: %w", err)
	}

	ctx, span := tracing.StartSpan(context.Background(), tracer, tracing.SpanConfigure)
	defer span.End()
	span.SetAttributes(tracing.SchemeAttr(*auth), tracing.ServerURLAttr(settings.ServerURL))

	provider, err := credential.NewProvider(credential.Scheme(*auth))
	if err != nil {
		tracing.SetSpanError(span, err)
		return fmt.Errorf("--auth: %w (available: %s)", err, schemeList())
	}

	if *token == "-" {
		line, err := p.line()
		if err != nil {
			return fmt.Errorf("read token from stdin: %w", err)
		}
		*token = line
	}

	if provider.RequireInteractive() {
		if !tty {
			tracing.SetSpanError(span, ErrInteractiveRequired)
			return fmt.Errorf("%w: %s", ErrInteractiveRequired, provider.Scheme())
		}
		if *token == "" {
			secret, err := readSecret(out, "Enter personal access token: ")
			if err != nil {
				return err
			}
			*token = strings.TrimSpace(secret)
		}
	}

	if *privateKey != "" {
		abs, err := filepath.Abs(*privateKey)
		if err != nil {
			return fmt.Errorf("--private-key: %w", err)
		}
		*privateKey = abs
	}

	input := &commandInput{
		token: *token,
		args: map[string]string{
			credential.KeyClientID:         *clientID,
			credential.KeyClientSecret:     *clientSecret,
			credential.KeyPrivateKeyFile:   *privateKey,
			credential.KeyAuthorizationURL: *authURL,
			credential.KeyScope:            *scope,
		},
	}

	hc := c.hostContext(ctx, "agentauth")
	if err := provider.EnsureCredential(hc, input, settings.ServerURL); err != nil {
		tracing.SetSpanError(span, err)
		return fmt.Errorf("ensure credential: %w", err)
	}

	creds, err := provider.GetCredential(hc)
	if err != nil {
		tracing.SetSpanError(span, err)
		return fmt.Errorf("build credential: %w", err)
	}
	if creds == nil {
		tracing.SetSpanError(span, ErrNoCredential)
		return fmt.Errorf("%w: the %s scheme needs %s", ErrNoCredential, provider.Scheme(), requiredInputs(provider.Scheme()))
	}

	settingsPath := filepath.Join(dir, config.SettingsFileName)
	if err := config.SaveSettings(settingsPath, settings); err != nil {
		tracing.SetSpanError(span, err)
		return err
	}
	credsPath := settings.CredentialsPath(dir)
	if err := config.SaveCredentials(credsPath, config.FromData(provider.CredentialData())); err != nil {
		tracing.SetSpanError(span, err)
		return err
	}
	tracing.SetSpanOK(span)

	_, _ = fmt.Fprintf(out, "Configured %s authentication for %s\n", provider.Scheme(), settings.ServerURL)
	_, _ = fmt.Fprintf(out, "  settings:    %s\n", settingsPath)
	_, _ = fmt.Fprintf(out, "  credentials: %s\n", credsPath)
	return nil
}

func requiredInputs(scheme credential.Scheme) string {
	switch scheme {
	case credential.SchemeOAuthAccessToken, credential.SchemePersonalAccessToken:
		return "--token"
	case credential.SchemeOAuth:
		return "--client-id, --authorization-url and --client-secret or --private-key"
	case credential.SchemeAzureWorkloadIdentity:
		return "--scope"
	}
	return "additional flags"
}

func chooseScheme(p *prompter) string {
	schemes := credential.Schemes()
	names := make([]string, len(schemes))
	def := 0
	for i, s := range schemes {
		names[i] = string(s)
		if s == credential.SchemeOAuthAccessToken {
			def = i
		}
	}
	return names[p.choose("Authentication scheme:", names, def)]
}

func schemeList() string {
	names := make([]string, 0, 4)
	for _, s := range credential.Schemes() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
