package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/lsm/agentauth/internal/config"
	"github.com/lsm/agentauth/internal/credential"
	"github.com/lsm/agentauth/internal/tracing"
)

const checkUsage = `Usage: agentauth check [--dir <path>] [--fetch]

Loads the stored credential and reports its metadata. The token itself is
never printed. Exits non-zero when no credential is available.`

// RunCheck verifies that the stored configuration yields a credential.
func RunCheck(args []string, out io.Writer) error {
	fs := newFlagSet("check", checkUsage, out)
	var c common
	c.register(fs)
	fetch := fs.Bool("fetch", false, "obtain a token from the token provider")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	dir, err := c.resolveDir()
	if err != nil {
		return err
	}
	settings, provider, err := loadProvider(dir)
	if err != nil {
		return err
	}

	ctx, span := tracing.StartSpan(context.Background(), tracer, tracing.SpanCheck)
	defer span.End()
	span.SetAttributes(tracing.SchemeAttr(string(provider.Scheme())))

	hc := c.hostContext(ctx, "agentauth")
	creds, err := provider.GetCredential(hc)
	if err != nil {
		tracing.SetSpanError(span, err)
		return fmt.Errorf("build credential: %w", err)
	}
	if creds == nil {
		tracing.SetSpanError(span, ErrNoCredential)
		return fmt.Errorf("%w for scheme %s; run 'agentauth configure'", ErrNoCredential, provider.Scheme())
	}

	server, err := settings.Server()
	if err != nil {
		return err
	}
	tp, err := creds.Federated.TokenProvider(server, nil)
	if err != nil {
		tracing.SetSpanError(span, err)
		return fmt.Errorf("token provider: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "server:\t%s\n", settings.ServerURL)
	_, _ = fmt.Fprintf(tw, "scheme:\t%s\n", provider.Scheme())
	_, _ = fmt.Fprintf(tw, "credential type:\t%s\n", creds.Federated.CredentialType())
	_, _ = fmt.Fprintf(tw, "prompt type:\t%s\n", creds.PromptType)
	_, _ = fmt.Fprintf(tw, "interactive:\t%t\n", tp.GetTokenIsInteractive())
	if tok := creds.Federated.Token(); tok != nil {
		_, _ = fmt.Fprintf(tw, "token length:\t%d\n", tok.Len())
		if !tok.Expiry().IsZero() {
			_, _ = fmt.Fprintf(tw, "token expires:\t%s\n", tok.Expiry().Format(time.RFC3339))
		}
		span.SetAttributes(tracing.TokenLengthAttr(tok.Len()))
	} else {
		_, _ = fmt.Fprintf(tw, "token:\tissued on demand\n")
	}

	if *fetch {
		issued, err := tp.Token()
		if err != nil {
			_ = tw.Flush()
			tracing.SetSpanError(span, err)
			return fmt.Errorf("fetch token: %w", err)
		}
		_, _ = fmt.Fprintf(tw, "fetched token:\t%s, length %d\n", issued.Type(), len(issued.AccessToken))
	}
	span.SetAttributes(
		tracing.CredentialTypeAttr(string(creds.Federated.CredentialType())),
		tracing.PromptTypeAttr(creds.PromptType.String()),
	)
	tracing.SetSpanOK(span)
	return tw.Flush()
}

const removeUsage = `Usage: agentauth remove [--dir <path>]

Deletes the stored credential. Settings are kept.`

// RunRemove deletes the credential file.
func RunRemove(args []string, out io.Writer) error {
	fs := newFlagSet("remove", removeUsage, out)
	var c common
	c.register(fs)
	if ok, err := parse(fs, args); !ok {
		return err
	}
	dir, err := c.resolveDir()
	if err != nil {
		return err
	}

	path := filepath.Join(dir, config.CredentialsFileName)
	if settings, err := config.LoadSettings(filepath.Join(dir, config.SettingsFileName)); err == nil {
		path = settings.CredentialsPath(dir)
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			_, _ = fmt.Fprintln(out, "No credential stored.")
			return nil
		}
		return fmt.Errorf("remove %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(out, "Removed %s\n", path)
	return nil
}

// RunSchemes lists the registered authentication schemes.
func RunSchemes(args []string, out io.Writer) error {
	fs := newFlagSet("schemes", "Usage: agentauth schemes\n\nLists the supported authentication schemes.", out)
	if ok, err := parse(fs, args); !ok {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SCHEME\tINTERACTIVE")
	for _, s := range credential.Schemes() {
		p, err := credential.NewProvider(s)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(tw, "%s\t%t\n", s, p.RequireInteractive())
	}
	return tw.Flush()
}
