package proxy

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/agentauth/internal/config"
	"github.com/lsm/agentauth/internal/credential"
	"github.com/lsm/agentauth/internal/observability"
	"github.com/lsm/agentauth/internal/tracing"
)

// Reloader turns credential file contents into live credentials for a Handler.
// Each reload builds a fresh provider, so requests in flight keep the
// credential they started with.
type Reloader struct {
	Handler *Handler
	Health  *observability.HealthServer
	Metrics *observability.Metrics
	Tracer  trace.Tracer
	Logger  *observability.TraceLogger
}

// Apply loads f into the handler. A nil f, or one without a usable secret,
// unloads the current credential. On construction errors the previous
// credential stays in place.
func (r *Reloader) Apply(ctx context.Context, f *config.CredentialFile) error {
	logger := r.Logger
	if logger == nil {
		logger = observability.NewTraceLogger(slog.Default())
	}
	ctx, span := tracing.StartSpan(ctx, r.Tracer, tracing.SpanReload)
	defer span.End()

	if f == nil {
		r.unload(ctx, logger, "", "no credential configured")
		tracing.SetSpanOK(span)
		return nil
	}
	span.SetAttributes(tracing.SchemeAttr(f.Scheme))

	creds, err := r.build(ctx, logger, f)
	if err != nil {
		tracing.SetSpanError(span, err)
		r.Metrics.RecordReload(f.Scheme, false, r.Handler.Credentials() != nil)
		logger.Error(ctx, "credential reload failed, keeping previous credential", "scheme", f.Scheme, "error", err)
		return err
	}
	if creds == nil {
		r.unload(ctx, logger, f.Scheme, "credential incomplete for scheme "+f.Scheme)
		tracing.SetSpanOK(span)
		return nil
	}

	r.Handler.SetCredentials(creds)
	r.Metrics.RecordReload(f.Scheme, true, true)
	if r.Health != nil {
		r.Health.SetReady()
	}
	span.SetAttributes(
		tracing.CredentialTypeAttr(string(creds.Federated.CredentialType())),
		tracing.PromptTypeAttr(creds.PromptType.String()),
	)
	tracing.SetSpanOK(span)
	logger.Info(ctx, "credential loaded", "scheme", f.Scheme, "credential_type", creds.Federated.CredentialType())
	return nil
}

func (r *Reloader) build(ctx context.Context, logger *observability.TraceLogger, f *config.CredentialFile) (*credential.Credentials, error) {
	data, err := f.ToData()
	if err != nil {
		return nil, err
	}
	provider, err := credential.Restore(data)
	if err != nil {
		return nil, fmt.Errorf("restore provider: %w", err)
	}
	hc := observability.NewHostContext(ctx, logger)
	return provider.GetCredential(hc)
}

func (r *Reloader) unload(ctx context.Context, logger *observability.TraceLogger, scheme, reason string) {
	r.Handler.SetCredentials(nil)
	r.Metrics.RecordReload(scheme, true, false)
	if r.Health != nil {
		r.Health.SetNotReady(reason)
	}
	logger.Warn(ctx, "credential unloaded", "reason", reason)
}
