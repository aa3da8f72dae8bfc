package observability

import (
	"context"

	"github.com/lsm/agentauth/internal/credential"
)

// HostContext is the credential.HostContext of the agent binaries: it ties a
// request context to a trace-aware logger.
type HostContext struct {
	ctx    context.Context
	logger *TraceLogger
}

var _ credential.HostContext = (*HostContext)(nil)

// NewHostContext binds ctx and logger. A nil ctx uses context.Background.
func NewHostContext(ctx context.Context, logger *TraceLogger) *HostContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = NewTraceLogger(nil)
	}
	return &HostContext{ctx: ctx, logger: logger}
}

// Context returns the bound context. A nil HostContext yields context.Background.
func (h *HostContext) Context() context.Context {
	if h == nil {
		return context.Background()
	}
	return h.ctx
}

// WithContext returns a copy bound to ctx.
func (h *HostContext) WithContext(ctx context.Context) *HostContext {
	return &HostContext{ctx: ctx, logger: h.logger}
}

// GetTrace returns a sink whose entries carry trace=name. A nil HostContext
// logs through the default logger.
func (h *HostContext) GetTrace(name string) credential.Tracing {
	if h == nil {
		return &Trace{ctx: context.Background(), logger: NewTraceLogger(nil).With("trace", name)}
	}
	return &Trace{ctx: h.ctx, logger: h.logger.With("trace", name)}
}

// Trace logs through a TraceLogger with a fixed context.
type Trace struct {
	ctx    context.Context
	logger *TraceLogger
}

func (t *Trace) Info(msg string, args ...any) {
	t.logger.Info(t.ctx, msg, args...)
}

func (t *Trace) Error(msg string, args ...any) {
	t.logger.Error(t.ctx, msg, args...)
}
