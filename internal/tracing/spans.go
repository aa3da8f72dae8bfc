package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on agent spans. Token values are never recorded.
const (
	AttrScheme         = "agentauth.credential.scheme"
	AttrCredentialType = "agentauth.credential.type"
	AttrPromptType     = "agentauth.credential.prompt"
	AttrTokenLength    = "agentauth.token.length"
	AttrServerURL      = "agentauth.server.url"
	AttrCorrelationID  = "agentauth.correlation_id"
	AttrHTTPMethod     = "http.method"
	AttrHTTPTarget     = "http.target"
	AttrHTTPStatus     = "http.status_code"
	AttrErrorType      = "error.type"
)

// Span names.
const (
	SpanConfigure     = "agentauth.configure"
	SpanCheck         = "agentauth.check"
	SpanGetCredential = "agentauth.credential.get"
	SpanReload        = "agentauth.credential.reload"
	SpanProxyRequest  = "agentauth.proxy.request"
)

// StartSpan starts a new span. A nil tracer yields the span already in ctx.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// SetSpanError records an error on the span and sets the status to Error.
func SetSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK sets the span status to Ok.
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

func SchemeAttr(scheme string) attribute.KeyValue {
	return attribute.String(AttrScheme, scheme)
}

func CredentialTypeAttr(credType string) attribute.KeyValue {
	return attribute.String(AttrCredentialType, credType)
}

func PromptTypeAttr(prompt string) attribute.KeyValue {
	return attribute.String(AttrPromptType, prompt)
}

// TokenLengthAttr records only the length of a secret.
func TokenLengthAttr(n int) attribute.KeyValue {
	return attribute.Int(AttrTokenLength, n)
}

func ServerURLAttr(u string) attribute.KeyValue {
	return attribute.String(AttrServerURL, u)
}

func CorrelationAttr(id string) attribute.KeyValue {
	return attribute.String(AttrCorrelationID, id)
}

func HTTPMethodAttr(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

func HTTPTargetAttr(target string) attribute.KeyValue {
	return attribute.String(AttrHTTPTarget, target)
}

func HTTPStatusAttr(status int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, status)
}

func ErrorTypeAttr(errType string) attribute.KeyValue {
	return attribute.String(AttrErrorType, errType)
}

// IsTraced reports whether ctx carries a valid recording span.
func IsTraced(ctx context.Context) bool {
	span := trace.SpanFromContext(ctx)
	return span.SpanContext().IsValid() && span.IsRecording()
}
