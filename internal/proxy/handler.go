package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsm/agentauth/internal/correlation"
	"github.com/lsm/agentauth/internal/credential"
	"github.com/lsm/agentauth/internal/observability"
	"github.com/lsm/agentauth/internal/ratelimit"
	"github.com/lsm/agentauth/internal/retry"
	"github.com/lsm/agentauth/internal/tracing"
)

// RoutePrefix is the path prefix served by the handler.
const RoutePrefix = "/proxy/"

// errUpstreamStatus marks a retryable upstream status; the response is kept.
var errUpstreamStatus = errors.New("retryable upstream status")

// hop-by-hop headers are not forwarded in either direction.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Handler forwards local requests to the configured server, attaching the
// current credential to each outgoing request.
type Handler struct {
	server      *url.URL
	creds       atomic.Pointer[credential.Credentials]
	base        http.RoundTripper
	rateLimiter *ratelimit.Limiter
	retry       retry.Config
	metrics     *observability.Metrics
	tracer      trace.Tracer
	timeout     time.Duration
	logger      *slog.Logger
}

// Config configures the proxy handler.
type Config struct {
	ServerURL   *url.URL
	Transport   http.RoundTripper // defaults to an otelhttp-instrumented http.DefaultTransport
	RateLimiter *ratelimit.Limiter
	Retry       *retry.Config // nil uses retry.DefaultConfig
	Metrics     *observability.Metrics
	Tracer      trace.Tracer
	Timeout     time.Duration
	Logger      *slog.Logger
}

// NewHandler creates a proxy handler with no credential loaded.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.ServerURL == nil || cfg.ServerURL.Host == "" {
		return nil, errors.New("proxy: server URL is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Transport == nil {
		cfg.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	rc := retry.DefaultConfig()
	if cfg.Retry != nil {
		rc = *cfg.Retry
	}
	return &Handler{
		server:      cfg.ServerURL,
		base:        cfg.Transport,
		rateLimiter: cfg.RateLimiter,
		retry:       rc,
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
	}, nil
}

// SetCredentials swaps the credential used for new requests. nil unloads it.
func (h *Handler) SetCredentials(c *credential.Credentials) {
	h.creds.Store(c)
}

// Credentials returns the credential currently in use, or nil.
func (h *Handler) Credentials() *credential.Credentials {
	return h.creds.Load()
}

// ServeHTTP handles /proxy/{path...}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	rest, ok := strings.CutPrefix(r.URL.Path, RoutePrefix)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	id := correlation.ExtractOrGenerate(r.Header)
	w.Header().Set(correlation.HeaderCorrelationID, id.Value)

	ctx, span := tracing.StartSpan(r.Context(), h.tracer, tracing.SpanProxyRequest,
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		tracing.HTTPMethodAttr(r.Method),
		tracing.HTTPTargetAttr("/"+rest),
		tracing.CorrelationAttr(id.Value),
	)
	logger := h.logger.With("correlation_id", id.Value, "method", r.Method)

	creds := h.creds.Load()
	if creds == nil {
		if h.metrics != nil {
			h.metrics.MissingCredentials.Inc()
		}
		tracing.SetSpanError(span, errors.New("no credential configured"))
		logger.Warn("rejecting request, no credential configured")
		http.Error(w, "no credential configured", http.StatusServiceUnavailable)
		return
	}
	span.SetAttributes(tracing.CredentialTypeAttr(string(creds.Federated.CredentialType())))

	if h.rateLimiter != nil && !h.rateLimiter.Allow(h.server.Host) {
		if h.metrics != nil {
			h.metrics.RateLimitedTotal.WithLabelValues(h.server.Host).Inc()
		}
		w.Header().Set("Retry-After", "1")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	target := h.server.JoinPath(rest)
	target.RawQuery = r.URL.RawQuery

	client := &http.Client{Transport: creds.RoundTripper(h.base)}

	cfg := h.retry
	if !retry.Idempotent(r) {
		cfg.MaxAttempts = 1
	}

	// Each attempt, token acquisition and body copy included, is bounded by
	// h.timeout. The deadlines are released once the response is written.
	var cancels []context.CancelFunc
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	var resp *http.Response
	err := retry.Do(ctx, cfg, func(attempt int) error {
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			resp = nil
		}
		if attempt > 0 && h.rateLimiter != nil {
			if err := h.rateLimiter.Wait(ctx, h.server.Host); err != nil {
				return retry.Permanent(err)
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, h.timeout)
		cancels = append(cancels, cancel)
		req, err := http.NewRequestWithContext(attemptCtx, r.Method, target.String(), r.Body)
		if err != nil {
			return retry.Permanent(err)
		}
		req.ContentLength = r.ContentLength
		copyHeader(req.Header, r.Header)
		req.Header.Del("Authorization")
		correlation.Apply(req.Header, id)

		resp, err = client.Do(req)
		if err != nil {
			if isTokenError(err) {
				return retry.Permanent(err)
			}
			logger.Debug("upstream attempt failed", "attempt", attempt, "error", err)
			return err
		}
		if retry.RetryableStatus(resp.StatusCode) {
			return fmt.Errorf("%w: %d", errUpstreamStatus, resp.StatusCode)
		}
		return nil
	})

	status := http.StatusBadGateway
	if resp != nil {
		status = resp.StatusCode
	}
	if h.metrics != nil {
		h.metrics.RecordRequest(r.Method, status, time.Since(start).Seconds())
	}
	span.SetAttributes(tracing.HTTPStatusAttr(status))

	if err != nil && resp == nil {
		tracing.SetSpanError(span, err)
		if isTokenError(err) {
			if h.metrics != nil {
				h.metrics.TokenErrors.WithLabelValues(string(creds.Federated.CredentialType())).Inc()
			}
			logger.Error("token acquisition failed", "credential_type", creds.Federated.CredentialType(), "error", err)
			http.Error(w, "token acquisition failed", http.StatusBadGateway)
			return
		}
		logger.Error("proxy error", "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	if status >= 500 {
		tracing.SetSpanError(span, fmt.Errorf("upstream returned %d", status))
	} else {
		tracing.SetSpanOK(span)
	}
	copyResponse(w, resp, id)
}

// isTokenError reports failures raised while obtaining a token rather
// than while talking to the server.
func isTokenError(err error) bool {
	return errors.Is(err, credential.ErrTokenAcquisition) || errors.Is(err, credential.ErrInteractiveToken)
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, k := range hopHeaders {
		dst.Del(k)
	}
}

func copyResponse(w http.ResponseWriter, resp *http.Response, id correlation.ID) {
	defer func() { _ = resp.Body.Close() }()
	copyHeader(w.Header(), resp.Header)
	correlation.Apply(w.Header(), id)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
