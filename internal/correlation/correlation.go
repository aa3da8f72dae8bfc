package correlation

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	HeaderCorrelationID  = "X-Agentauth-Correlation-Id"
	HeaderXCorrelationID = "X-Correlation-Id"
	HeaderXRequestID     = "X-Request-Id"
	HeaderTraceparent    = "Traceparent"

	SourceGenerated = "generated"
)

type ID struct {
	Value  string
	Source string
}

// ExtractOrGenerate reads a correlation ID from request headers or generates one.
// Priority: X-Agentauth-Correlation-Id > X-Correlation-Id > X-Request-Id > traceparent > new UUID
func ExtractOrGenerate(h http.Header) ID {
	for _, name := range []string{HeaderCorrelationID, HeaderXCorrelationID, HeaderXRequestID} {
		if id := strings.TrimSpace(h.Get(name)); id != "" {
			return ID{Value: id, Source: name}
		}
	}
	if tp := h.Get(HeaderTraceparent); tp != "" {
		if traceID := extractTraceID(tp); traceID != "" {
			return ID{Value: traceID, Source: HeaderTraceparent}
		}
	}
	return ID{Value: uuid.NewString(), Source: SourceGenerated}
}

// extractTraceID parses W3C traceparent format: version-traceid-parentid-flags
func extractTraceID(traceparent string) string {
	parts := strings.Split(traceparent, "-")
	if len(parts) >= 2 && len(parts[1]) == 32 {
		return parts[1]
	}
	return ""
}

// Apply sets the correlation ID on outgoing headers.
func Apply(h http.Header, id ID) {
	h.Set(HeaderCorrelationID, id.Value)
}
