package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// LogLevelEnv sets the level when --log-level is not given.
const LogLevelEnv = "AGENTAUTH_LOG_LEVEL"

// NewLogger returns a JSON logger on stderr, leaving stdout to command output.
func NewLogger(component string, level slog.Level) *slog.Logger {
	return NewLoggerTo(os.Stderr, component, level)
}

// NewLoggerTo returns a JSON logger on w tagged with component.
func NewLoggerTo(w io.Writer, component string, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).
		With("component", component)
}

// TraceLogger stamps entries with the trace_id and span_id of the span in
// the context passed to each call.
type TraceLogger struct {
	logger *slog.Logger
}

// NewTraceLogger wraps logger. nil means slog.Default().
func NewTraceLogger(logger *slog.Logger) *TraceLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &TraceLogger{logger: logger}
}

func (l *TraceLogger) log(ctx context.Context, level slog.Level, msg string, args []any) {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		args = append(args, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	l.logger.Log(ctx, level, msg, args...)
}

func (l *TraceLogger) Info(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args)
}

func (l *TraceLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args)
}

func (l *TraceLogger) Error(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args)
}

// With returns a TraceLogger carrying args on every entry.
func (l *TraceLogger) With(args ...any) *TraceLogger {
	return &TraceLogger{logger: l.logger.With(args...)}
}

// ParseLogLevel maps debug, info, warn(ing) and error to a level; anything
// else is info.
func ParseLogLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// GetLogLevel prefers the flag value, then LogLevelEnv, then info.
func GetLogLevel(flagLevel string) slog.Level {
	if flagLevel == "" {
		flagLevel = os.Getenv(LogLevelEnv)
	}
	return ParseLogLevel(flagLevel)
}
