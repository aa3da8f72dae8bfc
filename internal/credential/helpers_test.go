package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type traceEntry struct {
	level string
	name  string
	msg   string
	args  []any
}

func (e traceEntry) String() string {
	return fmt.Sprintf("%s %s %s %v", e.level, e.name, e.msg, e.args)
}

// recordingHost records every trace entry.
type recordingHost struct {
	mu      sync.Mutex
	entries []traceEntry
}

func (h *recordingHost) Context() context.Context { return context.Background() }

func (h *recordingHost) GetTrace(name string) Tracing {
	return &recordingTrace{host: h, name: name}
}

func (h *recordingHost) errors() []traceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []traceEntry
	for _, e := range h.entries {
		if e.level == "error" {
			out = append(out, e)
		}
	}
	return out
}

// contains reports whether s appears in any recorded entry.
func (h *recordingHost) contains(s string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		if strings.Contains(e.String(), s) {
			return true
		}
	}
	return false
}

type recordingTrace struct {
	host *recordingHost
	name string
}

func (t *recordingTrace) record(level, msg string, args []any) {
	t.host.mu.Lock()
	defer t.host.mu.Unlock()
	t.host.entries = append(t.host.entries, traceEntry{level: level, name: t.name, msg: msg, args: args})
}

func (t *recordingTrace) Info(msg string, args ...any)  { t.record("info", msg, args) }
func (t *recordingTrace) Error(msg string, args ...any) { t.record("error", msg, args) }

// stubCommand is a CommandInput backed by literal values.
type stubCommand struct {
	token string
	args  map[string]string
}

func (c *stubCommand) GetToken() string { return c.token }

func (c *stubCommand) GetArg(name string) string { return c.args[name] }
