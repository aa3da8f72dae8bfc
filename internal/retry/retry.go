package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// Config holds retry configuration. MaxAttempts below 1 means a single attempt.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Jitter          float64 // ±jitter fraction (e.g., 0.2 = ±20%)
}

// DefaultConfig returns the defaults used for upstream requests.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Jitter:          0.2,
	}
}

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// RetryableStatus reports whether an upstream status is worth retrying.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

// Idempotent reports whether a request with this method and no body may be replayed.
func Idempotent(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return r.ContentLength == 0
	}
	return false
}

// Do calls fn until it succeeds, returns a PermanentError, attempts run out,
// or ctx is done. fn receives the zero-based attempt number.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	attempts := max(cfg.MaxAttempts, 1)
	var lastErr error
	for attempt := range attempts {
		lastErr = fn(attempt)
		if lastErr == nil || IsPermanent(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}
	return lastErr
}

func backoff(attempt int, cfg Config) time.Duration {
	d := float64(cfg.InitialInterval) * math.Pow(2, float64(attempt))
	if cfg.MaxInterval > 0 && d > float64(cfg.MaxInterval) {
		d = float64(cfg.MaxInterval)
	}
	if cfg.Jitter > 0 {
		j := d * cfg.Jitter
		d = d - j + rand.Float64()*2*j
	}
	return time.Duration(d)
}
