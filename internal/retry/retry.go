// Package retry re-runs operations that failed on a dead store connection,
// refreshing the connection between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DefaultMaxRetries is the default total number of attempts.
const DefaultMaxRetries = 2

// ErrConnectionExhausted matches errors returned when every attempt failed
// with a transient connection error.
var ErrConnectionExhausted = errors.New("retry: connection retries exhausted")

// transientMarkers are matched case-insensitively against error messages.
// "10053" is the Windows WSAECONNABORTED code.
var transientMarkers = []string{"connection", "broken pipe", "10053"}

// ExhaustedError carries the last transient error after all attempts failed.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts failed: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is reports ErrConnectionExhausted as a match.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrConnectionExhausted
}

// Recorder receives retry events.
type Recorder interface {
	Retry(op string)
	Exhausted(op string)
}

// Policy configures Do.
type Policy struct {
	// Op names the operation in logs, metrics and errors.
	Op string
	// MaxRetries is the total number of attempts; <= 0 means DefaultMaxRetries.
	MaxRetries int
	// Refresh runs before every attempt after the first.
	Refresh func(ctx context.Context) error
	// Classify reports whether an error is worth retrying. Nil uses IsTransient.
	Classify func(error) bool
	Logger   *zap.Logger
	Recorder Recorder
}

func (p Policy) attempts() int {
	if p.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return p.MaxRetries
}

func (p Policy) transient(err error) bool {
	if p.Classify != nil {
		return p.Classify(err)
	}
	return IsTransient(err)
}

func (p Policy) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Do runs fn until it succeeds, fails with a non-transient error, or runs out
// of attempts. Non-transient errors are returned unchanged after a single
// attempt. After the last transient failure Do returns *ExhaustedError.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := p.attempts()
	logger := p.logger()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			if p.Recorder != nil {
				p.Recorder.Retry(p.Op)
			}
			if p.Refresh != nil {
				if err := p.Refresh(ctx); err != nil {
					lastErr = err
					if !p.transient(err) {
						return zero, err
					}
					logger.Warn("refresh failed with connection error",
						zap.String("op", p.Op), zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts), zap.Error(err))
					continue
				}
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !p.transient(err) {
			return zero, err
		}
		logger.Warn("connection error, reconnecting",
			zap.String("op", p.Op), zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts), zap.Error(err))
	}

	if p.Recorder != nil {
		p.Recorder.Exhausted(p.Op)
	}
	return zero, &ExhaustedError{Op: p.Op, Attempts: maxAttempts, Err: lastErr}
}

// IsTransient reports whether err looks like a lost connection. Structured
// network and driver errors are checked first, then the message is matched
// against the connection markers. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
