package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

var ErrRetriesExhausted = errors.New("llm retries exhausted")

// StatusError is a non-2xx response from the completion endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm api returned %d: %s", e.Code, e.Body)
}

// ConnError wraps a transport failure (refused, reset, timeout) so the retry
// policy can tell it apart from a malformed response.
type ConnError struct {
	Err error
}

func (e *ConnError) Error() string { return "llm connection failed: " + e.Err.Error() }
func (e *ConnError) Unwrap() error { return e.Err }

// RetryError is returned once every attempt failed with a retryable error.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() []error { return []error{ErrRetriesExhausted, e.Last} }

// RetryPolicy controls how chat calls are retried. Backoff doubles from Base
// between attempts: with the defaults the waits are 1s then 2s.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Retryable   map[int]bool
	// Sleep waits between attempts; replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy retries 429 and 5xx gateway errors plus connection
// failures, three attempts in total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Base:        time.Second,
		Retryable: map[int]bool{
			http.StatusTooManyRequests:     true,
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
		},
		Sleep: sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p RetryPolicy) retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return p.Retryable[se.Code]
	}
	var ce *ConnError
	return errors.As(err, &ce)
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts run out. onRetry, when set, is called before each wait.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))

	var last error
	for attempt := 1; ; attempt++ {
		last = op(ctx)
		if last == nil {
			return nil
		}
		if !p.retryable(last) {
			return last
		}

		wait, stop := backoff.Next()
		if stop {
			return &RetryError{Attempts: attempt, Last: last}
		}
		if onRetry != nil {
			onRetry(attempt, last)
		}
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("llm retry interrupted: %w", err)
		}
	}
}
