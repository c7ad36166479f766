// Package source fetches raw activity records for a time window from the statistics
// API and maps them onto leaderboard entries.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leaderbot/internal/leaderboard"
)

// Window is a half-open [Start, End) range of UTC instants.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Valid() bool { return w.Start.Before(w.End) }

func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Fetcher returns every record in the window.
type Fetcher interface {
	Fetch(ctx context.Context, w Window) ([]leaderboard.RawEntry, error)
}

var (
	// ErrAuth is fatal: credentials were rejected.
	ErrAuth = errors.New("source: unauthorized")
	// ErrTransient covers network failures, timeouts and 5xx answers.
	ErrTransient = errors.New("source: transient failure")
	// ErrRateLimited is retryable; see RetryAfter.
	ErrRateLimited = errors.New("source: rate limited")
	// ErrCircuitOpen is returned without calling the API while the breaker is open.
	ErrCircuitOpen = errors.New("source: circuit open")
	// ErrRequest is a non-retryable client-side rejection or an unusable payload.
	ErrRequest = errors.New("source: request rejected")
)

type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	if e.retryAfter > 0 {
		return fmt.Sprintf("source: rate limited (retry after %s)", e.retryAfter)
	}
	return "source: rate limited"
}

func (e *rateLimitError) Is(target error) bool { return target == ErrRateLimited }

// RateLimited builds an ErrRateLimited carrying a retry hint.
func RateLimited(retryAfter time.Duration) error {
	return &rateLimitError{retryAfter: retryAfter}
}

// RetryAfter extracts the retry hint from a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *rateLimitError
	if errors.As(err, &rl) && rl.retryAfter > 0 {
		return rl.retryAfter, true
	}
	return 0, false
}

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrRequest) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.DeadlineExceeded)
}

// Result labels err for metrics and logs.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrRequest):
		return "request"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transient"
	}
}
