package transport

import (
	"errors"
	"fmt"
	"time"
)

// Delivery failures reported by adapters. Adapters translate platform responses into
// these; callers only use errors.Is / errors.As.
var (
	ErrMessageNotFound = errors.New("transport: message not found")
	ErrForbidden       = errors.New("transport: forbidden")
	ErrRateLimited     = errors.New("transport: rate limited")
	ErrTransient       = errors.New("transport: transient failure")
	ErrChatGone        = errors.New("transport: chat gone")
)

// RateLimitError carries the platform's retry hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("transport: rate limited (retry after %s)", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfterOf returns the retry hint carried by err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}
