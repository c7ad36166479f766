// Package render turns leaderboards into chat messages and delivers them through a
// Sink. Delivery failures use the transport error taxonomy so callers can decide
// between retrying in place and recreating the message.
package render

import (
	"context"
	"errors"
	"time"

	"leaderbot/internal/transport"
)

// Content is one rendered message body (Telegram HTML).
type Content struct {
	Text string
}

// Sink posts and edits rendered messages.
type Sink interface {
	// Post creates a new artifact at dest.
	Post(ctx context.Context, dest transport.ChatTarget, c Content) (transport.MessageRef, error)
	// Update replaces the content of an existing artifact.
	Update(ctx context.Context, ref transport.MessageRef, c Content) error
}

var (
	ErrArtifactNotFound = transport.ErrMessageNotFound
	ErrForbidden        = transport.ErrForbidden
	ErrRateLimited      = transport.ErrRateLimited
	ErrTransient        = transport.ErrTransient
	// ErrDestinationGone is only returned by Post: the chat itself is unreachable.
	ErrDestinationGone = transport.ErrChatGone
)

// Outcome classifies a sink error.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeTransient   Outcome = "transient"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeForbidden   Outcome = "forbidden"
	OutcomeGone        Outcome = "gone"
	OutcomeCanceled    Outcome = "canceled"
)

// Classify maps err onto an Outcome. Unknown errors count as transient.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrDestinationGone):
		return OutcomeGone
	case errors.Is(err, ErrArtifactNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrForbidden):
		return OutcomeForbidden
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeTransient
	}
}

// Retryable reports whether an in-place update may be retried after err.
func (o Outcome) Retryable() bool {
	return o == OutcomeTransient || o == OutcomeRateLimited
}

// RetryAfter returns the sink's retry hint for err, if any.
func RetryAfter(err error) (time.Duration, bool) { return transport.RetryAfterOf(err) }
