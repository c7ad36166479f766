package source

import (
	"context"
	"time"

	"leaderbot/internal/leaderboard"
	logx "leaderbot/pkg/logx"
)

// DefaultNarrowStep is the sub-window used when a full-window fetch fails.
const DefaultNarrowStep = 24 * time.Hour

// Narrowing retries a failed fetch once over the most recent Step of the window.
// It never narrows on non-retryable errors and never more than once.
type Narrowing struct {
	Next Fetcher
	Step time.Duration
	Log  logx.Logger
}

func NewNarrowing(next Fetcher, log logx.Logger) *Narrowing {
	return &Narrowing{Next: next, Step: DefaultNarrowStep, Log: log}
}

func (n *Narrowing) Fetch(ctx context.Context, w Window) ([]leaderboard.RawEntry, error) {
	step := n.Step
	if step <= 0 {
		step = DefaultNarrowStep
	}
	windows := []Window{w}
	if w.Duration() > step {
		windows = append(windows, Window{Start: w.End.Add(-step), End: w.End})
	}

	var firstErr error
	for i, cur := range windows {
		entries, err := n.Next.Fetch(ctx, cur)
		if err == nil {
			if i > 0 {
				n.Log.Warn("fetch succeeded on narrowed window",
					logx.Time("start", cur.Start), logx.Time("end", cur.End), logx.Err(firstErr))
			}
			return entries, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if !Retryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, firstErr
}
