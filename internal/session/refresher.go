package session

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"leaderbot/internal/eventbus"
	"leaderbot/internal/render"
	"leaderbot/internal/source"
	"leaderbot/internal/transport"
	logx "leaderbot/pkg/logx"
)

const (
	defaultConcurrency    = 4
	defaultRenderAttempts = 3
	defaultRetryDelay     = 2 * time.Second
	maxRetryDelay         = 30 * time.Second
)

type RefreshOptions struct {
	// Concurrency bounds how many sessions one tick refreshes at once.
	Concurrency int
	// RenderAttempts is the in-place update budget before the artifact is recreated.
	RenderAttempts int
	RetryDelay     time.Duration
}

func (o RefreshOptions) normalize() RefreshOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.RenderAttempts <= 0 {
		o.RenderAttempts = defaultRenderAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	return o
}

// Refresher runs one refresh pass over every stored session per Tick.
type Refresher struct {
	ctrl *Controller
	log  logx.Logger

	opt   atomic.Pointer[RefreshOptions]
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRefresher(ctrl *Controller, opt RefreshOptions, log logx.Logger) *Refresher {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Refresher{ctrl: ctrl, log: log, sleep: sleepCtx}
	r.SetOptions(opt)
	return r
}

// SetOptions replaces the options used by later ticks.
func (r *Refresher) SetOptions(opt RefreshOptions) {
	opt = opt.normalize()
	r.opt.Store(&opt)
}

func (r *Refresher) options() RefreshOptions { return *r.opt.Load() }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type action int

const (
	actionKeep action = iota
	actionSave
	actionRemove
)

// outcome is computed concurrently and applied to the store after the pass.
type outcome struct {
	action action
	next   Session
	reason string
	events []eventbus.Type

	rendered bool
	skipped  bool
}

// TickReport summarizes one pass.
type TickReport struct {
	Sessions  int
	Refreshed int
	Skipped   int
	Ended     int
	Removed   int
	Recreated int
	Took      time.Duration
}

// Tick refreshes every session in a snapshot of the store. Sessions are processed
// with bounded concurrency; each destination appears once per snapshot.
func (r *Refresher) Tick(ctx context.Context) TickReport {
	start := time.Now()
	c := r.ctrl
	c.metrics.TickStarted()

	now := c.now()
	snap := c.store.Snapshot()
	outcomes := make([]outcome, len(snap))
	releases := make([]func(), len(snap))

	var g errgroup.Group
	g.SetLimit(r.options().Concurrency)
	for i := range snap {
		g.Go(func() error {
			release, ok := c.store.TryAcquire(snap[i].Destination)
			if !ok {
				// A stop holds the destination.
				outcomes[i] = outcome{action: actionKeep, skipped: true}
				return nil
			}
			releases[i] = release
			live, ok := c.store.Get(snap[i].Destination)
			if !ok || live.ID != snap[i].ID {
				outcomes[i] = outcome{action: actionKeep}
				return nil
			}
			snap[i] = live
			outcomes[i] = r.refresh(ctx, live, now)
			return nil
		})
	}
	_ = g.Wait()

	rep := TickReport{Sessions: len(snap)}
	for i, o := range outcomes {
		if o.skipped {
			rep.Skipped++
		}
		r.apply(snap[i], o, &rep)
		if releases[i] != nil {
			releases[i]()
		}
	}
	rep.Took = time.Since(start)
	c.metrics.TickFinished(rep.Took, c.store.Len())

	if rep.Sessions > 0 {
		r.log.Debug("refresh tick done",
			logx.Int("sessions", rep.Sessions),
			logx.Int("refreshed", rep.Refreshed),
			logx.Int("skipped", rep.Skipped),
			logx.Int("ended", rep.Ended),
			logx.Int("removed", rep.Removed),
			logx.Int("recreated", rep.Recreated),
			logx.Duration("took", rep.Took),
		)
	}
	return rep
}

func (r *Refresher) apply(prev Session, o outcome, rep *TickReport) {
	c := r.ctrl
	switch o.action {
	case actionRemove:
		s, ok := c.store.RemoveIf(prev.Destination, prev.ID)
		if !ok {
			return
		}
		rep.Removed++
		c.removed(s, o.reason, 0)
	case actionSave:
		next := o.next
		ok := c.store.Update(prev.Destination, prev.ID, func(live *Session) {
			live.State = next.State
			live.Artifact = next.Artifact
			live.ConsecutiveRenderFailures = next.ConsecutiveRenderFailures
			live.NeedsRecreate = next.NeedsRecreate
			live.LastRenderAt = next.LastRenderAt
		})
		if !ok {
			return
		}
		if o.rendered {
			rep.Refreshed++
		}
		for _, t := range o.events {
			switch t {
			case eventbus.SessionEnded:
				rep.Ended++
			case eventbus.SessionRecreated:
				rep.Recreated++
			}
			c.publish(t, next, o.reason, 0)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context, s Session, now time.Time) outcome {
	c := r.ctrl
	log := r.log.With(
		logx.String("session_id", s.ID.String()),
		logx.Int64("chat_id", s.Destination.ChatID),
		logx.Int("thread_id", s.Destination.ThreadID),
	)

	if s.State == StateEnded {
		return outcome{action: actionRemove, reason: "ended"}
	}
	if s.Expired(now) {
		return r.end(ctx, s, log)
	}

	board, err := c.fetchBoard(ctx, s.Window)
	if err != nil {
		log.Warn("refresh: fetch failed, skipping", logx.String("result", source.Result(err)), logx.Err(err))
		return outcome{action: actionKeep, skipped: true}
	}
	content := c.content(s, board, now)
	return r.deliver(ctx, s, content, now, log)
}

// end renders the terminal notice once and marks the session Ended. It is removed
// on the following pass.
func (r *Refresher) end(ctx context.Context, s Session, log logx.Logger) outcome {
	c := r.ctrl
	notice := c.formatter().Ended()
	var err error
	if s.NeedsRecreate {
		var ref transport.MessageRef
		if ref, err = c.post(ctx, s.Destination, notice); err == nil {
			s.Artifact = ref
			s.NeedsRecreate = false
		}
	} else {
		err = c.update(ctx, s.Artifact, notice)
	}
	if err != nil {
		log.Warn("refresh: terminal notice failed", logx.Err(err))
	}
	s.State = StateEnded
	log.Info("session ended", logx.Time("expires_at", s.ExpiresAt))
	return outcome{action: actionSave, next: s, reason: "expired", events: []eventbus.Type{eventbus.SessionEnded}}
}

// deliver updates the artifact in place within the attempt budget and escalates to
// recreation when the budget is spent or the artifact is unreachable.
func (r *Refresher) deliver(ctx context.Context, s Session, content render.Content, now time.Time, log logx.Logger) outcome {
	c := r.ctrl
	attempts := r.options().RenderAttempts

	if !s.NeedsRecreate {
		for s.ConsecutiveRenderFailures < attempts {
			err := c.update(ctx, s.Artifact, content)
			if err == nil {
				s.ConsecutiveRenderFailures = 0
				s.LastRenderAt = now
				return outcome{action: actionSave, next: s, rendered: true}
			}
			if ctx.Err() != nil {
				// Shutdown cut the call short; it says nothing about the artifact.
				log.Debug("refresh: update canceled", logx.Err(err))
				return outcome{action: actionSave, next: s}
			}
			s.ConsecutiveRenderFailures++
			res := render.Classify(err)
			log.Warn("refresh: update failed",
				logx.String("result", string(res)),
				logx.Int("failures", s.ConsecutiveRenderFailures),
				logx.Err(err),
			)
			if !res.Retryable() {
				break
			}
			if s.ConsecutiveRenderFailures >= attempts {
				break
			}
			if err := r.sleep(ctx, r.retryDelay(err)); err != nil {
				return outcome{action: actionSave, next: s}
			}
		}
		s.NeedsRecreate = true
	}

	return r.recreate(ctx, s, content, now, log)
}

func (r *Refresher) recreate(ctx context.Context, s Session, content render.Content, now time.Time, log logx.Logger) outcome {
	c := r.ctrl
	ref, err := c.post(ctx, s.Destination, content)
	if err == nil {
		old := s.Artifact
		s.Artifact = ref
		s.NeedsRecreate = false
		s.ConsecutiveRenderFailures = 0
		s.LastRenderAt = now
		c.metrics.Recreation("ok")
		log.Info("artifact recreated", logx.Int("old_message_id", old.MessageID), logx.Int("message_id", ref.MessageID))
		return outcome{action: actionSave, next: s, reason: "recreated", events: []eventbus.Type{eventbus.SessionRecreated}, rendered: true}
	}

	if render.Classify(err) == render.OutcomeGone {
		c.metrics.Recreation("gone")
		log.Warn("destination gone, removing session", logx.Err(err))
		return outcome{action: actionRemove, reason: "destination_gone"}
	}
	c.metrics.Recreation("failed")
	log.Warn("refresh: recreate failed, will retry next tick", logx.Err(err))
	return outcome{action: actionSave, next: s}
}

func (r *Refresher) retryDelay(err error) time.Duration {
	d := r.options().RetryDelay
	if hint, ok := render.RetryAfter(err); ok && hint > d {
		d = hint
	}
	return min(d, maxRetryDelay)
}

// Run satisfies the scheduler's job signature.
func (r *Refresher) Run(ctx context.Context) error {
	r.Tick(ctx)
	return nil
}
