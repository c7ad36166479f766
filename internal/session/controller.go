package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"leaderbot/internal/eventbus"
	"leaderbot/internal/leaderboard"
	"leaderbot/internal/metrics"
	"leaderbot/internal/render"
	"leaderbot/internal/source"
	"leaderbot/internal/transport"
	logx "leaderbot/pkg/logx"
)

const (
	defaultFetchTimeout  = 15 * time.Second
	defaultRenderTimeout = 10 * time.Second
)

type Options struct {
	Profile       leaderboard.Profile
	Formatter     render.Formatter
	FetchTimeout  time.Duration
	RenderTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller creates and tears down sessions. The periodic pass lives in Refresher.
type Controller struct {
	store   *Store
	fetcher source.Fetcher
	sink    render.Sink
	bus     eventbus.Bus
	metrics *metrics.Metrics
	log     logx.Logger
	opt     Options

	// guards opt.Profile and opt.Formatter, which config reloads may swap
	mu sync.RWMutex
}

func NewController(store *Store, fetcher source.Fetcher, sink render.Sink, bus eventbus.Bus, m *metrics.Metrics, log logx.Logger, opt Options) *Controller {
	if opt.FetchTimeout <= 0 {
		opt.FetchTimeout = defaultFetchTimeout
	}
	if opt.RenderTimeout <= 0 {
		opt.RenderTimeout = defaultRenderTimeout
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Formatter.Title == "" {
		opt.Formatter = render.NewFormatter("")
	}
	opt.Profile = opt.Profile.Normalize()
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Controller{
		store:   store,
		fetcher: fetcher,
		sink:    sink,
		bus:     bus,
		metrics: m,
		log:     log,
		opt:     opt,
	}
}

func (c *Controller) Store() *Store { return c.store }

// SetPresentation swaps the profile and formatter used by later refreshes.
func (c *Controller) SetPresentation(p leaderboard.Profile, f render.Formatter) {
	c.mu.Lock()
	c.opt.Profile = p.Normalize()
	c.opt.Formatter = f
	c.mu.Unlock()
}

func (c *Controller) profile() leaderboard.Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opt.Profile
}

func (c *Controller) formatter() render.Formatter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opt.Formatter
}

func (c *Controller) now() time.Time { return c.opt.Now().UTC() }

// Create fetches, renders and stores a new Active session for req.Destination.
// Nothing is stored when the fetch or the first post fails.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (Session, error) {
	if err := req.Validate(); err != nil {
		return Session{}, err
	}
	res, err := c.store.Reserve(req.Destination)
	if err != nil {
		return Session{}, err
	}
	defer res.Release()

	log := c.log.With(logx.Int64("chat_id", req.Destination.ChatID), logx.Int("thread_id", req.Destination.ThreadID))

	board, err := c.fetchBoard(ctx, req.Window)
	if err != nil {
		log.Warn("create: fetch failed", logx.Err(err))
		return Session{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	now := c.now()
	s := Session{
		ID:          uuid.New(),
		Destination: req.Destination,
		Window:      req.Window,
		ExpiresAt:   req.ExpiresAt,
		DisplayDays: req.DisplayDays,
		Mode:        req.Mode,
		State:       StateActive,
		CreatedAt:   now,
		CreatedBy:   req.CreatedBy,
	}

	ref, err := c.post(ctx, s.Destination, c.content(s, board, now))
	if err != nil {
		log.Warn("create: post failed", logx.Err(err))
		return Session{}, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	s.Artifact = ref
	s.LastRenderAt = now
	res.Commit(s)

	c.metrics.SetActiveSessions(c.store.Len())
	c.publish(eventbus.SessionStarted, s, "created", req.CreatedBy)
	log.Info("session started",
		logx.String("session_id", s.ID.String()),
		logx.Int("days", s.DisplayDays),
		logx.Time("expires_at", s.ExpiresAt),
		logx.Int("subjects", board.Subjects),
	)
	return s, nil
}

// Stop removes the destination's session and posts the terminal notice best-effort.
// It waits for an in-flight refresh of dest so the notice is the last write.
func (c *Controller) Stop(ctx context.Context, dest transport.ChatTarget, actor int64) (Session, error) {
	release, err := c.store.Acquire(ctx, dest)
	if err != nil {
		return Session{}, fmt.Errorf("stop: waiting for refresh: %w", err)
	}
	defer release()

	s, ok := c.store.Remove(dest)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if err := c.update(ctx, s.Artifact, c.formatter().Ended()); err != nil {
		c.log.Warn("stop: terminal notice failed", logx.Int64("chat_id", dest.ChatID), logx.Err(err))
	}
	c.removed(s, "stopped", actor)
	return s, nil
}

// ManualClear removes the destination's session without notifying the chat.
func (c *Controller) ManualClear(dest transport.ChatTarget, actor int64) (Session, error) {
	s, ok := c.store.Remove(dest)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	c.metrics.Removal("cleared")
	c.metrics.SetActiveSessions(c.store.Len())
	c.publish(eventbus.SessionCleared, s, "cleared", actor)
	c.log.Info("session cleared", logx.Int64("chat_id", dest.ChatID), logx.Int64("actor", actor))
	return s, nil
}

// Remove deletes the destination's session. It is idempotent.
func (c *Controller) Remove(dest transport.ChatTarget, reason string) bool {
	s, ok := c.store.Remove(dest)
	if ok {
		c.removed(s, reason, 0)
	}
	return ok
}

func (c *Controller) Get(dest transport.ChatTarget) (Session, bool) { return c.store.Get(dest) }

func (c *Controller) Sessions() []Session { return c.store.Snapshot() }

func (c *Controller) removed(s Session, reason string, actor int64) {
	c.metrics.Removal(reason)
	c.metrics.SetActiveSessions(c.store.Len())
	c.publish(eventbus.SessionRemoved, s, reason, actor)
	c.log.Info("session removed",
		logx.String("session_id", s.ID.String()),
		logx.Int64("chat_id", s.Destination.ChatID),
		logx.String("reason", reason),
	)
}

func (c *Controller) publish(t eventbus.Type, s Session, reason string, actor int64) {
	c.metrics.SessionEvent(string(t))
	c.bus.Publish(eventbus.Event{
		Type:      t,
		Time:      c.now(),
		SessionID: s.ID.String(),
		ChatID:    s.Destination.ChatID,
		ThreadID:  s.Destination.ThreadID,
		Reason:    reason,
		Actor:     actor,
	})
}

func (c *Controller) fetchBoard(ctx context.Context, w source.Window) (leaderboard.Board, error) {
	fctx, cancel := context.WithTimeout(ctx, c.opt.FetchTimeout)
	defer cancel()
	entries, err := c.fetcher.Fetch(fctx, w)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", source.ErrTransient, err)
		}
		return leaderboard.Board{}, err
	}
	return leaderboard.Build(entries, c.profile()), nil
}

func (c *Controller) content(s Session, b leaderboard.Board, now time.Time) render.Content {
	return c.formatter().Board(b, render.View{
		DisplayDays: s.DisplayDays,
		Trailing:    s.Mode == WindowTrailing,
		ExpiresAt:   s.ExpiresAt,
		Now:         now,
	})
}

func (c *Controller) post(ctx context.Context, dest transport.ChatTarget, content render.Content) (transport.MessageRef, error) {
	rctx, cancel := context.WithTimeout(ctx, c.opt.RenderTimeout)
	defer cancel()
	ref, err := c.sink.Post(rctx, dest, content)
	c.metrics.RenderAttempt("post", string(render.Classify(err)))
	return ref, err
}

func (c *Controller) update(ctx context.Context, ref transport.MessageRef, content render.Content) error {
	rctx, cancel := context.WithTimeout(ctx, c.opt.RenderTimeout)
	defer cancel()
	err := c.sink.Update(rctx, ref, content)
	c.metrics.RenderAttempt("update", string(render.Classify(err)))
	return err
}
