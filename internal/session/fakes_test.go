package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"leaderbot/internal/eventbus"
	"leaderbot/internal/leaderboard"
	"leaderbot/internal/render"
	"leaderbot/internal/source"
	"leaderbot/internal/transport"
	logx "leaderbot/pkg/logx"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, w source.Window) ([]leaderboard.RawEntry, error) {
	f.mu.Lock()
	f.calls++
	err, block := f.err, f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []leaderboard.RawEntry{
		{Subject: "alice", Wager: decimal.NewFromInt(100), Deposit: decimal.NewFromInt(10)},
		{Subject: "bob", Wager: decimal.NewFromInt(50), Deposit: decimal.NewFromInt(20)},
	}, nil
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSink struct {
	mu         sync.Mutex
	updateErrs []error
	postErrs   []error
	updates    int
	posts      int
	texts      []string
	nextID     int

	// block holds Update until closed; entered is signaled when a call is held.
	block   chan struct{}
	entered chan struct{}
}

func (s *fakeSink) Post(ctx context.Context, dest transport.ChatTarget, c render.Content) (transport.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts++
	s.texts = append(s.texts, c.Text)
	if len(s.postErrs) > 0 {
		err := s.postErrs[0]
		s.postErrs = s.postErrs[1:]
		if err != nil {
			return transport.MessageRef{}, err
		}
	}
	s.nextID++
	return transport.MessageRef{ChatID: dest.ChatID, ThreadID: dest.ThreadID, MessageID: 100 + s.nextID}, nil
}

func (s *fakeSink) Update(ctx context.Context, ref transport.MessageRef, c render.Content) error {
	s.mu.Lock()
	block, entered := s.block, s.entered
	s.mu.Unlock()
	if block != nil {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	s.texts = append(s.texts, c.Text)
	if len(s.updateErrs) > 0 {
		err := s.updateErrs[0]
		s.updateErrs = s.updateErrs[1:]
		return err
	}
	return nil
}

// hold makes later Update calls wait until the returned channel is closed.
func (s *fakeSink) hold() (release chan struct{}, entered <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = make(chan struct{})
	s.entered = make(chan struct{}, 1)
	return s.block, s.entered
}

func (s *fakeSink) counts() (updates, posts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates, s.posts
}

func (s *fakeSink) reset(updateErrs, postErrs []error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates, s.posts = 0, 0
	s.texts = nil
	s.updateErrs = updateErrs
	s.postErrs = postErrs
}

func (s *fakeSink) lastText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.texts) == 0 {
		return ""
	}
	return s.texts[len(s.texts)-1]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock   *clock
	fetcher *fakeFetcher
	sink    *fakeSink
	bus     *eventbus.MemBus
	events  <-chan eventbus.Event
	ctrl    *Controller
	ref     *Refresher
	sleeps  []time.Duration
}

var testDest = transport.ChatTarget{ChatID: -100123, ThreadID: 7}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
		fetcher: &fakeFetcher{},
		sink:    &fakeSink{},
		bus:     eventbus.New(),
	}
	var unsub func()
	h.events, unsub = h.bus.Subscribe(64)
	t.Cleanup(unsub)

	h.ctrl = NewController(NewStore(), h.fetcher, h.sink, h.bus, nil, logx.Nop(), Options{Now: h.clock.Now})
	h.ref = NewRefresher(h.ctrl, RefreshOptions{Concurrency: 2, RenderAttempts: 3, RetryDelay: 2 * time.Second}, logx.Nop())
	h.ref.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func (h *harness) create(t *testing.T, days int) Session {
	t.Helper()
	req := NewRequest(testDest, days, WindowEvent, h.clock.Now(), 1)
	s, err := h.ctrl.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return s
}

func (h *harness) drainEvents() []eventbus.Type {
	var out []eventbus.Type
	for {
		select {
		case e := <-h.events:
			out = append(out, e.Type)
		default:
			return out
		}
	}
}
