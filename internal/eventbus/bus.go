// Package eventbus fans session lifecycle events out to in-process subscribers
// (audit log, metrics).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

type Type string

const (
	SessionStarted   Type = "session.started"
	SessionEnded     Type = "session.ended"
	SessionRemoved   Type = "session.removed"
	SessionRecreated Type = "session.recreated"
	SessionCleared   Type = "session.cleared"
)

// Event describes one lifecycle transition of a session.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers use buffered channels; slow subscribers drop events.
type Event struct {
	Type      Type
	Time      time.Time
	SessionID string
	ChatID    int64
	ThreadID  int
	Reason    string
	Actor     int64
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() *MemBus {
	return &MemBus{subs: map[uint64]chan Event{}}
}

type MemBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *MemBus) Dropped() uint64 { return b.dropped.Load() }

func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so sends happen without the lock.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		func() {
			// A concurrent unsubscribe may close ch.
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
				b.dropped.Add(1)
			}
		}()
	}
}

func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
