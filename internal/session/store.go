package session

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"leaderbot/internal/transport"
)

// Store holds at most one non-removed session per destination.
type Store struct {
	mu       sync.RWMutex
	sessions map[transport.ChatTarget]*Session
	reserved map[transport.ChatTarget]struct{}
	// busy marks destinations whose artifact is being written; the channel is
	// closed on release.
	busy map[transport.ChatTarget]chan struct{}
}

func NewStore() *Store {
	return &Store{
		sessions: map[transport.ChatTarget]*Session{},
		reserved: map[transport.ChatTarget]struct{}{},
		busy:     map[transport.ChatTarget]chan struct{}{},
	}
}

// Acquire waits until dest is not held and holds it until the returned func is
// called. A refresh and a stop of the same destination never overlap.
func (st *Store) Acquire(ctx context.Context, dest transport.ChatTarget) (func(), error) {
	for {
		release, wait := st.tryAcquire(dest)
		if release != nil {
			return release, nil
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryAcquire is Acquire without waiting; ok is false when dest is held.
func (st *Store) TryAcquire(dest transport.ChatTarget) (release func(), ok bool) {
	release, _ = st.tryAcquire(dest)
	return release, release != nil
}

func (st *Store) tryAcquire(dest transport.ChatTarget) (func(), <-chan struct{}) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if ch, held := st.busy[dest]; held {
		return nil, ch
	}
	ch := make(chan struct{})
	st.busy[dest] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			st.mu.Lock()
			delete(st.busy, dest)
			st.mu.Unlock()
			close(ch)
		})
	}, nil
}

// Reservation holds a destination while a create is in flight. Exactly one of
// Commit or Release must be called.
type Reservation struct {
	store *Store
	dest  transport.ChatTarget
	done  bool
}

// Reserve claims dest. It fails with ErrDuplicateSession when dest has a session
// or another create in flight.
func (st *Store) Reserve(dest transport.ChatTarget) (*Reservation, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[dest]; ok {
		return nil, ErrDuplicateSession
	}
	if _, ok := st.reserved[dest]; ok {
		return nil, ErrDuplicateSession
	}
	st.reserved[dest] = struct{}{}
	return &Reservation{store: st, dest: dest}, nil
}

// Commit inserts s under the reserved destination.
func (r *Reservation) Commit(s Session) {
	if r == nil || r.done {
		return
	}
	r.done = true
	s.Destination = r.dest
	st := r.store
	st.mu.Lock()
	delete(st.reserved, r.dest)
	cp := s
	st.sessions[r.dest] = &cp
	st.mu.Unlock()
}

// Release frees the destination without inserting anything.
func (r *Reservation) Release() {
	if r == nil || r.done {
		return
	}
	r.done = true
	st := r.store
	st.mu.Lock()
	delete(st.reserved, r.dest)
	st.mu.Unlock()
}

func (st *Store) Get(dest transport.ChatTarget) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[dest]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Snapshot copies every session, oldest first.
func (st *Store) Snapshot() []Session {
	st.mu.RLock()
	out := make([]Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, *s)
	}
	st.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Update applies fn to the live session at dest if it is still generation id.
func (st *Store) Update(dest transport.ChatTarget, id uuid.UUID, fn func(s *Session)) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[dest]
	if !ok || s.ID != id {
		return false
	}
	fn(s)
	s.ID, s.Destination = id, dest
	return true
}

// Remove deletes the session at dest. Removing an absent destination is a no-op.
func (st *Store) Remove(dest transport.ChatTarget) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[dest]
	if !ok {
		return Session{}, false
	}
	delete(st.sessions, dest)
	out := *s
	out.State = StateRemoved
	return out, true
}

// RemoveIf deletes the session at dest only if it is generation id.
func (st *Store) RemoveIf(dest transport.ChatTarget, id uuid.UUID) (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[dest]
	if !ok || s.ID != id {
		return Session{}, false
	}
	delete(st.sessions, dest)
	out := *s
	out.State = StateRemoved
	return out, true
}
