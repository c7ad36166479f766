package eventbus

import "testing"

func TestPublishFansOut(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: SessionStarted, ChatID: 42})

	for i, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != SessionStarted || e.ChatID != 42 {
			t.Fatalf("subscriber %d got %+v", i, e)
		}
		if e.Time.IsZero() {
			t.Fatalf("subscriber %d: Time not stamped", i)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: SessionEnded})
	b.Publish(Event{Type: SessionRemoved})
	if got := b.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after unsubscribe")
	}
	b.Publish(Event{Type: SessionCleared})
}
