package render

import (
	"context"
	"errors"
	"testing"

	"leaderbot/internal/transport"
)

type recordingAdapter struct {
	sent   []string
	edited []transport.MessageRef
	opts   []*transport.SendOptions
	err    error
}

func (a *recordingAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (a *recordingAdapter) Stop(context.Context) error                          { return nil }

func (a *recordingAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	a.sent = append(a.sent, text)
	a.opts = append(a.opts, opt)
	if a.err != nil {
		return transport.MessageRef{}, a.err
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(a.sent)}, nil
}

func (a *recordingAdapter) EditText(_ context.Context, ref transport.MessageRef, _ string, opt *transport.SendOptions) error {
	a.edited = append(a.edited, ref)
	a.opts = append(a.opts, opt)
	return a.err
}

func TestChatSinkPostAndUpdate(t *testing.T) {
	t.Parallel()

	ad := &recordingAdapter{}
	s := NewChatSink(ad, 0)
	dest := transport.ChatTarget{ChatID: -1001, ThreadID: 3}

	ref, err := s.Post(context.Background(), dest, Content{Text: "<b>hi</b>"})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if ref.Target() != dest || ref.MessageID != 1 {
		t.Fatalf("Post() ref = %+v", ref)
	}
	if err := s.Update(context.Background(), ref, Content{Text: "x"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(ad.edited) != 1 || ad.edited[0] != ref {
		t.Fatalf("edited = %+v, want [%+v]", ad.edited, ref)
	}
	for _, o := range ad.opts {
		if o == nil || o.ParseMode != "HTML" || !o.DisablePreview {
			t.Fatalf("send options = %+v, want HTML without preview", o)
		}
	}
}

func TestChatSinkPassesTypedErrors(t *testing.T) {
	t.Parallel()

	ad := &recordingAdapter{err: ErrDestinationGone}
	s := NewChatSink(ad, 5)
	_, err := s.Post(context.Background(), transport.ChatTarget{ChatID: 1}, Content{Text: "x"})
	if !errors.Is(err, ErrDestinationGone) || Classify(err) != OutcomeGone {
		t.Fatalf("Post() error = %v, want destination gone", err)
	}
}

func TestChatSinkHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	ad := &recordingAdapter{}
	s := NewChatSink(ad, 1)
	// Drain the single burst token.
	if _, err := s.Post(context.Background(), transport.ChatTarget{ChatID: 1}, Content{Text: "a"}); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Update(ctx, transport.MessageRef{ChatID: 1, MessageID: 1}, Content{Text: "b"}); err == nil {
		t.Fatal("Update() with canceled context should fail while throttled")
	}
	if len(ad.edited) != 0 {
		t.Fatalf("edited = %d, want 0", len(ad.edited))
	}
}
