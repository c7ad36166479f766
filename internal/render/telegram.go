package render

import (
	"context"

	"golang.org/x/time/rate"

	"leaderbot/internal/transport"
)

// ChatSink delivers content through a chat adapter in HTML parse mode.
type ChatSink struct {
	adapter transport.Adapter
	limiter *rate.Limiter
}

// NewChatSink wraps adapter. ratePerSec <= 0 disables local throttling.
func NewChatSink(adapter transport.Adapter, ratePerSec float64) *ChatSink {
	s := &ChatSink{adapter: adapter}
	if ratePerSec > 0 {
		burst := int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return s
}

func (s *ChatSink) opts() *transport.SendOptions {
	return &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
}

func (s *ChatSink) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *ChatSink) Post(ctx context.Context, dest transport.ChatTarget, c Content) (transport.MessageRef, error) {
	if err := s.wait(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	return s.adapter.SendText(ctx, dest, c.Text, s.opts())
}

func (s *ChatSink) Update(ctx context.Context, ref transport.MessageRef, c Content) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.adapter.EditText(ctx, ref, c.Text, s.opts())
}
