package storage

import (
	"context"
	"time"

	"leaderbot/internal/eventbus"
	logx "leaderbot/pkg/logx"
)

const appendTimeout = 2 * time.Second

// RecordFromEvent converts a lifecycle event into an audit record.
func RecordFromEvent(e eventbus.Event) Record {
	return Record{
		At:        e.Time,
		Type:      string(e.Type),
		SessionID: e.SessionID,
		ChatID:    e.ChatID,
		ThreadID:  e.ThreadID,
		Reason:    e.Reason,
		Actor:     e.Actor,
	}
}

// Audit appends every event to st until ctx is done or events is closed.
// Write failures are logged and skipped.
func Audit(ctx context.Context, events <-chan eventbus.Event, st Store, log logx.Logger) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), appendTimeout)
			err := st.Append(actx, RecordFromEvent(e))
			cancel()
			if err != nil {
				log.Warn("audit append failed", logx.String("type", string(e.Type)), logx.Err(err))
			}
		}
	}
}
