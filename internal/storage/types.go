package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
}

// Record is one audited lifecycle transition. Keep it compact and schema-stable.
type Record struct {
	At        time.Time `json:"at"`
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	ChatID    int64     `json:"chat_id"`
	ThreadID  int       `json:"thread_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Actor     int64     `json:"actor,omitempty"`
}

type Store interface {
	Append(ctx context.Context, r Record) error
	// Recent returns up to limit records for chatID, newest first.
	Recent(ctx context.Context, chatID int64, limit int) ([]Record, error)
	Close() error
}
