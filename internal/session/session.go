// Package session owns the lifecycle of leaderboard sessions: creation, the
// periodic refresh pass, expiry and removal.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"leaderbot/internal/source"
	"leaderbot/internal/transport"
)

type State int

const (
	StateActive State = iota
	StateEnded
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	case StateRemoved:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is a value snapshot; the Store holds the live copy.
type Session struct {
	// ID identifies this generation of the destination's session.
	ID          uuid.UUID
	Destination transport.ChatTarget
	Artifact    transport.MessageRef
	Window      source.Window
	ExpiresAt   time.Time
	DisplayDays int
	Mode        WindowMode
	State       State

	ConsecutiveRenderFailures int
	NeedsRecreate             bool

	CreatedAt    time.Time
	CreatedBy    int64
	LastRenderAt time.Time
}

// Expired reports whether now is past the session's expiry instant.
func (s Session) Expired(now time.Time) bool { return now.After(s.ExpiresAt) }

const (
	MinDays = 1
	MaxDays = 30
)

// WindowMode decides how a day count maps to a data window and expiry.
type WindowMode string

const (
	// WindowEvent queries [now, now+days) and expires at the window end.
	WindowEvent WindowMode = "event"
	// WindowTrailing queries [now-days, now) and expires days from now.
	WindowTrailing WindowMode = "trailing"
)

func ParseWindowMode(s string) (WindowMode, error) {
	switch WindowMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", WindowEvent:
		return WindowEvent, nil
	case WindowTrailing:
		return WindowTrailing, nil
	default:
		return "", fmt.Errorf("unknown window mode %q", s)
	}
}

// Plan returns the data window and expiry for a session of days starting at now.
func (m WindowMode) Plan(now time.Time, days int) (source.Window, time.Time) {
	now = now.UTC()
	span := time.Duration(days) * 24 * time.Hour
	if m == WindowTrailing {
		return source.Window{Start: now.Add(-span), End: now}, now.Add(span)
	}
	end := now.Add(span)
	return source.Window{Start: now, End: end}, end
}

// CreateRequest asks the controller to start a session.
type CreateRequest struct {
	Destination transport.ChatTarget `validate:"required"`
	Window      source.Window
	ExpiresAt   time.Time `validate:"required"`
	DisplayDays int       `validate:"min=1,max=30"`
	Mode        WindowMode
	CreatedBy   int64
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateDays rejects day counts outside [MinDays, MaxDays].
func ValidateDays(days int) error {
	if err := validate.Var(days, fmt.Sprintf("min=%d,max=%d", MinDays, MaxDays)); err != nil {
		return fmt.Errorf("%w: days must be between %d and %d", ErrInvalidRequest, MinDays, MaxDays)
	}
	return nil
}

func (r CreateRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !r.Window.Valid() {
		return fmt.Errorf("%w: window start must be before end", ErrInvalidRequest)
	}
	return nil
}

// NewRequest builds a CreateRequest for days using mode.
func NewRequest(dest transport.ChatTarget, days int, mode WindowMode, now time.Time, actor int64) CreateRequest {
	w, exp := mode.Plan(now, days)
	return CreateRequest{Destination: dest, Window: w, ExpiresAt: exp, DisplayDays: days, Mode: mode, CreatedBy: actor}
}
