// Package board exposes the leaderboard lifecycle as chat commands.
package board

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"leaderbot/internal/render"
	"leaderbot/internal/session"
	"leaderbot/internal/storage"
	"leaderbot/internal/transport"
	"leaderbot/internal/transport/telegram/router"
	logx "leaderbot/pkg/logx"
)

// Lifecycle is the part of the session controller the commands drive.
type Lifecycle interface {
	Create(ctx context.Context, req session.CreateRequest) (session.Session, error)
	Stop(ctx context.Context, dest transport.ChatTarget, actor int64) (session.Session, error)
	ManualClear(dest transport.ChatTarget, actor int64) (session.Session, error)
	Get(dest transport.ChatTarget) (session.Session, bool)
}

// History reads the audit trail; nil when storage is disabled.
type History interface {
	Recent(ctx context.Context, chatID int64, limit int) ([]storage.Record, error)
}

const historyLimit = 10

const (
	msgDaysRange    = "Please specify a number of days between 1 and 30."
	msgDuplicate    = "There's already an active leaderboard in this channel!"
	msgFetchFailed  = "Unable to fetch leaderboard data. Please try again later."
	msgRenderFailed = "Unable to post the leaderboard here. Check the bot's permissions."
	msgNone         = "There's no active leaderboard in this channel."
	msgStopped      = "Leaderboard stopped."
	msgCleared      = "Leaderboard cleared."

	createTimeout = 45 * time.Second
)

type Plugin struct {
	lc  Lifecycle
	log logx.Logger
	now func() time.Time

	history History

	mu   sync.RWMutex
	mode session.WindowMode
}

func New(lc Lifecycle, mode session.WindowMode, log logx.Logger) *Plugin {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Plugin{lc: lc, log: log.With(logx.String("plugin", "board")), now: time.Now, mode: mode}
}

func (p *Plugin) Name() string { return "board" }

// SetHistory enables /lbhistory. Call before Commands.
func (p *Plugin) SetHistory(h History) { p.history = h }

// SetWindowMode applies to sessions created afterwards.
func (p *Plugin) SetWindowMode(m session.WindowMode) {
	p.mu.Lock()
	p.mode = m
	p.mu.Unlock()
}

func (p *Plugin) windowMode() session.WindowMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

func (p *Plugin) Commands() []router.Command {
	cmds := []router.Command{
		{
			Name:        "leaderboard",
			Aliases:     []string{"lb"},
			Description: "start a leaderboard event for N days",
			Usage:       "/leaderboard <days 1-30>",
			Timeout:     createTimeout,
			Handle:      p.cmdStart,
		},
		{
			Name:        "lbstatus",
			Description: "show this chat's leaderboard",
			Usage:       "/lbstatus",
			Handle:      p.cmdStatus,
		},
		{
			Name:        "lbstop",
			Description: "end this chat's leaderboard now",
			Usage:       "/lbstop",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdStop,
		},
		{
			Name:        "lbclear",
			Description: "drop this chat's leaderboard without a notice",
			Usage:       "/lbclear",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdClear,
		},
	}
	if p.history != nil {
		cmds = append(cmds, router.Command{
			Name:        "lbhistory",
			Description: "recent leaderboard events in this chat",
			Usage:       "/lbhistory",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdHistory,
		})
	}
	return cmds
}

func parseDays(args []string) (int, error) {
	if len(args) == 0 {
		return 0, session.ErrInvalidRequest
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrInvalidRequest, err)
	}
	if err := session.ValidateDays(n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Plugin) cmdStart(ctx context.Context, req *router.Request) error {
	days, err := parseDays(req.Args)
	if err != nil {
		return req.Reply(ctx, msgDaysRange)
	}
	cr := session.NewRequest(req.Chat, days, p.windowMode(), p.now(), req.FromID)
	_, err = p.lc.Create(ctx, cr)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrDuplicateSession):
		return req.Reply(ctx, msgDuplicate)
	case errors.Is(err, session.ErrFetchFailed):
		_ = req.Reply(ctx, msgFetchFailed)
	case errors.Is(err, session.ErrRenderFailed):
		_ = req.Reply(ctx, msgRenderFailed)
	case errors.Is(err, session.ErrInvalidRequest):
		return req.Reply(ctx, msgDaysRange)
	}
	return err
}

func (p *Plugin) cmdStop(ctx context.Context, req *router.Request) error {
	if _, err := p.lc.Stop(ctx, req.Chat, req.FromID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return req.Reply(ctx, msgNone)
		}
		return err
	}
	return req.Reply(ctx, msgStopped)
}

func (p *Plugin) cmdClear(ctx context.Context, req *router.Request) error {
	if _, err := p.lc.ManualClear(req.Chat, req.FromID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return req.Reply(ctx, msgNone)
		}
		return err
	}
	return req.Reply(ctx, msgCleared)
}

func (p *Plugin) cmdStatus(ctx context.Context, req *router.Request) error {
	s, ok := p.lc.Get(req.Chat)
	if !ok {
		return req.Reply(ctx, msgNone)
	}
	return req.Reply(ctx, statusText(s, p.now().UTC()))
}

func (p *Plugin) cmdHistory(ctx context.Context, req *router.Request) error {
	recs, err := p.history.Recent(ctx, req.Chat.ChatID, historyLimit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return req.Reply(ctx, "No leaderboard history for this chat.")
	}
	lines := []string{"🗂 <b>Recent events</b>"}
	for _, r := range recs {
		line := fmt.Sprintf("%s <code>%s</code> %s", r.At.UTC().Format("01-02 15:04"), html.EscapeString(shortID(r.SessionID)), html.EscapeString(r.Type))
		if r.Reason != "" {
			line += " (" + html.EscapeString(r.Reason) + ")"
		}
		lines = append(lines, line)
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func statusText(s session.Session, now time.Time) string {
	lines := []string{
		"📋 <b>Leaderboard</b> <code>" + html.EscapeString(shortID(s.ID.String())) + "</code>",
		fmt.Sprintf("State: %s", s.State),
	}
	if s.Mode == session.WindowTrailing {
		lines = append(lines, fmt.Sprintf("Period: last %d days", s.DisplayDays))
	} else {
		lines = append(lines, fmt.Sprintf("Period: %d-day event", s.DisplayDays))
	}
	if s.State == session.StateActive {
		lines = append(lines, "Ends in: "+render.Remaining(s.ExpiresAt, now))
	}
	if !s.LastRenderAt.IsZero() {
		lines = append(lines, "Last update: "+s.LastRenderAt.UTC().Format("2006-01-02 15:04")+" UTC")
	}
	if s.ConsecutiveRenderFailures > 0 || s.NeedsRecreate {
		lines = append(lines, fmt.Sprintf("Update failures: %d (repost pending: %t)", s.ConsecutiveRenderFailures, s.NeedsRecreate))
	}
	return strings.Join(lines, "\n")
}
