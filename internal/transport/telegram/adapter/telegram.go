package adapter

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"leaderbot/internal/runtime/supervisor"
	"leaderbot/internal/transport"
	logx "leaderbot/pkg/logx"
)

const (
	defaultPollTimeout = 10 * time.Second
	dropReportEvery    = 5 * time.Second
	stopGrace          = 2 * time.Second
	// Telegram rejects longer message texts.
	maxTextLen = 4096
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter bridges telebot to the transport interfaces.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	out     atomic.Value // chan<- transport.Update
	dropped atomic.Uint64

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	menuMu   sync.Mutex
	menuHash uint64
}

var _ transport.Adapter = (*Adapter)(nil)
var _ transport.CommandMenuUpdater = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
		OnError: func(err error, c tele.Context) {
			log.Warn("telebot handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var none chan<- transport.Update
	a.out.Store(none)
	b.Handle(tele.OnText, func(c tele.Context) error {
		if up, ok := updateFromMessage(c.Message()); ok {
			a.forward(up)
		}
		return nil
	})
	return a, nil
}

// Username is the bot's own username, used to match "/cmd@bot" addressing.
func (a *Adapter) Username() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

// Supervisor returns the goroutine supervisor of the running adapter, or nil.
func (a *Adapter) Supervisor() *supervisor.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func updateFromMessage(m *tele.Message) (transport.Update, bool) {
	if m == nil || m.Chat == nil {
		return transport.Update{}, false
	}
	msg := &transport.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ThreadID: m.ThreadID,
		Text:     m.Text,
		IsGroup:  m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
	}
	return transport.Update{Kind: transport.UpdateMessage, Message: msg}, true
}

func (a *Adapter) forward(up transport.Update) {
	out, _ := a.out.Load().(chan<- transport.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.dropped.Add(1)
	}
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		supervisor.WithCancelOnError(false),
	)
	sup := a.sup

	sup.Go0("updates.drop_report", func(c context.Context) {
		t := time.NewTicker(dropReportEvery)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-t.C:
				a.reportDropped(cap(out))
			}
		}
	})
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// bot.Start blocks until Stop; restart it if it returns while still running.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		supervisor.WithPublishFirstError(true),
		supervisor.WithStopOnCleanExit(false),
	)
	return nil
}

// Stop cancels polling and waits at most a short grace period for the long-poll to return.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup, wasRunning := a.sup, a.running
	a.sup, a.running = nil, false
	var none chan<- transport.Update
	a.out.Store(none)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", a.dropped.Load()))
	sup.Cancel()
	go a.bot.Stop()

	wctx, cancel := context.WithTimeout(ctx, stopGrace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop grace elapsed; continuing shutdown", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func sendOptions(opt *transport.SendOptions, threadID int) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: threadID}
	if opt != nil {
		so.ParseMode = tele.ParseMode(opt.ParseMode)
		so.DisableWebPagePreview = opt.DisablePreview
	}
	return so
}

func clip(text string) string {
	r := []rune(text)
	if len(r) <= maxTextLen {
		return text
	}
	return string(r[:maxTextLen-1]) + "…"
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, clip(text), sendOptions(opt, to.ThreadID))
	if err != nil {
		return transport.MessageRef{}, mapError(opSend, err)
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	so := sendOptions(opt, 0)
	if _, err := a.bot.Edit(m, clip(text), so); err != nil {
		return mapError(opEdit, err)
	}
	return nil
}

// UpdateMenuCommands publishes the command menu. It is a no-op when the list is unchanged.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []transport.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		desc := c.Description
		if desc == "" {
			desc = c.Command
		}
		list = append(list, tele.Command{Text: c.Command, Description: desc})
		_, _ = h.Write([]byte(c.Command + "\x00" + desc + "\x00"))
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := a.bot.SetCommands(list); err != nil {
		return mapError(opSend, err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}
