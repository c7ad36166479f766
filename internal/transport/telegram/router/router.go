package router

import (
	"context"
	"html"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"leaderbot/internal/metrics"
	"leaderbot/internal/runtime/supervisor"
	"leaderbot/internal/transport"
	logx "leaderbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// Timeout overrides Options.DefaultTimeout.
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update       transport.Update
	Chat         transport.ChatTarget
	FromID       int64
	FromUsername string
	IsGroup      bool
	Command      string
	Args         []string
	ReqID        string

	Logger  logx.Logger
	Adapter transport.Adapter
}

func (r *Request) logger(def logx.Logger) logx.Logger {
	if r != nil && !r.Logger.IsZero() {
		return r.Logger
	}
	return def
}

// Reply sends an HTML message to the request's chat and thread.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

type Options struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
}

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
	defaultTimeout   = 30 * time.Second
	menuTimeout      = 5 * time.Second
)

// Router parses chat commands and runs their handlers on a bounded worker pool.
type Router struct {
	log     logx.Logger
	adapter transport.Adapter
	metrics *metrics.Metrics
	opt     Options

	mu          sync.RWMutex
	byName      map[string]*Command
	list        []Command
	owners      []int64
	botUsername string

	jobs chan func()

	runMu sync.Mutex
	sup   *supervisor.Supervisor
}

func New(adapter transport.Adapter, log logx.Logger, m *metrics.Metrics, opt Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = defaultWorkers
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = defaultQueueSize
	}
	if opt.DefaultTimeout <= 0 {
		opt.DefaultTimeout = defaultTimeout
	}
	return &Router{
		log:     log,
		adapter: adapter,
		metrics: m,
		opt:     opt,
		byName:  map[string]*Command{},
		jobs:    make(chan func(), opt.QueueSize),
	}
}

// SetOwners replaces the owner list. Safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) SetBotUsername(name string) {
	r.mu.Lock()
	r.botUsername = strings.TrimPrefix(name, "@")
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.owners {
		if o == id {
			return true
		}
	}
	return false
}

// Register replaces the command registry. /help is always added. The chat
// platform's command menu is refreshed in the background.
func (r *Router) Register(ctx context.Context, cmds ...Command) {
	cmds = append(cmds, Command{
		Name:        "help",
		Description: "show available commands",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.helpText(req.FromID))
		},
	})

	list := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Name = sanitizeCommand(c.Name); c.Name != "" && c.Handle != nil {
			list = append(list, c)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	// canonical names win over aliases
	byName := make(map[string]*Command, len(list)*2)
	for i := range list {
		byName[list[i].Name] = &list[i]
	}
	for i := range list {
		for _, a := range list[i].Aliases {
			if a = sanitizeCommand(a); a != "" {
				if _, taken := byName[a]; !taken {
					byName[a] = &list[i]
				}
			}
		}
	}

	r.mu.Lock()
	r.byName, r.list = byName, list
	r.mu.Unlock()

	if up, ok := r.adapter.(transport.CommandMenuUpdater); ok {
		menu := buildMenu(list)
		go func() {
			mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), menuTimeout)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, menu); err != nil {
				r.log.Warn("command menu update failed", logx.Err(err))
			}
		}()
	}
}

// Commands returns the registered commands sorted by name.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.list...)
}

func buildMenu(list []Command) []transport.BotCommand {
	out := make([]transport.BotCommand, 0, len(list))
	for _, c := range list {
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = c.Name
		}
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		out = append(out, transport.BotCommand{Command: c.Name, Description: desc})
	}
	return out
}

func (r *Router) helpText(from int64) string {
	owner := r.isOwner(from)
	lines := []string{"📚 <b>Commands</b>", ""}
	for _, c := range r.Commands() {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		line := "• <code>" + html.EscapeString(usage) + "</code>"
		if c.Description != "" {
			line += " - " + html.EscapeString(c.Description)
		}
		if c.Access == AccessOwnerOnly {
			line += " 🔒"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Handle routes one update synchronously.
func (r *Router) Handle(ctx context.Context, up transport.Update) {
	if up.Kind != transport.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message

	r.mu.RLock()
	bot := r.botUsername
	r.mu.RUnlock()
	name, args, ok := parseCommand(msg.Text, bot)
	if !ok {
		return
	}

	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	r.mu.RLock()
	cp, found := r.byName[name]
	r.mu.RUnlock()
	if !found {
		if !msg.IsGroup {
			_, _ = r.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		}
		return
	}
	cmd := *cp

	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.FromID) {
		r.metrics.Command(cmd.Name, "unauthorized")
		_, _ = r.adapter.SendText(ctx, chat, "This command is restricted to bot owners.", nil)
		return
	}

	rid := newReqID()
	req := &Request{
		Update:       up,
		Chat:         chat,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		IsGroup:      msg.IsGroup,
		Command:      cmd.Name,
		Args:         args,
		ReqID:        rid,
		Adapter:      r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int("thread_id", msg.ThreadID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.opt.DefaultTimeout
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWMetrics(r.metrics),
		MWTimeout(timeout),
	)
	_ = final(ctx, req)
}

// Supervisor returns the worker supervisor while DispatchLoop runs.
func (r *Router) Supervisor() *supervisor.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.sup
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
// A full queue rejects the command with a "busy" reply.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		supervisor.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup = sup
	r.runMu.Unlock()

	for i := 0; i < r.opt.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					r.runJob(idx, job)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.opt.Workers), logx.Int("queue_cap", cap(r.jobs)))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.runMu.Lock()
		r.sup = nil
		r.runMu.Unlock()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case r.jobs <- func() { r.Handle(ctx, up) }:
			default:
				if up.Message != nil {
					chat := transport.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}
					_, _ = r.adapter.SendText(ctx, chat, "Busy, try again in a moment.", nil)
				}
			}
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}
