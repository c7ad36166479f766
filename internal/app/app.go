package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"leaderbot/internal/config"
	"leaderbot/internal/eventbus"
	"leaderbot/internal/metrics"
	"leaderbot/internal/observability/debug"
	"leaderbot/internal/render"
	"leaderbot/internal/runtime/supervisor"
	"leaderbot/internal/session"
	"leaderbot/internal/source"
	"leaderbot/internal/storage"
	"leaderbot/internal/task/scheduler"
	"leaderbot/internal/transport"
	telegram "leaderbot/internal/transport/telegram/adapter"
	"leaderbot/internal/transport/telegram/router"
	logx "leaderbot/pkg/logx"
	"leaderbot/plugins/board"
)

const refreshJob = "leaderboard.refresh"

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	metrics *metrics.Metrics
	bus     *eventbus.MemBus
	store   storage.Store

	adapter   *telegram.Adapter
	ctrl      *session.Controller
	refresher *session.Refresher
	sched     *scheduler.Service
	router    *router.Router
	board     *board.Plugin
	debug     *debug.Service

	updates chan transport.Update
	started time.Time
}

func New(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("info")
	cfgm := config.NewManager(cfgPath, bootLog.With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateRuntime(cfg); err != nil {
		return nil, err
	}

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeoutDuration(),
	}, bootLog.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	// Bootstrap with the Telegram sink off so Apply does not warn about a
	// missing target, then enable it once the target is set.
	logCfg := mapLogging(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg, ad)
	if id := cfg.Telegram.GroupLogChatID(); id != 0 {
		logSvc.SetTelegramTarget(id, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log := root.With(logx.String("comp", "app"))

	m := metrics.New()
	bus := eventbus.New()

	store, err := storage.Open(mapStorage(cfg), root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	profile, _ := mapProfile(cfg)
	httpFetcher, err := source.NewHTTPFetcher(mapSource(cfg, profile), root.With(logx.String("comp", "source")), m)
	if err != nil {
		return nil, err
	}
	fetcher := source.NewNarrowing(httpFetcher, root.With(logx.String("comp", "source")))
	sink := render.NewChatSink(ad, cfg.Telegram.SendRatePerSec)

	ctrl := session.NewController(session.NewStore(), fetcher, sink, bus, m,
		root.With(logx.String("comp", "session")), mapSessionOptions(cfg, profile))
	refresher := session.NewRefresher(ctrl, mapRefresh(cfg), root.With(logx.String("comp", "refresh")))

	sched := scheduler.New(scheduler.Config{Timezone: cfg.Refresh.Timezone}, root.With(logx.String("comp", "scheduler")))
	if err := sched.Upsert(refreshJob, cfg.Refresh.Schedule, 0, refresher.Run); err != nil {
		return nil, fmt.Errorf("refresh.schedule: %w", err)
	}

	rt := router.New(ad, root.With(logx.String("comp", "router")), m, router.Options{})
	rt.SetOwners(cfg.Telegram.OwnerUserIDs)

	mode, _ := mapWindowMode(cfg)
	bp := board.New(ctrl, mode, root.With(logx.String("comp", "board")))
	if store != nil {
		bp.SetHistory(store)
	}

	a := &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		metrics:   m,
		bus:       bus,
		store:     store,
		adapter:   ad,
		ctrl:      ctrl,
		refresher: refresher,
		sched:     sched,
		router:    rt,
		board:     bp,
		updates:   make(chan transport.Update, 256),
	}
	dbgCfg, _ := mapDebug(cfg)
	a.debug = debug.New(dbgCfg, m.Registry, a.health, root.With(logx.String("comp", "debug")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.started = time.Now()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateRuntime(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.router.SetBotUsername(a.adapter.Username())
	a.router.Register(a.sup.Context(), a.board.Commands()...)

	if a.store != nil {
		events, unsub := a.bus.Subscribe(256)
		a.sup.Go("storage.audit", func(c context.Context) error {
			defer unsub()
			return storage.Audit(c, events, a.store, a.log.With(logx.String("comp", "audit")))
		})
	}
	a.startEventLog()

	a.sched.Start(a.sup.Context())
	a.debug.Start(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.startReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.String("bot", a.adapter.Username()),
		logx.String("schedule", a.cfgm.Get().Refresh.Schedule),
		logx.Bool("audit", a.store != nil),
	)
	return nil
}

func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event",
					logx.String("type", string(e.Type)),
					logx.String("session_id", e.SessionID),
					logx.Int64("chat_id", e.ChatID),
					logx.String("reason", e.Reason),
				)
			}
		}
	})
}

// health backs /healthz on the debug server.
func (a *App) health() (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "started %s\n", humanize.Time(a.started))
	fmt.Fprintf(&b, "sessions %d\n", a.ctrl.Store().Len())
	for _, j := range a.sched.Jobs() {
		last := "never"
		if !j.LastRun.IsZero() {
			last = humanize.Time(j.LastRun)
		}
		fmt.Fprintf(&b, "job %s schedule=%s runs=%d skipped=%d last=%s", j.Name, j.Schedule, j.Runs, j.Skipped, last)
		if j.LastErr != "" {
			fmt.Fprintf(&b, " err=%q", j.LastErr)
		}
		b.WriteByte('\n')
	}
	if a.sup != nil {
		if err := a.sup.Err(); err != nil {
			return b.String(), err
		}
		if a.sup.Context().Err() != nil {
			return b.String(), errors.New("stopping")
		}
	}
	return b.String(), nil
}

// Stop shuts components down in order, each step bounded so one slow component
// cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// The scheduler goes first so a running tick can finish before its
	// context is canceled.
	a.step(ctx, "scheduler", 5*time.Second, a.sched.Stop)

	a.sup.Cancel()

	a.step(ctx, "debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Int("sessions_dropped", a.ctrl.Store().Len()))
	return a.logs.Close()
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped, no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		took := time.Since(start)
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline",
				logx.String("name", name),
				logx.Duration("took", time.Since(start)),
				logx.Err(err),
			)
		}()
	}
}
