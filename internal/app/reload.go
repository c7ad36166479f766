package app

import (
	"context"
	"strings"

	"leaderbot/internal/config"
	logx "leaderbot/pkg/logx"
)

// startReload fans committed configs out to the live components.
func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				next = latest(sub, next)
				a.apply(c, last, next)
				last = next
			}
		}
	})
}

// latest drains queued configs so a burst of writes is applied once.
func latest(sub <-chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case newer := <-sub:
			if newer != nil {
				cur = newer
			}
		default:
			return cur
		}
	}
}

func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	// Target first so Apply does not warn when the Telegram sink is enabled.
	a.logs.SetTelegramTarget(next.Telegram.GroupLogChatID(), next.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogging(next))

	a.router.SetOwners(next.Telegram.OwnerUserIDs)

	if p, err := mapProfile(next); err != nil {
		a.log.Warn("invalid leaderboard profile; keeping previous", logx.Err(err))
	} else {
		a.ctrl.SetPresentation(p, mapFormatter(next))
	}
	if mode, err := mapWindowMode(next); err != nil {
		a.log.Warn("invalid window mode; keeping previous", logx.Err(err))
	} else {
		a.board.SetWindowMode(mode)
	}

	a.refresher.SetOptions(mapRefresh(next))
	if prev.Refresh.Schedule != next.Refresh.Schedule {
		if err := a.sched.Upsert(refreshJob, next.Refresh.Schedule, 0, a.refresher.Run); err != nil {
			a.log.Warn("invalid refresh schedule; keeping previous", logx.Err(err))
		}
	}

	if dc, err := mapDebug(next); err != nil {
		a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
	} else {
		a.debug.Reconfigure(ctx, dc)
	}

	if keys := restartRequired(prev, next); len(keys) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.String("keys", strings.Join(keys, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// restartRequired lists changed keys that are only read at startup.
func restartRequired(prev, next *config.Config) []string {
	var out []string
	add := func(changed bool, key string) {
		if changed {
			out = append(out, key)
		}
	}
	pt, nt := prev.Telegram, next.Telegram
	add(pt.Token != nt.Token, "telegram.token")
	add(pt.PollTimeout != nt.PollTimeout, "telegram.poll_timeout")
	add(pt.SendRatePerSec != nt.SendRatePerSec, "telegram.send_rate_per_sec")

	ps, ns := prev.Source, next.Source
	add(ps.BaseURL != ns.BaseURL || ps.APIKey != ns.APIKey || ps.AffiliateCode != ns.AffiliateCode ||
		ps.Timeout != ns.Timeout || ps.Take != ns.Take || ps.RatePerSec != ns.RatePerSec || ps.Fields != ns.Fields, "source")

	pr, nr := prev.Refresh, next.Refresh
	add(pr.Timezone != nr.Timezone, "refresh.timezone")
	add(pr.FetchTimeout != nr.FetchTimeout, "refresh.fetch_timeout")
	add(pr.RenderTimeout != nr.RenderTimeout, "refresh.render_timeout")

	add(prev.Storage != next.Storage, "storage")
	return out
}
