package config

import (
	"reflect"
	"sort"
	"strings"

	logx "leaderbot/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// attributes for logging. Secrets (bot token, API key, debug token) are only
// ever reported as "set" booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 24)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.PollTimeout != nt.PollTimeout || ot.GroupLog != nt.GroupLog ||
		ot.SendRatePerSec != nt.SendRatePerSec || ot.Token != nt.Token ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", nt.PollTimeout),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		l := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.file_enabled", l.File.Enabled),
			logx.Bool("logging.telegram_enabled", l.Telegram.Enabled),
		)
	}

	so, sn := oldCfg.Source, newCfg.Source
	if so.BaseURL != sn.BaseURL || so.AffiliateCode != sn.AffiliateCode || so.APIKey != sn.APIKey ||
		so.Timeout != sn.Timeout || so.Take != sn.Take || so.RatePerSec != sn.RatePerSec || so.Fields != sn.Fields {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.base_url", sn.BaseURL),
			logx.Bool("source.api_key_set", sn.APIKey != ""),
			logx.String("source.timeout", sn.Timeout),
			logx.Int("source.take", sn.Take),
		)
	}

	if oldCfg.Leaderboard != newCfg.Leaderboard {
		lb := newCfg.Leaderboard
		changed = append(changed, "leaderboard")
		attrs = append(attrs,
			logx.String("leaderboard.metric", lb.Metric),
			logx.String("leaderboard.accumulation", lb.Accumulation),
			logx.String("leaderboard.filter", lb.Filter),
			logx.String("leaderboard.window_mode", lb.WindowMode),
			logx.Int("leaderboard.top_n", lb.TopN),
		)
	}

	if oldCfg.Refresh != newCfg.Refresh {
		r := newCfg.Refresh
		changed = append(changed, "refresh")
		attrs = append(attrs,
			logx.String("refresh.schedule", r.Schedule),
			logx.Int("refresh.concurrency", r.Concurrency),
			logx.Int("refresh.render_attempts", r.RenderAttempts),
			logx.String("refresh.render_retry_delay", r.RenderRetryDelay),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		s := newCfg.Storage
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", s.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(s.Path) != ""),
		)
	}

	od, nd := oldCfg.Debug, newCfg.Debug
	if od.Enabled != nd.Enabled || od.Addr != nd.Addr || od.Prefix != nd.Prefix ||
		od.AllowInsecure != nd.AllowInsecure || od.Token != nd.Token ||
		od.ReadTimeout != nd.ReadTimeout || od.WriteTimeout != nd.WriteTimeout || od.IdleTimeout != nd.IdleTimeout {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nd.Enabled),
			logx.String("debug.addr", nd.Addr),
			logx.Bool("debug.token_set", nd.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
