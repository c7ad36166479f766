package config

import (
	"strings"
	"time"
)

const (
	DefaultPollTimeout      = "10s"
	DefaultSendRatePerSec   = 20
	DefaultSourceTimeout    = "15s"
	DefaultSourceTake       = 1000
	DefaultSourceRate       = 2
	DefaultSchedule         = "5m"
	DefaultConcurrency      = 4
	DefaultFetchTimeout     = "15s"
	DefaultRenderTimeout    = "10s"
	DefaultRenderAttempts   = 3
	DefaultRenderRetryDelay = "2s"
	DefaultStoragePath      = "./data/leaderbot-audit.jsonl"
	DefaultSQLitePath       = "./data/leaderbot.db"
	DefaultDebugAddr        = "127.0.0.1:6060"
	DefaultDebugPrefix      = "/debug/pprof/"
)

// ApplyDefaults fills zero values in place. It never overwrites explicit settings.
func (c *Config) ApplyDefaults() {
	setStr(&c.Telegram.PollTimeout, DefaultPollTimeout)
	if c.Telegram.SendRatePerSec == 0 {
		c.Telegram.SendRatePerSec = DefaultSendRatePerSec
	}

	setStr(&c.Logging.Level, "info")

	setStr(&c.Source.Timeout, DefaultSourceTimeout)
	if c.Source.Take == 0 {
		c.Source.Take = DefaultSourceTake
	}
	if c.Source.RatePerSec == 0 {
		c.Source.RatePerSec = DefaultSourceRate
	}

	setStr(&c.Leaderboard.Metric, "wager")
	setStr(&c.Leaderboard.Accumulation, "sum")
	setStr(&c.Leaderboard.Filter, "none")
	setStr(&c.Leaderboard.WindowMode, "event")
	if c.Leaderboard.TopN == 0 {
		c.Leaderboard.TopN = 10
	}

	r := &c.Refresh
	setStr(&r.Schedule, DefaultSchedule)
	setStr(&r.FetchTimeout, DefaultFetchTimeout)
	setStr(&r.RenderTimeout, DefaultRenderTimeout)
	setStr(&r.RenderRetryDelay, DefaultRenderRetryDelay)
	if r.Concurrency == 0 {
		r.Concurrency = DefaultConcurrency
	}
	if r.RenderAttempts == 0 {
		r.RenderAttempts = DefaultRenderAttempts
	}

	setStr(&c.Storage.Driver, "file")
	switch c.Storage.Driver {
	case "file":
		setStr(&c.Storage.Path, DefaultStoragePath)
	case "sqlite":
		setStr(&c.Storage.Path, DefaultSQLitePath)
		setStr(&c.Storage.BusyTimeout, "5s")
	}

	setStr(&c.Debug.Addr, DefaultDebugAddr)
	setStr(&c.Debug.Prefix, DefaultDebugPrefix)
}

func setStr(p *string, def string) {
	if strings.TrimSpace(*p) == "" {
		*p = def
	}
}

// Durations below assume Validate has accepted the config.

func (t TelegramConfig) PollTimeoutDuration() time.Duration {
	return mustDuration(t.PollTimeout, 10*time.Second)
}

func (s SourceConfig) TimeoutDuration() time.Duration {
	return mustDuration(s.Timeout, 15*time.Second)
}

func (r RefreshConfig) FetchTimeoutDuration() time.Duration {
	return mustDuration(r.FetchTimeout, 15*time.Second)
}

func (r RefreshConfig) RenderTimeoutDuration() time.Duration {
	return mustDuration(r.RenderTimeout, 10*time.Second)
}

func (r RefreshConfig) RetryDelayDuration() time.Duration {
	return mustDuration(r.RenderRetryDelay, 2*time.Second)
}

func (s StorageConfig) BusyTimeoutDuration() time.Duration {
	return mustDuration(s.BusyTimeout, 5*time.Second)
}

func mustDuration(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}
