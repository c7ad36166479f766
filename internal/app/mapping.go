package app

import (
	"fmt"
	"strings"
	"time"

	"leaderbot/internal/config"
	"leaderbot/internal/leaderboard"
	"leaderbot/internal/observability/debug"
	"leaderbot/internal/render"
	"leaderbot/internal/session"
	"leaderbot/internal/source"
	"leaderbot/internal/storage"
	logx "leaderbot/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapProfile(cfg *config.Config) (leaderboard.Profile, error) {
	lb := cfg.Leaderboard
	p := leaderboard.Profile{
		Fields: leaderboard.FieldMap{
			Subject: cfg.Source.Fields.Subject,
			Wager:   cfg.Source.Fields.Wager,
			Deposit: cfg.Source.Fields.Deposit,
		},
		Accumulation: leaderboard.Accumulation(strings.ToLower(strings.TrimSpace(lb.Accumulation))),
		Filter:       leaderboard.Filter(strings.ToLower(strings.TrimSpace(lb.Filter))),
		Metric:       leaderboard.Metric(strings.ToLower(strings.TrimSpace(lb.Metric))),
		TopN:         lb.TopN,
	}.Normalize()
	if err := p.Validate(); err != nil {
		return leaderboard.Profile{}, err
	}
	return p, nil
}

func mapFormatter(cfg *config.Config) render.Formatter {
	return render.NewFormatter(cfg.Leaderboard.Title)
}

func mapWindowMode(cfg *config.Config) (session.WindowMode, error) {
	m, err := session.ParseWindowMode(cfg.Leaderboard.WindowMode)
	if err != nil {
		return "", fmt.Errorf("leaderboard.window_mode: %w", err)
	}
	return m, nil
}

func mapSource(cfg *config.Config, p leaderboard.Profile) source.Options {
	return source.Options{
		BaseURL:       cfg.Source.BaseURL,
		APIKey:        cfg.Source.APIKey,
		AffiliateCode: cfg.Source.AffiliateCode,
		Timeout:       cfg.Source.TimeoutDuration(),
		Take:          cfg.Source.Take,
		RatePerSec:    cfg.Source.RatePerSec,
		Fields:        p.Fields,
	}
}

func mapSessionOptions(cfg *config.Config, p leaderboard.Profile) session.Options {
	return session.Options{
		Profile:       p,
		Formatter:     mapFormatter(cfg),
		FetchTimeout:  cfg.Refresh.FetchTimeoutDuration(),
		RenderTimeout: cfg.Refresh.RenderTimeoutDuration(),
	}
}

func mapRefresh(cfg *config.Config) session.RefreshOptions {
	return session.RefreshOptions{
		Concurrency:    cfg.Refresh.Concurrency,
		RenderAttempts: cfg.Refresh.RenderAttempts,
		RetryDelay:     cfg.Refresh.RetryDelayDuration(),
	}
}

func mapStorage(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: cfg.Storage.BusyTimeoutDuration(),
	}
}

func mapDebug(cfg *config.Config) (debug.Config, error) {
	d := cfg.Debug
	out := debug.Config{
		Enabled:       d.Enabled,
		Addr:          d.Addr,
		Prefix:        d.Prefix,
		Token:         d.Token,
		AllowInsecure: d.AllowInsecure,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("debug.read_timeout", d.ReadTimeout, 10*time.Second); err != nil {
		return debug.Config{}, err
	}
	// Profiles and traces stream for up to their requested duration.
	if out.WriteTimeout, err = config.ParseDurationOrDefault("debug.write_timeout", d.WriteTimeout, 60*time.Second); err != nil {
		return debug.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("debug.idle_timeout", d.IdleTimeout, 60*time.Second); err != nil {
		return debug.Config{}, err
	}
	return out, nil
}

// validateRuntime checks what config.Validate cannot: values that only the
// runtime types know how to interpret.
func validateRuntime(cfg *config.Config) error {
	if _, err := mapProfile(cfg); err != nil {
		return err
	}
	if _, err := mapWindowMode(cfg); err != nil {
		return err
	}
	if _, err := mapDebug(cfg); err != nil {
		return err
	}
	return nil
}
