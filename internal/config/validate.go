package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"leaderbot/internal/task/scheduler"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct tags, duration strings, the refresh schedule and cross-field rules.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", trimRoot(fe.Namespace()), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	durations := map[string]string{
		"telegram.poll_timeout":      cfg.Telegram.PollTimeout,
		"source.timeout":             cfg.Source.Timeout,
		"refresh.fetch_timeout":      cfg.Refresh.FetchTimeout,
		"refresh.render_timeout":     cfg.Refresh.RenderTimeout,
		"refresh.render_retry_delay": cfg.Refresh.RenderRetryDelay,
		"storage.busy_timeout":       cfg.Storage.BusyTimeout,
		"debug.read_timeout":         cfg.Debug.ReadTimeout,
		"debug.write_timeout":        cfg.Debug.WriteTimeout,
		"debug.idle_timeout":         cfg.Debug.IdleTimeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := scheduler.ParseSchedule(cfg.Refresh.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("refresh.schedule: %w", err))
	}
	if tz := strings.TrimSpace(cfg.Refresh.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("refresh.timezone: %w", err))
		}
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: must be a numeric chat id"))
		}
	}
	if cfg.Logging.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.GroupLog) == "" {
		errs = append(errs, errors.New("logging.telegram.enabled requires telegram.group_log"))
	}
	if cfg.Storage.Driver != "none" && cfg.Storage.Driver != "" && strings.TrimSpace(cfg.Storage.Path) == "" {
		errs = append(errs, errors.New("storage.path: required for driver "+cfg.Storage.Driver))
	}
	if cfg.Debug.Enabled && !isLoopback(cfg.Debug.Addr) && strings.TrimSpace(cfg.Debug.Token) == "" && !cfg.Debug.AllowInsecure {
		errs = append(errs, errors.New("debug: non-loopback addr requires token or allow_insecure"))
	}
	return errors.Join(errs...)
}

func trimRoot(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func isLoopback(addr string) bool {
	host := addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		host = addr[:i]
	}
	host = strings.Trim(host, "[]")
	switch host {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return false
}

// GroupLogChatID returns the parsed operator chat id, or 0 when unset.
func (t TelegramConfig) GroupLogChatID() int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(t.GroupLog), 10, 64)
	return id
}

// IsOwner reports whether userID is listed in owner_user_ids.
func (t TelegramConfig) IsOwner(userID int64) bool {
	for _, id := range t.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
