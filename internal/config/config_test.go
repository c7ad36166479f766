package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "leaderbot/pkg/logx"
)

const validYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
source:
  base_url: "https://stats.example.com"
  affiliate_code: "CODE"
leaderboard:
  metric: deposit
refresh:
  schedule: "2m"
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestParseYAMLAppliesDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.yaml", validYAML), logx.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Leaderboard.Metric != "deposit" {
		t.Fatalf("metric = %q, want deposit", cfg.Leaderboard.Metric)
	}
	if cfg.Leaderboard.Accumulation != "sum" || cfg.Leaderboard.WindowMode != "event" || cfg.Leaderboard.TopN != 10 {
		t.Fatalf("leaderboard defaults = %+v", cfg.Leaderboard)
	}
	if got := cfg.Refresh.FetchTimeoutDuration(); got != 15*time.Second {
		t.Fatalf("fetch timeout = %v, want 15s", got)
	}
	if got := cfg.Refresh.RetryDelayDuration(); got != 2*time.Second {
		t.Fatalf("retry delay = %v, want 2s", got)
	}
	if cfg.Refresh.RenderAttempts != 3 || cfg.Refresh.Concurrency != 4 {
		t.Fatalf("refresh defaults = %+v", cfg.Refresh)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path == "" {
		t.Fatalf("storage defaults = %+v", cfg.Storage)
	}
	if m.Get() != cfg {
		t.Fatalf("Get() did not return committed config")
	}
	if !cfg.Telegram.IsOwner(42) || cfg.Telegram.IsOwner(7) {
		t.Fatalf("IsOwner mismatch")
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "json", path: "c.json", body: `{"telegram":{"token":"x"},"bogus":1}`},
		{name: "yaml", path: "c.yml", body: "telegram:\n  token: x\n  nope: true\n"},
		{name: "trailing", path: "c.json", body: `{"telegram":{}} {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tt.path, []byte(tt.body)); err == nil {
				t.Fatalf("Decode() error = nil, want error")
			}
		})
	}
}

func TestValidateReportsProblems(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		c := &Config{
			Telegram: TelegramConfig{Token: "t"},
			Source:   SourceConfig{BaseURL: "https://x.example", AffiliateCode: "c"},
		}
		c.ApplyDefaults()
		return c
	}
	tests := []struct {
		name string
		mut  func(c *Config)
		want string
	}{
		{name: "ok", mut: func(*Config) {}},
		{name: "missing token", mut: func(c *Config) { c.Telegram.Token = "" }, want: "telegram.token"},
		{name: "bad url", mut: func(c *Config) { c.Source.BaseURL = "not a url" }, want: "source.base_url"},
		{name: "bad metric", mut: func(c *Config) { c.Leaderboard.Metric = "profit" }, want: "leaderboard.metric"},
		{name: "top n", mut: func(c *Config) { c.Leaderboard.TopN = 11 }, want: "leaderboard.top_n"},
		{name: "bad duration", mut: func(c *Config) { c.Refresh.FetchTimeout = "soon" }, want: "refresh.fetch_timeout"},
		{name: "bad schedule", mut: func(c *Config) { c.Refresh.Schedule = "cron:not valid" }, want: "refresh.schedule"},
		{name: "group log", mut: func(c *Config) { c.Telegram.GroupLog = "abc" }, want: "telegram.group_log"},
		{name: "telegram log sink", mut: func(c *Config) { c.Logging.Telegram.Enabled = true }, want: "group_log"},
		{name: "debug exposed", mut: func(c *Config) {
			c.Debug.Enabled = true
			c.Debug.Addr = "0.0.0.0:6060"
		}, want: "debug"},
		{name: "debug token", mut: func(c *Config) {
			c.Debug.Enabled = true
			c.Debug.Addr = "0.0.0.0:6060"
			c.Debug.Token = "secret"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tt.mut(c)
			err := Validate(c)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestApplyEnvOverlaysSecrets(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "from-env")
	t.Setenv("AFFILIATE_CODE", "ENVCODE")

	p := writeFile(t, "config.json", `{"telegram":{"token":"from-file"},"source":{"base_url":"https://x.example","affiliate_code":"FILE"}}`)
	cfg, err := NewManager(p, logx.Nop()).Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want from-env", cfg.Telegram.Token)
	}
	if cfg.Source.AffiliateCode != "ENVCODE" {
		t.Fatalf("affiliate = %q, want ENVCODE", cfg.Source.AffiliateCode)
	}
	if cfg.Source.BaseURL != "https://x.example" {
		t.Fatalf("base url = %q, want file value", cfg.Source.BaseURL)
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.yaml", validYAML)
	m := NewManager(p, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ok, err := m.Reload(context.Background())
	if err != nil || ok {
		t.Fatalf("Reload() unchanged = %v, %v; want false, nil", ok, err)
	}

	if err := os.WriteFile(p, []byte(strings.Replace(validYAML, `"2m"`, `"1m"`, 1)), 0o600); err != nil {
		t.Fatal(err)
	}
	ok, err = m.Reload(context.Background())
	if err != nil || !ok {
		t.Fatalf("Reload() changed = %v, %v; want true, nil", ok, err)
	}
	select {
	case cfg := <-ch:
		if cfg.Refresh.Schedule != "1m" {
			t.Fatalf("published schedule = %q, want 1m", cfg.Refresh.Schedule)
		}
	default:
		t.Fatalf("no config published")
	}
}

func TestReloadRejectedByValidator(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.yaml", validYAML)
	m := NewManager(p, logx.Nop())
	first, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		return context.Canceled
	})
	if err := os.WriteFile(p, []byte(strings.Replace(validYAML, `"2m"`, `"1m"`, 1)), 0o600); err != nil {
		t.Fatal(err)
	}
	if ok, err := m.Reload(context.Background()); ok || err == nil {
		t.Fatalf("Reload() = %v, %v; want rejection", ok, err)
	}
	if m.Get() != first {
		t.Fatalf("rejected config was committed")
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	a := &Config{Telegram: TelegramConfig{Token: "old-secret"}, Source: SourceConfig{APIKey: "apikey-one"}}
	b := &Config{Telegram: TelegramConfig{Token: "new-secret"}, Source: SourceConfig{APIKey: "apikey-two"}, Refresh: RefreshConfig{Schedule: "1m"}}

	changed, attrs := SummarizeConfigChange(a, b)
	want := []string{"refresh", "source", "telegram"}
	if strings.Join(changed, ",") != strings.Join(want, ",") {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	var buf bytes.Buffer
	logx.NewWriter(&buf, "info").Info("config changed", attrs...)
	out := buf.String()
	for _, secret := range []string{"old-secret", "new-secret", "apikey-one", "apikey-two"} {
		if strings.Contains(out, secret) {
			t.Fatalf("summary leaks %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, `"telegram.token_changed":true`) {
		t.Fatalf("summary missing token_changed flag: %s", out)
	}
}
