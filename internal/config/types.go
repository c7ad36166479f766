package config

// Config is the whole bot configuration. Files may be JSON or YAML; secrets can
// be supplied through the environment instead (see ApplyEnv).
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Source      SourceConfig      `json:"source"`
	Leaderboard LeaderboardConfig `json:"leaderboard"`
	Refresh     RefreshConfig     `json:"refresh"`
	Storage     StorageConfig     `json:"storage"`
	Debug       DebugConfig       `json:"debug"`
}

type TelegramConfig struct {
	Token        string  `json:"token" env:"TELEGRAM_TOKEN" validate:"required"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the operator chat id that receives WARN+ log lines.
	GroupLog string `json:"group_log" env:"TELEGRAM_GROUP_LOG"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// SendRatePerSec throttles leaderboard posts/edits (0 = 20/s).
	SendRatePerSec float64 `json:"send_rate_per_sec" validate:"gte=0"`
}

type LoggingConfig struct {
	Level    string          `json:"level" env:"LOG_LEVEL" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

// SourceConfig points at the statistics API.
type SourceConfig struct {
	BaseURL       string  `json:"base_url" env:"API_BASE_URL" validate:"required,url"`
	APIKey        string  `json:"api_key" env:"API_KEY"`
	AffiliateCode string  `json:"affiliate_code" env:"AFFILIATE_CODE" validate:"required"`
	Timeout       string  `json:"timeout"`
	Take          int     `json:"take" validate:"gte=0,lte=1000"`
	RatePerSec    float64 `json:"rate_per_sec" validate:"gte=0"`
	Fields        Fields  `json:"fields"`
}

// Fields names the record keys carrying subject, wager and deposit.
type Fields struct {
	Subject string `json:"subject"`
	Wager   string `json:"wager"`
	Deposit string `json:"deposit"`
}

type LeaderboardConfig struct {
	Title        string `json:"title"`
	Metric       string `json:"metric" validate:"omitempty,oneof=wager deposit"`
	Accumulation string `json:"accumulation" validate:"omitempty,oneof=sum last"`
	Filter       string `json:"filter" validate:"omitempty,oneof=none positive_deposit positive_wager"`
	WindowMode   string `json:"window_mode" validate:"omitempty,oneof=event trailing"`
	TopN         int    `json:"top_n" validate:"gte=0,lte=10"`
}

// RefreshConfig controls the periodic refresh pass. Durations are Go duration strings.
type RefreshConfig struct {
	// Schedule accepts cron ("*/5 * * * *"), Go durations ("5m") or HH:MM ("00:05").
	Schedule         string `json:"schedule"`
	Concurrency      int    `json:"concurrency" validate:"gte=0,lte=64"`
	FetchTimeout     string `json:"fetch_timeout"`
	RenderTimeout    string `json:"render_timeout"`
	RenderAttempts   int    `json:"render_attempts" validate:"gte=0,lte=10"`
	RenderRetryDelay string `json:"render_retry_delay"`
	Timezone         string `json:"timezone,omitempty"`
}

// StorageConfig controls the lifecycle audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./leaderbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=none file sqlite"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DebugConfig controls the optional debug HTTP server (/healthz, /metrics, pprof).
//
// Prefer binding to localhost. A non-loopback address needs a token or allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty" env:"DEBUG_TOKEN"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
