package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Twitter  TwitterConfig  `json:"twitter"`
	Relay    RelayConfig    `json:"relay"`
	Selector SelectorConfig `json:"selector"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Health   HealthConfig   `json:"health,omitempty"`

	// Schedules triggers scrape sessions on cron specs.
	Schedules SchedulesConfig `json:"schedules,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty and provided via TELEGRAM_TOKEN.
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// LogChat is the chat receiving mirrored log lines ("<chat_id>" or "<chat_id>:<thread_id>").
	LogChat string `json:"log_chat,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

// TwitterConfig controls the X/Twitter v2 API client.
//
// Defaults:
//   - base_url: "https://api.twitter.com"
//   - timeout: "15s"
//   - rate_per_sec: 1 (burst 3)
type TwitterConfig struct {
	// BearerToken may be left empty and provided via BEARER_TOKEN (do not log).
	BearerToken string `json:"bearer_token"`
	BaseURL     string `json:"base_url,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

// RelayConfig controls delivery of selected posts.
//
// Defaults:
//   - pacing: "3s"
//   - ack_emoji: "👍"
//   - timezone: "America/New_York"
//   - accent_color: 0xe67e22
//   - select_button: true
//   - default_count: 100
type RelayConfig struct {
	Pacing       string `json:"pacing,omitempty"`
	AckEmoji     string `json:"ack_emoji,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	AccentColor  int    `json:"accent_color,omitempty"`
	SelectButton *bool  `json:"select_button,omitempty"`
	DefaultCount int    `json:"default_count,omitempty"`
}

// SelectorConfig tunes the outlier selection.
//
// Defaults:
//   - quantiles: 10
//   - quantile_cut: 6 (the 6th of 10 cut points, i.e. the 60th percentile)
//   - min_feed_posts: 3
//   - min_image_posts: 2
//   - max_count: 1000
type SelectorConfig struct {
	Quantiles     int `json:"quantiles,omitempty"`
	QuantileCut   int `json:"quantile_cut,omitempty"`
	MinFeedPosts  int `json:"min_feed_posts,omitempty"`
	MinImagePosts int `json:"min_image_posts,omitempty"`
	MaxCount      int `json:"max_count,omitempty"`
}

// StorageConfig controls the settings store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./birdrelay.db" }
//
// Drivers: file (default), sqlite, postgres, memory.
// For postgres the DSN may be provided via DATABASE_URL.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// HealthConfig controls the liveness/metrics HTTP server.
//
// Security note:
//   - Prefer binding to localhost.
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
//     "/" and "/healthz" stay public so external keep-alive pingers work.
type HealthConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token         string `json:"token,omitempty"` // optional bearer token for /readyz and /metrics
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Systemd enables sd_notify READY/STOPPING and watchdog pings when run under systemd.
	Systemd bool `json:"systemd,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	// Format is "json" (default) or "text".
	Format string `json:"format,omitempty"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulesConfig controls cron-triggered scrapes.
type SchedulesConfig struct {
	Enabled  bool          `json:"enabled"`
	Timezone string        `json:"timezone,omitempty"`
	Jobs     []ScheduleJob `json:"jobs,omitempty"`
}

// ScheduleJob triggers one scrape session into the configured scrape channel.
//
// Spec accepts an optional seconds field and descriptors ("@every 6h", "@daily").
type ScheduleJob struct {
	Name   string `json:"name"`
	Spec   string `json:"spec"`
	Mode   string `json:"mode"` // "best" or "images"
	Handle string `json:"handle"`
	Count  int    `json:"count,omitempty"`
}

const (
	ModeBest   = "best"
	ModeImages = "images"
)

// SelectButtonEnabled reports whether relayed posts carry the select button.
func (r RelayConfig) SelectButtonEnabled() bool {
	return r.SelectButton == nil || *r.SelectButton
}
