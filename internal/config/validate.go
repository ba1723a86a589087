package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	kit "birdrelay/internal/transport"
)

// Defaults used when a field is omitted.
const (
	DefaultPacing        = 3 * time.Second
	DefaultAckEmoji      = "👍"
	DefaultTimezone      = "America/New_York"
	DefaultAccentColor   = 0xe67e22
	DefaultQuantiles     = 10
	DefaultQuantileCut   = 6
	DefaultMinFeedPosts  = 3
	DefaultMinImagePosts = 2
	DefaultMaxCount      = 1000
	DefaultCount         = 100
	DefaultTwitterURL    = "https://api.twitter.com"
	DefaultHealthAddr    = "127.0.0.1:8080"
)

// Validate checks a parsed config (after ApplyEnv). It does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add("telegram.token is empty (set it or %s)", EnvTelegramToken)
	}
	if len(cfg.Telegram.OwnerUserIDs) == 0 {
		add("telegram.owner_user_ids must list at least one admin")
	}
	if s := strings.TrimSpace(cfg.Telegram.LogChat); s != "" {
		if _, err := kit.ParseChatTarget(s); err != nil {
			add("telegram.log_chat: %v", err)
		}
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(cfg.Twitter.BearerToken) == "" {
		add("twitter.bearer_token is empty (set it or %s)", EnvBearerToken)
	}
	if _, err := ParseDurationField("twitter.timeout", cfg.Twitter.Timeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Twitter.RatePerSec < 0 {
		add("twitter.rate_per_sec must be >= 0")
	}

	if _, err := ParseDurationField("relay.pacing", cfg.Relay.Pacing); err != nil {
		errs = append(errs, err)
	}
	if tz := strings.TrimSpace(cfg.Relay.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("relay.timezone: %v", err)
		}
	}
	if cfg.Relay.DefaultCount < 0 {
		add("relay.default_count must be >= 0")
	}

	sel := cfg.Selector.WithDefaults()
	if sel.Quantiles < 2 {
		add("selector.quantiles must be >= 2")
	}
	if sel.QuantileCut < 1 || sel.QuantileCut >= sel.Quantiles {
		add("selector.quantile_cut must be in [1, %d]", sel.Quantiles-1)
	}
	if sel.MinFeedPosts < 2 {
		add("selector.min_feed_posts must be >= 2")
	}

	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "file", "sqlite", "memory":
		case "postgres":
			if strings.TrimSpace(cfg.Storage.DSN) == "" {
				add("storage.dsn is empty for postgres (set it or %s)", EnvDatabaseURL)
			}
		default:
			add("storage.driver %q is unknown", cfg.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	for _, f := range []struct{ path, raw string }{
		{"health.read_timeout", cfg.Health.ReadTimeout},
		{"health.write_timeout", cfg.Health.WriteTimeout},
		{"health.idle_timeout", cfg.Health.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}

	if tz := strings.TrimSpace(cfg.Schedules.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("schedules.timezone: %v", err)
		}
	}
	seen := map[string]bool{}
	for i, j := range cfg.Schedules.Jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" {
			add("schedules.jobs[%d].name is empty", i)
		} else if seen[name] {
			add("schedules.jobs[%d].name %q is duplicated", i, name)
		}
		seen[name] = true
		if strings.TrimSpace(j.Spec) == "" {
			add("schedules.jobs[%d].spec is empty", i)
		}
		if j.Mode != ModeBest && j.Mode != ModeImages {
			add("schedules.jobs[%d].mode must be %q or %q", i, ModeBest, ModeImages)
		}
		if strings.TrimSpace(j.Handle) == "" {
			add("schedules.jobs[%d].handle is empty", i)
		}
		if j.Count < 0 {
			add("schedules.jobs[%d].count must be >= 0", i)
		}
	}

	return errors.Join(errs...)
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (s SelectorConfig) WithDefaults() SelectorConfig {
	if s.Quantiles == 0 {
		s.Quantiles = DefaultQuantiles
	}
	if s.QuantileCut == 0 {
		s.QuantileCut = DefaultQuantileCut
	}
	if s.MinFeedPosts == 0 {
		s.MinFeedPosts = DefaultMinFeedPosts
	}
	if s.MinImagePosts == 0 {
		s.MinImagePosts = DefaultMinImagePosts
	}
	if s.MaxCount == 0 {
		s.MaxCount = DefaultMaxCount
	}
	return s
}

// PacingDuration returns the inter-message delay.
func (r RelayConfig) PacingDuration() time.Duration {
	return MustDuration(r.Pacing, DefaultPacing)
}

// Ack returns the acknowledgement emoji.
func (r RelayConfig) Ack() string {
	if s := strings.TrimSpace(r.AckEmoji); s != "" {
		return s
	}
	return DefaultAckEmoji
}

// Location returns the display timezone for post timestamps.
func (r RelayConfig) Location() *time.Location {
	return loadLocation(r.Timezone, DefaultTimezone)
}

// Count returns the default number of posts requested by scrape commands.
func (r RelayConfig) Count() int {
	if r.DefaultCount > 0 {
		return r.DefaultCount
	}
	return DefaultCount
}

// Color returns the card accent color.
func (r RelayConfig) Color() int {
	if r.AccentColor > 0 {
		return r.AccentColor
	}
	return DefaultAccentColor
}

// Location returns the timezone cron specs are evaluated in (local time if unset).
func (s SchedulesConfig) Location() *time.Location {
	return loadLocation(s.Timezone, "")
}

func loadLocation(name, def string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		name = def
	}
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
