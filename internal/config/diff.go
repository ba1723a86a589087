package config

import (
	"reflect"
	"strings"

	logx "birdrelay/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe structured
// attrs for logging. Secrets (tokens, DSNs) are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	o, n := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(o.PollTimeout) != strings.TrimSpace(n.PollTimeout) ||
		!reflect.DeepEqual(o.OwnerUserIDs, n.OwnerUserIDs) ||
		strings.TrimSpace(o.LogChat) != strings.TrimSpace(n.LogChat) ||
		o.Token != n.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(n.PollTimeout)),
			logx.Int("telegram.owner_count", len(n.OwnerUserIDs)),
			logx.Bool("telegram.log_chat_set", strings.TrimSpace(n.LogChat) != ""),
			logx.Bool("telegram.token_changed", o.Token != n.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Twitter, newCfg.Twitter) {
		t := newCfg.Twitter
		changed = append(changed, "twitter")
		attrs = append(attrs,
			logx.String("twitter.base_url", strings.TrimSpace(t.BaseURL)),
			logx.String("twitter.timeout", strings.TrimSpace(t.Timeout)),
			logx.Int("twitter.rate_per_sec", t.RatePerSec),
			logx.Bool("twitter.bearer_changed", oldCfg.Twitter.BearerToken != t.BearerToken),
		)
	}

	if !reflect.DeepEqual(oldCfg.Relay, newCfg.Relay) {
		r := newCfg.Relay
		changed = append(changed, "relay")
		attrs = append(attrs,
			logx.Duration("relay.pacing", r.PacingDuration()),
			logx.String("relay.ack_emoji", r.Ack()),
			logx.String("relay.timezone", r.Location().String()),
			logx.Bool("relay.select_button", r.SelectButtonEnabled()),
			logx.Int("relay.default_count", r.Count()),
		)
	}

	if oldCfg.Selector.WithDefaults() != newCfg.Selector.WithDefaults() {
		s := newCfg.Selector.WithDefaults()
		changed = append(changed, "selector")
		attrs = append(attrs,
			logx.Int("selector.quantiles", s.Quantiles),
			logx.Int("selector.quantile_cut", s.QuantileCut),
			logx.Int("selector.min_feed_posts", s.MinFeedPosts),
			logx.Int("selector.min_image_posts", s.MinImagePosts),
			logx.Int("selector.max_count", s.MaxCount),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		l := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", l.Level),
			logx.Bool("logx.console", l.Console),
			logx.Bool("logx.file_enabled", l.File.Enabled),
			logx.String("logx.file_format", l.File.Format),
			logx.Bool("logx.chat_enabled", l.Chat.Enabled),
		)
	}

	os0, ns := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if os0 != ns {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", ns.Driver),
			logx.String("storage.path", ns.Path),
			logx.Bool("storage.dsn_set", ns.DSN != ""),
			logx.Bool("storage.restart_required", true),
		)
	}

	if oldCfg.Health != newCfg.Health {
		h := newCfg.Health
		changed = append(changed, "health")
		attrs = append(attrs,
			logx.Bool("health.enabled", h.Enabled),
			logx.String("health.addr", strings.TrimSpace(h.Addr)),
			logx.Bool("health.token_set", strings.TrimSpace(h.Token) != ""),
			logx.Bool("health.allow_insecure", h.AllowInsecure),
		)
	}

	if !reflect.DeepEqual(oldCfg.Schedules, newCfg.Schedules) {
		s := newCfg.Schedules
		changed = append(changed, "schedules")
		attrs = append(attrs,
			logx.Bool("schedules.enabled", s.Enabled),
			logx.String("schedules.timezone", strings.TrimSpace(s.Timezone)),
			logx.Int("schedules.jobs", len(s.Jobs)),
		)
	}

	return changed, attrs
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}
