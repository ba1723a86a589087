package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"birdrelay/internal/config"
	"birdrelay/internal/feed"
	"birdrelay/internal/health"
	"birdrelay/internal/relay"
	kit "birdrelay/internal/transport"
	"birdrelay/internal/twitter"
	logx "birdrelay/pkg/logx"
)

// probeHandle is resolved by /test_client to check the bearer token.
const probeHandle = "TwitterDev"

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
			Format:  cfg.Logging.File.Format,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			ThreadID:   cfg.Logging.Chat.ThreadID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

// logChatTarget returns the log chat, or a zero target when unset or invalid.
func logChatTarget(cfg *config.Config) kit.ChatTarget {
	raw := strings.TrimSpace(cfg.Telegram.LogChat)
	if raw == "" {
		return kit.ChatTarget{}
	}
	t, err := kit.ParseChatTarget(raw)
	if err != nil {
		return kit.ChatTarget{}
	}
	if t.ThreadID == 0 {
		t.ThreadID = cfg.Logging.Chat.ThreadID
	}
	return t
}

func mapDeliveryOptions(cfg *config.Config) relay.DeliveryOptions {
	return relay.DeliveryOptions{
		Pacing:       cfg.Relay.PacingDuration(),
		AckEmoji:     cfg.Relay.Ack(),
		Color:        cfg.Relay.Color(),
		SelectButton: cfg.Relay.SelectButtonEnabled(),
	}
}

func mapHealthConfig(cfg *config.Config) (health.Config, error) {
	h := cfg.Health
	addr := strings.TrimSpace(h.Addr)
	if addr == "" {
		addr = config.DefaultHealthAddr
	}
	read, err := config.ParseDurationOrDefault("health.read_timeout", h.ReadTimeout, 5*time.Second)
	if err != nil {
		return health.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("health.write_timeout", h.WriteTimeout, 10*time.Second)
	if err != nil {
		return health.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("health.idle_timeout", h.IdleTimeout, 60*time.Second)
	if err != nil {
		return health.Config{}, err
	}
	return health.Config{
		Enabled:       h.Enabled,
		Addr:          addr,
		Token:         strings.TrimSpace(h.Token),
		AllowInsecure: h.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

// NewTwitterClient builds the source API client from cfg.
func NewTwitterClient(cfg *config.Config, log logx.Logger) (*twitter.Client, error) {
	timeout, err := config.ParseDurationOrDefault("twitter.timeout", cfg.Twitter.Timeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	return twitter.New(twitter.Config{
		BaseURL:     cfg.Twitter.BaseURL,
		BearerToken: cfg.Twitter.BearerToken,
		Timeout:     timeout,
		RatePerSec:  cfg.Twitter.RatePerSec,
	}, log.With(logx.String("comp", "twitter")))
}

// NewSelector builds the post selector over tl from cfg.
func NewSelector(cfg *config.Config, tl feed.Timeline, log logx.Logger) *feed.Selector {
	sc := cfg.Selector.WithDefaults()
	return feed.NewSelector(tl, feed.Options{
		Quantiles:     sc.Quantiles,
		QuantileCut:   sc.QuantileCut,
		MinFeedPosts:  sc.MinFeedPosts,
		MinImagePosts: sc.MinImagePosts,
		MaxCount:      sc.MaxCount,
		Location:      cfg.Relay.Location(),
	}, log.With(logx.String("comp", "selector")))
}

func probeFunc(c *twitter.Client) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		u, err := c.UserByUsername(ctx, probeHandle)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("resolved @%s (id %s)", u.Username, u.ID), nil
	}
}
