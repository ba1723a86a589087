package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
telegram:
  token: "t"
  owner_user_ids: [42]
  poll_timeout: "10s"
twitter:
  bearer_token: "b"
relay:
  pacing: "2s"
selector:
  quantile_cut: 7
logging:
  level: "info"
  console: true
  file:
    enabled: false
    path: ""
  chat:
    enabled: false
    thread_id: 0
    min_level: "warn"
    rate_per_sec: 1
schedules:
  enabled: true
  jobs:
    - name: "nightly"
      spec: "0 0 3 * * *"
      mode: "best"
      handle: "nasa"
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", validYAML)
	m := NewConfigManager(p)
	m.getenv = func(string) string { return "" }

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("owner ids not decoded: %+v", cfg.Telegram.OwnerUserIDs)
	}
	if got := cfg.Relay.PacingDuration(); got != 2*time.Second {
		t.Fatalf("pacing=%s", got)
	}
	if got := cfg.Selector.WithDefaults(); got.QuantileCut != 7 || got.Quantiles != 10 || got.MinFeedPosts != 3 {
		t.Fatalf("selector defaults not applied: %+v", got)
	}
	if m.Get() != cfg {
		t.Fatalf("Load did not commit")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want string
	}{
		{name: "unknown json field", path: "c.json", body: `{"telegram":{"tokn":"x"}}`, want: "unknown field"},
		{name: "unknown yaml field", path: "c.yml", body: "telegram:\n  tokn: x\n", want: "unknown field"},
		{name: "trailing data", path: "c.json", body: `{} {}`, want: "unexpected data after the config object"},
		{name: "empty json", path: "c.json", body: "  \n", want: "config file is empty"},
		{name: "comments only yaml", path: "c.yaml", body: "# nothing yet\n", want: "config file is empty"},
		{name: "bad yaml", path: "c.yaml", body: "telegram: [\n", want: "parse yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.path, []byte(tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err=%v want %q", err, tt.want)
			}
			if !strings.HasPrefix(err.Error(), tt.path+":") {
				t.Fatalf("error does not name the file: %v", err)
			}
		})
	}
}

func TestDecodeYAMLNestedLists(t *testing.T) {
	cfg, err := Decode("c.yaml", []byte(validYAML))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cfg.Schedules.Jobs) != 1 || cfg.Schedules.Jobs[0].Handle != "nasa" {
		t.Fatalf("jobs=%+v", cfg.Schedules.Jobs)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("owners=%v", cfg.Telegram.OwnerUserIDs)
	}
}

func TestApplyEnvOverridesSecrets(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "file"}}
	env := map[string]string{
		EnvTelegramToken: "env-token",
		EnvBearerToken:   "env-bearer",
		EnvDatabaseURL:   "postgres://x",
	}
	applyEnv(cfg, func(k string) string { return env[k] })

	if cfg.Telegram.Token != "env-token" || cfg.Twitter.BearerToken != "env-bearer" {
		t.Fatalf("secrets not applied: %+v", cfg)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "postgres" || cfg.Storage.DSN != "postgres://x" {
		t.Fatalf("DATABASE_URL not applied: %+v", cfg.Storage)
	}

	// DATABASE_URL does not hijack an explicit non-postgres driver.
	cfg2 := &Config{Storage: &StorageConfig{Driver: "sqlite", Path: "x.db"}}
	applyEnv(cfg2, func(k string) string { return env[k] })
	if cfg2.Storage.DSN != "" {
		t.Fatalf("dsn should stay empty for sqlite")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t", OwnerUserIDs: []int64{1}},
			Twitter:  TwitterConfig{BearerToken: "b"},
		}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "no token", mutate: func(c *Config) { c.Telegram.Token = "" }, wantErr: "telegram.token"},
		{name: "no owners", mutate: func(c *Config) { c.Telegram.OwnerUserIDs = nil }, wantErr: "owner_user_ids"},
		{name: "no bearer", mutate: func(c *Config) { c.Twitter.BearerToken = "" }, wantErr: "bearer_token"},
		{name: "bad pacing", mutate: func(c *Config) { c.Relay.Pacing = "fast" }, wantErr: "relay.pacing"},
		{name: "bad tz", mutate: func(c *Config) { c.Relay.Timezone = "Mars/Olympus" }, wantErr: "relay.timezone"},
		{name: "cut too big", mutate: func(c *Config) { c.Selector.QuantileCut = 10 }, wantErr: "quantile_cut"},
		{name: "bad log chat", mutate: func(c *Config) { c.Telegram.LogChat = "x" }, wantErr: "log_chat"},
		{name: "pg without dsn", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "postgres"} }, wantErr: "storage.dsn"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "redis"} }, wantErr: "storage.driver"},
		{name: "bad job mode", mutate: func(c *Config) {
			c.Schedules.Jobs = []ScheduleJob{{Name: "a", Spec: "@daily", Mode: "all", Handle: "x"}}
		}, wantErr: "mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := Validate(c)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("want error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	old := &Config{Twitter: TwitterConfig{BearerToken: "secret-1"}}
	cur := &Config{Twitter: TwitterConfig{BearerToken: "secret-2"}, Relay: RelayConfig{Pacing: "5s"}}

	changed, attrs := SummarizeConfigChange(old, cur)
	if strings.Join(changed, ",") != "twitter,relay" {
		t.Fatalf("changed=%v", changed)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", validYAML)
	m := NewConfigManager(p)
	m.getenv = func(string) string { return "" }
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "config.yaml", strings.Replace(validYAML, `pacing: "2s"`, `pacing: "4s"`, 1))

	select {
	case cfg := <-sub:
		if cfg.Relay.PacingDuration() != 4*time.Second {
			t.Fatalf("pacing=%s", cfg.Relay.PacingDuration())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for reload")
	}

	cancel()
	<-done
}
