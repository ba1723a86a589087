package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets from the config file.
const (
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvBearerToken   = "BEARER_TOKEN"
	EnvDatabaseURL   = "DATABASE_URL"
)

// LoadDotEnv loads KEY=VALUE files into the process environment.
// Missing files are ignored; variables already set are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv fills secrets from the environment. Non-empty environment values win.
func ApplyEnv(cfg *Config) {
	applyEnv(cfg, os.Getenv)
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvBearerToken)); v != "" {
		cfg.Twitter.BearerToken = v
	}
	if v := strings.TrimSpace(getenv(EnvDatabaseURL)); v != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "postgres"}
		}
		if strings.EqualFold(cfg.Storage.Driver, "postgres") {
			cfg.Storage.DSN = v
		}
	}
}
