package storage

import (
	"context"
	"errors"
	"time"

	kit "birdrelay/internal/transport"
)

var ErrDisabled = errors.New("storage disabled")

// Setting keys.
const (
	KeyScrapeChannel = "SCRAPE_CHANNEL"
	KeySelectChannel = "SELECT_CHANNEL"
)

// Config configures storage.
//
// Driver values:
//   - "file" (default): dependency-free file backend (json snapshot + journal)
//   - "sqlite": SQLite database file
//   - "postgres": PostgreSQL via pgx (DSN required)
//   - "memory": process-local, lost on restart
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Settings is the small persistent key/value store the bot keeps its
// channel configuration in, plus an append-only audit log.
type Settings interface {
	// Get returns the value for key; ok is false when the key was never set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// AuditEntry records an operator action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id"`
	ThreadID      int       `json:"thread_id,omitempty"`
	Action        string    `json:"action"`
	Target        string    `json:"target,omitempty"`
	OK            int       `json:"ok"`
	Fail          int       `json:"fail"`
	Error         string    `json:"err,omitempty"`
	TookMS        int64     `json:"took_ms"`
}

// GetChat reads a chat target setting. ok is false when unset.
func GetChat(ctx context.Context, s Settings, key string) (kit.ChatTarget, bool, error) {
	if s == nil {
		return kit.ChatTarget{}, false, ErrDisabled
	}
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return kit.ChatTarget{}, false, err
	}
	t, err := kit.ParseChatTarget(v)
	if err != nil {
		return kit.ChatTarget{}, false, err
	}
	return t, true, nil
}

// SetChat stores a chat target setting.
func SetChat(ctx context.Context, s Settings, key string, t kit.ChatTarget) error {
	if s == nil {
		return ErrDisabled
	}
	return s.Set(ctx, key, t.String())
}
