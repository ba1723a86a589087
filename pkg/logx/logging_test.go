package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	kit "birdrelay/internal/transport"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	to   []kit.ChatTarget
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.to = append(f.to, to)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) snapshot() ([]string, []kit.ChatTarget) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), append([]kit.ChatTarget(nil), f.to...)
}

func TestFileSinkFormats(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, line string)
	}{
		{format: "json", check: func(t *testing.T, line string) {
			var m map[string]any
			if err := json.Unmarshal([]byte(line), &m); err != nil {
				t.Fatalf("not json: %q", line)
			}
			if m["message"] != "scrape started" || m["handle"] != "nasa" || m["level"] != "info" {
				t.Fatalf("fields=%v", m)
			}
		}},
		{format: "text", check: func(t *testing.T, line string) {
			re := regexp.MustCompile(`^\[\d{2}/\d{2}/\d{4} \d{2}:\d{2}:\d{2}\] INF scrape started`)
			if !re.MatchString(line) {
				t.Fatalf("line=%q", line)
			}
			if !strings.Contains(line, "handle=nasa") {
				t.Fatalf("missing field: %q", line)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bot.log")
			svc, log := New(Config{Level: "INFO", File: FileConfig{Enabled: true, Path: path, Format: tt.format}}, nil)
			log.Info("scrape started", String("handle", "nasa"))
			log.Debug("hidden")
			_ = svc.Close()

			b, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			lines := strings.Split(strings.TrimSpace(string(b)), "\n")
			if len(lines) != 1 {
				t.Fatalf("lines=%q", lines)
			}
			tt.check(t, lines[0])
		})
	}
}

func TestChatSink(t *testing.T) {
	sender := &fakeSender{}
	svc, log := New(Config{Level: "INFO", Chat: ChatConfig{Enabled: true, MinLevel: "WARN", RatePerSec: 5}}, sender)
	defer svc.Close()
	svc.SetChatTarget(-100, 7)

	log.Info("below min level")
	log.Warn("delivery failed", Int("item", 3))

	deadline := time.Now().Add(2 * time.Second)
	for {
		sent, to := sender.snapshot()
		if len(sent) > 0 {
			if len(sent) != 1 || !strings.HasPrefix(sent[0], "[WARN] delivery failed") || !strings.Contains(sent[0], "- item=3") {
				t.Fatalf("sent=%q", sent)
			}
			if to[0] != (kit.ChatTarget{ChatID: -100, ThreadID: 7}) {
				t.Fatalf("to=%+v", to[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("nothing mirrored to chat")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLoggerZeroAndWith(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	zero.Info("dropped")

	var buf bytes.Buffer
	log := NewWriter(&buf, "DEBUG").With(String("comp", "relay"))
	log.Debug("tick", Err(nil), Duration("wait", 3*time.Second))
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("json: %v (%q)", err, buf.String())
	}
	if m["comp"] != "relay" || m["message"] != "tick" {
		t.Fatalf("fields=%v", m)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghijkl", 11); got != "abcdefgh..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
}
