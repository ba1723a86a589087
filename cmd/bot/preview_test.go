package main

import (
	"bytes"
	"strings"
	"testing"

	"birdrelay/internal/feed"
)

func TestWriteCards(t *testing.T) {
	posts := []feed.Post{
		{ID: "1", Handle: "nasa", Timestamp: "Mar 01 2023 12:04:05 PM", Link: feed.Permalink("nasa", "1"), Text: "liftoff", Reposts: 1, Favorites: 2, Replies: 3},
		{ID: "2", Handle: "nasa", Timestamp: "Mar 02 2023 01:00:00 AM", Link: feed.Permalink("nasa", "2"), MediaURL: "https://pbs.twimg.com/media/x.jpg"},
	}
	var buf bytes.Buffer
	if err := writeCards(&buf, posts, 0xe67e22); err != nil {
		t.Fatalf("writeCards: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Tweet from nasa at Mar 01 2023 12:04:05 PM",
		"https://twitter.com/nasa/status/1",
		"liftoff",
		"Users gave this tweet 1 retweets, 2 likes, and 3 replies. (Tweet 1/2)",
		"[image] https://pbs.twimg.com/media/x.jpg",
		"(Tweet 2/2)",
		"2 posts selected",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWriteCardsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := writeCards(&buf, nil, 0); err != nil {
		t.Fatalf("writeCards: %v", err)
	}
	if got := buf.String(); got != "no posts selected\n" {
		t.Fatalf("out=%q", got)
	}
}

func TestPreviewRejectsBadArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "mode", args: []string{"preview", "worst", "nasa"}, want: "unknown mode"},
		{name: "handle", args: []string{"preview", "best", "not a handle"}, want: "invalid handle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			rootCmd.SetOut(&out)
			rootCmd.SetErr(&out)
			rootCmd.SetArgs(append(tt.args, "--env", ""))
			err := rootCmd.Execute()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err=%v want %q", err, tt.want)
			}
		})
	}
}
