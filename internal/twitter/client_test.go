package twitter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "birdrelay/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, BearerToken: "test-token", RatePerSec: 1000, HTTPClient: srv.Client()}, logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestUserByUsername(t *testing.T) {
	tests := []struct {
		name         string
		username     string
		status       int
		body         string
		wantID       string
		wantErr      bool
		wantNotFound bool
	}{
		{
			name:     "found",
			username: "@nasa",
			status:   http.StatusOK,
			body:     `{"data":{"id":"11348282","name":"NASA","username":"NASA"}}`,
			wantID:   "11348282",
		},
		{
			name:         "not found in errors payload",
			username:     "nobody",
			status:       http.StatusOK,
			body:         `{"errors":[{"title":"Not Found Error","detail":"Could not find user","type":"https://api.twitter.com/2/problems/resource-not-found"}]}`,
			wantErr:      true,
			wantNotFound: true,
		},
		{
			name:     "unauthorized",
			username: "nasa",
			status:   http.StatusUnauthorized,
			body:     `{"title":"Unauthorized","detail":"Unauthorized","type":"about:blank","status":401}`,
			wantErr:  true,
		},
		{
			name:     "empty username",
			username: " ",
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
					t.Errorf("authorization=%q", got)
				}
				if !strings.HasPrefix(r.URL.Path, "/2/users/by/username/") {
					t.Errorf("path=%s", r.URL.Path)
				}
				if strings.Contains(r.URL.Path, "@") {
					t.Errorf("handle prefix not stripped: %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			u, err := c.UserByUsername(context.Background(), tt.username)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", u)
				}
				if tt.wantNotFound != errors.Is(err, ErrNotFound) {
					t.Fatalf("errors.Is(ErrNotFound)=%v for %v", !tt.wantNotFound, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if u.ID != tt.wantID {
				t.Fatalf("id=%q want %q", u.ID, tt.wantID)
			}
		})
	}
}

func TestUserTweetsQueryAndDecode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/users/42/tweets" {
			t.Errorf("path=%s", r.URL.Path)
		}
		q := r.URL.Query()
		checks := map[string]string{
			"max_results":      "5",
			"exclude":          "replies,retweets",
			"expansions":       "attachments.media_keys,referenced_tweets.id",
			"tweet.fields":     "created_at,public_metrics,possibly_sensitive",
			"pagination_token": "abc",
		}
		for k, want := range checks {
			if got := q.Get(k); got != want {
				t.Errorf("%s=%q want %q", k, got, want)
			}
		}
		_, _ = w.Write([]byte(`{
			"data":[
				{"id":"1","text":"hello","created_at":"2023-03-01T17:04:05.000Z",
				 "public_metrics":{"retweet_count":2,"reply_count":3,"like_count":4,"quote_count":0},
				 "attachments":{"media_keys":["3_1"]}},
				{"id":"2","text":"plain","created_at":"2023-03-02T17:04:05.000Z",
				 "public_metrics":{"retweet_count":0,"reply_count":0,"like_count":1,"quote_count":0}}
			],
			"includes":{"media":[{"media_key":"3_1","type":"video","preview_image_url":"https://pbs.example/p.jpg"}]},
			"meta":{"result_count":2,"next_token":"def"}
		}`))
	})

	page, err := c.UserTweets(context.Background(), "42", TimelineParams{MaxResults: 3, PaginationToken: "abc"})
	if err != nil {
		t.Fatalf("user tweets: %v", err)
	}
	if len(page.Tweets) != 2 || page.NextToken != "def" {
		t.Fatalf("page=%+v", page)
	}
	tw := page.Tweets[0]
	if tw.PublicMetrics.LikeCount != 4 || tw.FirstMediaKey() != "3_1" {
		t.Fatalf("tweet=%+v", tw)
	}
	if !tw.CreatedAt.Equal(time.Date(2023, 3, 1, 17, 4, 5, 0, time.UTC)) {
		t.Fatalf("created_at=%s", tw.CreatedAt)
	}
	if page.Tweets[1].FirstMediaKey() != "" {
		t.Fatalf("expected no media key")
	}
	if got := page.Media[0].ImageURL(); got != "https://pbs.example/p.jpg" {
		t.Fatalf("media url fallback=%q", got)
	}
}

func TestUserTweetsRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.UserTweets(context.Background(), "42", TimelineParams{MaxResults: 100})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
}

func TestClampPageSize(t *testing.T) {
	for in, want := range map[int]int{0: 5, 3: 5, 5: 5, 50: 50, 100: 100, 250: 100} {
		if got := clampPageSize(in); got != want {
			t.Fatalf("clamp(%d)=%d want %d", in, got, want)
		}
	}
}
