// Package twitter is a minimal X/Twitter API v2 client covering user lookup
// and user timelines, authenticated with an app-only bearer token.
package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	logx "birdrelay/pkg/logx"
)

const (
	DefaultBaseURL = "https://api.twitter.com"

	minPageSize = 5
	maxPageSize = 100
)

type Config struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
	// RatePerSec bounds outgoing requests (0 means 1/s). Burst is 3.
	RatePerSec int
	// HTTPClient is the base transport (tests inject httptest clients). Optional.
	HTTPClient *http.Client
}

type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	token := strings.TrimSpace(cfg.BearerToken)
	if token == "" {
		return nil, errors.New("twitter bearer token is empty")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("twitter base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	hc.Timeout = timeout

	return &Client{
		base:    base,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(rps), 3),
		log:     log,
	}, nil
}

// UserByUsername resolves a handle (without "@") to a user.
func (c *Client) UserByUsername(ctx context.Context, username string) (*User, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, errors.New("username empty")
	}
	var body struct {
		Data   *User        `json:"data"`
		Errors []apiProblem `json:"errors"`
	}
	if err := c.get(ctx, "/2/users/by/username/"+url.PathEscape(username), nil, &body); err != nil {
		return nil, err
	}
	if body.Data == nil {
		if len(body.Errors) > 0 {
			p := body.Errors[0]
			return nil, &APIError{Status: http.StatusOK, Title: p.Title, Detail: p.Detail, Type: p.Type}
		}
		return nil, ErrNotFound
	}
	return body.Data, nil
}

// UserTweets returns one page of a user's own posts (replies and retweets excluded),
// with creation time, public metrics and expanded media.
func (c *Client) UserTweets(ctx context.Context, userID string, p TimelineParams) (*TimelinePage, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("userID empty")
	}
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(clampPageSize(p.MaxResults)))
	q.Set("exclude", "replies,retweets")
	q.Set("expansions", "attachments.media_keys,referenced_tweets.id")
	q.Set("media.fields", "url,preview_image_url,public_metrics")
	q.Set("tweet.fields", "created_at,public_metrics,possibly_sensitive")
	if p.PaginationToken != "" {
		q.Set("pagination_token", p.PaginationToken)
	}

	var body struct {
		Data     []Tweet `json:"data"`
		Includes struct {
			Media []Media `json:"media"`
		} `json:"includes"`
		Meta struct {
			ResultCount int    `json:"result_count"`
			NextToken   string `json:"next_token"`
		} `json:"meta"`
		Errors []apiProblem `json:"errors"`
	}
	if err := c.get(ctx, "/2/users/"+url.PathEscape(userID)+"/tweets", q, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 && len(body.Errors) > 0 {
		pr := body.Errors[0]
		return nil, &APIError{Status: http.StatusOK, Title: pr.Title, Detail: pr.Detail, Type: pr.Type}
	}
	return &TimelinePage{
		Tweets:    body.Data,
		Media:     body.Includes.Media,
		NextToken: body.Meta.NextToken,
	}, nil
}

func clampPageSize(n int) int {
	return max(minPageSize, min(n, maxPageSize))
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("failed to close response body", logx.Err(err))
		}
	}()
	c.log.Debug("twitter request", logx.String("path", path), logx.Int("status", resp.StatusCode), logx.Duration("took", time.Since(start)))

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		var pr apiProblem
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(b, &pr) == nil {
			apiErr.Title, apiErr.Detail, apiErr.Type = pr.Title, pr.Detail, pr.Type
		}
		if apiErr.Title == "" {
			apiErr.Title = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("twitter decode %s: %w", path, err)
	}
	return nil
}
