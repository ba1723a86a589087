package twitter

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when the API reports the requested resource does not exist.
var ErrNotFound = errors.New("twitter: not found")

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type PublicMetrics struct {
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	LikeCount    int `json:"like_count"`
	QuoteCount   int `json:"quote_count"`
}

type Attachments struct {
	MediaKeys []string `json:"media_keys,omitempty"`
}

type Tweet struct {
	ID                string        `json:"id"`
	Text              string        `json:"text"`
	CreatedAt         time.Time     `json:"created_at"`
	PublicMetrics     PublicMetrics `json:"public_metrics"`
	Attachments       *Attachments  `json:"attachments,omitempty"`
	PossiblySensitive bool          `json:"possibly_sensitive,omitempty"`
}

// FirstMediaKey returns the first attached media key, or "".
func (t Tweet) FirstMediaKey() string {
	if t.Attachments == nil || len(t.Attachments.MediaKeys) == 0 {
		return ""
	}
	return t.Attachments.MediaKeys[0]
}

type Media struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url,omitempty"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
}

// ImageURL returns the full-size URL, falling back to the preview for videos and GIFs.
func (m Media) ImageURL() string {
	if m.URL != "" {
		return m.URL
	}
	return m.PreviewImageURL
}

// TimelineParams controls one page of GET /2/users/:id/tweets.
type TimelineParams struct {
	// MaxResults is clamped to the API range [5, 100].
	MaxResults      int
	PaginationToken string
}

// TimelinePage is one page of a user timeline.
type TimelinePage struct {
	Tweets    []Tweet
	Media     []Media
	NextToken string
}

// APIError is a non-2xx response or a v2 "errors" payload.
type APIError struct {
	Status int
	Title  string
	Detail string
	Type   string
}

func (e *APIError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("twitter api (http %d): %s", e.Status, msg)
}

// Is reports resource-not-found problems as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && (e.Status == 404 || e.Type == problemNotFound)
}

const problemNotFound = "https://api.twitter.com/2/problems/resource-not-found"

type apiProblem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}
