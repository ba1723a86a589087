// Package feed fetches an author's recent posts and picks the ones worth relaying.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"birdrelay/internal/twitter"
	logx "birdrelay/pkg/logx"
)

const (
	// MinFeedPosts is the smallest feed the statistics are computed on.
	MinFeedPosts = 3
	// MinImagePosts is the smallest useful image selection.
	MinImagePosts = 2

	pageLimit = 100
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrInsufficientPosts = errors.New("not enough posts")
)

// FetchError wraps a transport or API failure while fetching a feed.
type FetchError struct {
	Op     string
	Handle string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for @%s: %v", e.Op, e.Handle, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchFailure reports whether err belongs to the fetch family: a FetchError,
// an unknown user or too few posts. Callers answer all of them the same way.
func IsFetchFailure(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) || errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInsufficientPosts)
}

// Timeline is the source API the selector reads from.
type Timeline interface {
	UserByUsername(ctx context.Context, username string) (*twitter.User, error)
	UserTweets(ctx context.Context, userID string, p twitter.TimelineParams) (*twitter.TimelinePage, error)
}

// Options tunes the selector. Zero fields take defaults.
type Options struct {
	// Quantiles is the number of equal-probability intervals (default 10).
	Quantiles int
	// QuantileCut is the 1-based cut point used as threshold (default 6, the 60th percentile).
	QuantileCut   int
	MinFeedPosts  int
	MinImagePosts int
	// MaxCount caps the requested number of posts (default 1000).
	MaxCount int
	// Location is the display timezone of post timestamps (default UTC).
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.Quantiles < 2 {
		o.Quantiles = 10
	}
	if o.QuantileCut < 1 || o.QuantileCut >= o.Quantiles {
		o.QuantileCut = min(6, o.Quantiles-1)
	}
	if o.MinFeedPosts < 2 {
		o.MinFeedPosts = MinFeedPosts
	}
	if o.MinImagePosts < 1 {
		o.MinImagePosts = MinImagePosts
	}
	if o.MaxCount <= 0 {
		o.MaxCount = 1000
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

type Selector struct {
	src  Timeline
	opts Options
	log  logx.Logger
}

func NewSelector(src Timeline, opts Options, log logx.Logger) *Selector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Selector{src: src, opts: opts.withDefaults(), log: log}
}

// Options returns the effective options.
func (s *Selector) Options() Options { return s.opts }

// FetchFeed reads up to count of handle's most recent posts (replies and reposts
// excluded), following pagination, and resolves each post's first media item.
func (s *Selector) FetchFeed(ctx context.Context, handle string, count int) (*AuthorFeed, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, ErrUserNotFound
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrInsufficientPosts)
	}
	count = min(count, s.opts.MaxCount)

	log := s.log.With(logx.String("handle", handle), logx.Int("count", count))
	log.Info("scraping user timeline")

	user, err := s.src.UserByUsername(ctx, handle)
	if err != nil {
		if errors.Is(err, twitter.ErrNotFound) {
			return nil, fmt.Errorf("@%s: %w", handle, ErrUserNotFound)
		}
		return nil, &FetchError{Op: "user lookup", Handle: handle, Err: err}
	}

	pageSize := min(count, pageLimit)
	pages := (count + pageLimit - 1) / pageLimit

	var (
		tweets []twitter.Tweet
		media  = map[string]twitter.Media{}
		token  string
	)
	for page := 0; page < pages; page++ {
		tp, err := s.src.UserTweets(ctx, user.ID, twitter.TimelineParams{MaxResults: pageSize, PaginationToken: token})
		if err != nil {
			return nil, &FetchError{Op: "timeline", Handle: handle, Err: err}
		}
		log.Debug("timeline page", logx.Int("page", page), logx.Int("posts", len(tp.Tweets)))
		tweets = append(tweets, tp.Tweets...)
		for _, m := range tp.Media {
			if _, ok := media[m.MediaKey]; !ok {
				media[m.MediaKey] = m
			}
		}
		token = tp.NextToken
		if token == "" {
			break
		}
	}
	if len(tweets) > count {
		tweets = tweets[:count]
	}

	feed := NewAuthorFeed(handle)
	for _, t := range tweets {
		var mp *twitter.Media
		if key := t.FirstMediaKey(); key != "" {
			if m, ok := media[key]; ok {
				mp = &m
			}
		}
		feed.Add(NewPost(handle, t, mp, s.opts.Location))
	}

	log.Info("retrieved posts", logx.Int("posts", feed.Len()))
	if feed.Len() < s.opts.MinFeedPosts {
		return nil, fmt.Errorf("@%s: %w (got %d, need %d)", handle, ErrInsufficientPosts, feed.Len(), s.opts.MinFeedPosts)
	}
	return feed, nil
}
