package feed

import (
	"context"
	"fmt"
	"slices"

	"github.com/montanaflynn/stats"

	logx "birdrelay/pkg/logx"
)

// SelectImagePosts returns the feed's posts that carry media, most favorited first.
// Fewer than MinImagePosts results is ErrInsufficientPosts.
func (s *Selector) SelectImagePosts(ctx context.Context, handle string, count int) ([]Post, error) {
	feed, err := s.FetchFeed(ctx, handle, count)
	if err != nil {
		return nil, err
	}
	var out []Post
	for _, p := range feed.SortedByFavorites() {
		if p.MediaURL != "" {
			out = append(out, p)
		}
	}
	s.log.Info("found posts with images", logx.String("handle", feed.Handle), logx.Int("selected", len(out)))
	if len(out) < s.opts.MinImagePosts {
		return nil, fmt.Errorf("@%s: %w (%d with images, need %d)", feed.Handle, ErrInsufficientPosts, len(out), s.opts.MinImagePosts)
	}
	return out, nil
}

// SelectBestPosts returns the feed's statistical outliers, most favorited first.
//
// A post is selected when any of its reposts, favorites or replies is above
// mean+stdev of that counter, or at least the configured quantile cut.
// An empty result with a nil error is a valid outcome.
func (s *Selector) SelectBestPosts(ctx context.Context, handle string, count int) ([]Post, error) {
	feed, err := s.FetchFeed(ctx, handle, count)
	if err != nil {
		return nil, err
	}

	th, err := s.thresholdsFor(feed)
	if err != nil {
		return nil, err
	}

	out := []Post{}
	for _, p := range feed.SortedByFavorites() {
		if th.selects(p) {
			out = append(out, p)
		}
	}
	s.log.Info("found posts that met criteria",
		logx.String("handle", feed.Handle),
		logx.Int("selected", len(out)),
		logx.Int("of", feed.Len()),
		logx.Float64("favorites_cut", th.favorites.cut),
		logx.Float64("favorites_outlier", th.favorites.outlier),
	)
	return out, nil
}

// threshold is the pair of limits computed for one counter.
type threshold struct {
	// outlier is mean + sample stdev; a value strictly above it selects.
	outlier float64
	// cut is the quantile cut point; a value at or above it selects.
	cut float64
}

func (t threshold) hit(v int) bool {
	f := float64(v)
	return f > t.outlier || f >= t.cut
}

type thresholds struct {
	reposts, favorites, replies threshold
}

func (t thresholds) selects(p Post) bool {
	return t.reposts.hit(p.Reposts) || t.favorites.hit(p.Favorites) || t.replies.hit(p.Replies)
}

func (s *Selector) thresholdsFor(f *AuthorFeed) (thresholds, error) {
	var (
		th  thresholds
		err error
	)
	if th.reposts, err = computeThreshold(f.Reposts(), s.opts.Quantiles, s.opts.QuantileCut); err != nil {
		return th, fmt.Errorf("reposts: %w", err)
	}
	if th.favorites, err = computeThreshold(f.Favorites(), s.opts.Quantiles, s.opts.QuantileCut); err != nil {
		return th, fmt.Errorf("favorites: %w", err)
	}
	if th.replies, err = computeThreshold(f.Replies(), s.opts.Quantiles, s.opts.QuantileCut); err != nil {
		return th, fmt.Errorf("replies: %w", err)
	}
	return th, nil
}

func computeThreshold(series []float64, n, cut int) (threshold, error) {
	mean, err := stats.Mean(series)
	if err != nil {
		return threshold{}, err
	}
	sd, err := stats.StandardDeviationSample(series)
	if err != nil {
		return threshold{}, err
	}
	qs, err := quantiles(series, n)
	if err != nil {
		return threshold{}, err
	}
	if cut < 1 || cut > len(qs) {
		return threshold{}, fmt.Errorf("quantile cut %d out of range [1, %d]", cut, len(qs))
	}
	return threshold{outlier: mean + sd, cut: qs[cut-1]}, nil
}

// quantiles returns the n-1 cut points dividing data into n equal-probability
// intervals, using the "exclusive" linear interpolation method (the method of
// Python's statistics.quantiles and of R type 6).
func quantiles(data []float64, n int) ([]float64, error) {
	if n < 1 {
		return nil, fmt.Errorf("n must be at least 1")
	}
	ld := len(data)
	if ld < 2 {
		if ld == 1 {
			out := make([]float64, n-1)
			for i := range out {
				out[i] = data[0]
			}
			return out, nil
		}
		return nil, stats.ErrEmptyInput
	}
	d := slices.Clone(data)
	slices.Sort(d)

	m := ld + 1
	out := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		j := i * m / n
		j = max(1, min(j, ld-1))
		delta := i*m - j*n
		out = append(out, (d[j-1]*float64(n-delta)+d[j]*float64(delta))/float64(n))
	}
	return out, nil
}
