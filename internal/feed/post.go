package feed

import (
	"regexp"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // display timezone must resolve on hosts without zoneinfo

	"birdrelay/internal/twitter"
)

// TimestampLayout is the display format of Post.Timestamp ("Mar 01 2023 12:04:05 PM").
const TimestampLayout = "Jan 02 2006 03:04:05 PM"

// Post is an immutable snapshot of one source post, ready for rendering.
type Post struct {
	ID        string
	Handle    string
	CreatedAt time.Time
	// Timestamp is CreatedAt in the display timezone, formatted with TimestampLayout.
	Timestamp string
	Link      string
	// MediaURL is the first attached image (or video preview); empty when none.
	MediaURL  string
	Text      string
	Reposts   int
	Favorites int
	Replies   int
}

var linkRE = regexp.MustCompile(`http\S+`)

// CleanText flattens newlines, escapes double quotes and strips links.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, `"`, `\"`)
	return linkRE.ReplaceAllString(s, "")
}

// Permalink returns the canonical URL of a post.
func Permalink(handle, id string) string {
	return "https://twitter.com/" + handle + "/status/" + id
}

// NewPost builds a Post from an API tweet. media may be nil.
func NewPost(handle string, t twitter.Tweet, media *twitter.Media, loc *time.Location) Post {
	if loc == nil {
		loc = time.UTC
	}
	p := Post{
		ID:        t.ID,
		Handle:    handle,
		CreatedAt: t.CreatedAt,
		Timestamp: t.CreatedAt.In(loc).Format(TimestampLayout),
		Link:      Permalink(handle, t.ID),
		Text:      CleanText(t.Text),
		Reposts:   max(0, t.PublicMetrics.RetweetCount),
		Favorites: max(0, t.PublicMetrics.LikeCount),
		Replies:   max(0, t.PublicMetrics.ReplyCount),
	}
	if media != nil {
		p.MediaURL = media.ImageURL()
	}
	return p
}

// AuthorFeed is one author's posts in API order, with the engagement
// counters kept as parallel series for the statistics.
type AuthorFeed struct {
	Handle string

	posts     []Post
	reposts   []float64
	favorites []float64
	replies   []float64
}

func NewAuthorFeed(handle string) *AuthorFeed {
	return &AuthorFeed{Handle: handle}
}

// Add appends a post and its counters. All series stay the same length.
func (f *AuthorFeed) Add(p Post) {
	f.posts = append(f.posts, p)
	f.reposts = append(f.reposts, float64(p.Reposts))
	f.favorites = append(f.favorites, float64(p.Favorites))
	f.replies = append(f.replies, float64(p.Replies))
}

func (f *AuthorFeed) Len() int { return len(f.posts) }

// Posts returns the posts in API order. The slice must not be modified.
func (f *AuthorFeed) Posts() []Post { return f.posts }

func (f *AuthorFeed) Reposts() []float64   { return f.reposts }
func (f *AuthorFeed) Favorites() []float64 { return f.favorites }
func (f *AuthorFeed) Replies() []float64   { return f.replies }

// SortedByFavorites returns a new slice ordered by favorites, highest first.
// Ties keep API order.
func (f *AuthorFeed) SortedByFavorites() []Post {
	out := append([]Post(nil), f.posts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Favorites > out[j].Favorites })
	return out
}
