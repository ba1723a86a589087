package relay

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"birdrelay/internal/feed"
	kit "birdrelay/internal/transport"
)

// ErrNotRelayedPost is returned when a message or card is not a relayed post.
var ErrNotRelayedPost = errors.New("not a relayed post")

// RenderCard lays out post i of n (1-based) as a card.
func RenderCard(p feed.Post, i, n, color int) kit.Card {
	return kit.Card{
		Title:       fmt.Sprintf("Tweet from %s at %s", p.Handle, p.Timestamp),
		URL:         p.Link,
		Color:       color,
		Description: p.Text,
		ImageURL:    p.MediaURL,
		Footer: fmt.Sprintf("Users gave this tweet %d retweets, %d likes, and %d replies. (Tweet %d/%d)",
			p.Reposts, p.Favorites, p.Replies, i, n),
	}
}

// CardInfo is what can be read back from a relayed post.
type CardInfo struct {
	Handle    string
	Timestamp string
	Link      string
	Reposts   int
	Favorites int
	Replies   int
	Index     int
	Total     int
}

var (
	titleRE  = regexp.MustCompile(`(?m)Tweet from (\S+) at (.+?)\s*$`)
	footerRE = regexp.MustCompile(`Users gave this tweet (\d+) retweets, (\d+) likes, and (\d+) replies\. \(Tweet (\d+)/(\d+)\)`)
	linkRE   = regexp.MustCompile(`https://twitter\.com/[A-Za-z0-9_]+/status/\d+`)
)

// ParseCard recovers the handle, timestamp, permalink and counters of a card
// built by RenderCard.
func ParseCard(c kit.Card) (CardInfo, error) {
	info, err := parseTitleFooter(c.Title, c.Footer)
	if err != nil {
		return CardInfo{}, err
	}
	if !linkRE.MatchString(c.URL) {
		return CardInfo{}, fmt.Errorf("%w: bad permalink %q", ErrNotRelayedPost, c.URL)
	}
	info.Link = c.URL
	return info, nil
}

// ParseCardText does the same as ParseCard on the plain text of a sent
// message, whatever layout the transport used.
func ParseCardText(text string) (CardInfo, error) {
	info, err := parseTitleFooter(text, text)
	if err != nil {
		return CardInfo{}, err
	}
	info.Link = linkRE.FindString(text)
	if info.Link == "" {
		return CardInfo{}, fmt.Errorf("%w: no permalink", ErrNotRelayedPost)
	}
	return info, nil
}

func parseTitleFooter(title, footer string) (CardInfo, error) {
	t := titleRE.FindStringSubmatch(title)
	if t == nil {
		return CardInfo{}, fmt.Errorf("%w: no title", ErrNotRelayedPost)
	}
	f := footerRE.FindStringSubmatch(footer)
	if f == nil {
		return CardInfo{}, fmt.Errorf("%w: no footer", ErrNotRelayedPost)
	}
	nums := make([]int, 5)
	for i := range nums {
		n, err := strconv.Atoi(f[i+1])
		if err != nil {
			return CardInfo{}, fmt.Errorf("%w: %v", ErrNotRelayedPost, err)
		}
		nums[i] = n
	}
	return CardInfo{
		Handle:    t[1],
		Timestamp: t[2],
		Reposts:   nums[0],
		Favorites: nums[1],
		Replies:   nums[2],
		Index:     nums[3],
		Total:     nums[4],
	}, nil
}
