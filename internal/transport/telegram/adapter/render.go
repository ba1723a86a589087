package adapter

import (
	"html"
	"strings"

	kit "birdrelay/internal/transport"
)

const (
	telegramTextLimit    = 4000
	telegramCaptionLimit = 1024
)

// renderCardHTML lays a card out as Telegram HTML:
//
//	🟧 <b><a href="url">title</a></b>
//
//	description
//
//	<i>footer</i>
//	🔗 url
//
// The description is shortened so the visible text stays within limit runes.
func renderCardHTML(c kit.Card, limit int) string {
	head := colorEmoji(c.Color) + " "
	if c.URL != "" {
		head += `<b><a href="` + html.EscapeString(c.URL) + `">` + html.EscapeString(c.Title) + "</a></b>"
	} else {
		head += "<b>" + html.EscapeString(c.Title) + "</b>"
	}
	tail := ""
	if c.Footer != "" {
		tail += "\n\n<i>" + html.EscapeString(c.Footer) + "</i>"
	}
	if c.URL != "" {
		tail += "\n🔗 " + html.EscapeString(c.URL)
	}

	// Telegram counts the limit on the text after entity parsing.
	visible := runeLen(c.Title) + 2 + runeLen(c.Footer) + 4 + runeLen(c.URL) + 5
	body := strings.TrimSpace(c.Description)
	if room := limit - visible - 2; runeLen(body) > room {
		if room <= 1 {
			body = ""
		} else {
			body = string([]rune(body)[:room-1]) + "…"
		}
	}
	if body == "" {
		return head + tail
	}
	return head + "\n\n" + html.EscapeString(body) + tail
}

func runeLen(s string) int { return len([]rune(s)) }

var squares = []struct {
	emoji   string
	r, g, b int
}{
	{"🟥", 221, 46, 68},
	{"🟧", 244, 144, 12},
	{"🟨", 253, 203, 88},
	{"🟩", 120, 177, 89},
	{"🟦", 85, 172, 238},
	{"🟪", 170, 142, 214},
	{"🟫", 193, 105, 79},
	{"⬛", 49, 55, 61},
	{"⬜", 230, 231, 232},
}

// colorEmoji picks the colored square closest to an RGB accent color.
func colorEmoji(c int) string {
	r, g, b := (c>>16)&0xff, (c>>8)&0xff, c&0xff
	best, bestD := squares[0].emoji, -1
	for _, s := range squares {
		d := (r-s.r)*(r-s.r) + (g-s.g)*(g-s.g) + (b-s.b)*(b-s.b)
		if bestD < 0 || d < bestD {
			best, bestD = s.emoji, d
		}
	}
	return best
}

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and avoids splitting inside HTML tags when parseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
