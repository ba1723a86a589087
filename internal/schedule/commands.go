package schedule

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"birdrelay/internal/router"
	kit "birdrelay/internal/transport"
)

// Commands returns the chat commands for inspecting and firing schedules.
func (s *Service) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "schedules",
			Description: "list scheduled scrapes",
			Usage:       "/schedules",
			Access:      router.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				_, err := req.Adapter.SendText(ctx, req.Chat, FormatEntries(s.Entries(), time.Now()), &kit.SendOptions{ParseMode: "HTML"})
				return err
			},
		},
		{
			Name:        "schedule_run",
			Description: "fire a scheduled scrape now",
			Usage:       "/schedule_run <name>",
			Access:      router.AccessOwnerOnly,
			Timeout:     15 * time.Second,
			Handle: func(ctx context.Context, req *router.Request) error {
				if len(req.Args) < 1 {
					_, err := req.Reply(ctx, "Usage: /schedule_run <name>")
					return err
				}
				if err := s.RunNow(req.Args[0]); err != nil {
					_, rerr := req.Reply(ctx, err.Error())
					return rerr
				}
				return nil
			},
		},
	}
}

// FormatEntries renders the schedule list as Telegram HTML.
func FormatEntries(entries []Entry, now time.Time) string {
	if len(entries) == 0 {
		return "⏰ <b>Schedules</b>\nnone"
	}
	var b strings.Builder
	b.WriteString("⏰ <b>Schedules</b>")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n• <code>%s</code> %s @%s", html.EscapeString(e.Name), e.Mode, html.EscapeString(e.Handle))
		if e.Count > 0 {
			fmt.Fprintf(&b, " (%d)", e.Count)
		}
		fmt.Fprintf(&b, " <i>%s</i>", html.EscapeString(e.Spec))
		if !e.Next.IsZero() {
			fmt.Fprintf(&b, ", next in %s", e.Next.Sub(now).Truncate(time.Second))
		}
	}
	return b.String()
}
