package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"birdrelay/internal/router"
	"birdrelay/internal/storage"
	kit "birdrelay/internal/transport"
	logx "birdrelay/pkg/logx"
)

// Commands returns the chat commands of the relay.
func (s *Service) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "scrape_channel",
			Description: "use this chat for scraping",
			Usage:       "/scrape_channel",
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      s.setChannelHandler(storage.KeyScrapeChannel, "Set intended scrape channel to %s"),
		},
		{
			Name:        "select_channel",
			Description: "use this chat for selected posts",
			Usage:       "/select_channel",
			Access:      router.AccessOwnerOnly,
			Timeout:     10 * time.Second,
			Handle:      s.setChannelHandler(storage.KeySelectChannel, "Set intended select channel to %s"),
		},
		{
			Name:        "scrape_best",
			Aliases:     []string{"best"},
			Description: "relay the best recent posts of a user",
			Usage:       "/scrape_best <handle> [count]",
			Access:      router.AccessOwnerOnly,
			Timeout:     15 * time.Second,
			Handle:      s.scrapeHandler(ModeBest),
		},
		{
			Name:        "scrape_images",
			Aliases:     []string{"images"},
			Description: "relay the recent posts of a user that carry images",
			Usage:       "/scrape_images <handle> [count]",
			Access:      router.AccessOwnerOnly,
			Timeout:     15 * time.Second,
			Handle:      s.scrapeHandler(ModeImages),
		},
		{
			Name:        "stop_scrape",
			Aliases:     []string{"stop"},
			Description: "stop the running session",
			Usage:       "/stop_scrape",
			Access:      router.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				_, err := req.Reply(ctx, s.StopScrape(ctx, actorOf(req), req.Chat))
				return err
			},
		},
		{
			Name:        "select",
			Description: "copy the replied relayed post into the select chat",
			Usage:       "/select (as a reply to a relayed post)",
			Access:      router.AccessOwnerOnly,
			Timeout:     15 * time.Second,
			Handle:      s.selectHandler,
		},
		{
			Name:        "status",
			Description: "show the running session",
			Usage:       "/status",
			Access:      router.AccessEveryone,
			Handle:      s.statusHandler,
		},
		{
			Name:        "test_client",
			Description: "check the source API credentials",
			Usage:       "/test_client",
			Access:      router.AccessOwnerOnly,
			Timeout:     20 * time.Second,
			Handle: func(ctx context.Context, req *router.Request) error {
				out, err := s.Probe(ctx)
				if err != nil {
					req.Logger.Warn("source probe failed", logx.Err(err))
					_, rerr := req.Reply(ctx, "Source API check failed: "+err.Error())
					return rerr
				}
				_, err = req.Reply(ctx, "Source API OK: "+out)
				return err
			},
		},
	}
}

// Callbacks returns the inline button handlers of the relay.
func (s *Service) Callbacks() []router.CallbackRoute {
	scope, action, _ := strings.Cut(SelectCallbackData, ":")
	return []router.CallbackRoute{{
		Scope:       scope,
		Action:      action,
		Description: "copy a relayed post into the select chat",
		Access:      router.CallbackAccessEveryone,
		Timeout:     15 * time.Second,
		Handle: func(ctx context.Context, req *router.Request, _ string) error {
			cb := req.Callback
			if cb == nil || cb.MessageID == 0 {
				return errors.New("callback without message")
			}
			ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
			_, err := s.Promote(ctx, ref, cb.MessageText, actorOf(req))
			switch {
			case errors.Is(err, ErrSelectNotConfigured):
				_ = req.Adapter.AnswerCallback(ctx, cb.ID, "Set the select channel first")
				return nil
			case err != nil:
				_ = req.Adapter.AnswerCallback(ctx, cb.ID, "Could not select this post")
				return err
			}
			_ = req.Adapter.AnswerCallback(ctx, cb.ID, "Selected ⭐")
			return nil
		},
	}}
}

func actorOf(req *router.Request) Actor {
	return Actor{ID: req.FromID, Username: req.From}
}

func (s *Service) setChannelHandler(key, reply string) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		if err := s.SetChannel(ctx, key, req.Chat, actorOf(req)); err != nil {
			_, _ = req.Reply(ctx, "Could not save the channel, check the logs")
			return err
		}
		_, err := req.Reply(ctx, fmt.Sprintf(reply, req.Chat.String()))
		return err
	}
}

func (s *Service) scrapeHandler(mode Mode) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		if len(req.Args) < 1 {
			_, err := req.Reply(ctx, "Usage: /scrape_"+string(mode)+" <handle> [count]")
			return err
		}
		count := 0
		if len(req.Args) > 1 {
			n, err := strconv.Atoi(req.Args[1])
			if err != nil || n <= 0 {
				_, rerr := req.Reply(ctx, "Count must be a positive number")
				return rerr
			}
			count = n
		} else if v, ok := req.Flags["count"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				_, rerr := req.Reply(ctx, "Count must be a positive number")
				return rerr
			}
			count = n
		}

		err := s.Scrape(ctx, ScrapeRequest{
			Mode:    mode,
			Handle:  req.Args[0],
			Count:   count,
			Origin:  req.Chat,
			Actor:   actorOf(req),
			Trigger: "command",
		})
		var rej *Rejection
		switch {
		case err == nil, errors.As(err, &rej):
			// answered through the status message
			return nil
		case errors.Is(err, ErrInvalidHandle):
			_, rerr := req.Reply(ctx, "That is not a valid handle")
			return rerr
		default:
			_, _ = req.Reply(ctx, "Could not start scraping, check the logs")
			return err
		}
	}
}

func (s *Service) selectHandler(ctx context.Context, req *router.Request) error {
	msg := req.Message
	if msg == nil || msg.ReplyTo == nil {
		_, err := req.Reply(ctx, "Reply to a relayed post with /select")
		return err
	}
	ref := kit.MessageRef{ChatID: msg.ChatID, ThreadID: msg.ThreadID, MessageID: msg.ReplyTo.ID}
	_, err := s.Promote(ctx, ref, msg.ReplyTo.Body(), actorOf(req))
	switch {
	case errors.Is(err, ErrNotRelayedPost):
		_, rerr := req.Reply(ctx, "That message is not a relayed post")
		return rerr
	case errors.Is(err, ErrSelectNotConfigured):
		_, rerr := req.Reply(ctx, "Set the select channel first")
		return rerr
	case err != nil:
		_, _ = req.Reply(ctx, "Could not select this post, check the logs")
		return err
	}
	_, err = req.Reply(ctx, "Selected ⭐")
	return err
}

func (s *Service) statusHandler(ctx context.Context, req *router.Request) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, FormatStatus(s.session.Snapshot()), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

// FormatStatus renders a snapshot as Telegram HTML.
func FormatStatus(snap Snapshot) string {
	var b strings.Builder
	if snap.Busy {
		fmt.Fprintf(&b, "🔄 <b>Scraping</b> @%s (%s, %d posts considered)\n", snap.Handle, snap.Mode, snap.Count)
		fmt.Fprintf(&b, "Progress: %d/%d sent, %d failed\n", snap.Sent, snap.Total, snap.Failed)
		fmt.Fprintf(&b, "Running for %s", time.Since(snap.StartedAt).Truncate(time.Second))
		if snap.Cancelled {
			b.WriteString("\n⏹ stop requested")
		}
	} else {
		b.WriteString("💤 <b>Idle</b>")
	}
	if snap.Last != nil {
		l := snap.Last
		fmt.Fprintf(&b, "\n\nLast: @%s (%s) %d/%d sent, %d failed", l.Handle, l.Mode, l.Report.Sent, l.Report.Total, l.Report.Failed)
		if l.Report.Stopped {
			b.WriteString(", stopped")
		}
	}
	return b.String()
}
