package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"birdrelay/internal/app"
	"birdrelay/internal/config"
	"birdrelay/internal/feed"
	"birdrelay/internal/relay"
	logx "birdrelay/pkg/logx"
)

var previewCmd = &cobra.Command{
	Use:   "preview <best|images> <handle> [count]",
	Short: "Run the post selector and print the cards without sending them",
	Long: `preview fetches the recent posts of a user, runs the same selection the bot
would, and prints every card to stdout. Nothing is sent to Telegram and the
session guard is not involved, so it is safe to run next to a live bot.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runPreview,
}

var previewVerbose bool

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().BoolVarP(&previewVerbose, "verbose", "v", false, "log API calls to stderr")
}

func runPreview(cmd *cobra.Command, args []string) error {
	mode := relay.Mode(args[0])
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q (want %q or %q)", args[0], relay.ModeBest, relay.ModeImages)
	}
	handle, err := relay.NormalizeHandle(args[1])
	if err != nil {
		return err
	}

	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return err
	}
	count := cfg.Relay.Count()
	if len(args) == 3 {
		if count, err = strconv.Atoi(args[2]); err != nil || count <= 0 {
			return fmt.Errorf("count must be a positive number")
		}
	}

	log := logx.Nop()
	if previewVerbose {
		log = logx.NewWriter(cmd.ErrOrStderr(), "DEBUG")
	}
	tw, err := app.NewTwitterClient(cfg, log)
	if err != nil {
		return err
	}
	sel := app.NewSelector(cfg, tw, log)

	var posts []feed.Post
	if mode == relay.ModeImages {
		posts, err = sel.SelectImagePosts(cmd.Context(), handle, count)
	} else {
		posts, err = sel.SelectBestPosts(cmd.Context(), handle, count)
	}
	if err != nil {
		return fmt.Errorf("select %s posts of @%s: %w", mode, handle, err)
	}
	return writeCards(cmd.OutOrStdout(), posts, cfg.Relay.Color())
}

// writeCards prints posts as the plain-text form of their cards.
func writeCards(w io.Writer, posts []feed.Post, color int) error {
	if len(posts) == 0 {
		_, err := fmt.Fprintln(w, "no posts selected")
		return err
	}
	sep := strings.Repeat("─", 40)
	for i, p := range posts {
		c := relay.RenderCard(p, i+1, len(posts), color)
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n%s\n%s\n", sep, c.Title, c.URL)
		if c.Description != "" {
			fmt.Fprintf(&b, "\n%s\n", c.Description)
		}
		if c.ImageURL != "" {
			fmt.Fprintf(&b, "\n[image] %s\n", c.ImageURL)
		}
		fmt.Fprintf(&b, "\n%s\n", c.Footer)
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s\n%d posts selected\n", sep, len(posts))
	return err
}
